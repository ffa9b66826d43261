// Package backup runs the backup and restore pipelines over a backup directory.
//
// A backup takes a snapshot from a snapshot.Source, compresses it, encrypts it with
// AES-256-GCM and checksums the resulting artifact. The IV and authentication tag are
// returned to the caller and recorded in a sidecar manifest next to the artifact.
// A restore decrypts into a staged file and only produces output once the
// authentication tag has been verified.
package backup

import (
	"errors"
	"fmt"
	"time"

	"github.com/shyim/db-vault/internal/checksum"
	"github.com/shyim/db-vault/internal/keys"
	"github.com/shyim/db-vault/internal/retention"
	"github.com/shyim/db-vault/internal/seal"
	"github.com/shyim/db-vault/internal/snapshot"
	"github.com/shyim/db-vault/internal/stream"
)

var (
	ErrInvalidKeyMaterial   = keys.ErrInvalidKeyMaterial
	ErrSnapshotFailed       = snapshot.ErrSnapshotFailed
	ErrCorruptArchive       = stream.ErrCorruptArchive
	ErrIntegrityCheckFailed = seal.ErrIntegrityCheckFailed
	ErrChecksumMismatch     = checksum.ErrMismatch
	ErrDeletionFailed       = retention.ErrDeletionFailed

	// ErrBackupInProgress is returned when another process holds the backup directory lock.
	ErrBackupInProgress = errors.New("backup already in progress")
	// ErrNoArtifacts is returned when a restore asks for the latest artifact and there is none.
	ErrNoArtifacts = errors.New("no backup artifacts found")
	// ErrNotArtifact is returned for names that are not backup artifacts.
	ErrNotArtifact = errors.New("not a backup artifact")
	// ErrMissingParameters is returned when IV or tag are neither given nor in a manifest.
	ErrMissingParameters = errors.New("iv and auth tag are required")
)

// State is the position of a pipeline run.
type State string

const (
	StateIdle             State = "idle"
	StateSnapshotTaken    State = "snapshot_taken"
	StateCompressed       State = "compressed"
	StateEncrypted        State = "encrypted"
	StateChecksumComputed State = "checksum_computed"
	StateDecrypted        State = "decrypted"
	StateDecompressed     State = "decompressed"
	StateFinalized        State = "finalized"
	StateFailed           State = "failed"
)

// Stage names the pipeline step that failed.
type Stage string

const (
	StageKey        Stage = "key"
	StageLock       Stage = "lock"
	StageSnapshot   Stage = "snapshot"
	StageCompress   Stage = "compress"
	StageEncrypt    Stage = "encrypt"
	StageChecksum   Stage = "checksum"
	StageLocate     Stage = "locate"
	StageDecrypt    Stage = "decrypt"
	StageDecompress Stage = "decompress"
	StageFinalize   Stage = "finalize"
)

// StageError is returned by Backup and Restore. It unwraps to the underlying cause,
// so errors.Is works against the sentinels above.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageError(stage Stage, err error) error {
	return &StageError{Stage: stage, Err: err}
}

// Result describes a finished backup.
type Result struct {
	ArtifactPath string
	SizeBytes    int64
	Checksum     string
	// IV and AuthTag are base64 encoded.
	IV      string
	AuthTag string
	State   State
}

// RestoreRequest selects what to restore.
type RestoreRequest struct {
	// Artifact is an artifact name inside the backup directory or a path to one.
	// Empty selects the most recent artifact.
	Artifact string
	// IV and AuthTag are base64 encoded and override the manifest when set.
	IV      string
	AuthTag string
	// RestoreDir overrides the configured restore directory.
	RestoreDir string
}

// RestoreResult describes a finished restore.
type RestoreResult struct {
	Artifact     string
	RestoredPath string
	SizeBytes    int64
	State        State
}

// VerifyResult is the outcome of comparing an artifact against its manifest checksum.
type VerifyResult struct {
	Artifact string
	Expected string
	Actual   string
	Match    bool
}

// ArtifactInfo is one entry returned by List.
type ArtifactInfo struct {
	Name        string
	Source      string
	Size        int64
	ModTime     time.Time
	HasManifest bool
}
