package notification

import (
	"context"
	"fmt"
	"time"
)

// Event represents a backup, restore or sweep event that can be notified
type Event struct {
	Type      EventType
	Source    string
	Artifact  string
	Stage     string
	Size      int64
	Duration  time.Duration
	Deleted   int
	Failed    int
	Error     error
	Timestamp time.Time
}

// EventType represents the type of event
type EventType string

const (
	EventBackupCompleted      EventType = "backup_completed"
	EventBackupFailed         EventType = "backup_failed"
	EventRestoreCompleted     EventType = "restore_completed"
	EventRestoreFailed        EventType = "restore_failed"
	EventIntegrityCheckFailed EventType = "integrity_check_failed"
	EventChecksumMismatch     EventType = "checksum_mismatch"
	EventSweepCompleted       EventType = "sweep_completed"
)

// Severity groups event types for presentation.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
	SeverityCritical
)

// Severity returns how urgent the event is. Sweeps with failed deletions are warnings.
func (e Event) Severity() Severity {
	switch e.Type {
	case EventIntegrityCheckFailed:
		return SeverityCritical
	case EventBackupFailed, EventRestoreFailed:
		return SeverityError
	case EventChecksumMismatch:
		return SeverityWarning
	case EventSweepCompleted:
		if e.Failed > 0 {
			return SeverityWarning
		}
	}
	return SeverityInfo
}

// Title returns a short human readable title for the event.
func (e Event) Title() string {
	switch e.Type {
	case EventBackupCompleted:
		return "Backup Completed"
	case EventBackupFailed:
		return "Backup Failed"
	case EventRestoreCompleted:
		return "Restore Completed"
	case EventRestoreFailed:
		return "Restore Failed"
	case EventIntegrityCheckFailed:
		return "Integrity Check Failed"
	case EventChecksumMismatch:
		return "Checksum Mismatch"
	case EventSweepCompleted:
		return "Retention Sweep Completed"
	default:
		return string(e.Type)
	}
}

// Notifier defines the interface for notification providers
type Notifier interface {
	// Name returns the notifier instance name
	Name() string

	// Type returns the notifier type (e.g., "telegram", "discord")
	Type() string

	// Send sends a notification for the given event
	Send(ctx context.Context, event Event) error
}

// NotifierType creates Notifier instances from configuration
type NotifierType interface {
	// Name returns the type identifier ("telegram", "discord", etc.)
	Name() string

	// Create instantiates a notifier from configuration options
	Create(name string, options map[string]string) (Notifier, error)
}

// FormatSize formats bytes into human-readable size
func FormatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
