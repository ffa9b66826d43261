// Package postgres snapshots every database of a PostgreSQL server running in a docker
// container by streaming pg_dumpall output into the snapshot file.
package postgres

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/shyim/db-vault/internal/docker"
	"github.com/shyim/db-vault/internal/snapshot"
)

func init() {
	snapshot.Register(&Type{})
}

// Environment variable names for PostgreSQL configuration
const (
	EnvPostgresUser = "POSTGRES_USER"
	EnvPGUser       = "PGUSER"
)

// Client is the part of the docker client the source needs.
type Client interface {
	GetContainer(ctx context.Context, containerID string) (*docker.ContainerInfo, error)
	ExecWithOutput(ctx context.Context, containerID string, cmd []string, w io.Writer) (*docker.ExecResult, error)
	Close() error
}

// Dialer opens a docker client for host; empty host means the environment default.
type Dialer func(ctx context.Context, host string) (Client, error)

func dialDocker(ctx context.Context, host string) (Client, error) {
	c, err := docker.NewClient(ctx, host)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Type creates postgres sources.
type Type struct{}

func (t *Type) Name() string {
	return "postgres"
}

// Create expects a "container" option and accepts "docker-host" and "user".
func (t *Type) Create(options map[string]string) (snapshot.Source, error) {
	if options["container"] == "" {
		return nil, fmt.Errorf("postgres source requires the container option")
	}
	return &Source{
		container:  options["container"],
		dockerHost: options["docker-host"],
		user:       options["user"],
		dial:       dialDocker,
	}, nil
}

// Source dumps a containerised PostgreSQL server.
type Source struct {
	container  string
	dockerHost string
	user       string
	dial       Dialer
}

// New returns a source for container using dial to reach docker.
func New(container, user string, dial Dialer) *Source {
	return &Source{container: container, user: user, dial: dial}
}

func (s *Source) Name() string {
	return s.container + ".sql"
}

func (s *Source) TakeSnapshot(ctx context.Context, destPath string) error {
	return snapshot.Failed(s.Name(), s.dump(ctx, destPath))
}

func (s *Source) dump(ctx context.Context, destPath string) error {
	client, err := s.dial(ctx, s.dockerHost)
	if err != nil {
		return err
	}
	defer client.Close()

	info, err := client.GetContainer(ctx, s.container)
	if err != nil {
		return fmt.Errorf("failed to inspect container %s: %w", s.container, err)
	}
	if !info.Running {
		return fmt.Errorf("container %s is not running", info.Name)
	}

	user, err := s.resolveUser(info)
	if err != nil {
		return err
	}

	cmd := []string{
		"pg_dumpall",
		"-U", user,
		"--clean",
		"--if-exists",
	}

	return snapshot.WriteFile(destPath, func(w *bufio.Writer) error {
		result, err := client.ExecWithOutput(ctx, info.ID, cmd, w)
		if err != nil {
			return fmt.Errorf("failed to execute pg_dumpall: %w", err)
		}
		if result.ExitCode != 0 {
			return fmt.Errorf("pg_dumpall failed with exit code %d: %s", result.ExitCode, result.Output)
		}
		return nil
	})
}

// resolveUser prefers the configured user, then the container environment.
func (s *Source) resolveUser(info *docker.ContainerInfo) (string, error) {
	if s.user != "" {
		return s.user, nil
	}
	if user := info.Env[EnvPostgresUser]; user != "" {
		return user, nil
	}
	if user := info.Env[EnvPGUser]; user != "" {
		return user, nil
	}
	return "", fmt.Errorf("container %s is missing PostgreSQL user (set %s or %s, or the user option)", info.Name, EnvPostgresUser, EnvPGUser)
}
