// Package mysql snapshots a MySQL or MariaDB server running in a docker container with
// mysqldump (mariadb-dump on MariaDB 11+).
package mysql

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

// Environment variable names for MySQL configuration
const (
	EnvMySQLUser         = "MYSQL_USER"
	EnvMySQLPassword     = "MYSQL_PASSWORD"
	EnvMySQLRootPassword = "MYSQL_ROOT_PASSWORD"
	EnvMariaDBRootPass   = "MARIADB_ROOT_PASSWORD"
)

// Client is the part of the docker client the source needs.
type Client interface {
	GetContainer(ctx context.Context, containerID string) (*docker.ContainerInfo, error)
	Exec(ctx context.Context, containerID string, cmd []string) (*docker.ExecResult, error)
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

// Type creates mysql sources.
type Type struct{}

func (t *Type) Name() string {
	return "mysql"
}

// Create expects a "container" option and accepts "docker-host".
func (t *Type) Create(options map[string]string) (snapshot.Source, error) {
	if options["container"] == "" {
		return nil, fmt.Errorf("mysql source requires the container option")
	}
	return &Source{
		container:  options["container"],
		dockerHost: options["docker-host"],
		dial:       dialDocker,
	}, nil
}

// Source dumps a containerised MySQL or MariaDB server.
type Source struct {
	container  string
	dockerHost string
	dial       Dialer
}

// New returns a source for container using dial to reach docker.
func New(container string, dial Dialer) *Source {
	return &Source{container: container, dial: dial}
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

	user, password, err := credentials(info)
	if err != nil {
		return err
	}

	cmd := []string{
		dumpCommand(ctx, client, info.ID),
		"-u", user,
		"-p" + password,
		"--all-databases",
		"--single-transaction",
		"--routines",
		"--triggers",
		"--events",
		"--add-drop-database",
	}

	return snapshot.WriteFile(destPath, func(w *bufio.Writer) error {
		result, err := client.ExecWithOutput(ctx, info.ID, cmd, w)
		if err != nil {
			return fmt.Errorf("failed to execute %s: %w", cmd[0], err)
		}
		if result.ExitCode != 0 {
			return fmt.Errorf("%s failed with exit code %d: %s", cmd[0], result.ExitCode, result.Output)
		}
		return nil
	})
}

// credentials prefers root when a root password is set.
func credentials(info *docker.ContainerInfo) (user, password string, err error) {
	if rootPass, ok := info.Env[EnvMySQLRootPassword]; ok {
		return "root", rootPass, nil
	}
	if rootPass, ok := info.Env[EnvMariaDBRootPass]; ok {
		return "root", rootPass, nil
	}

	user, password = info.Env[EnvMySQLUser], info.Env[EnvMySQLPassword]
	if user == "" || password == "" {
		return "", "", fmt.Errorf("container %s is missing MySQL credentials (set %s or %s and %s)", info.Name, EnvMySQLRootPassword, EnvMySQLUser, EnvMySQLPassword)
	}
	return user, password, nil
}

// dumpCommand picks mariadb-dump on MariaDB 11+, which no longer ships mysqldump.
func dumpCommand(ctx context.Context, client Client, containerID string) string {
	result, err := client.Exec(ctx, containerID, []string{"which", "mariadb-dump"})
	if err == nil && result.ExitCode == 0 {
		return "mariadb-dump"
	}
	return "mysqldump"
}
