package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// maxStderr bounds how much stderr of a streaming exec is kept for error messages.
const maxStderr = 8 * 1024

// ContainerInfo holds relevant container information
type ContainerInfo struct {
	ID      string
	Name    string
	Env     map[string]string
	Running bool
}

// Client wraps the Docker API client
type Client struct {
	cli *client.Client
}

// NewClient creates a new Docker client
func NewClient(ctx context.Context, host string) (*Client, error) {
	opts := []client.Opt{
		client.FromEnv,
		client.WithAPIVersionNegotiation(),
	}

	if host != "" {
		opts = append(opts, client.WithHost(host))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	// Verify connection
	if _, err := cli.Ping(ctx); err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("failed to reach docker daemon: %w", err)
	}

	return &Client{cli: cli}, nil
}

// Close closes the Docker client
func (c *Client) Close() error {
	return c.cli.Close()
}

// GetContainer returns detailed information about a container, by ID or name
func (c *Client) GetContainer(ctx context.Context, containerID string) (*ContainerInfo, error) {
	inspect, err := c.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		return nil, err
	}

	// Parse environment variables into a map
	env := make(map[string]string)
	if inspect.Config != nil {
		for _, e := range inspect.Config.Env {
			parts := strings.SplitN(e, "=", 2)
			if len(parts) == 2 {
				env[parts[0]] = parts[1]
			}
		}
	}

	running := false
	if inspect.State != nil {
		running = inspect.State.Running
	}

	return &ContainerInfo{
		ID:      inspect.ID,
		Name:    strings.TrimPrefix(inspect.Name, "/"),
		Env:     env,
		Running: running,
	}, nil
}

// ExecResult contains the result of a container exec
type ExecResult struct {
	ExitCode int
	Output   string
}

// Exec runs a command in a container and returns its combined output
func (c *Client) Exec(ctx context.Context, containerID string, cmd []string) (*ExecResult, error) {
	var stdout, stderr bytes.Buffer
	exitCode, err := c.exec(ctx, containerID, cmd, &stdout, &stderr)
	if err != nil {
		return nil, err
	}

	// Combine stdout and stderr for output
	output := stdout.String()
	if stderr.Len() > 0 {
		output += stderr.String()
	}

	return &ExecResult{
		ExitCode: exitCode,
		Output:   output,
	}, nil
}

// ExecWithOutput streams the command's stdout to w. The returned Output holds the
// beginning of stderr only.
func (c *Client) ExecWithOutput(ctx context.Context, containerID string, cmd []string, w io.Writer) (*ExecResult, error) {
	stderr := &limitedBuffer{max: maxStderr}
	exitCode, err := c.exec(ctx, containerID, cmd, w, stderr)
	if err != nil {
		return nil, err
	}

	return &ExecResult{
		ExitCode: exitCode,
		Output:   strings.TrimSpace(stderr.String()),
	}, nil
}

func (c *Client) exec(ctx context.Context, containerID string, cmd []string, stdout, stderr io.Writer) (int, error) {
	execConfig := container.ExecOptions{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
	}

	execID, err := c.cli.ContainerExecCreate(ctx, containerID, execConfig)
	if err != nil {
		return -1, err
	}

	resp, err := c.cli.ContainerExecAttach(ctx, execID.ID, container.ExecStartOptions{})
	if err != nil {
		return -1, err
	}
	defer resp.Close()

	// Demultiplex Docker stream
	if _, err := stdcopy.StdCopy(stdout, stderr, resp.Reader); err != nil {
		return -1, err
	}

	// Get exit code
	inspectResp, err := c.cli.ContainerExecInspect(ctx, execID.ID)
	if err != nil {
		return -1, err
	}

	return inspectResp.ExitCode, nil
}

// limitedBuffer keeps the first max bytes written and silently drops the rest.
type limitedBuffer struct {
	buf bytes.Buffer
	max int
}

func (l *limitedBuffer) Write(p []byte) (int, error) {
	if room := l.max - l.buf.Len(); room > 0 {
		if len(p) > room {
			l.buf.Write(p[:room])
		} else {
			l.buf.Write(p)
		}
	}
	return len(p), nil
}

func (l *limitedBuffer) String() string {
	return l.buf.String()
}
