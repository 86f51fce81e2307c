package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/kazz187/appbuilder/internal/project"
)

// ErrDockerUnavailable is returned by every run when the daemon could not be
// reached at startup.
var ErrDockerUnavailable = errors.New("docker not available")

const containerWorkDir = "/app"

// Output is what a command printed inside the runner container.
type Output struct {
	Text     string
	ExitCode int
}

type Runner interface {
	Run(ctx context.Context, projectID, command string) (Output, error)
}

// DockerRunner runs one throwaway container per command with the project
// directory bind-mounted at /app.
type DockerRunner struct {
	client    client.APIClient
	available bool
	image     string
	workspace string
	timeout   time.Duration
}

// NewDockerRunner connects to the daemon from the environment. An unreachable
// daemon does not fail construction; runs report ErrDockerUnavailable instead.
func NewDockerRunner(ctx context.Context, img, workspace string, timeout time.Duration) *DockerRunner {
	r := &DockerRunner{image: img, workspace: workspace, timeout: timeout}

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		slog.WarnContext(ctx, "docker client unavailable", "error", err)
		return r
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := cli.Ping(pingCtx); err != nil {
		slog.WarnContext(ctx, "docker daemon unreachable", "error", err)
		_ = cli.Close()
		return r
	}
	r.client = cli
	r.available = true
	return r
}

func (r *DockerRunner) Available() bool {
	return r.available
}

func (r *DockerRunner) Run(ctx context.Context, projectID, command string) (Output, error) {
	if !r.available {
		return Output{}, ErrDockerUnavailable
	}
	source, err := filepath.Abs(filepath.Join(r.workspace, filepath.FromSlash(project.Dir(projectID))))
	if err != nil {
		return Output{}, fmt.Errorf("resolve workspace: %w", err)
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	if err := r.ensureImage(ctx); err != nil {
		return Output{}, fmt.Errorf("pull image %s: %w", r.image, err)
	}

	resp, err := r.client.ContainerCreate(ctx,
		&container.Config{
			Image:      r.image,
			Cmd:        []string{"sh", "-c", command},
			WorkingDir: containerWorkDir,
		},
		&container.HostConfig{
			Mounts: []mount.Mount{{
				Type:   mount.TypeBind,
				Source: source,
				Target: containerWorkDir,
			}},
		},
		nil, nil, "")
	if err != nil {
		return Output{}, fmt.Errorf("create container: %w", err)
	}
	defer func() {
		rmCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := r.client.ContainerRemove(rmCtx, resp.ID, container.RemoveOptions{Force: true}); err != nil {
			slog.WarnContext(ctx, "failed to remove runner container", "container_id", resp.ID, "error", err)
		}
	}()

	if err := r.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return Output{}, fmt.Errorf("start container: %w", err)
	}

	var exitCode int
	waitCh, errCh := r.client.ContainerWait(ctx, resp.ID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		return Output{}, fmt.Errorf("wait container: %w", err)
	case w := <-waitCh:
		exitCode = int(w.StatusCode)
	}

	logs, err := r.client.ContainerLogs(ctx, resp.ID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return Output{}, fmt.Errorf("container logs: %w", err)
	}
	defer logs.Close()

	var buf bytes.Buffer
	if _, err := stdcopy.StdCopy(&buf, &buf, logs); err != nil {
		return Output{}, fmt.Errorf("read container logs: %w", err)
	}
	slog.DebugContext(ctx, "runner container finished", "image", r.image, "exit_code", exitCode, "bytes", buf.Len())
	return Output{Text: buf.String(), ExitCode: exitCode}, nil
}

func (r *DockerRunner) ensureImage(ctx context.Context) error {
	if _, err := r.client.ImageInspect(ctx, r.image); err == nil {
		return nil
	}
	reader, err := r.client.ImagePull(ctx, r.image, image.PullOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = reader.Close() }()
	_, err = io.Copy(io.Discard, reader)
	return err
}

func (r *DockerRunner) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}
