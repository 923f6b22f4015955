package docker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"
	"github.com/mariozechner/bytebox/pkg/sandbox"
)

const (
	DefaultTimeout = 10 * time.Second

	memoryLimit = 256 << 20
	pidsLimit   = 64
	nanoCPUs    = 1_000_000_000
)

// DefaultImages maps language ids to their runner images.
var DefaultImages = map[string]string{
	"python": "python-code-runner",
	"java":   "java-code-runner",
	"cpp":    "cpp-code-runner",
}

// DockerManager implements sandbox.Manager with one throwaway container per run.
// The runner image reads {"code","input"} from stdin and prints a JSON result.
type DockerManager struct {
	cli     *client.Client
	images  map[string]string
	timeout time.Duration
	logger  *slog.Logger
}

// Ensure DockerManager implements sandbox.Manager
var _ sandbox.Manager = (*DockerManager)(nil)

type Option func(*DockerManager)

// WithImages replaces the language to image mapping.
func WithImages(images map[string]string) Option {
	return func(m *DockerManager) { m.images = images }
}

// WithTimeout bounds how long a container may run.
func WithTimeout(d time.Duration) Option {
	return func(m *DockerManager) { m.timeout = d }
}

// WithLogger sets the logger (slog.Default() by default).
func WithLogger(l *slog.Logger) Option {
	return func(m *DockerManager) { m.logger = l }
}

// New creates a new DockerManager using the environment's docker settings.
func New(opts ...Option) (*DockerManager, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	m := &DockerManager{
		cli:     cli,
		images:  DefaultImages,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Close releases the docker client.
func (m *DockerManager) Close() error {
	return m.cli.Close()
}

// Languages returns the ids that have a runner image, sorted.
func (m *DockerManager) Languages() []string {
	ids := make([]string, 0, len(m.images))
	for id := range m.images {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

type runPayload struct {
	Code  string `json:"code"`
	Input string `json:"input"`
}

// Run executes code in a fresh, network-less container of the language image
// and parses the runner's JSON result. Run-level problems come back as a
// Result with Error set; the error return is for orchestration failures.
func (m *DockerManager) Run(ctx context.Context, language, code, input string) (*sandbox.Result, error) {
	image, ok := m.images[language]
	if !ok {
		return sandbox.ErrorResult(sandbox.MsgUnsupportedLanguage), nil
	}

	payload, err := json.Marshal(runPayload{Code: code, Input: input})
	if err != nil {
		return &sandbox.Result{Error: "Failed to serialize input JSON", Details: err.Error()}, nil
	}

	if _, _, err := m.cli.ImageInspectWithRaw(ctx, image); err != nil {
		return nil, fmt.Errorf("runner image '%s' not found, build it first: %w", image, err)
	}

	id, err := m.create(ctx, image)
	if err != nil {
		return nil, err
	}
	defer m.remove(id)

	attach, err := m.cli.ContainerAttach(ctx, id, types.ContainerAttachOptions{
		Stream: true,
		Stdin:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to attach container: %w", err)
	}
	defer attach.Close()

	start := time.Now()
	if err := m.cli.ContainerStart(ctx, id, types.ContainerStartOptions{}); err != nil {
		return nil, fmt.Errorf("failed to start container: %w", err)
	}

	if _, err := attach.Conn.Write(payload); err != nil {
		return nil, fmt.Errorf("failed to write stdin: %w", err)
	}
	if err := attach.CloseWrite(); err != nil {
		return nil, fmt.Errorf("failed to close stdin: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	if err := m.waitForExit(waitCtx, id); err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			m.logger.Warn("Container exceeded time limit", "language", language, "timeout", m.timeout)
			return sandbox.ErrorResult(sandbox.MsgTimedOut), nil
		}
		return nil, err
	}

	stdout, stderr, err := m.fetchLogs(ctx, id)
	if err != nil {
		return nil, err
	}

	m.logger.Debug("Container finished", "language", language, "duration", time.Since(start), "stdoutLen", len(stdout), "stderrLen", len(stderr))
	return parseOutput(stdout, stderr), nil
}

func (m *DockerManager) create(ctx context.Context, image string) (string, error) {
	pids := int64(pidsLimit)
	cfg := &container.Config{
		Image:           image,
		AttachStdin:     true,
		AttachStdout:    true,
		AttachStderr:    true,
		OpenStdin:       true,
		StdinOnce:       true,
		NetworkDisabled: true,
	}
	hostCfg := &container.HostConfig{
		NetworkMode: "none",
		Resources: container.Resources{
			NanoCPUs:   nanoCPUs,
			Memory:     memoryLimit,
			MemorySwap: memoryLimit,
			PidsLimit:  &pids,
		},
	}

	name := "bytebox-run-" + uuid.New().String()
	resp, err := m.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, name)
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}
	return resp.ID, nil
}

// remove force-removes the container, killing it if it is still running.
func (m *DockerManager) remove(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.cli.ContainerRemove(ctx, id, types.ContainerRemoveOptions{Force: true}); err != nil && !client.IsErrNotFound(err) {
		m.logger.Error("Failed to remove container", "container", id, "error", err)
	}
}

func (m *DockerManager) waitForExit(ctx context.Context, id string) error {
	statusCh, errCh := m.cli.ContainerWait(ctx, id, container.WaitConditionNotRunning)
	select {
	case status := <-statusCh:
		if status.Error != nil {
			return fmt.Errorf("container error: %s", status.Error.Message)
		}
		return nil
	case err := <-errCh:
		return fmt.Errorf("wait for container: %w", err)
	case <-ctx.Done():
		return fmt.Errorf("wait for container: %w", ctx.Err())
	}
}

func (m *DockerManager) fetchLogs(ctx context.Context, id string) (string, string, error) {
	logs, err := m.cli.ContainerLogs(ctx, id, types.ContainerLogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return "", "", fmt.Errorf("failed to fetch logs: %w", err)
	}
	defer logs.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, logs); err != nil {
		return "", "", fmt.Errorf("failed to demultiplex logs: %w", err)
	}
	return stdout.String(), stderr.String(), nil
}

// parseOutput turns the container's streams into a Result. stdout must hold
// the runner's JSON document; stderr is attached when the runner did not
// report one itself.
func parseOutput(stdout, stderr string) *sandbox.Result {
	if strings.TrimSpace(stdout) == "" {
		return &sandbox.Result{Error: sandbox.MsgNoOutput, Stderr: &stderr}
	}

	var res sandbox.Result
	if err := json.Unmarshal([]byte(stdout), &res); err != nil {
		return &sandbox.Result{
			Error:   sandbox.MsgInvalidJSON,
			Details: err.Error(),
			Raw:     stdout,
			Stderr:  &stderr,
		}
	}

	if strings.TrimSpace(stderr) != "" && res.Stderr == nil {
		res.Stderr = &stderr
	}
	return &res
}
