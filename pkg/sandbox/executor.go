package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "proctorly",
		Subsystem: "sandbox",
		Name:      "run_duration_seconds",
		Help:      "Duration of sandbox container runs",
		Buckets:   prometheus.DefBuckets,
	}, []string{"image"})

	runTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "proctorly",
		Subsystem: "sandbox",
		Name:      "run_timeouts_total",
		Help:      "Number of sandbox runs that hit the timeout",
	}, []string{"image"})

	runFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "proctorly",
		Subsystem: "sandbox",
		Name:      "run_failures_total",
		Help:      "Number of sandbox runs that resulted in an error",
	}, []string{"image"})
)

// Executor runs candidate code inside an isolated container.
type Executor interface {
	Run(ctx context.Context, req RunRequest) (RunResult, error)
}

// RunRequest describes one sandboxed run of a candidate's source directory.
type RunRequest struct {
	Image         string
	Cmd           []string
	Env           []string
	Timeout       time.Duration
	Workspace     string
	MemoryLimitMB int64
	CPUShares     int64
}

// RunResult summarises the outcome of a sandboxed run.
type RunResult struct {
	Stdout           string
	Stderr           string
	ExitCode         int
	Duration         time.Duration
	TimedOut         bool
	MemoryUsageBytes int64
}

// Config groups executor configuration values.
type Config struct {
	Host          string
	Timeout       time.Duration
	MemoryLimitMB int64
	CPUShares     int64
	WorkingDir    string
	Logger        zerolog.Logger
}

// DockerExecutor implements Executor on top of the Docker API. Containers run
// with networking disabled and hard memory/CPU limits.
type DockerExecutor struct {
	client *client.Client
	cfg    Config
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewDockerExecutor constructs a Docker backed executor.
func NewDockerExecutor(cfg Config) (*DockerExecutor, error) {
	opts := []client.Opt{client.WithAPIVersionNegotiation()}
	if cfg.Host != "" {
		opts = append(opts, client.WithHost(cfg.Host))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}

	if cfg.WorkingDir == "" {
		cfg.WorkingDir = "/workspace"
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	return &DockerExecutor{
		client: cli,
		cfg:    cfg,
		tracer: otel.Tracer("github.com/proctorly/exam-api/pkg/sandbox"),
		logger: logger,
	}, nil
}

// Run executes the request inside a fresh container and always removes it.
func (e *DockerExecutor) Run(parent context.Context, req RunRequest) (RunResult, error) {
	if req.Image == "" {
		return RunResult{}, errors.New("image is required")
	}

	ctx, span := e.tracer.Start(parent, "sandbox.run", trace.WithAttributes(
		attribute.String("sandbox.image", req.Image),
	))
	defer span.End()

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = e.cfg.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	memory := req.MemoryLimitMB
	if memory <= 0 {
		memory = e.cfg.MemoryLimitMB
	}
	cpuShares := req.CPUShares
	if cpuShares <= 0 {
		cpuShares = e.cfg.CPUShares
	}

	hostCfg := &container.HostConfig{
		NetworkMode: "none",
		Resources: container.Resources{
			Memory:    memory * 1024 * 1024,
			CPUShares: cpuShares,
		},
	}
	if req.Workspace != "" {
		hostCfg.Mounts = append(hostCfg.Mounts, mount.Mount{
			Type:   mount.TypeBind,
			Source: req.Workspace,
			Target: e.cfg.WorkingDir,
		})
	}

	containerCfg := &container.Config{
		Image:        req.Image,
		Cmd:          req.Cmd,
		Env:          req.Env,
		WorkingDir:   e.cfg.WorkingDir,
		AttachStdout: true,
		AttachStderr: true,
	}

	start := time.Now()
	result := RunResult{}

	resp, err := e.client.ContainerCreate(ctx, containerCfg, hostCfg, &network.NetworkingConfig{}, nil, "")
	if err != nil {
		runFailures.WithLabelValues(req.Image).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result, fmt.Errorf("container create: %w", err)
	}

	containerID := resp.ID
	defer func() {
		removeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.client.ContainerRemove(removeCtx, containerID, container.RemoveOptions{Force: true}); err != nil {
			e.logger.Error().Err(err).Str("container_id", containerID).Msg("failed to remove container")
		}
	}()

	if err := e.client.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		runFailures.WithLabelValues(req.Image).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result, fmt.Errorf("container start: %w", err)
	}

	statusCh, errCh := e.client.ContainerWait(ctx, containerID, container.WaitConditionNextExit)

	var waitErr error
	select {
	case err := <-errCh:
		waitErr = err
	case status := <-statusCh:
		result.ExitCode = int(status.StatusCode)
	case <-ctx.Done():
		waitErr = ctx.Err()
	}

	result.Duration = time.Since(start)
	runDuration.WithLabelValues(req.Image).Observe(result.Duration.Seconds())

	if waitErr != nil {
		if errors.Is(waitErr, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
			result.TimedOut = true
			runTimeouts.WithLabelValues(req.Image).Inc()
			killCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := e.client.ContainerKill(killCtx, containerID, "KILL"); err != nil {
				e.logger.Error().Err(err).Str("container_id", containerID).Msg("failed to kill timed out container")
			}
		} else if !errors.Is(waitErr, context.Canceled) {
			runFailures.WithLabelValues(req.Image).Inc()
			span.RecordError(waitErr)
			span.SetStatus(codes.Error, waitErr.Error())
			return result, fmt.Errorf("container wait: %w", waitErr)
		}
	}

	if logReader, err := e.client.ContainerLogs(parent, containerID, container.LogsOptions{ShowStdout: true, ShowStderr: true}); err == nil {
		defer logReader.Close()
		stdout, stderr, splitErr := splitLogs(logReader)
		if splitErr != nil {
			e.logger.Error().Err(splitErr).Str("container_id", containerID).Msg("failed to read container logs")
		} else {
			result.Stdout = stdout
			result.Stderr = stderr
		}
	} else {
		e.logger.Error().Err(err).Str("container_id", containerID).Msg("failed to fetch container logs")
	}

	statsCtx, cancelStats := context.WithTimeout(parent, 2*time.Second)
	defer cancelStats()
	if stats, err := e.client.ContainerStatsOneShot(statsCtx, containerID); err == nil {
		defer stats.Body.Close()
		var data types.StatsJSON
		if decodeErr := json.NewDecoder(stats.Body).Decode(&data); decodeErr == nil {
			result.MemoryUsageBytes = int64(data.MemoryStats.Usage)
		}
	}

	if result.TimedOut {
		return result, fmt.Errorf("execution timed out after %s", timeout)
	}

	return result, nil
}

// Close shuts down the underlying Docker client.
func (e *DockerExecutor) Close() error {
	if e.client == nil {
		return nil
	}
	return e.client.Close()
}

func splitLogs(reader io.Reader) (string, string, error) {
	var stdoutBuf, stderrBuf bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdoutBuf, &stderrBuf, reader); err != nil {
		return "", "", err
	}
	return stdoutBuf.String(), stderrBuf.String(), nil
}
