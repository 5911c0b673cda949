package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/proctorly/exam-api/internal/models"
	"github.com/proctorly/exam-api/pkg/sandbox"
)

// ErrUnsupportedLanguage indicates the requested language has no sandbox
// configuration.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// ExecutionOutcome is the verdict-level view of one sandbox run. The sandbox
// is treated as an untrusted external service: transport failures surface as
// the service_error verdict, never as an error to callers.
type ExecutionOutcome struct {
	Verdict  string
	TimeMs   int64
	MemoryKB int64
	Output   string
	Errors   string
}

// ExecutionService runs candidate code and maps the raw sandbox result onto
// the attempt verdict vocabulary.
type ExecutionService interface {
	Execute(ctx context.Context, languageID, sourceText string) (ExecutionOutcome, error)
	Language(languageID string) (LanguageConfig, bool)
}

// LanguageConfig describes how one execution language runs in the sandbox.
type LanguageConfig struct {
	Image         string
	FileName      string
	Command       []string
	CommentPrefix string
}

// ExecutionConfig carries execution resource knobs.
type ExecutionConfig struct {
	Timeout       time.Duration
	MemoryLimitMB int
	CPUShares     int
	WorkspaceRoot string
}

type executionService struct {
	executor  sandbox.Executor
	cfg       ExecutionConfig
	languages map[string]LanguageConfig
	logger    zerolog.Logger
}

// NewExecutionService constructs the execution adapter.
func NewExecutionService(executor sandbox.Executor, cfg ExecutionConfig, logger zerolog.Logger) ExecutionService {
	if cfg.WorkspaceRoot == "" {
		cfg.WorkspaceRoot = os.TempDir()
	}

	return &executionService{
		executor: executor,
		cfg:      cfg,
		logger:   logger.With().Str("component", "execution_service").Logger(),
		languages: map[string]LanguageConfig{
			// Exit code 2 is reserved for the compile step so the verdict
			// mapping can distinguish compile from runtime failures.
			"python": {
				Image:         "python:3.11-alpine",
				FileName:      "main.py",
				Command:       []string{"sh", "-c", "python -m py_compile main.py || exit 2; python main.py"},
				CommentPrefix: "#",
			},
			"javascript": {
				Image:         "node:20-alpine",
				FileName:      "main.js",
				Command:       []string{"sh", "-c", "node --check main.js || exit 2; node main.js"},
				CommentPrefix: "//",
			},
			"go": {
				Image:         "golang:1.22-alpine",
				FileName:      "main.go",
				Command:       []string{"sh", "-c", "go build -o /tmp/main . || exit 2; /tmp/main"},
				CommentPrefix: "//",
			},
		},
	}
}

func (s *executionService) Language(languageID string) (LanguageConfig, bool) {
	cfg, ok := s.languages[strings.ToLower(strings.TrimSpace(languageID))]
	return cfg, ok
}

// Execute writes the source into a throwaway workspace and runs it in the
// sandbox. The returned error is non-nil only for caller mistakes (unknown
// language); sandbox failures map to the service_error verdict.
func (s *executionService) Execute(ctx context.Context, languageID, sourceText string) (ExecutionOutcome, error) {
	langCfg, ok := s.Language(languageID)
	if !ok {
		return ExecutionOutcome{}, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, languageID)
	}

	workspace, err := os.MkdirTemp(s.cfg.WorkspaceRoot, "attempt-")
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to create workspace")
		return ExecutionOutcome{Verdict: models.VerdictServiceError, Errors: "sandbox unavailable"}, nil
	}
	defer os.RemoveAll(workspace)

	filePath := filepath.Join(workspace, langCfg.FileName)
	if err := os.WriteFile(filePath, []byte(sourceText), 0o600); err != nil {
		s.logger.Error().Err(err).Msg("failed to write source")
		return ExecutionOutcome{Verdict: models.VerdictServiceError, Errors: "sandbox unavailable"}, nil
	}

	result, runErr := s.executor.Run(ctx, sandbox.RunRequest{
		Image:         langCfg.Image,
		Cmd:           langCfg.Command,
		Timeout:       s.cfg.Timeout,
		Workspace:     workspace,
		MemoryLimitMB: int64(s.cfg.MemoryLimitMB),
		CPUShares:     int64(s.cfg.CPUShares),
	})

	outcome := ExecutionOutcome{
		TimeMs:   result.Duration.Milliseconds(),
		MemoryKB: result.MemoryUsageBytes / 1024,
		Output:   result.Stdout,
		Errors:   strings.TrimSpace(result.Stderr),
	}

	switch {
	case result.TimedOut:
		outcome.Verdict = models.VerdictTimeout
	case runErr != nil:
		s.logger.Warn().Err(runErr).Str("language", languageID).Msg("sandbox run failed")
		outcome.Verdict = models.VerdictServiceError
		if outcome.Errors == "" {
			outcome.Errors = "execution service unavailable"
		}
	case result.ExitCode == 2:
		outcome.Verdict = models.VerdictCompileError
	case result.ExitCode != 0:
		outcome.Verdict = models.VerdictRuntimeError
		if outcome.Errors == "" {
			outcome.Errors = fmt.Sprintf("process exited with code %d", result.ExitCode)
		}
	default:
		outcome.Verdict = models.VerdictOK
	}

	return outcome, nil
}
