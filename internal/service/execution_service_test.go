package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/proctorly/exam-api/internal/models"
	"github.com/proctorly/exam-api/pkg/sandbox"
)

type stubExecutor struct {
	result  sandbox.RunResult
	err     error
	lastReq sandbox.RunRequest
}

func (e *stubExecutor) Run(ctx context.Context, req sandbox.RunRequest) (sandbox.RunResult, error) {
	e.lastReq = req
	return e.result, e.err
}

func newExecService(exec *stubExecutor) ExecutionService {
	return NewExecutionService(exec, ExecutionConfig{
		Timeout:       2 * time.Second,
		MemoryLimitMB: 128,
		CPUShares:     256,
	}, zerolog.Nop())
}

func TestExecuteRejectsUnknownLanguage(t *testing.T) {
	svc := newExecService(&stubExecutor{})

	_, err := svc.Execute(context.Background(), "cobol", "DISPLAY 'HI'.")
	require.ErrorIs(t, err, ErrUnsupportedLanguage)
}

func TestExecuteVerdictMapping(t *testing.T) {
	cases := []struct {
		name    string
		result  sandbox.RunResult
		runErr  error
		verdict string
	}{
		{
			name:    "clean run",
			result:  sandbox.RunResult{Stdout: "42\n", ExitCode: 0, Duration: 80 * time.Millisecond},
			verdict: models.VerdictOK,
		},
		{
			name:    "compile step failed",
			result:  sandbox.RunResult{Stderr: "SyntaxError", ExitCode: 2},
			verdict: models.VerdictCompileError,
		},
		{
			name:    "process crashed",
			result:  sandbox.RunResult{Stderr: "panic", ExitCode: 1},
			verdict: models.VerdictRuntimeError,
		},
		{
			name:    "wall clock exceeded",
			result:  sandbox.RunResult{TimedOut: true},
			verdict: models.VerdictTimeout,
		},
		{
			name:    "sandbox failure is a verdict, not an error",
			runErr:  errors.New("docker daemon unreachable"),
			verdict: models.VerdictServiceError,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := newExecService(&stubExecutor{result: tc.result, err: tc.runErr})

			outcome, err := svc.Execute(context.Background(), "python", "print(42)")
			require.NoError(t, err)
			require.Equal(t, tc.verdict, outcome.Verdict)
		})
	}
}

func TestExecutePassesResourceLimits(t *testing.T) {
	exec := &stubExecutor{result: sandbox.RunResult{ExitCode: 0}}
	svc := newExecService(exec)

	_, err := svc.Execute(context.Background(), "javascript", "console.log(1)")
	require.NoError(t, err)
	require.Equal(t, "node:20-alpine", exec.lastReq.Image)
	require.Equal(t, int64(128), exec.lastReq.MemoryLimitMB)
	require.Equal(t, int64(256), exec.lastReq.CPUShares)
	require.Equal(t, 2*time.Second, exec.lastReq.Timeout)
}

func TestLanguageLookupIsCaseInsensitive(t *testing.T) {
	svc := newExecService(&stubExecutor{})

	lang, ok := svc.Language(" Python ")
	require.True(t, ok)
	require.Equal(t, "main.py", lang.FileName)

	_, ok = svc.Language("rust")
	require.False(t, ok)
}
