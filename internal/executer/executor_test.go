package executer

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudankdk/ceejudge/internal/model"
	"github.com/sudankdk/ceejudge/internal/sandbox"
)

type fakeIsolator struct {
	mu          sync.Mutex
	acquireErr  error
	transferErr error
	releaseErr  error
	acquired    int
	released    int
	limits      sandbox.Limits
	files       map[string]string
	dir         string
}

func (f *fakeIsolator) Acquire(_ context.Context, limits sandbox.Limits) (*sandbox.Environment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.acquireErr != nil {
		return nil, f.acquireErr
	}
	f.acquired++
	f.limits = limits
	return &sandbox.Environment{ID: fmt.Sprintf("env-%d", f.acquired), Limits: limits, State: sandbox.StateRunning}, nil
}

func (f *fakeIsolator) Transfer(_ context.Context, _ *sandbox.Environment, archive io.Reader, dir string) error {
	if f.transferErr != nil {
		return f.transferErr
	}
	f.dir = dir
	f.files = map[string]string{}
	tr := tar.NewReader(archive)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		b, err := io.ReadAll(tr)
		if err != nil {
			return err
		}
		f.files[hdr.Name] = string(b)
	}
}

func (f *fakeIsolator) Release(_ context.Context, env *sandbox.Environment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released++
	env.State = sandbox.StateReleased
	return f.releaseErr
}

type driverFunc func(cmd sandbox.Command) (model.ExecutionResult, error)

func (d driverFunc) Run(_ context.Context, _ *sandbox.Environment, cmd sandbox.Command) (model.ExecutionResult, error) {
	return d(cmd)
}

func stdout(s string) driverFunc {
	return func(sandbox.Command) (model.ExecutionResult, error) {
		return model.ExecutionResult{Stdout: []byte(s)}, nil
	}
}

func scenario(code string) model.Submission {
	return model.Submission{Code: code, Stdin: "10", ExpectedOutput: "Sonuç: 20"}
}

func TestEvaluateSuccess(t *testing.T) {
	iso := &fakeIsolator{}
	var gotCmd sandbox.Command
	drv := driverFunc(func(cmd sandbox.Command) (model.ExecutionResult, error) {
		gotCmd = cmd
		return model.ExecutionResult{Stdout: []byte("Sonuç: 20\n")}, nil
	})
	code := "print(f\"Sonuç: {int(input()) * 2}\")"

	out := NewExecutor(iso, drv, DefaultConfig(), nil).Evaluate(context.Background(), scenario(code))

	assert.Equal(t, model.Success("Sonuç: 20"), out)
	assert.Equal(t, 1, iso.acquired)
	assert.Equal(t, 1, iso.released)
	assert.Equal(t, "/app", iso.dir)
	assert.Equal(t, map[string]string{"main.py": code, "input.txt": "10"}, iso.files)
	assert.Equal(t, model.DefaultTimeoutSeconds, gotCmd.TimeoutSeconds)
	assert.Equal(t, "python", gotCmd.Interpreter)
	assert.Equal(t, "main.py", gotCmd.Script)
	assert.Equal(t, "input.txt", gotCmd.StdinFile)
	assert.Equal(t, int64(256*1024*1024), iso.limits.MemoryBytes)
	assert.True(t, iso.limits.NetworkDisabled)
}

func TestEvaluateWrongAnswer(t *testing.T) {
	iso := &fakeIsolator{}
	out := NewExecutor(iso, stdout("Sonuç: 30\n"), DefaultConfig(), nil).Evaluate(context.Background(), scenario("x"))

	assert.Equal(t, model.StatusWrongAnswer, out.Status)
	assert.Equal(t, "Sonuç: 30", out.Output)
	require.NotNil(t, out.Expected)
	assert.Equal(t, "Sonuç: 20", *out.Expected)
	assert.Equal(t, 1, iso.released)
}

func TestEvaluateUsesSubmissionLimits(t *testing.T) {
	iso := &fakeIsolator{}
	var gotCmd sandbox.Command
	drv := driverFunc(func(cmd sandbox.Command) (model.ExecutionResult, error) {
		gotCmd = cmd
		return model.ExecutionResult{ExitCode: 124}, nil
	})
	sub := scenario("while True:\n    pass\n")
	sub.TimeoutSeconds = 3
	sub.MemoryLimit = "64m"

	out := NewExecutor(iso, drv, DefaultConfig(), nil).Evaluate(context.Background(), sub)

	assert.Equal(t, model.Timeout(), out)
	assert.Equal(t, 3, gotCmd.TimeoutSeconds)
	assert.Equal(t, int64(64*1024*1024), iso.limits.MemoryBytes)
	assert.Equal(t, 1, iso.released)
}

func TestEvaluateReleasesOnEveryPath(t *testing.T) {
	tests := []struct {
		name   string
		iso    *fakeIsolator
		driver driverFunc
		want   model.Status
	}{
		{
			name:   "runtime error",
			iso:    &fakeIsolator{},
			driver: func(sandbox.Command) (model.ExecutionResult, error) { return model.ExecutionResult{ExitCode: 1, Stderr: []byte("ZeroDivisionError")}, nil },
			want:   model.StatusRuntimeError,
		},
		{
			name:   "unknown error",
			iso:    &fakeIsolator{},
			driver: func(sandbox.Command) (model.ExecutionResult, error) { return model.ExecutionResult{ExitCode: 137}, nil },
			want:   model.StatusUnknownError,
		},
		{
			name:   "driver error",
			iso:    &fakeIsolator{},
			driver: func(sandbox.Command) (model.ExecutionResult, error) { return model.ExecutionResult{}, errors.New("exec attach failed") },
			want:   model.StatusSystemError,
		},
		{
			name:   "driver panic",
			iso:    &fakeIsolator{},
			driver: func(sandbox.Command) (model.ExecutionResult, error) { panic("driver blew up") },
			want:   model.StatusSystemError,
		},
		{
			name:   "transfer error",
			iso:    &fakeIsolator{transferErr: errors.New("copy failed")},
			driver: stdout("unused"),
			want:   model.StatusSystemError,
		},
		{
			name:   "release error is swallowed",
			iso:    &fakeIsolator{releaseErr: errors.New("no such container")},
			driver: stdout("Sonuç: 20"),
			want:   model.StatusSuccess,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := NewExecutor(tt.iso, tt.driver, DefaultConfig(), nil).Evaluate(context.Background(), scenario("x"))
			assert.Equal(t, tt.want, out.Status)
			assert.Equal(t, 1, tt.iso.acquired)
			assert.Equal(t, tt.iso.acquired, tt.iso.released)
		})
	}
}

func TestEvaluatePanicMessage(t *testing.T) {
	drv := driverFunc(func(sandbox.Command) (model.ExecutionResult, error) { panic("driver blew up") })
	out := NewExecutor(&fakeIsolator{}, drv, DefaultConfig(), nil).Evaluate(context.Background(), scenario("x"))
	assert.Contains(t, out.Output, "driver blew up")
}

func TestEvaluateEnvironmentUnavailable(t *testing.T) {
	iso := &fakeIsolator{acquireErr: fmt.Errorf("%w: image python:3.10-slim: no such image (try `docker pull python:3.10-slim`)", sandbox.ErrEnvironmentUnavailable)}
	out := NewExecutor(iso, stdout("x"), DefaultConfig(), nil).Evaluate(context.Background(), scenario("x"))

	assert.Equal(t, model.StatusSystemError, out.Status)
	assert.Contains(t, out.Output, "python:3.10-slim")
	assert.Equal(t, 0, iso.released)
}

func TestEvaluateRejectsBeforeAcquiring(t *testing.T) {
	tests := map[string]model.Submission{
		"invalid utf-8":   {Code: "print('\xff')"},
		"bad memory":      {Code: "print(1)", MemoryLimit: "huge"},
		"timeout too big": {Code: "print(1)", TimeoutSeconds: 3600},
	}
	for name, sub := range tests {
		t.Run(name, func(t *testing.T) {
			iso := &fakeIsolator{}
			out := NewExecutor(iso, stdout("x"), DefaultConfig(), nil).Evaluate(context.Background(), sub)
			assert.Equal(t, model.StatusSystemError, out.Status)
			assert.NotEmpty(t, out.Output)
			assert.Equal(t, 0, iso.acquired)
		})
	}
}

func TestEvaluateIsRepeatable(t *testing.T) {
	iso := &fakeIsolator{}
	ex := NewExecutor(iso, stdout("Sonuç: 20"), DefaultConfig(), nil)
	first := ex.Evaluate(context.Background(), scenario("x"))
	second := ex.Evaluate(context.Background(), scenario("x"))

	assert.Equal(t, first, second)
	assert.Equal(t, 2, iso.acquired)
	assert.Equal(t, 2, iso.released)
}

func TestEvaluateAppliesConfiguredDefaults(t *testing.T) {
	limits, err := sandbox.NewLimits("512m")
	require.NoError(t, err)
	cfg := DefaultConfig()
	cfg.Limits = limits
	cfg.DefaultTimeoutSeconds = 7

	iso := &fakeIsolator{}
	var gotCmd sandbox.Command
	drv := driverFunc(func(cmd sandbox.Command) (model.ExecutionResult, error) {
		gotCmd = cmd
		return model.ExecutionResult{Stdout: []byte("Sonuç: 20")}, nil
	})

	out := NewExecutor(iso, drv, cfg, nil).Evaluate(context.Background(), scenario("x"))

	assert.Equal(t, model.StatusSuccess, out.Status)
	assert.Equal(t, int64(512*1024*1024), iso.limits.MemoryBytes)
	assert.Equal(t, 7, gotCmd.TimeoutSeconds)
}
