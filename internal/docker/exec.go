package docker

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/sudankdk/ceejudge/internal/model"
	"github.com/sudankdk/ceejudge/internal/sandbox"
)

const inspectInterval = 10 * time.Millisecond

// Run executes cmd in env through /bin/sh -c and captures stdout and stderr
// separately. The deadline itself is enforced by timeout(1) in the container;
// the host side only guards against a stuck daemon.
func (c *Client) Run(ctx context.Context, env *sandbox.Environment, cmd sandbox.Command) (model.ExecutionResult, error) {
	shell, err := cmd.Shell()
	if err != nil {
		return model.ExecutionResult{}, err
	}
	if env.State != sandbox.StateRunning {
		return model.ExecutionResult{}, fmt.Errorf("run in %s sandbox %s", env.State, env.ShortID())
	}

	guard := time.Duration(cmd.TimeoutSeconds+cmd.KillAfter)*time.Second + c.opts.GuardGrace
	ctx, cancel := context.WithTimeout(ctx, guard)
	defer cancel()

	execResp, err := c.d.ContainerExecCreate(ctx, env.ID, container.ExecOptions{
		Cmd:          []string{"/bin/sh", "-c", shell},
		AttachStdout: true,
		AttachStderr: true,
		Tty:          false,
		User:         c.opts.User,
		Env:          c.opts.Env,
		WorkingDir:   cmd.Dir,
	})
	if err != nil {
		return model.ExecutionResult{}, fmt.Errorf("creating exec: %w", err)
	}

	attach, err := c.d.ContainerExecAttach(ctx, execResp.ID, container.ExecAttachOptions{})
	if err != nil {
		return model.ExecutionResult{}, fmt.Errorf("attaching exec: %w", err)
	}
	defer attach.Close()

	stdout := newCappedBuffer(c.opts.MaxOutputBytes)
	stderr := newCappedBuffer(c.opts.MaxOutputBytes)
	done := make(chan error, 1)
	go func() {
		_, err := stdcopy.StdCopy(stdout, stderr, attach.Reader)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return model.ExecutionResult{}, fmt.Errorf("reading exec output: %w", err)
		}
	case <-ctx.Done():
		return model.ExecutionResult{}, fmt.Errorf("exec in %s gave no result within %s: %w", env.ShortID(), guard, ctx.Err())
	}

	exitCode, err := c.waitExit(ctx, execResp.ID)
	if err != nil {
		return model.ExecutionResult{}, err
	}

	return model.ExecutionResult{
		ExitCode:  exitCode,
		Stdout:    stdout.Bytes(),
		Stderr:    stderr.Bytes(),
		Truncated: stdout.truncated || stderr.truncated,
	}, nil
}

// waitExit polls until the exec process is gone; the output stream can close
// a moment before the daemon records the exit code.
func (c *Client) waitExit(ctx context.Context, execID string) (int, error) {
	for {
		inspect, err := c.d.ContainerExecInspect(ctx, execID)
		if err != nil {
			return 0, fmt.Errorf("inspecting exec: %w", err)
		}
		if !inspect.Running {
			return inspect.ExitCode, nil
		}
		select {
		case <-ctx.Done():
			return 0, fmt.Errorf("waiting for exec exit: %w", ctx.Err())
		case <-time.After(inspectInterval):
		}
	}
}

// cappedBuffer keeps the first max bytes and silently drops the rest.
type cappedBuffer struct {
	buf       bytes.Buffer
	max       int64
	truncated bool
}

func newCappedBuffer(max int64) *cappedBuffer {
	return &cappedBuffer{max: max}
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	room := b.max - int64(b.buf.Len())
	if room <= 0 {
		b.truncated = b.truncated || len(p) > 0
		return len(p), nil
	}
	if int64(len(p)) > room {
		b.buf.Write(p[:room])
		b.truncated = true
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *cappedBuffer) Bytes() []byte {
	if b.buf.Len() == 0 {
		return nil
	}
	return append([]byte(nil), b.buf.Bytes()...)
}
