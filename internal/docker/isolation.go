package docker

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"

	"github.com/sudankdk/ceejudge/internal/metrics"
	"github.com/sudankdk/ceejudge/internal/sandbox"
)

// Acquire creates and starts a fresh container that idles until work is
// copied into it.
func (c *Client) Acquire(ctx context.Context, limits sandbox.Limits) (*sandbox.Environment, error) {
	pids := limits.PidsLimit
	networkMode := container.NetworkMode("none")
	if !limits.NetworkDisabled {
		networkMode = "default"
	}

	resp, err := c.d.ContainerCreate(ctx,
		&container.Config{
			Image:           c.opts.Image,
			Entrypoint:      []string{},
			Cmd:             []string{"sleep", "infinity"},
			WorkingDir:      c.opts.WorkDir,
			Tty:             false,
			NetworkDisabled: limits.NetworkDisabled,
			Labels:          map[string]string{LabelSandbox: "true"},
		},
		&container.HostConfig{
			AutoRemove:  false,
			NetworkMode: networkMode,
			Resources: container.Resources{
				Memory:     limits.MemoryBytes,
				MemorySwap: limits.MemoryBytes,
				NanoCPUs:   limits.NanoCPUs,
				PidsLimit:  &pids,
				Ulimits:    limits.Ulimits,
			},
			SecurityOpt: []string{"no-new-privileges"},
			CapDrop:     []string{"ALL"},
		},
		nil, nil, "",
	)
	if err != nil {
		if client.IsErrNotFound(err) || client.IsErrConnectionFailed(err) {
			return nil, fmt.Errorf("%w: image %s: %v (try `docker pull %s`)",
				sandbox.ErrEnvironmentUnavailable, c.opts.Image, err, c.opts.Image)
		}
		return nil, fmt.Errorf("creating container: %w", err)
	}
	metrics.ActiveEnvironments.Inc()

	env := &sandbox.Environment{
		ID:        resp.ID,
		Image:     c.opts.Image,
		Limits:    limits,
		State:     sandbox.StateCreated,
		CreatedAt: time.Now(),
	}
	if err := c.d.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		if rerr := c.Release(ctx, env); rerr != nil {
			c.log.Error().Err(rerr).Str("container", env.ShortID()).Msg("cleanup after failed start")
		}
		return nil, fmt.Errorf("starting container: %w", err)
	}
	env.State = sandbox.StateRunning

	c.log.Debug().Str("container", env.ShortID()).Str("limits", limits.String()).Msg("sandbox acquired")
	return env, nil
}

// Transfer unpacks a tar archive into dir inside the container.
func (c *Client) Transfer(ctx context.Context, env *sandbox.Environment, archive io.Reader, dir string) error {
	if env.State != sandbox.StateRunning {
		return fmt.Errorf("transfer into %s sandbox %s", env.State, env.ShortID())
	}
	if err := c.d.CopyToContainer(ctx, env.ID, dir, archive, container.CopyToContainerOptions{}); err != nil {
		return fmt.Errorf("copying bundle to %s:%s: %w", env.ShortID(), dir, err)
	}
	return nil
}

// Release stops and removes the container. A container that is already gone
// counts as released, and releasing twice is a no-op.
func (c *Client) Release(ctx context.Context, env *sandbox.Environment) error {
	if env == nil || env.State == sandbox.StateReleased {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.ReleaseTimeout)
	defer cancel()

	stopTimeout := 0
	if err := c.d.ContainerStop(ctx, env.ID, container.StopOptions{Timeout: &stopTimeout}); err != nil && !client.IsErrNotFound(err) {
		c.log.Warn().Err(err).Str("container", env.ShortID()).Msg("stop failed, forcing removal")
	}
	err := c.d.ContainerRemove(ctx, env.ID, container.RemoveOptions{Force: true, RemoveVolumes: true})
	if err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("removing container %s: %w", env.ShortID(), err)
	}

	env.State = sandbox.StateReleased
	metrics.ActiveEnvironments.Dec()
	c.log.Debug().Str("container", env.ShortID()).Msg("sandbox released")
	return nil
}
