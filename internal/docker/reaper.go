package docker

import (
	"context"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"

	"github.com/sudankdk/ceejudge/internal/metrics"
)

// ReapOrphans force-removes sandbox containers created more than olderThan
// ago. Those can only be left over from a process that died mid-evaluation.
func (c *Client) ReapOrphans(ctx context.Context, olderThan time.Duration) (int, error) {
	containers, err := c.d.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", LabelSandbox+"=true")),
	})
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for _, ctr := range containers {
		if time.Unix(ctr.Created, 0).After(cutoff) {
			continue
		}
		id := ctr.ID
		if len(id) > 12 {
			id = id[:12]
		}
		if err := c.d.ContainerRemove(ctx, ctr.ID, container.RemoveOptions{Force: true, RemoveVolumes: true}); err != nil {
			c.log.Warn().Err(err).Str("container", id).Msg("failed to reap container")
			continue
		}
		removed++
		metrics.ReapedContainers.Inc()
		c.log.Info().Str("container", id).Msg("reaped orphan container")
	}
	return removed, nil
}

// StartReaper runs ReapOrphans every interval until ctx is done.
func (c *Client) StartReaper(ctx context.Context, interval, olderThan time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.log.Info().Msg("reaper stopped")
			return nil
		case <-ticker.C:
			if _, err := c.ReapOrphans(ctx, olderThan); err != nil && ctx.Err() == nil {
				c.log.Warn().Err(err).Msg("container list failed")
			}
		}
	}
}
