package docker

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/rs/zerolog"

	"github.com/sudankdk/ceejudge/internal/logger"
	"github.com/sudankdk/ceejudge/internal/sandbox"
)

// LabelSandbox marks every container this package creates.
const LabelSandbox = "ceejudge.sandbox"

// API is the part of the Docker engine client used here.
type API interface {
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
	CopyToContainer(ctx context.Context, containerID, dstPath string, content io.Reader, options container.CopyToContainerOptions) error
	ContainerExecCreate(ctx context.Context, containerID string, options container.ExecOptions) (container.ExecCreateResponse, error)
	ContainerExecAttach(ctx context.Context, execID string, options container.ExecAttachOptions) (types.HijackedResponse, error)
	ContainerExecInspect(ctx context.Context, execID string) (container.ExecInspect, error)
	ImageInspect(ctx context.Context, imageID string, inspectOpts ...client.ImageInspectOption) (image.InspectResponse, error)
	ImagePull(ctx context.Context, ref string, options image.PullOptions) (io.ReadCloser, error)
	Ping(ctx context.Context) (types.Ping, error)
	Close() error
}

type Options struct {
	Image string
	// WorkDir is created with the container and is where bundles are unpacked.
	WorkDir string
	// User the program runs as inside the container.
	User string
	Env  []string
	// ReleaseTimeout bounds stop+remove, independent of the caller's context.
	ReleaseTimeout time.Duration
	// GuardGrace is added to a command's own deadline before the host gives up on it.
	GuardGrace     time.Duration
	MaxOutputBytes int64
}

func DefaultOptions() Options {
	return Options{
		Image:          "python:3.10-slim",
		WorkDir:        "/app",
		User:           "nobody",
		Env:            []string{"PYTHONDONTWRITEBYTECODE=1"},
		ReleaseTimeout: 15 * time.Second,
		GuardGrace:     5 * time.Second,
		MaxOutputBytes: 8 << 20,
	}
}

// Client owns the process-wide engine connection. Each Acquire still yields
// a container of its own.
type Client struct {
	d    API
	opts Options
	log  *zerolog.Logger
}

func New(opts Options, log *zerolog.Logger) (*Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}
	return NewWithAPI(cli, opts, log), nil
}

func NewWithAPI(api API, opts Options, log *zerolog.Logger) *Client {
	def := DefaultOptions()
	if opts.Image == "" {
		opts.Image = def.Image
	}
	if opts.WorkDir == "" {
		opts.WorkDir = def.WorkDir
	}
	if opts.ReleaseTimeout <= 0 {
		opts.ReleaseTimeout = def.ReleaseTimeout
	}
	if opts.GuardGrace <= 0 {
		opts.GuardGrace = def.GuardGrace
	}
	if opts.MaxOutputBytes <= 0 {
		opts.MaxOutputBytes = def.MaxOutputBytes
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Client{d: api, opts: opts, log: log}
}

func (c *Client) Image() string {
	return c.opts.Image
}

func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.d.Ping(ctx); err != nil {
		return fmt.Errorf("%w: docker daemon: %v", sandbox.ErrEnvironmentUnavailable, err)
	}
	return nil
}

func (c *Client) Close() error {
	return c.d.Close()
}

// EnsureImage pulls the runtime image when it is not present locally.
func (c *Client) EnsureImage(ctx context.Context) error {
	resp, err := c.d.ImageInspect(ctx, c.opts.Image)
	if err == nil {
		c.log.Debug().Str("image", c.opts.Image).Str("id", resp.ID).Msg("image found")
		return nil
	}
	if !client.IsErrNotFound(err) {
		return fmt.Errorf("inspecting image %s: %w", c.opts.Image, err)
	}

	c.log.Info().Str("image", c.opts.Image).Msg("pulling image")
	out, err := c.d.ImagePull(ctx, c.opts.Image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("%w: pulling %s: %v", sandbox.ErrEnvironmentUnavailable, c.opts.Image, err)
	}
	defer out.Close()

	// the pull only finishes once the progress stream is drained
	if _, err := io.Copy(io.Discard, out); err != nil {
		return fmt.Errorf("pulling %s: %w", c.opts.Image, err)
	}
	c.log.Info().Str("image", c.opts.Image).Msg("image pulled")
	return nil
}
