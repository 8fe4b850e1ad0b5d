package api

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/sudankdk/ceejudge/internal/limiter"
	"github.com/sudankdk/ceejudge/internal/logger"
	"github.com/sudankdk/ceejudge/internal/model"
	"github.com/sudankdk/ceejudge/internal/queue"
)

// JobStore is the part of the queue the HTTP layer needs.
type JobStore interface {
	Enqueue(ctx context.Context, sub model.Submission) (string, error)
	Status(ctx context.Context, id string) (queue.JobStatus, error)
	Ping(ctx context.Context) error
}

type Config struct {
	Addr              string
	MaxTimeoutSeconds int
	// MaxCodeBytes bounds the submitted source; fiber's BodyLimit bounds the whole request.
	MaxCodeBytes int
	RateLimit    float64
	RateBurst    int
	GlobalRate   float64
}

func DefaultConfig() Config {
	return Config{
		Addr:              ":3000",
		MaxTimeoutSeconds: 60,
		MaxCodeBytes:      64 << 10,
		RateLimit:         5,
		RateBurst:         10,
		GlobalRate:        200,
	}
}

type Server struct {
	store   JobStore
	cfg     Config
	log     *zerolog.Logger
	limiter *limiter.RateLimiter
	app     *fiber.App
}

func NewServer(store JobStore, cfg Config, log *zerolog.Logger) *Server {
	def := DefaultConfig()
	if cfg.Addr == "" {
		cfg.Addr = def.Addr
	}
	if cfg.MaxTimeoutSeconds <= 0 {
		cfg.MaxTimeoutSeconds = def.MaxTimeoutSeconds
	}
	if cfg.MaxCodeBytes <= 0 {
		cfg.MaxCodeBytes = def.MaxCodeBytes
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = def.RateLimit
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = def.RateBurst
	}
	if cfg.GlobalRate <= 0 {
		cfg.GlobalRate = def.GlobalRate
	}
	if log == nil {
		log = logger.Nop()
	}

	s := &Server{
		store:   store,
		cfg:     cfg,
		log:     log,
		limiter: limiter.NewRateLimiter(cfg.GlobalRate, cfg.RateLimit, cfg.RateBurst),
	}
	s.app = fiber.New(fiber.Config{
		AppName:               "ceejudge",
		DisableStartupMessage: true,
		ErrorHandler:          s.errorHandler,
	})
	s.setupRoutes(s.app)
	return s
}

func (s *Server) App() *fiber.App {
	return s.app
}

// Start listens until Shutdown is called or ctx is done.
func (s *Server) Start(ctx context.Context) error {
	go s.limiter.StartCleanup(ctx, 5*time.Minute)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.app.ShutdownWithContext(shutdownCtx); err != nil {
			s.log.Error().Err(err).Msg("server shutdown failed")
		}
	}()

	s.log.Info().Str("addr", s.cfg.Addr).Msg("http server listening")
	return s.app.Listen(s.cfg.Addr)
}

func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code >= fiber.StatusInternalServerError {
		s.log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

func (s *Server) requestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		status := c.Response().StatusCode()
		if err != nil {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}
		s.log.Debug().
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", status).
			Dur("took", time.Since(start)).
			Msg("request")
		return err
	}
}
