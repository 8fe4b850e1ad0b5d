package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sudankdk/ceejudge/internal/model"
	"github.com/sudankdk/ceejudge/internal/queue"
)

type SubmitResponse struct {
	JobID  string      `json:"jobId"`
	Status queue.State `json:"status"`
}

type ResultResponse struct {
	JobID  string         `json:"jobId"`
	Status queue.State    `json:"status"`
	Result *model.Outcome `json:"result"`
	Error  string         `json:"error,omitempty"`
}

func (s *Server) setupRoutes(app *fiber.App) {
	app.Use(s.requestLogger())

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"message": "ceejudge is running. POST /submit to evaluate code."})
	})
	app.Get("/healthz", s.healthHandler)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	app.Post("/submit", s.limiter.Middleware(), s.submitHandler)
	app.Get("/results/:id", s.resultHandler)
}

func (s *Server) submitHandler(c *fiber.Ctx) error {
	var sub model.Submission
	if err := c.BodyParser(&sub); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := s.validate(sub); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	id, err := s.store.Enqueue(c.UserContext(), sub)
	if err != nil {
		return fmt.Errorf("enqueueing submission: %w", err)
	}
	s.log.Info().Str("job_id", id).Msg("submission accepted")
	return c.JSON(SubmitResponse{JobID: id, Status: queue.StatePending})
}

func (s *Server) validate(sub model.Submission) error {
	if sub.Code == "" {
		return fmt.Errorf("%w: code is required", model.ErrInvalidSubmission)
	}
	if len(sub.Code) > s.cfg.MaxCodeBytes {
		return fmt.Errorf("%w: code exceeds %d bytes", model.ErrInvalidSubmission, s.cfg.MaxCodeBytes)
	}
	return sub.Validate(s.cfg.MaxTimeoutSeconds)
}

// resultHandler reports unknown ids as PENDING; a job id is never rejected.
func (s *Server) resultHandler(c *fiber.Ctx) error {
	id := c.Params("id")
	st, err := s.store.Status(c.UserContext(), id)
	if errors.Is(err, queue.ErrJobNotFound) {
		return c.JSON(ResultResponse{JobID: id, Status: queue.StatePending})
	}
	if err != nil {
		return fmt.Errorf("reading job status: %w", err)
	}
	return c.JSON(ResultResponse{JobID: id, Status: st.Status, Result: st.Result, Error: st.Error})
}

func (s *Server) healthHandler(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable", "error": err.Error()})
	}
	return c.JSON(fiber.Map{"status": "ok"})
}
