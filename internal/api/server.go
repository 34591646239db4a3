package api

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"

	"github.com/hrishi0102/patchpay/internal/config"
	"github.com/hrishi0102/patchpay/internal/database"
	"github.com/hrishi0102/patchpay/internal/database/stores"
	"github.com/hrishi0102/patchpay/internal/payman"
	"github.com/hrishi0102/patchpay/internal/workflow"
)

// API holds everything the handlers need.
type API struct {
	cfg      *config.Cfg
	stores   *stores.Stores
	flow     *workflow.Orchestrator
	payments payman.Factory
	hub      *Hub
}

// NewServer initializes a new API server with the provided configuration.
func NewServer(cfg *config.Cfg, s *stores.Stores, flow *workflow.Orchestrator, payments payman.Factory, hub *Hub) *fiber.App {
	a := &API{
		cfg:      cfg,
		stores:   s,
		flow:     flow,
		payments: payments,
		hub:      hub,
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	})

	// Middleware
	app.Use(logger.New()) // Log every request

	a.setupRoutes(app)
	return app
}

// fail maps a workflow error to the matching HTTP status, keeping only the
// user-facing message.
func fail(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	message := "internal server error"

	switch {
	case errors.Is(err, workflow.ErrNotFound) || errors.Is(err, database.ErrNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, workflow.ErrForbidden):
		status = fiber.StatusForbidden
	case errors.Is(err, workflow.ErrInvalidState),
		errors.Is(err, workflow.ErrInvalidInput),
		errors.Is(err, workflow.ErrAlreadyFinalized),
		errors.Is(err, workflow.ErrPaymentConfig),
		errors.Is(err, workflow.ErrPaymentProcessing):
		status = fiber.StatusBadRequest
	}

	var wferr *workflow.Error
	if errors.As(err, &wferr) {
		message = wferr.Message
	} else if status != fiber.StatusInternalServerError {
		message = err.Error()
	}

	return c.Status(status).JSON(fiber.Map{"message": message})
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": message})
}
