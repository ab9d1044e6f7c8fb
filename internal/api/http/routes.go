package httpapi

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/i474232898/saferoute/internal/traffic"
)

// Options tune how failures are reported.
type Options struct {
	// LegacyErrorStatus maps input errors to 500 instead of 400.
	LegacyErrorStatus bool
	Logger            *slog.Logger
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, service *traffic.Service, opts Options) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	app.Post("/predict", func(c *fiber.Ctx) error {
		log := logger.With("request_id", uuid.NewString())

		var payload traffic.Payload
		if err := c.BodyParser(&payload); err != nil {
			log.Error("invalid request body", "error", err, "body", string(c.Body()))
			return fiber.NewError(opts.status(true), "invalid request body: "+err.Error())
		}
		log.Info("received input", "input", payload.String())

		assessment, err := service.WithLogger(log.With("input", payload.String())).Assess(payload)
		if err != nil {
			log.Error("prediction failed", "error", err, "input", payload.String())
			return fiber.NewError(opts.status(traffic.IsInputError(err)), err.Error())
		}

		log.Debug("prediction done",
			"vehicle_count", assessment.VehicleCount,
			"traffic_density", assessment.TrafficDensity,
			"accident_likelihood", assessment.AccidentLikelihood,
			"risk_label", assessment.RiskLabel,
		)
		return c.JSON(assessment)
	})
}

func (o Options) status(inputError bool) int {
	if inputError && !o.LegacyErrorStatus {
		return fiber.StatusBadRequest
	}
	return fiber.StatusInternalServerError
}

// ErrorHandler renders every error as {"error": message}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}
