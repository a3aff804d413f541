package httpapi

import (
	"context"
	"errors"
	"io"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/dht-telemetry/internal/store"
	"github.com/i474232898/dht-telemetry/internal/telemetry"
)

var validate = validator.New()

// Service is what the HTTP layer needs from the ingestion coordinator.
type Service interface {
	RunCycle(ctx context.Context) telemetry.CycleSummary
	Latest() (telemetry.Reading, error)
	All() []telemetry.Reading
	Range(from, to time.Time) ([]telemetry.Reading, error)
	Count() int
	Export(w io.Writer) error
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, service Service, bands telemetry.Bands, cycleTimeout time.Duration) {
	v1 := app.Group("/api/v1")

	v1.Get("/readings/latest", func(c *fiber.Ctx) error {
		latest, err := service.Latest()
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no readings stored yet")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch latest reading")
		}

		return c.JSON(fiber.Map{
			"reading": latest,
			"status":  bands.Classify(latest),
			"bands":   bands,
		})
	})

	v1.Get("/readings/count", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"count": service.Count()})
	})

	v1.Get("/readings", func(c *fiber.Ctx) error {
		if c.Query("from") == "" && c.Query("to") == "" {
			readings := service.All()
			return c.JSON(fiber.Map{
				"count":    len(readings),
				"readings": readings,
			})
		}

		var req rangeQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		readings, err := service.Range(req.From, req.To)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no readings for requested range")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch readings")
		}

		return c.JSON(fiber.Map{
			"from":     telemetry.FormatTimestamp(req.From),
			"to":       telemetry.FormatTimestamp(req.To),
			"count":    len(readings),
			"readings": readings,
		})
	})

	v1.Get("/readings/export", func(c *fiber.Ctx) error {
		c.Attachment("readings.csv")
		c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
		return service.Export(c)
	})

	v1.Post("/ingest", func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), cycleTimeout)
		defer cancel()

		summary := service.RunCycle(ctx)
		body := newCycleResponse(summary)
		if summary.Failed() {
			return c.Status(fiber.StatusBadGateway).JSON(body)
		}
		return c.JSON(body)
	})
}

type cycleResponse struct {
	telemetry.CycleSummary
	Error string `json:"error,omitempty"`
}

func newCycleResponse(s telemetry.CycleSummary) cycleResponse {
	resp := cycleResponse{CycleSummary: s}
	if s.Err != nil {
		resp.Error = s.Err.Error()
	}
	return resp
}

// rangeQuery holds query parameters for a bounded series query.
type rangeQuery struct {
	From time.Time `validate:"required"`
	To   time.Time `validate:"required,gtefield=From"`
}

func (q *rangeQuery) bind(c *fiber.Ctx) error {
	fromStr := c.Query("from")
	toStr := c.Query("to")
	if fromStr == "" || toStr == "" {
		return errors.New("from and to query parameters must be given together")
	}

	from, err := parseTime(fromStr)
	if err != nil {
		return err
	}
	to, err := parseTime(toStr)
	if err != nil {
		return err
	}

	q.From = from
	q.To = to
	return nil
}

// parseTime accepts the stored timestamp forms or unix seconds.
func parseTime(s string) (time.Time, error) {
	if ts, ok := telemetry.ParseTimestamp(s); ok {
		return ts, nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return telemetry.Naive(time.Unix(unix, 0).UTC()), nil
	}
	return time.Time{}, errors.New("invalid time format; use RFC3339, 'YYYY-MM-DD hh:mm:ss' or unix seconds")
}
