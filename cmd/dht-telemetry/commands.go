package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	httpapi "github.com/i474232898/dht-telemetry/internal/api/http"
	"github.com/i474232898/dht-telemetry/internal/config"
	"github.com/i474232898/dht-telemetry/internal/scheduler"
	"github.com/i474232898/dht-telemetry/internal/store"
	"github.com/i474232898/dht-telemetry/internal/telemetry"
	"github.com/i474232898/dht-telemetry/internal/telemetry/feed"
)

// runtime bundles what every command needs. close must be called when done.
type runtime struct {
	cfg     *config.AppConfig
	logger  *zap.Logger
	store   *store.SeriesStore
	service *telemetry.Service
}

func bootstrap(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logCfg := zap.NewProductionConfig()
	logCfg.Level, err = zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logCfg.OutputPaths = []string{"stdout"}
	logCfg.ErrorOutputPaths = []string{"stdout"}
	logCfg.Sampling = nil
	logger := zap.Must(logCfg.Build(zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel)))
	zap.ReplaceGlobals(logger)

	journal, err := store.OpenJournal(cfg.StoreBackend, cfg.StorePath)
	if err != nil {
		return nil, err
	}
	seriesStore, err := store.Open(ctx, journal)
	if err != nil {
		_ = journal.Close()
		return nil, err
	}

	client := feed.New(cfg.Feed())
	if client.InsecureTLS() {
		logger.Warn("upstream certificate verification disabled", zap.String("url", cfg.FeedURL))
	}

	return &runtime{
		cfg:     cfg,
		logger:  logger,
		store:   seriesStore,
		service: telemetry.NewService(seriesStore, client),
	}, nil
}

func (r *runtime) close() {
	if err := r.store.Close(); err != nil {
		r.logger.Error("error closing store", zap.Error(err))
	}
	_ = r.logger.Sync()
}

func serveCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	sched := scheduler.New(rt.service, rt.cfg.FetchInterval, rt.cfg.CycleTimeout, rt.cfg.Backoff())
	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer sched.Stop()

	app := fiber.New(fiber.Config{
		AppName:               "dht-telemetry",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          rt.cfg.CycleTimeout + 5*time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	app.Use(logger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":   "ok",
			"service":  "dht-telemetry",
			"readings": rt.service.Count(),
		})
	})

	httpapi.RegisterRoutes(app, rt.service, rt.cfg.Bands(), rt.cfg.CycleTimeout)

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		rt.logger.Info("http server listening", zap.String("port", rt.cfg.Port))
		if err := app.Listen(":" + rt.cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return app.ShutdownWithContext(shutdownCtx)
	})

	return eg.Wait()
}

func ingestCommand(c *cli.Context) error {
	rt, err := bootstrap(c.Context)
	if err != nil {
		return err
	}
	defer rt.close()

	ctx, cancel := context.WithTimeout(c.Context, rt.cfg.CycleTimeout)
	defer cancel()

	summary := rt.service.RunCycle(ctx)
	out, err := json.MarshalIndent(struct {
		telemetry.CycleSummary
		Error string `json:"error,omitempty"`
		Total int    `json:"total"`
	}{summary, errString(summary.Err), rt.service.Count()}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, string(out))
	return summary.Err
}

func exportCommand(c *cli.Context) error {
	rt, err := bootstrap(c.Context)
	if err != nil {
		return err
	}
	defer rt.close()

	path := c.String("output")
	if path == "" {
		return rt.service.Export(c.App.Writer)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := rt.service.Export(f); err != nil {
		_ = f.Close()
		return err
	}
	rt.logger.Info("series exported", zap.String("path", path), zap.Int("readings", rt.service.Count()))
	return f.Close()
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
