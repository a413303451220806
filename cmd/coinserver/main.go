package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/coinhunt/roomengine/internal/api"
	"github.com/coinhunt/roomengine/internal/cache"
	"github.com/coinhunt/roomengine/internal/config"
	"github.com/coinhunt/roomengine/internal/dispatcher"
	"github.com/coinhunt/roomengine/internal/engine"
	"github.com/coinhunt/roomengine/internal/geo"
	"github.com/coinhunt/roomengine/internal/influx"
	"github.com/coinhunt/roomengine/internal/logging"
	"github.com/coinhunt/roomengine/internal/monitor"
	intOtel "github.com/coinhunt/roomengine/internal/otel"
	"github.com/coinhunt/roomengine/internal/transport"
	"github.com/coinhunt/roomengine/internal/worker"
)

// BuildDate can be set at build time via ldflags
var (
	Version   string = "0.0.1"
	BuildDate string = "unknown"

	ServiceName string = "coinserver"
)

func main() {
	configDir := flag.String("config", ".", "directory holding "+config.FileName)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configDir); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", ServiceName, err)
		os.Exit(1)
	}
}

// closer runs shutdown steps in reverse registration order.
type closer struct {
	steps []func()
}

func (c *closer) add(fn func()) { c.steps = append(c.steps, fn) }

func (c *closer) run() {
	for i := len(c.steps) - 1; i >= 0; i-- {
		c.steps[i]()
	}
}

func run(ctx context.Context, configDir string) error {
	started := time.Now()
	var cleanup closer
	defer cleanup.run()

	slogManager := logging.NewSlogManager()
	logger := slogManager.Setup(nil, "info", nil)

	if err := config.Load(configDir); err != nil {
		logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		logger.Info("Loaded config")
	}

	logsDir := config.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("create logs dir: %w", err)
	}

	logFilePath := logging.LogFilePath(logsDir, ServiceName, started)
	var logFile io.Writer
	if f, err := os.OpenFile(logFilePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666); err != nil {
		logger.Error("Failed to create/open log file!", "error", err, "path", logFilePath)
	} else {
		logFile = f
		cleanup.add(func() { _ = f.Close() })
	}

	// Initialize OTel provider if enabled (after log file is created)
	var otelLogProvider *sdklog.LoggerProvider
	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		provider, err := intOtel.New(ctx, intOtel.Config{
			Enabled:      otelCfg.Enabled,
			ServiceName:  otelCfg.ServiceName,
			BatchTimeout: otelCfg.BatchTimeout,
			LogWriter:    logFile,
			Endpoint:     otelCfg.Endpoint,
			Insecure:     otelCfg.Insecure,
		})
		if err != nil {
			logger.Error("Failed to initialize OTel provider", "error", err)
		} else {
			otelLogProvider = provider.LoggerProvider()
			cleanup.add(func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := provider.Shutdown(shutdownCtx); err != nil {
					fmt.Fprintf(os.Stderr, "otel shutdown: %v\n", err)
				}
			})
			logger.Info("OTel provider initialized", "endpoint", otelCfg.Endpoint)
		}
	}

	var extra []slog.Handler
	if config.GetBool("graylog.enabled") {
		handler, gelfCloser, err := logging.NewGraylogHandler(config.GetString("graylog.address"), slogManager.HandlerOptions())
		if err != nil {
			logger.Error("Failed to connect to Graylog", "error", err)
		} else {
			extra = append(extra, handler)
			cleanup.add(func() { _ = gelfCloser.Close() })
		}
	}

	// Re-setup logging with file output, optional OTel and Graylog
	logger = slogManager.Setup(logFile, config.GetString("logLevel"), otelLogProvider, extra...)
	logger.Info("Logging to file", "path", logFilePath, "version", Version, "buildDate", BuildDate)

	zlog := newZerolog(logFile, config.GetString("logLevel"))

	// Geo index
	storageCfg := config.GetStorageConfig()
	backend, err := createStorageBackend(storageCfg, logsDir, started, logger)
	if err != nil {
		return err
	}
	if err := backend.Init(); err != nil {
		return fmt.Errorf("failed to initialize %s geo index: %w", storageCfg.Type, err)
	}
	cleanup.add(func() {
		if err := backend.Close(); err != nil {
			logger.Error("Failed to close geo index", "error", err)
		}
	})

	// Engine
	engineCfg := config.GetEngineConfig()
	eng, err := engine.New(backend, engine.Options{
		TTL:           engineCfg.TTL,
		IndexTimeout:  engineCfg.IndexTimeout,
		SweepInterval: engineCfg.SweepInterval,
		Projection:    geo.Projection{ScaleX: engineCfg.ScaleX, ScaleY: engineCfg.ScaleY},
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}

	// Influx
	influxManager := influx.NewManager(config.GetInfluxConfig(), zlog.With().Str("component", "influx").Logger())
	if err := influxManager.Connect(ctx); err != nil {
		if !errors.Is(err, influx.ErrDisabled) {
			logger.Error("Failed to set up InfluxDB", "error", err)
		}
		influxManager = nil
	} else {
		eng.Subscribe(influxManager)
		cleanup.add(func() {
			if err := influxManager.Close(); err != nil {
				logger.Error("Failed to close InfluxDB writer", "error", err)
			}
		})
	}

	// Transport
	d, err := dispatcher.New(logging.NewDispatcherLogger(zlog.With().Str("component", "dispatcher").Logger()))
	if err != nil {
		return fmt.Errorf("create dispatcher: %w", err)
	}
	cleanup.add(d.Close)
	subs := cache.NewSubscriptions()
	wsServer := transport.NewServer(transport.Config{
		SendBuffer: config.GetInt("transport.sendBuffer"),
	}, d, subs, logger)
	workerManager := worker.NewManager(worker.Dependencies{
		Engine:        eng,
		Sender:        wsServer,
		Subscriptions: subs,
		Logger:        logger,
	})
	workerManager.RegisterHandlers(d)
	eng.Subscribe(wsServer)
	cleanup.add(func() { _ = wsServer.Close() })

	logger = slogManager.With(func() []slog.Attr {
		return []slog.Attr{
			slog.String("storage", storageCfg.Type),
			slog.Int("sessions", wsServer.SessionCount()),
		}
	})

	// Startup rooms
	rooms, err := config.StartupRooms()
	if err != nil {
		logger.Warn("Some room definitions were skipped", "error", err)
	}
	generated, err := eng.GenerateAll(ctx, rooms)
	if err != nil {
		logger.Error("Some rooms failed to generate", "error", err)
	}
	logger.Info("Rooms generated", "generated", generated, "configured", len(rooms))
	if influxManager != nil {
		for _, summary := range eng.Rooms() {
			influxManager.RoomGenerated(summary)
		}
	}

	// Monitor
	monitorCfg := config.GetMonitorConfig()
	if monitorCfg.Enabled {
		deps := monitor.Dependencies{
			Engine:     eng,
			Sessions:   wsServer.SessionCount,
			Logger:     logger,
			StatusFile: monitorCfg.StatusFile,
			Interval:   monitorCfg.Interval,
		}
		if influxManager != nil {
			deps.Influx = influxManager
		}
		monitorService := monitor.NewService(deps)
		if err := monitorService.Start(); err != nil {
			logger.Error("Failed to start status monitor", "error", err)
		} else {
			cleanup.add(monitorService.Stop)
		}
	}

	// Janitor
	janitorCtx, stopJanitor := context.WithCancel(ctx)
	janitorDone := make(chan struct{})
	go func() {
		defer close(janitorDone)
		eng.Run(janitorCtx)
	}()
	cleanup.add(func() {
		stopJanitor()
		<-janitorDone
	})

	// HTTP
	apiServer := api.NewServer(eng, config.GetString("apiKey"), logger)
	apiServer.Handle("/ws", wsServer)
	httpServer := &http.Server{
		Addr:              config.GetString("listenAddr"),
		Handler:           apiServer,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Server running", "addr", httpServer.Addr)
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		logger.Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	// Hijacked websocket connections are not tracked by Shutdown; close them first.
	_ = wsServer.Close()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown failed", "error", err)
	}
	if err := slogManager.Flush(shutdownCtx); err != nil {
		logger.Warn("Failed to flush logs", "error", err)
	}
	return nil
}

// newZerolog builds the zerolog logger used by the dispatcher and influx
// writer. It writes to the console and, when present, the log file.
func newZerolog(file io.Writer, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	writers := []io.Writer{zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}}
	if file != nil {
		writers = append(writers, file)
	}
	return zerolog.New(zerolog.MultiLevelWriter(writers...)).Level(lvl).With().Timestamp().Logger()
}
