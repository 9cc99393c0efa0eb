package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/keepalive/internal/domain/engine"
	"github.com/GriffinCanCode/keepalive/internal/infrastructure/config"
	"github.com/GriffinCanCode/keepalive/internal/infrastructure/logging"
	"github.com/GriffinCanCode/keepalive/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/keepalive/internal/infrastructure/notify"
	"github.com/GriffinCanCode/keepalive/internal/infrastructure/server"
	"github.com/GriffinCanCode/keepalive/internal/infrastructure/tracing"
)

var version = "dev"

func main() {
	dev := flag.Bool("dev", false, "Development mode (console logs, debug level)")
	port := flag.String("port", "", "Admin server port (overrides KEEPALIVE_ADMIN_PORT)")
	prefs := flag.String("prefs", "", "Preferences file (overrides KEEPALIVE_PREFS)")
	launchers := flag.String("launchers", "", "Comma-separated exempt launcher packages")
	ignored := flag.String("ignore", "", "Comma-separated packages left unmanaged")
	procRoot := flag.String("proc", "/proc", "Process table root")
	flag.Parse()

	if *prefs != "" {
		_ = os.Setenv(config.Prefix+"_PREFS", *prefs)
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "keepalived: %v\n", err)
		os.Exit(1)
	}
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *dev {
		cfg.Logging.Development = true
		cfg.Logging.Level = "debug"
	}

	if err := run(cfg, *dev, *procRoot, split(*launchers), split(*ignored)); err != nil {
		fmt.Fprintf(os.Stderr, "keepalived: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, dev bool, procRoot string, launchers, ignored []string) error {
	logCfg := logging.DefaultConfig()
	if cfg.Logging.Development {
		logCfg = logging.DevelopmentConfig()
	}
	logCfg.Level = cfg.Logging.Level
	logger, err := logging.New(logCfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting keepalive",
		zap.String("version", version),
		zap.Bool("production", logging.IsProduction()),
	)

	var tracer trace.Tracer = tracing.Noop()
	if cfg.Tracing.Enabled {
		tp, err := tracing.Init(tracing.Config{
			ServiceName:    cfg.Tracing.ServiceName,
			ServiceVersion: version,
			SampleRatio:    cfg.Tracing.SampleRatio,
		})
		if err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(ctx); err != nil {
				logger.Warn("Tracer shutdown failed", zap.Error(err))
			}
		}()
		tracer = tp.Tracer()
	}

	var publisher notify.Publisher = notify.Nop{}
	if cfg.Notify.Enabled {
		pub, err := notify.Connect(notify.Config{
			URL:    cfg.Notify.URL,
			Prefix: cfg.Notify.Prefix,
		}, logger.Logger)
		if err != nil {
			return err
		}
		publisher = pub
		logger.Info("Lifecycle notifications enabled", zap.String("url", cfg.Notify.URL))
	}

	metrics := monitoring.NewMetrics()
	eng, err := engine.New(
		newProcSupervisor(procRoot, logger.Component("procsup")),
		newStaticResolver(launchers, ignored),
		engine.SettingsFromConfig(cfg.Engine),
		engine.WithLogger(logger.Logger),
		engine.WithMetrics(metrics),
		engine.WithTracer(tracer),
		engine.WithPublisher(publisher),
	)
	if err != nil {
		return err
	}
	eng.Start()
	defer func() {
		if err := eng.Close(); err != nil {
			logger.Warn("Engine shutdown failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	if !cfg.Server.Enabled {
		<-sigChan
		logger.Info("Shutting down")
		return nil
	}

	srv := server.New(eng, server.Options{
		Config:      cfg.Server,
		Development: dev,
		Metrics:     metrics,
		Tracer:      tracer,
		Logger:      logger.Logger,
		Levels:      logger,
	})

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Run()
	}()

	select {
	case <-sigChan:
		logger.Info("Shutting down gracefully")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	case err := <-errChan:
		return err
	}
}

func split(list string) []string {
	var out []string
	for _, p := range strings.Split(list, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
