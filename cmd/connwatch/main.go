// connwatch - host connection auditing daemon
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/user/connwatch/internal/api"
	"github.com/user/connwatch/internal/config"
	"github.com/user/connwatch/internal/connmon"
	"github.com/user/connwatch/internal/elevate"
	"github.com/user/connwatch/internal/events"
	"github.com/user/connwatch/internal/logger"
	"github.com/user/connwatch/internal/metrics"
	"github.com/user/connwatch/internal/monitor"
	"github.com/user/connwatch/internal/policy"
	"github.com/user/connwatch/internal/report"
	"github.com/user/connwatch/internal/store"
)

var version = "dev"

const privilegeHint = "Please run connwatch as root (sudo) or from an administrator prompt."

type flags struct {
	configPath string
	interval   time.Duration
	once       bool
}

func main() {
	var f flags
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.StringVar(&f.configPath, "config", config.GetConfigPath(), "path to the configuration file")
	flag.DurationVar(&f.interval, "interval", 0, "override monitor.sampling_interval_seconds")
	flag.BoolVar(&f.once, "once", false, "run a single sampling pass and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("connwatch", version)
		return
	}

	if err := run(f); err != nil {
		fmt.Fprintf(os.Stderr, "connwatch: %v\n", err)
		if errors.Is(err, elevate.ErrNotElevated) || errors.Is(err, monitor.ErrStartup) {
			fmt.Fprintln(os.Stderr, privilegeHint)
		}
		os.Exit(1)
	}
}

func run(f flags) error {
	manager := config.NewManager(f.configPath)
	if err := manager.Load(); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg := manager.Get()

	if err := logger.Init(logOptions(cfg.Logging)); err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer logger.Close()
	logger.Info("connwatch %s starting, config %s, log %s", version, manager.Path(), logger.GetLogPath())

	if cfg.RequirePrivileges {
		if err := elevate.Require(); err != nil {
			logger.Error("%v", err)
			return err
		}
	}

	pol, err := policy.FromConfig(cfg.Policy)
	if err != nil {
		return err
	}
	source, err := connmon.NewSource(cfg.Monitor.Source)
	if err != nil {
		return err
	}
	states, err := connmon.ParseStates(cfg.Monitor.States)
	if err != nil {
		return err
	}
	resolver := connmon.NewResolver(
		cfg.Monitor.ProcessCacheSize,
		time.Duration(cfg.Monitor.ProcessCacheTTLSeconds)*time.Second,
		nil,
	)

	interval := time.Duration(cfg.Monitor.SamplingIntervalSeconds) * time.Second
	if f.interval > 0 {
		interval = f.interval
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log, err := store.Open(ctx, cfg.Storage)
	if err != nil {
		logger.Error("Failed to open %s log: %v", cfg.Storage.Backend, err)
		return err
	}
	defer log.Close()

	hooks := []monitor.Hook{report.NewWriter(os.Stdout)}

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector()
		hooks = append(hooks, collector)
	}

	if cfg.NATS.Enabled {
		pub, err := events.NewPublisher(cfg.NATS)
		if err != nil {
			return err
		}
		defer pub.Close()
		hooks = append(hooks, pub)
	}

	m, err := monitor.New(monitor.Options{
		Source:   source,
		Resolver: resolver,
		Policy:   pol,
		Log:      log,
		Interval: interval,
		States:   states,
		Hooks:    hooks,
	})
	if err != nil {
		return err
	}

	if err := m.Preflight(ctx); err != nil {
		logger.Error("%v", err)
		return err
	}

	if f.once {
		_, err := m.RunOnce(ctx)
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer logger.Recover("monitor")
		return m.Run(gctx)
	})

	if cfg.API.Enabled {
		var opts []api.Option
		if collector != nil {
			opts = append(opts, api.WithMetrics(cfg.Metrics.Path, metrics.Handler(metrics.NewRegistry(collector))))
		}
		srv := api.NewServer(cfg.API.ListenAddr, m, opts...)
		g.Go(func() error {
			return srv.Run(gctx)
		})
	}

	err = g.Wait()
	logger.Info("connwatch stopped")
	return err
}

// logOptions maps the logging section to logger options. With stderr
// captured into the file, mirroring to stderr would write every line twice.
func logOptions(cfg config.Logging) logger.Options {
	opts := logger.Options{
		Path:          cfg.File,
		Level:         logger.ParseLevel(cfg.Level),
		CaptureStderr: cfg.CaptureStderr,
	}
	if !cfg.CaptureStderr {
		opts.Echo = os.Stderr
	}
	return opts
}
