package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"

	"tomato/pkg/config"
	"tomato/pkg/history"
	"tomato/pkg/notify"
	"tomato/pkg/scheduler"
	"tomato/pkg/server"
	"tomato/pkg/shutdown"

	"github.com/spf13/cobra"
)

// daemonOptions are the command-line overrides for one daemon run.
type daemonOptions struct {
	configPath string
	socketPath string
	backend    string
	logLevel   string
}

// newDaemonCmd creates the "tomato daemon" subcommand.
func newDaemonCmd() *cobra.Command {
	var opts daemonOptions
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the pomodoro daemon in the foreground",
		Long: "Starts the phase scheduler, the command socket and the notifier.\n" +
			"Runs until interrupted (Ctrl-C, SIGTERM or 'tomato stop').",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.socketPath, _ = cmd.Flags().GetString("socket")
			return runDaemon(cmd.Context(), opts, cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVar(&opts.configPath, "config", "", "config file, .toml or .yaml (default $TOMATO_HOME/config.toml)")
	cmd.Flags().StringVar(&opts.backend, "backend", "", "notification backend: dunstify, notify-send or none")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error")
	return cmd
}

// runDaemon runs every daemon task until ctx is done or a signal arrives.
// A clean interrupt returns nil.
func runDaemon(ctx context.Context, opts daemonOptions, logOut io.Writer) error {
	home, err := resolveHome()
	if err != nil {
		return err
	}
	if err := config.LoadDotEnv(home); err != nil {
		return err
	}
	paths, err := ResolvePaths()
	if err != nil {
		return err
	}
	if opts.configPath != "" {
		paths.ConfigPath = opts.configPath
	}
	if opts.socketPath != "" {
		paths.SocketPath = opts.socketPath
	}

	cfg, err := loadDaemonConfig(paths.ConfigPath, opts)
	if err != nil {
		return err
	}
	level, _ := config.ParseLevel(cfg.LogLevel)
	logger := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: level}))

	status, pid, err := DaemonStatus(paths.PIDPath)
	if err != nil {
		return err
	}
	if status == StatusRunning && pid != os.Getpid() {
		return fmt.Errorf("daemon already running (PID %d)", pid)
	}
	if err := WritePIDFile(paths.PIDPath, os.Getpid()); err != nil {
		return err
	}
	defer func() { _ = RemovePIDFile(paths.PIDPath) }()

	coord := shutdown.New(ctx, logger)
	stopSignals := coord.ListenForSignals(os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	schedOpts := []scheduler.Option{scheduler.WithLogger(logger)}
	if cfg.History {
		store, err := history.Open(paths.HistoryPath)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
		schedOpts = append(schedOpts, scheduler.WithRecorder(store))
	}
	sched := scheduler.New(cfg.Scheduler(), schedOpts...)

	srv := server.New(cfg.Server(paths.SocketPath), sched, server.WithLogger(logger))

	backend, err := notify.NewBackend(cfg.Backend, nil)
	if err != nil {
		return err
	}
	driver := notify.NewDriver(backend, sched, sched,
		notify.WithTimeout(cfg.NotifyTimeoutDuration()),
		notify.WithLogger(logger.With("backend", cfg.Backend)))

	logger.Info("daemon starting",
		"socket", paths.SocketPath,
		"config", paths.ConfigPath,
		"backend", cfg.Backend,
		"unit", cfg.Unit.Duration,
		"pid", os.Getpid())

	coord.Go("scheduler", sched.Run)
	coord.Go("server", srv.Run)
	coord.Go("notifier", driver.Run)
	coord.Go("config-watch", func(ctx context.Context) error {
		watchConfig(ctx, paths.ConfigPath, sched, logger.With("component", "config"))
		return nil
	})

	err = coord.Wait()
	if err != nil {
		logger.Error("daemon stopped", "error", err)
		return err
	}
	logger.Info("daemon stopped", "cause", coord.Cause())
	return nil
}

// loadDaemonConfig loads the config file and applies flag overrides.
func loadDaemonConfig(path string, opts daemonOptions) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	if opts.backend != "" {
		cfg.Backend = opts.backend
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// watchConfig pushes new phase lengths into sched whenever the config file
// changes. Other settings need a restart. It returns when ctx is done.
func watchConfig(ctx context.Context, path string, sched *scheduler.Scheduler, log *slog.Logger) {
	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		log.Debug("config directory missing, not watching", "path", path)
		<-ctx.Done()
		return
	}
	current := sched.Unit()
	err := config.Watch(ctx, path, func(cfg config.Config, err error) {
		if err != nil {
			log.Warn("config reload rejected", "error", err)
			return
		}
		if cfg.Unit.Duration != current {
			log.Warn("unit changed, restart to apply", "unit", cfg.Unit.Duration)
			return
		}
		if err := sched.SetDurations(cfg.Durations()); err != nil {
			log.Warn("config reload rejected", "error", err)
		}
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Warn("config watch stopped", "error", err)
	}
	<-ctx.Done()
}
