// Taskd is a task-API operations daemon: it tracks request health in
// rolling windows, manages API-credential lifecycles, and routes
// threshold alerts to external notification channels.
//
// Configuration is loaded from an optional YAML file and environment
// variables. See internal/config for details.
//
// Usage:
//
//	# Start daemon with defaults
//	taskd
//
//	# Configure via environment
//	SERVER_PORT=8090 ALERTING_SLACK_WEBHOOK_URL=https://hooks.slack.com/... taskd
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/taskd/internal/alert"
	"github.com/fyrsmithlabs/taskd/internal/config"
	"github.com/fyrsmithlabs/taskd/internal/credential"
	"github.com/fyrsmithlabs/taskd/internal/logging"
	"github.com/fyrsmithlabs/taskd/internal/mail"
	"github.com/fyrsmithlabs/taskd/internal/monitor"
	"github.com/fyrsmithlabs/taskd/internal/server"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// printVersion prints version information
func printVersion() {
	fmt.Printf("taskd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run wires the daemon together and blocks until the context is
// cancelled:
//  1. Loads and validates configuration
//  2. Initializes the logger
//  3. Builds notification channels and the alert dispatcher
//  4. Builds the health monitor and credential manager
//  5. Starts the evaluation loop and the HTTP server
//  6. Performs graceful shutdown on context cancellation
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	zlog := logger.Underlying()
	logger.Info(ctx, "starting taskd",
		zap.Int("port", cfg.Server.Port),
		zap.Duration("error_rate_window", cfg.Monitor.ErrorRateWindow.Duration()),
		zap.Duration("alert_cooldown", cfg.Monitor.AlertCooldown.Duration()),
		zap.Bool("pagerduty_configured", cfg.Alerting.PagerDutyRoutingKey.IsSet()),
		zap.Bool("slack_configured", cfg.Alerting.SlackWebhookURL.IsSet()),
	)

	// A typed nil from a channel constructor must not enter the slice as a
	// non-nil interface value.
	var channels []alert.Channel
	if pd := alert.NewPagerDutyChannel(cfg.Alerting.PagerDutyRoutingKey, cfg.Alerting.ServiceName); pd != nil {
		channels = append(channels, pd)
	}
	if sl := alert.NewSlackChannel(cfg.Alerting.SlackWebhookURL, cfg.Alerting.ServiceName); sl != nil {
		channels = append(channels, sl)
	}

	dispatcher := alert.NewDispatcher(channels, cfg.Alerting.DeliveryTimeout.Duration(), zlog.Named("alert"))

	mon := monitor.New(monitor.Config{
		ErrorRateThreshold: cfg.Monitor.ErrorRateThreshold,
		ErrorRateWindow:    cfg.Monitor.ErrorRateWindow.Duration(),
		AuthSpikeThreshold: cfg.Monitor.AuthSpikeThreshold,
		AlertCooldown:      cfg.Monitor.AlertCooldown.Duration(),
		HistorySize:        cfg.Monitor.HistorySize,
	}, dispatcher, zlog.Named("monitor"))

	creds := credential.NewManager(
		cfg.Credentials.DefaultLifetime.Duration(),
		mon,
		mail.NewLogSender(zlog.Named("mail")),
		zlog.Named("credential"),
	)

	srv, err := server.New(&cfg.Server, mon, creds, zlog.Named("http"))
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}

	go mon.Run(ctx, cfg.Monitor.EvaluateInterval.Duration())

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	dispatcher.Drain()

	logger.Info(ctx, "shutdown complete")
	return nil
}

// initLogger builds the logger from the loaded configuration.
func initLogger(cfg *config.Config) (*logging.Logger, error) {
	logCfg := logging.NewDefaultConfig()
	logCfg.Format = cfg.Log.Format

	level, err := logging.LevelFromString(cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Log.Level, err)
	}
	logCfg.Level = level

	return logging.NewLogger(logCfg)
}
