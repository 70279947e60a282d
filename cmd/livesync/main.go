// Command livesync runs the dashboard's live feeds from the terminal.
//
// It loads the feed configuration, opens one subscription per enabled feed
// and keeps a live table per resource. Status transitions and coalesced
// update summaries are printed as they happen.
//
// Usage:
//
//	livesync [flags]
//
// Flags:
//
//	-config string      Configuration file path
//	-log-level string   Log level: debug, info, warn, error
//	-trace string       Write a CBOR sync trace to this file
//	-dsn string         Postgres connection string (selects the postgres transport)
//	-memory             Use the in-memory transport
//	-interactive        Enable interactive command mode
//	-install-triggers   Create the notify trigger of each enabled feed (postgres)
//
// Examples:
//
//	# Drive the feeds by hand on the memory transport
//	livesync -memory -interactive
//
//	# Follow the database, capturing a trace for livesync-log
//	livesync -dsn postgres://localhost/arb -trace sync.slog
//
// Interactive Commands:
//
//	status                      - Show every subscription
//	show <resource> [limit]     - Show table rows
//	emit <resource> <kind> <json> - Push a change (memory transport)
//	fail | drop <resource>      - Fail or close a feed's channel (memory transport)
//	reconnect <resource>        - Retry a feed
//	close <resource>            - Unsubscribe a feed
//	exit                        - Quit
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fundingarb/livesync/pkg/config"
	"github.com/fundingarb/livesync/pkg/livetable"
	"github.com/fundingarb/livesync/pkg/log"
	"github.com/fundingarb/livesync/pkg/transport"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Flags holds the command line.
type Flags struct {
	ConfigFile      string
	LogLevel        string
	TraceFile       string
	DSN             string
	Memory          bool
	Interactive     bool
	InstallTriggers bool
}

// connectTimeout bounds pool creation and the initial snapshots.
const connectTimeout = 15 * time.Second

var flags Flags

func init() {
	flag.StringVar(&flags.ConfigFile, "config", "", "Configuration file path")
	flag.StringVar(&flags.LogLevel, "log-level", "", "Log level: debug, info, warn, error")
	flag.StringVar(&flags.TraceFile, "trace", "", "Write a CBOR sync trace to this file")
	flag.StringVar(&flags.DSN, "dsn", "", "Postgres connection string")
	flag.BoolVar(&flags.Memory, "memory", false, "Use the in-memory transport")
	flag.BoolVar(&flags.Interactive, "interactive", false, "Enable interactive command mode")
	flag.BoolVar(&flags.InstallTriggers, "install-triggers", false, "Create the notify trigger of each enabled feed (postgres)")
}

func main() {
	flag.Parse()

	cfg, err := config.Load(flags.ConfigFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "livesync: %v\n", err)
		os.Exit(1)
	}
	if err := applyFlags(cfg, flags); err != nil {
		fmt.Fprintf(os.Stderr, "livesync: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "livesync: %v\n", err)
		os.Exit(1)
	}
}

// applyFlags lets command line flags override the loaded configuration.
func applyFlags(cfg *config.Config, f Flags) error {
	if f.LogLevel != "" {
		cfg.Logging.Level = f.LogLevel
	}
	if f.TraceFile != "" {
		cfg.Logging.TraceFile = f.TraceFile
	}
	switch {
	case f.Memory:
		cfg.Transport.Kind = config.TransportMemory
	case f.DSN != "":
		cfg.Transport.Kind = config.TransportPostgres
		cfg.Transport.DSN = f.DSN
	}
	return cfg.Validate()
}

func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := io.Writer(os.Stdout)
	logOut := io.Writer(os.Stderr)

	var console *Console
	if flags.Interactive {
		var err error
		console, err = NewConsole(nil)
		if err != nil {
			return err
		}
		// Route output through readline so it does not clobber the prompt.
		out = console.Stdout()
		logOut = console.Stdout()
	}

	logger, err := setupLogging(cfg.Logging, logOut)
	if err != nil {
		return err
	}

	trace, closeTrace, err := setupTrace(cfg.Logging.TraceFile, logger)
	if err != nil {
		return err
	}
	defer closeTrace()

	tr, hub, loader, closeTransport, err := setupTransport(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeTransport()

	logger.Info("livesync starting",
		"transport", cfg.Transport.Kind,
		"feeds", len(cfg.Feeds),
		"trace", cfg.Logging.TraceFile)

	app := NewApp(cfg, tr, hub, loader, logger, trace, out)

	startCtx, startCancel := context.WithTimeout(ctx, connectTimeout)
	err = app.Start(startCtx)
	startCancel()
	if err != nil {
		_ = app.Close()
		return err
	}

	if console != nil {
		console.app = app
		go console.Run(ctx, cancel)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("Received signal", "signal", sig.String())
	case <-ctx.Done():
	}

	logger.Info("Shutting down...")
	cancel()
	if err := app.Close(); err != nil {
		logger.Warn("Error closing subscriptions", "error", err)
	}
	return nil
}

func setupLogging(cfg config.LoggingConfig, w io.Writer) (*slog.Logger, error) {
	level, err := config.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// setupTrace opens the trace file. At debug level trace events are also
// mirrored to the operational log.
func setupTrace(path string, logger *slog.Logger) (log.Logger, func(), error) {
	var loggers []log.Logger
	closer := func() {}

	if path != "" {
		fl, err := log.NewFileLogger(path)
		if err != nil {
			return nil, nil, fmt.Errorf("open trace file: %w", err)
		}
		loggers = append(loggers, fl)
		closer = func() {
			written, failed := fl.Stats()
			logger.Info("Trace closed", "path", fl.Path(), "events", written, "failed", failed)
			_ = fl.Close()
		}
	}
	if logger.Enabled(context.Background(), slog.LevelDebug) {
		loggers = append(loggers, log.NewSlogAdapter(logger))
	}

	switch len(loggers) {
	case 0:
		return nil, closer, nil
	case 1:
		return loggers[0], closer, nil
	default:
		return log.NewMultiLogger(loggers...), closer, nil
	}
}

func setupTransport(ctx context.Context, cfg *config.Config, logger *slog.Logger) (transport.Transport, *transport.Hub, livetable.Loader, func(), error) {
	if cfg.Transport.Kind == config.TransportMemory {
		hub := transport.NewHub(transport.WithAutoOpen())
		return hub, hub, nil, func() {}, nil
	}

	poolCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	pool, err := pgxpool.New(poolCtx, cfg.Transport.DSN)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("connect postgres: %w", err)
	}

	pg := transport.NewPostgres(pool,
		transport.WithKeepAlive(cfg.KeepAlive()),
		transport.WithPostgresLogger(logger))

	if flags.InstallTriggers {
		for _, f := range cfg.Feeds {
			if !f.IsEnabled() {
				continue
			}
			if err := pg.InstallTriggers(poolCtx, f.Schema, f.Resource); err != nil {
				pool.Close()
				return nil, nil, nil, nil, err
			}
		}
	}

	var loaderOpts []transport.LoaderOption
	for _, f := range cfg.Feeds {
		if f.Query != "" {
			loaderOpts = append(loaderOpts, transport.WithQuery(f.Resource, f.Query))
		}
	}
	loader := transport.NewPostgresLoader(pool, loaderOpts...)

	return pg, nil, loader, pool.Close, nil
}
