// Command heapload loads a heap object listing into a database table.
//
// Rows are committed in batches together with a checkpoint of the file
// position, so an interrupted load continues where it stopped when run
// again with the same file. Connection and tuning settings come from the
// environment (see internal/config); a .env file in the working directory
// is loaded first.
//
// Exit status is 0 on success, 1 for usage or configuration errors (including
// a stored checkpoint the scanner rejects) and 2 when the load itself fails.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/JonMunkholm/heapload/internal/config"
	"github.com/JonMunkholm/heapload/internal/core"
	"github.com/JonMunkholm/heapload/internal/linescan"
	"github.com/JonMunkholm/heapload/internal/logging"
	"github.com/JonMunkholm/heapload/internal/progress"
	"github.com/JonMunkholm/heapload/internal/store"
	"github.com/JonMunkholm/heapload/internal/web"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	exitOK      = 0
	exitUsage   = 1
	exitFailure = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// options are the resolved command line settings.
type options struct {
	file    string
	table   string
	reset   bool
	verbose bool
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("heapload", flag.ContinueOnError)
	fs.SetOutput(stderr)
	file := fs.String("file", "", "Heap listing to load (required)")
	table := fs.String("table", "", "Target table (default: INGEST_TABLE or the file name without extension)")
	reset := fs.Bool("reset", false, "Drop the table and load the file from the beginning")
	batchSize := fs.Int("batch-size", 0, "Rows per transaction (default: INGEST_BATCH_SIZE)")
	verbose := fs.Bool("verbose", false, "Print resume information and progress")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "Unknown command line arguments: %s\n", strings.Join(fs.Args(), " "))
		fs.PrintDefaults()
		return exitUsage
	}
	if *file == "" {
		fmt.Fprintln(stderr, "Parameter -file is required")
		fs.PrintDefaults()
		return exitUsage
	}
	if info, err := os.Stat(*file); err != nil || info.IsDir() {
		fmt.Fprintf(stderr, "The file %s does not exist\n", *file)
		fs.PrintDefaults()
		return exitUsage
	}
	if *batchSize < 0 {
		fmt.Fprintln(stderr, "Parameter -batch-size must be positive")
		return exitUsage
	}

	// A .env file is optional; real environment variables take precedence.
	dotenvErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "heapload: %v\n", err)
		return exitUsage
	}
	if *batchSize > 0 {
		cfg.Ingest.BatchSize = *batchSize
	}

	logging.Setup(stderr, cfg.Logging.Level, cfg.Logging.Format)
	if dotenvErr == nil {
		slog.Debug("loaded .env file")
	}

	opts := options{file: *file, table: *table, reset: *reset, verbose: *verbose}
	if opts.table == "" {
		opts.table = cfg.Ingest.Table
	}
	if opts.table == "" {
		opts.table = TableName(opts.file)
	}

	enc, err := linescan.LookupEncoding(cfg.Ingest.Encoding)
	if err != nil {
		fmt.Fprintf(stderr, "heapload: %s\n", core.FormatUserError(err))
		return exitUsage
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.ContextWithRunID(ctx, uuid.NewString())

	logging.FromContext(ctx).Debug("configuration loaded", "config", cfg.String())

	pipelineOpts := core.Options{
		BatchSize:   cfg.Ingest.BatchSize,
		ChunkSize:   cfg.Ingest.ChunkSize,
		HeaderLabel: cfg.Ingest.HeaderLabel,
		Encoding:    enc,
	}

	if err := ingest(ctx, cfg, pipelineOpts, opts, stdout); err != nil {
		msg := core.MapError(err)
		logging.FromContext(ctx).Error("load failed", "error", err, "code", msg.Code)
		fmt.Fprintf(stderr, "heapload: %s\n", core.FormatUserError(err))
		if !core.IsUserFacing(err) {
			fmt.Fprintf(stderr, "heapload: %v\n", err)
		}
		if linescan.IsConfigError(err) {
			return exitUsage
		}
		return exitFailure
	}
	return exitOK
}

// ingest opens the store, runs the pipeline over the file and tears down
// the store and the status server. Teardown failures are joined to the
// returned error.
func ingest(ctx context.Context, cfg *config.Config, pipelineOpts core.Options, opts options, stdout io.Writer) (err error) {
	key, err := filepath.Abs(opts.file)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", opts.file, err)
	}
	info, err := os.Stat(opts.file)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	if opts.verbose {
		fmt.Fprintf(stdout, "Database: %s\n", config.MaskURL(cfg.Database.URL))
		fmt.Fprintf(stdout, "   Table: %s\n", opts.table)
	}

	st, err := store.Open(ctx, store.Options{
		URL:             cfg.Database.URL,
		Table:           opts.table,
		JournalTable:    cfg.Database.JournalTable,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
	})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close store: %w", cerr))
		}
	}()

	if err := st.Prepare(ctx, key, opts.reset); err != nil {
		return fmt.Errorf("prepare store: %w", err)
	}

	cp, err := st.Load(ctx, key)
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}
	if opts.verbose {
		switch {
		case cp.State() == core.StateComplete:
			fmt.Fprintln(stdout, "Already done.")
		case cp.LineOffset > 1:
			fmt.Fprintf(stdout, "Resuming from line %d\n", cp.LineOffset)
		default:
			fmt.Fprintln(stdout, "Starting from the beginning")
		}
	}

	sinks := []core.ProgressSink{progress.NewLogger(logging.WithFields(ctx, "source", key), info.Size())}
	if opts.verbose {
		sinks = append(sinks, progress.NewConsole(stdout, info.Size()))
	}
	if cfg.Status.Enabled() {
		status, shutdown := startStatusServer(ctx, cfg.Status, key, info.Size())
		defer shutdown()
		sinks = append(sinks, status...)
	}

	res, err := core.NewPipeline(st, pipelineOpts).RunFile(ctx, opts.file, progress.NewMulti(sinks...))
	if err != nil {
		return err
	}

	if !res.AlreadyComplete {
		rows, err := st.RowCount(ctx)
		if err != nil {
			return err
		}
		logging.FromContext(ctx).Info("load complete",
			"source", key,
			"table", opts.table,
			"rows_added", res.Rows,
			"batches", res.Batches,
			"rows_total", rows,
			"resumed", res.Resumed,
		)
	}
	return nil
}

// startStatusServer serves progress for the run and returns the sinks that
// feed it together with a function stopping the server.
func startStatusServer(ctx context.Context, cfg config.StatusConfig, key string, size int64) ([]core.ProgressSink, func()) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	metrics := progress.NewMetrics(reg, size)
	status := progress.NewStatus(key, size)
	srv := web.NewServer(status, reg, cfg)

	go func() {
		if err := srv.Start(); err != nil {
			logging.FromContext(ctx).Warn("status server stopped", "error", err)
		}
	}()

	shutdown := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logging.FromContext(ctx).Warn("status server shutdown", "error", err, "timeout", cfg.ShutdownTimeout.String())
		}
	}
	return []core.ProgressSink{metrics, status}, shutdown
}

// TableName derives the default table from a file path: the base name
// without its extension.
func TableName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
