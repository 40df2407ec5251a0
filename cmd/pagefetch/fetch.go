package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/pagefetch/internal/config"
	"github.com/nao1215/pagefetch/internal/database"
	"github.com/nao1215/pagefetch/internal/fetch"
	"github.com/nao1215/pagefetch/internal/log"
	"github.com/nao1215/pagefetch/internal/metrics"
	"github.com/nao1215/pagefetch/internal/model"
	"github.com/nao1215/pagefetch/internal/output"
	"github.com/nao1215/pagefetch/internal/proxypool"
	"github.com/nao1215/pagefetch/internal/report"
)

// shutdownTimeout bounds the metrics server shutdown after a run.
const shutdownTimeout = 5 * time.Second

// ErrInterrupted is returned when a run is stopped by a signal before
// every URL has an outcome.
var ErrInterrupted = errors.New("downloads interrupted")

// NewFetchCmd creates the fetch command.
func NewFetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download the front page of every site in a list",
		Long: `Fetch downloads the front page of every site in the URL list.

Each request is sent through a proxy leased from the proxy list. A proxy
serves one request at a time, so the number of proxies bounds how many
downloads run at once. Successful pages are written to
<dest>/<host>/<name>.html and <dest>/<host>/<name>.txt, where <name> is
the URL without its scheme and with every "/" replaced by ".". Failures
are written to the failure log as "<url> <reason>. Proxy: <proxy>", with
":<status>" after the reason for HTTP status failures. The failure log
is truncated when the run starts.

Options are read from the .pagefetch file, then from PAGEFETCH_*
environment variables (a .env file in the current directory is loaded
first), then from flags. Later sources win.

Examples:
  # Fetch with the default file names
  pagefetch fetch

  # Fetch a list through a SOCKS5 proxy list, 20 connections at most
  pagefetch fetch -f sites.csv -p socks.txt -s 20

  # Write a Markdown summary and expose Prometheus metrics
  pagefetch fetch --report report.md --metrics-addr 127.0.0.1:9090`,
		Args: cobra.NoArgs,
		RunE: runFetchCmd,
	}

	// Input and output
	cmd.Flags().StringP("file", "f", config.DefaultURLFile,
		"';'-delimited site list, first field is the site")
	cmd.Flags().StringP("proxy", "p", config.DefaultProxyFile,
		"Proxy list, one address per line")
	cmd.Flags().StringP("dest", "d", config.DefaultDest,
		"Folder for saved pages")
	cmd.Flags().String("bad-urls", config.DefaultBadURLsFile,
		"Failure log, truncated at the start of every run")
	cmd.Flags().String("log-file", config.DefaultLogFile,
		"Rotating debug log (empty disables it)")

	// Request behavior
	cmd.Flags().IntP("poolsize", "s", config.DefaultPoolSize,
		"Connection ceiling (0 for no ceiling)")
	cmd.Flags().IntP("timeout", "t", int(config.DefaultTimeout/time.Second),
		"Per-read socket timeout in seconds")
	cmd.Flags().Duration("connect-timeout", config.DefaultConnectTimeout,
		"Proxy dial timeout (0 for no limit)")
	cmd.Flags().String("user-agent", config.DefaultUserAgent,
		"User-Agent header sent with every request")
	cmd.Flags().Int64("max-body-size", config.DefaultMaxBodySize,
		"Maximum body bytes read per page")
	cmd.Flags().Int("max-redirects", config.DefaultMaxRedirects,
		"Maximum redirects followed per request")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .pagefetch in current or home directory)")

	// Run summary and observability
	cmd.Flags().String("report", "",
		"Write a run report (.json for JSON, otherwise Markdown)")
	cmd.Flags().String("metrics-addr", "",
		"Serve Prometheus metrics on this address during the run")
	cmd.Flags().String("db-dir", "",
		"Run history directory (default: XDG data directory)")
	cmd.Flags().Bool("no-db", false,
		"Do not record the run in the history database")
	cmd.Flags().Bool("no-progress", false,
		"Do not draw a progress bar")

	return cmd
}

// runFetchCmd executes the fetch command.
func runFetchCmd(cmd *cobra.Command, _ []string) error {
	if err := config.LoadDotEnv(config.DefaultEnvFile); err != nil {
		return err
	}

	cfg, err := buildConfig(cmd, os.LookupEnv)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger, closer := log.Setup(log.Options{
		Console: cmd.ErrOrStderr(),
		Verbose: cfg.Verbose,
		File:    cfg.LogFile,
	})
	defer closer.Close()
	slog.SetDefault(logger)

	// On interrupt no new proxy is leased and in-flight requests are
	// aborted; each aborted URL is reported as an unhandled exception.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runFetch(ctx, cfg, logger, cmd.OutOrStdout(), cmd.ErrOrStderr())
}

// buildConfig merges defaults, the config file, the environment and the
// flags the user set, in that order.
func buildConfig(cmd *cobra.Command, lookup config.LookupFunc) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()

	var err error
	cfg.ConfigFilePath, err = flags.GetString("config")
	if err != nil {
		return nil, err
	}

	// If user explicitly specified a config file path, error if not found.
	// If no path specified, silently use defaults if no file found.
	explicitConfigPath := cfg.ConfigFilePath != ""
	configPath := config.FindConfigFile(cfg.ConfigFilePath)

	if configPath != "" {
		file, err := config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
		file.Apply(cfg)
	} else if explicitConfigPath {
		return nil, fmt.Errorf("configuration file not found: %s", cfg.ConfigFilePath)
	}

	if err := config.ApplyEnv(cfg, lookup); err != nil {
		return nil, err
	}

	if err := applyFlags(cmd, cfg); err != nil {
		return nil, err
	}

	cfg.Verbose = getVerboseFlag(cmd)
	return cfg, nil
}

// applyFlags copies the flags the user set into cfg. Flags left at their
// default do not override the config file or the environment.
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()

	strs := map[string]*string{
		"file":         &cfg.URLFile,
		"proxy":        &cfg.ProxyFile,
		"dest":         &cfg.Dest,
		"bad-urls":     &cfg.BadURLsFile,
		"log-file":     &cfg.LogFile,
		"user-agent":   &cfg.UserAgent,
		"report":       &cfg.ReportFile,
		"metrics-addr": &cfg.MetricsAddr,
		"db-dir":       &cfg.DBDir,
	}
	for name, dst := range strs {
		if !flags.Changed(name) {
			continue
		}
		v, err := flags.GetString(name)
		if err != nil {
			return err
		}
		*dst = v
	}

	ints := map[string]*int{
		"poolsize":      &cfg.PoolSize,
		"max-redirects": &cfg.MaxRedirects,
	}
	for name, dst := range ints {
		if !flags.Changed(name) {
			continue
		}
		v, err := flags.GetInt(name)
		if err != nil {
			return err
		}
		*dst = v
	}

	if flags.Changed("timeout") {
		seconds, err := flags.GetInt("timeout")
		if err != nil {
			return err
		}
		cfg.Timeout = time.Duration(seconds) * time.Second
	}

	if flags.Changed("connect-timeout") {
		d, err := flags.GetDuration("connect-timeout")
		if err != nil {
			return err
		}
		cfg.ConnectTimeout = d
	}

	if flags.Changed("max-body-size") {
		n, err := flags.GetInt64("max-body-size")
		if err != nil {
			return err
		}
		cfg.MaxBodySize = n
	}

	if flags.Changed("no-db") {
		noDB, err := flags.GetBool("no-db")
		if err != nil {
			return err
		}
		cfg.SaveToDB = !noDB
	}

	if flags.Changed("no-progress") {
		noProgress, err := flags.GetBool("no-progress")
		if err != nil {
			return err
		}
		cfg.ShowProgress = !noProgress
	}

	return nil
}

// runFetch downloads every URL of cfg.URLFile and prints the run summary
// to stdout. It returns an error wrapping ErrInterrupted if ctx ends
// before the run completes.
func runFetch(ctx context.Context, cfg *config.Config, logger *slog.Logger, stdout, stderr io.Writer) error {
	// Truncate first so a stale log never outlives a run that fails on
	// its inputs.
	failureLog, err := output.CreateFailureLog(cfg.BadURLsFile)
	if err != nil {
		return err
	}
	defer failureLog.Close()

	urls, err := config.LoadURLs(cfg.URLFile)
	if err != nil {
		return err
	}
	proxies, err := config.LoadProxies(cfg.ProxyFile)
	if err != nil {
		return err
	}

	pool, err := proxypool.New(proxies)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.Dest, 0750); err != nil {
		return fmt.Errorf("failed to create destination folder: %w", err)
	}

	logger.Info("starting run",
		"urls", len(urls),
		"proxies", pool.Size(),
		"poolsize", cfg.PoolSize,
		"dest", cfg.Dest,
	)

	client := fetch.NewClient(
		fetch.WithReadTimeout(cfg.Timeout),
		fetch.WithConnectTimeout(cfg.ConnectTimeout),
		fetch.WithUserAgent(cfg.UserAgent),
		fetch.WithMaxBodySize(cfg.MaxBodySize),
		fetch.WithMaxRedirects(cfg.MaxRedirects),
	)
	worker := fetch.NewWorker(
		client,
		pool,
		output.NewPageWriter(cfg.Dest, output.WithWriterLogger(logger)),
		output.NewFailureReporter(failureLog, logger),
		fetch.WithWorkerLogger(logger),
	)

	opts := []fetch.OrchestratorOption{
		fetch.WithConcurrency(cfg.PoolSize),
		fetch.WithLogger(logger),
	}

	if cfg.ShowProgress {
		opts = append(opts, fetch.WithProgress(fetch.NewProgress(stderr)))
	}

	if cfg.MetricsAddr != "" {
		m := metrics.New(pool)
		m.SetURLs(len(urls))
		srv, err := m.Listen(cfg.MetricsAddr, logger)
		if err != nil {
			return err
		}
		defer shutdownMetrics(srv, logger)
		opts = append(opts, fetch.WithOutcomeHandler(m.Observe))
	}

	var history *runHistory
	if cfg.SaveToDB {
		history = openHistory(ctx, cfg, len(urls), pool.Size(), logger)
		if history != nil {
			defer history.close()
			opts = append(opts, fetch.WithOutcomeHandler(history.recorder.Record))
		} else {
			fmt.Fprintln(stderr, "Warning: run history is disabled for this run (see the log for details)")
		}
	}

	summary, runErr := fetch.NewOrchestrator(worker, opts...).Run(ctx, urls)

	run := &report.Run{
		Version:     getVersion(),
		URLFile:     cfg.URLFile,
		ProxyFile:   cfg.ProxyFile,
		Dest:        cfg.Dest,
		Interrupted: runErr != nil,
		Summary:     summary,
	}
	if history != nil {
		run.ID = history.finish(ctx, summary)
	}

	if _, err := report.NewSimpleWriter(stdout, report.WithVerbose(cfg.Verbose)).Write(run); err != nil {
		logger.Error("failed to write summary", "error", err)
	}

	if cfg.ReportFile != "" {
		if err := writeReportFile(cfg.ReportFile, run); err != nil {
			logger.Error("failed to write report", "path", cfg.ReportFile, "error", err)
			fmt.Fprintf(stderr, "Report error: %v\n", err)
		}
	}

	if runErr != nil {
		return fmt.Errorf("%w after %d of %d URLs: %w", ErrInterrupted, summary.Total(), len(urls), runErr)
	}
	return nil
}

// shutdownMetrics stops the metrics server.
func shutdownMetrics(srv *metrics.Server, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("failed to stop metrics server", "error", err)
	}
}

// runHistory ties a run to its row in the history database.
type runHistory struct {
	db       *database.HistoryDB
	recorder *database.Recorder
	logger   *slog.Logger
}

// openHistory opens the history database and starts a run. A storage
// problem never stops the downloads; it is logged and nil is returned.
func openHistory(ctx context.Context, cfg *config.Config, urlCount, proxyCount int, logger *slog.Logger) *runHistory {
	db, err := database.Open(cfg.DBDir, database.DefaultOptions())
	if err != nil {
		logger.Warn("failed to open history database", "dir", cfg.DBDir, "error", err)
		return nil
	}

	runID, err := db.BeginRun(ctx, database.RunInfo{
		StartedAt:  time.Now(),
		URLFile:    cfg.URLFile,
		ProxyFile:  cfg.ProxyFile,
		URLCount:   urlCount,
		ProxyCount: proxyCount,
	})
	if err != nil {
		logger.Warn("failed to start run history", "error", err)
		_ = db.Close() //nolint:errcheck // already failing
		return nil
	}

	logger.Info("recording run history", "run", runID, "db", db.Path())
	return &runHistory{
		db:       db,
		recorder: database.NewRecorder(ctx, db, runID, logger),
		logger:   logger,
	}
}

// finish stores the totals of summary and returns the run ID. The run
// is closed even if ctx was cancelled.
func (h *runHistory) finish(ctx context.Context, summary *model.RunSummary) int64 {
	runID := h.recorder.RunID()
	if n, err := h.recorder.Err(); err != nil {
		h.logger.Warn("some outcomes were not recorded", "run", runID, "count", n, "error", err)
	}
	if err := h.db.FinishRun(context.WithoutCancel(ctx), runID, summary); err != nil {
		h.logger.Warn("failed to finish run history", "run", runID, "error", err)
	}
	return runID
}

func (h *runHistory) close() {
	if err := h.db.Close(); err != nil {
		h.logger.Warn("failed to close history database", "error", err)
	}
}

// writeReportFile writes the run report to path, choosing the format
// from its extension.
func writeReportFile(path string, run *report.Run) error {
	// Create directories if they don't exist
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	// The report lists proxy addresses, so only the owner may read it.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) //nolint:gosec // User-provided report path is intentional
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer f.Close()

	if _, err := report.ForPath(path, f).Write(run); err != nil {
		return err
	}
	return f.Close()
}
