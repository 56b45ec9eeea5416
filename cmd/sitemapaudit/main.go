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
	"strings"
	"syscall"

	"sitemapaudit/internal/audit"
	"sitemapaudit/internal/checker"
	"sitemapaudit/internal/config"
	"sitemapaudit/internal/metrics"
	"sitemapaudit/internal/report"
	"sitemapaudit/internal/sitemap"
	"sitemapaudit/internal/storage"
	"sitemapaudit/internal/storage/postgres"
	"sitemapaudit/internal/storage/sqlite"
	"sitemapaudit/internal/urlutil"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()

	switch {
	case err == nil:
	case errors.Is(err, flag.ErrHelp):
	default:
		fmt.Fprintf(os.Stderr, "sitemapaudit: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	homepage string
	output   string
	view     report.View
	format   report.Format
	quiet    bool
}

func parseFlags(args []string, cfg *config.Config, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("sitemapaudit", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "usage: sitemapaudit [flags] <homepage-url>")
		fs.PrintDefaults()
	}

	var (
		output = fs.String("o", "", "write the report to this file instead of the pager")
		view   = fs.String("view", string(report.ViewGrouped), "grouped, counts, categories or raw")
		format = fs.String("format", string(report.FormatJSON), "json or yaml")
		quiet  = fs.Bool("quiet", false, "suppress per-URL progress and the summary table")
	)
	fs.IntVar(&cfg.MaxURLs, "max-urls", cfg.MaxURLs, "probe at most this many URLs (0 = all)")
	fs.IntVar(&cfg.Concurrency, "concurrency", cfg.Concurrency, "probes in flight")
	fs.DurationVar(&cfg.PaceInterval, "pace", cfg.PaceInterval, "pause after each probe before the next starts")
	fs.DurationVar(&cfg.HTTPTimeout, "timeout", cfg.HTTPTimeout, "per-request timeout")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return nil, errors.New("expected exactly one homepage url")
	}

	opts := &options{homepage: fs.Arg(0), output: *output, quiet: *quiet}

	formatSet := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "format" {
			formatSet = true
		}
	})
	if !formatSet && urlutil.HasExtension(opts.output, ".yaml", ".yml") {
		*format = string(report.FormatYAML)
	}

	var err error
	if opts.view, err = report.ParseView(*view); err != nil {
		return nil, err
	}
	if opts.format, err = report.ParseFormat(*format); err != nil {
		return nil, err
	}
	return opts, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	// Load application configuration from .env and environment variables.
	cfg := config.Load()

	opts, err := parseFlags(args, cfg, stderr)
	if err != nil {
		return err
	}

	logger := newLogger(stderr, cfg)
	slog.SetDefault(logger)

	if err := urlutil.ValidateHomepage(opts.homepage); err != nil {
		return err
	}
	if opts.output != "" {
		if err := report.ValidateFilename(opts.output, opts.format); err != nil {
			return err
		}
	}

	if cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.RunTimeout)
		defer cancel()
	}

	auditOpts := []audit.Option{
		audit.WithLogger(logger),
		audit.WithMaxURLs(cfg.MaxURLs),
		audit.WithConcurrency(cfg.Concurrency),
	}
	if !opts.quiet {
		auditOpts = append(auditOpts, audit.WithReporter(report.NewConsoleReporter(logger)))
	}

	var recorder *metrics.Recorder
	if cfg.MetricsTextfile != "" {
		recorder = metrics.New(opts.homepage)
		auditOpts = append(auditOpts, audit.WithMetrics(recorder))
	}

	if cfg.CacheDriver != "" {
		store, err := openStore(ctx, cfg)
		switch {
		case errors.Is(err, storage.ErrUnknownDriver):
			return err
		case err != nil:
			logger.Warn("cache unavailable, probing live", "driver", cfg.CacheDriver, "error", err)
		default:
			defer store.Close()
			logger.Debug("cache opened", "driver", cfg.CacheDriver, "reuse", cfg.CacheEnabled(), "ttl", cfg.CacheTTL)
			auditOpts = append(auditOpts, audit.WithCache(store, cfg.CacheTTL))
		}
	}

	auditor := audit.New(
		sitemap.New(sitemap.Config{
			Timeout:       cfg.HTTPTimeout,
			FetchInterval: cfg.PaceInterval,
			UserAgent:     cfg.UserAgent,
			Logger:        logger,
		}),
		checker.NewHTTPProber(cfg.HTTPTimeout, cfg.UserAgent),
		checker.NewPacer(cfg.PaceInterval),
		auditOpts...,
	)

	rep, runErr := auditor.Run(ctx, opts.homepage)
	if rep.Partial {
		logger.Warn("run interrupted, reporting collected urls", "collected", rep.Responses.Len(), "discovered", rep.Discovered)
	}

	// Whatever was collected is still written, even after a failure.
	if err := emit(ctx, cfg, opts, rep, stdout, stderr); err != nil {
		return errors.Join(runErr, err)
	}
	if !opts.quiet {
		report.SummaryTable(stderr, rep.Responses)
	}
	if recorder != nil {
		if err := recorder.WriteTextfile(cfg.MetricsTextfile); err != nil {
			logger.Warn("failed to write metrics textfile", "path", cfg.MetricsTextfile, "error", err)
		}
	}

	if runErr != nil {
		return fmt.Errorf("audit %s: %w", opts.homepage, runErr)
	}
	return nil
}

func emit(ctx context.Context, cfg *config.Config, opts *options, rep *audit.Report, stdout, stderr io.Writer) error {
	data, err := report.Build(opts.view, rep.Responses)
	if err != nil {
		return err
	}

	if opts.output != "" {
		if err := report.WriteFile(opts.output, opts.format, data); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Urls and status codes are saved to: %s.\n", opts.output)
		return nil
	}

	rendered, err := report.Render(opts.format, data)
	if err != nil {
		return err
	}
	pager := &report.Pager{Command: cfg.Pager, Out: stdout, Err: stderr}
	return pager.Page(context.WithoutCancel(ctx), rendered)
}

func openStore(ctx context.Context, cfg *config.Config) (storage.RunStore, error) {
	switch cfg.CacheDriver {
	case storage.DriverSQLite:
		return sqlite.New(ctx, cfg.CacheURL)
	case storage.DriverPostgres:
		return postgres.New(ctx, cfg.CacheURL)
	}
	return nil, fmt.Errorf("%w: %q", storage.ErrUnknownDriver, cfg.CacheDriver)
}

func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if strings.EqualFold(cfg.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}
