// Package audit runs one sitemap audit end to end: cache lookup, sitemap
// discovery, paced status collection and persistence of the finished run.
package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"sitemapaudit/internal/checker"
	"sitemapaudit/internal/metrics"
	"sitemapaudit/internal/models"
	"sitemapaudit/internal/sitemap"
	"sitemapaudit/internal/storage"
)

// ErrDiscovery wraps any failure to obtain the URL list for a homepage.
var ErrDiscovery = errors.New("sitemap discovery failed")

// Report is the outcome of one audit.
type Report struct {
	RunID      string
	Homepage   string
	Responses  *models.Responses
	Discovered int
	FromCache  bool
	// Partial is set when the run was interrupted before every URL was probed.
	Partial    bool
	StartedAt  time.Time
	FinishedAt time.Time
}

// Auditor wires discovery, collection and the optional run cache together.
type Auditor struct {
	discoverer  sitemap.Discoverer
	prober      checker.Prober
	pacer       checker.Waiter
	store       storage.RunStore
	cacheTTL    time.Duration
	recorder    *metrics.Recorder
	reporters   []checker.Reporter
	logger      *slog.Logger
	maxURLs     int
	concurrency int
	now         func() time.Time
}

// Option configures an Auditor.
type Option func(*Auditor)

// WithCache lets the Auditor reuse a run of the same homepage younger than
// ttl, and saves every completed run to store. A nil store or a ttl <= 0
// disables reuse; completed runs are still saved when store is set.
func WithCache(store storage.RunStore, ttl time.Duration) Option {
	return func(a *Auditor) {
		a.store = store
		a.cacheTTL = ttl
	}
}

// WithMetrics records discovery size, probe outcomes and completion time.
func WithMetrics(r *metrics.Recorder) Option {
	return func(a *Auditor) { a.recorder = r }
}

// WithReporter adds a progress reporter. Reporters are called in the order
// they were added.
func WithReporter(r checker.Reporter) Option {
	return func(a *Auditor) {
		if r != nil {
			a.reporters = append(a.reporters, r)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Auditor) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithMaxURLs caps the number of probed URLs. Zero means no cap.
func WithMaxURLs(n int) Option {
	return func(a *Auditor) { a.maxURLs = n }
}

// WithConcurrency sets the number of probes allowed in flight.
func WithConcurrency(n int) Option {
	return func(a *Auditor) { a.concurrency = n }
}

// New creates an Auditor.
func New(d sitemap.Discoverer, p checker.Prober, pacer checker.Waiter, opts ...Option) *Auditor {
	a := &Auditor{
		discoverer:  d,
		prober:      p,
		pacer:       pacer,
		logger:      slog.Default(),
		concurrency: 1,
		now:         time.Now,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Run audits homepage. On a discovery failure it returns an empty report and
// an error wrapping ErrDiscovery. If ctx is canceled mid-run, the report holds
// what was collected so far, Partial is set and ctx.Err() is returned.
func (a *Auditor) Run(ctx context.Context, homepage string) (*Report, error) {
	rep := &Report{
		Homepage:  homepage,
		Responses: models.NewResponses(),
		StartedAt: a.now(),
	}

	if run, ok := a.cached(ctx, homepage); ok {
		a.logger.Info("reusing cached run", "run_id", run.ID, "created_at", run.CreatedAt, "urls", run.Responses.Len())
		rep.RunID = run.ID
		rep.Responses = run.Responses
		rep.Discovered = run.Responses.Len()
		rep.FromCache = true
		rep.FinishedAt = a.now()
		return rep, nil
	}

	urls, err := a.discoverer.Discover(ctx, homepage)
	if err != nil {
		rep.FinishedAt = a.now()
		return rep, fmt.Errorf("%w: %w", ErrDiscovery, err)
	}
	rep.Discovered = len(urls)
	a.logger.Info("sitemap discovered", "homepage", homepage, "urls", len(urls))
	if a.recorder != nil {
		a.recorder.SetDiscovered(len(urls))
	}

	collector := checker.New(urls, a.prober, a.pacer,
		checker.WithReporter(a.reporter()),
		checker.WithLogger(a.logger),
		checker.WithMaxURLs(a.maxURLs),
		checker.WithConcurrency(a.concurrency),
	)
	responses, err := collector.Collect(ctx)
	if responses != nil {
		rep.Responses = responses
	}
	rep.FinishedAt = a.now()
	if err != nil {
		rep.Partial = true
		return rep, err
	}

	if a.recorder != nil {
		a.recorder.MarkCompleted(rep.FinishedAt)
	}
	a.save(ctx, rep)
	return rep, nil
}

func (a *Auditor) cached(ctx context.Context, homepage string) (*models.Run, bool) {
	if a.store == nil || a.cacheTTL <= 0 {
		return nil, false
	}
	run, found, err := a.store.LatestRun(ctx, homepage, a.now().Add(-a.cacheTTL))
	if err != nil {
		a.logger.Warn("cache lookup failed", "homepage", homepage, "error", err)
		return nil, false
	}
	return run, found
}

func (a *Auditor) save(ctx context.Context, rep *Report) {
	if a.store == nil {
		return
	}
	run := &models.Run{
		Homepage:  rep.Homepage,
		CreatedAt: rep.FinishedAt,
		Responses: rep.Responses,
	}
	if err := a.store.SaveRun(ctx, run); err != nil {
		a.logger.Warn("failed to save run", "homepage", rep.Homepage, "error", err)
		return
	}
	rep.RunID = run.ID
}

func (a *Auditor) reporter() checker.Reporter {
	reporters := a.reporters
	if a.recorder != nil {
		reporters = append(reporters[:len(reporters):len(reporters)], a.recorder)
	}
	return fanout(reporters)
}

// fanout forwards each event to every reporter in order.
type fanout []checker.Reporter

func (f fanout) Report(ev models.ProgressEvent) {
	for _, r := range f {
		r.Report(ev)
	}
}
