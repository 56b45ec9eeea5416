package checker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"sitemapaudit/internal/grouping"
	"sitemapaudit/internal/models"
)

// Waiter blocks between two probes. It is not called before the first probe.
// *Pacer implements it.
type Waiter interface {
	Wait(ctx context.Context) error
}

// WaiterFunc adapts a function to the Waiter interface.
type WaiterFunc func(ctx context.Context) error

// Wait calls f(ctx).
func (f WaiterFunc) Wait(ctx context.Context) error { return f(ctx) }

// Reporter receives one progress event per probed URL, in input order.
type Reporter interface {
	Report(ev models.ProgressEvent)
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(ev models.ProgressEvent)

// Report calls f(ev).
func (f ReporterFunc) Report(ev models.ProgressEvent) { f(ev) }

type nopReporter struct{}

func (nopReporter) Report(models.ProgressEvent) {}

// Collector probes an ordered list of URLs and accumulates their status codes.
type Collector struct {
	urls        []string
	prober      Prober
	pacer       Waiter
	reporter    Reporter
	logger      *slog.Logger
	maxURLs     int
	concurrency int
}

// Option configures a Collector.
type Option func(*Collector)

// WithReporter sets the progress reporter.
func WithReporter(r Reporter) Option {
	return func(c *Collector) {
		if r != nil {
			c.reporter = r
		}
	}
}

// WithLogger sets the logger used for per-URL failures.
func WithLogger(l *slog.Logger) Option {
	return func(c *Collector) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMaxURLs limits a run to the first n URLs. Zero means no limit.
func WithMaxURLs(n int) Option {
	return func(c *Collector) { c.maxURLs = n }
}

// WithConcurrency allows up to n probes in flight. Every probe still goes
// through the pacer before it starts, so the request rate is unchanged.
func WithConcurrency(n int) Option {
	return func(c *Collector) { c.concurrency = n }
}

// New creates a Collector for urls. Duplicates are allowed; the last probe of
// a URL wins.
func New(urls []string, prober Prober, pacer Waiter, opts ...Option) *Collector {
	c := &Collector{
		urls:        urls,
		prober:      prober,
		pacer:       pacer,
		reporter:    nopReporter{},
		logger:      slog.Default(),
		concurrency: 1,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Collect probes every URL and returns the URL -> status mapping. Each call
// starts from an empty mapping and probes again.
//
// If ctx is canceled the mapping collected so far is returned together with
// the context error. A probe cut short by the cancellation is not recorded.
func (c *Collector) Collect(ctx context.Context) (*models.Responses, error) {
	urls := c.targets()
	if c.concurrency > 1 && len(urls) > 1 {
		return c.collectConcurrent(ctx, urls)
	}
	return c.collectSequential(ctx, urls)
}

func (c *Collector) targets() []string {
	if c.maxURLs > 0 && len(c.urls) > c.maxURLs {
		c.logger.Info("limiting run", "max_urls", c.maxURLs, "discovered", len(c.urls))
		return c.urls[:c.maxURLs]
	}
	return c.urls
}

func (c *Collector) collectSequential(ctx context.Context, urls []string) (*models.Responses, error) {
	responses := models.NewResponses()
	total := len(urls)

	for i, url := range urls {
		if i > 0 {
			if err := c.pacer.Wait(ctx); err != nil {
				return responses, interrupted(ctx, err)
			}
		}

		start := time.Now()
		status, err := c.prober.Probe(ctx, url)
		recorded := c.record(ctx, responses, outcome{
			index:   i + 1,
			total:   total,
			url:     url,
			status:  status,
			err:     err,
			latency: time.Since(start),
		})

		if !recorded || ctx.Err() != nil {
			return responses, ctx.Err()
		}
	}
	return responses, nil
}

type outcome struct {
	index   int
	total   int
	url     string
	status  int
	err     error
	latency time.Duration
}

// collectConcurrent dispatches probes in input order through the pacer and
// records them in input order. Launched probes always form a prefix of urls,
// so the recorded mapping never has gaps.
func (c *Collector) collectConcurrent(ctx context.Context, urls []string) (*models.Responses, error) {
	total := len(urls)
	outcomes := make([]outcome, total)
	done := make([]chan struct{}, total)
	for i := range done {
		done[i] = make(chan struct{})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	finished := make(chan struct{})
	var dispatchErr error
	go func() {
		defer close(finished)
		for i, url := range urls {
			if i > 0 {
				if err := c.pacer.Wait(gctx); err != nil {
					dispatchErr = err
					break
				}
			}
			g.Go(func() error {
				defer close(done[i])
				start := time.Now()
				status, err := c.prober.Probe(gctx, url)
				outcomes[i] = outcome{
					index:   i + 1,
					total:   total,
					url:     url,
					status:  status,
					err:     err,
					latency: time.Since(start),
				}
				return nil
			})
		}
		_ = g.Wait()
	}()

	responses := models.NewResponses()
	for i := range urls {
		stopped := false
		select {
		case <-done[i]:
			if c.record(ctx, responses, outcomes[i]) {
				continue
			}
			stopped = true
		case <-ctx.Done():
		case <-finished:
		}

		// Dispatch stopped early. Wait for in-flight probes, then record the
		// finished prefix up to the first interrupted probe.
		<-finished
		for j := i; !stopped && j < total && isClosed(done[j]); j++ {
			stopped = !c.record(ctx, responses, outcomes[j])
		}
		if dispatchErr != nil {
			return responses, interrupted(ctx, dispatchErr)
		}
		return responses, ctx.Err()
	}

	<-finished
	if err := ctx.Err(); err != nil {
		return responses, err
	}
	return responses, nil
}

// record stores o and reports it. A probe cut short because ctx ended is
// left out of the mapping and record returns false.
func (c *Collector) record(ctx context.Context, responses *models.Responses, o outcome) bool {
	status := o.status
	if o.err != nil {
		if ctx.Err() != nil && (errors.Is(o.err, context.Canceled) || errors.Is(o.err, context.DeadlineExceeded)) {
			c.logger.Info("probe interrupted", "url", o.url, "index", o.index, "total", o.total)
			return false
		}
		c.logger.Warn("probe failed", "url", o.url, "error", o.err)
		status = models.StatusUnreachable
	}
	responses.Set(o.url, status)
	c.reporter.Report(models.ProgressEvent{
		Index:     o.index,
		Total:     o.total,
		URL:       o.url,
		Status:    status,
		IsSuccess: grouping.IsSuccess(status),
		Err:       o.err,
		Latency:   o.latency,
	})
	return true
}

func isClosed(ch chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func interrupted(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("pace: %w", err)
}
