// Package sitemap discovers the page URLs a site lists in its sitemaps.
//
// Sitemaps are located through robots.txt "Sitemap:" lines, a
// <link rel="sitemap"> element on the homepage and the well-known
// /sitemap.xml and /sitemap_index.xml paths. Sitemap indexes are followed
// recursively. XML, gzip-compressed XML and plain-text sitemaps are supported.
package sitemap

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"sitemapaudit/internal/urlutil"
)

// ErrNoSitemap is returned when none of the candidate locations held a
// readable sitemap.
var ErrNoSitemap = errors.New("no sitemap found")

// Discoverer returns the page URLs listed in a site's sitemaps.
type Discoverer interface {
	Discover(ctx context.Context, homepage string) ([]string, error)
}

// wellKnownPaths are tried after the sitemaps declared by the site itself.
var wellKnownPaths = []string{"/sitemap.xml", "/sitemap_index.xml"}

// Config configures the discovery client.
type Config struct {
	Timeout       time.Duration // per request. Default: 30s.
	MaxBytes      int64         // max decoded sitemap size. Default: 50MB.
	MaxDepth      int           // max sitemap index nesting. Default: 5.
	Concurrency   int           // child sitemaps fetched in parallel. Default: 4.
	FetchInterval time.Duration // spacing of requests after a burst of Concurrency. Zero: unthrottled.
	UserAgent     string
	Logger        *slog.Logger
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 50 * 1024 * 1024
	}
	if c.MaxDepth <= 0 {
		c.MaxDepth = 5
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Client discovers sitemap URLs over HTTP.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	config     Config
}

// New creates a Client.
func New(cfg Config) *Client {
	cfg.defaults()
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects (%d)", len(via))
				}
				return nil
			},
		},
		limiter: newLimiter(cfg),
		config:  cfg,
	}
}

func newLimiter(cfg Config) *rate.Limiter {
	if cfg.FetchInterval <= 0 {
		return rate.NewLimiter(rate.Inf, cfg.Concurrency)
	}
	return rate.NewLimiter(rate.Every(cfg.FetchInterval), cfg.Concurrency)
}

// throttle blocks until the limiter admits one more request. Unlike
// rate.Limiter.Wait it keeps waiting up to a context deadline and then
// returns ctx.Err().
func (c *Client) throttle(ctx context.Context) error {
	r := c.limiter.Reserve()
	delay := r.Delay()
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// walkState is shared by every sitemap fetched during one Discover call.
type walkState struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// visit marks a sitemap as fetched and reports whether it was new.
func (s *walkState) visit(sitemapURL string) bool {
	key, err := urlutil.Canonicalize(sitemapURL)
	if err != nil {
		key = sitemapURL
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[key]; ok {
		return false
	}
	s.seen[key] = struct{}{}
	return true
}

// Discover returns the page URLs of every sitemap found for homepage, in
// sitemap order, without duplicates.
func (c *Client) Discover(ctx context.Context, homepage string) ([]string, error) {
	base, err := url.Parse(homepage)
	if err != nil || !base.IsAbs() {
		return nil, fmt.Errorf("invalid homepage url %q", homepage)
	}

	state := &walkState{seen: make(map[string]struct{})}
	var (
		pages []string
		found bool
	)
	for _, candidate := range c.candidates(ctx, base) {
		if !state.visit(candidate) {
			continue
		}
		urls, err := c.walk(ctx, state, candidate, 0)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.config.Logger.Debug("sitemap candidate skipped", "url", candidate, "error", err)
			continue
		}
		found = true
		pages = append(pages, urls...)
	}

	if !found {
		return nil, fmt.Errorf("%s: %w", homepage, ErrNoSitemap)
	}
	return dedupe(pages), nil
}

// candidates lists sitemap locations for base in priority order.
func (c *Client) candidates(ctx context.Context, base *url.URL) []string {
	var out []string
	out = append(out, c.fromRobots(ctx, base)...)
	out = append(out, c.fromHomepage(ctx, base)...)
	for _, p := range wellKnownPaths {
		out = append(out, base.ResolveReference(&url.URL{Path: p}).String())
	}
	return out
}

func (c *Client) fromRobots(ctx context.Context, base *url.URL) []string {
	body, err := c.fetch(ctx, base.ResolveReference(&url.URL{Path: "/robots.txt"}).String())
	if err != nil {
		c.config.Logger.Debug("robots.txt unavailable", "error", err)
		return nil
	}
	return parseRobots(body, base)
}

// parseRobots extracts "Sitemap:" directives from a robots.txt body.
func parseRobots(body []byte, base *url.URL) []string {
	var out []string
	scanner := bufio.NewScanner(bytes.NewReader(body))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		key, value, ok := strings.Cut(line, ":")
		if !ok || !strings.EqualFold(strings.TrimSpace(key), "sitemap") {
			continue
		}
		if ref := resolve(base, value); ref != "" {
			out = append(out, ref)
		}
	}
	return out
}

func (c *Client) fromHomepage(ctx context.Context, base *url.URL) []string {
	body, err := c.fetch(ctx, base.String())
	if err != nil {
		c.config.Logger.Debug("homepage unavailable", "error", err)
		return nil
	}
	return extractSitemapLinks(bytes.NewReader(body), base)
}

// walk fetches one sitemap and returns its page URLs, following indexes.
func (c *Client) walk(ctx context.Context, state *walkState, sitemapURL string, depth int) ([]string, error) {
	body, err := c.fetch(ctx, sitemapURL)
	if err != nil {
		return nil, err
	}
	doc, err := parse(body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", sitemapURL, err)
	}
	if len(doc.sitemaps) == 0 {
		return doc.pages, nil
	}
	if depth >= c.config.MaxDepth {
		c.config.Logger.Warn("sitemap index too deep", "url", sitemapURL, "depth", depth)
		return doc.pages, nil
	}

	children := make([][]string, len(doc.sitemaps))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.config.Concurrency)
	for i, child := range doc.sitemaps {
		if !state.visit(child) {
			continue
		}
		g.Go(func() error {
			urls, err := c.walk(gctx, state, child, depth+1)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				c.config.Logger.Warn("child sitemap skipped", "url", child, "error", err)
				return nil
			}
			children[i] = urls
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	pages := doc.pages
	for _, urls := range children {
		pages = append(pages, urls...)
	}
	return pages, nil
}

// fetch GETs rawURL and returns its body, decompressing gzip payloads.
func (c *Client) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if err := c.throttle(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("http %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if isGzip(body) {
		zr, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer zr.Close()
		body, err = io.ReadAll(io.LimitReader(zr, c.config.MaxBytes))
		if err != nil {
			return nil, fmt.Errorf("gunzip: %w", err)
		}
	}
	return body, nil
}

func isGzip(b []byte) bool {
	return len(b) >= 2 && b[0] == 0x1f && b[1] == 0x8b
}

// document is a parsed sitemap: either a list of pages or a list of child
// sitemaps.
type document struct {
	pages    []string
	sitemaps []string
}

type urlSet struct {
	XMLName xml.Name `xml:"urlset"`
	URLs    []struct {
		Loc string `xml:"loc"`
	} `xml:"url"`
}

type sitemapIndex struct {
	XMLName  xml.Name `xml:"sitemapindex"`
	Sitemaps []struct {
		Loc string `xml:"loc"`
	} `xml:"sitemap"`
}

// parse auto-detects an XML urlset, an XML sitemap index or a plain-text
// sitemap (one URL per line).
func parse(data []byte) (*document, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.New("empty sitemap")
	}

	switch rootElement(trimmed) {
	case "urlset":
		var set urlSet
		if err := xml.Unmarshal(trimmed, &set); err != nil {
			return nil, fmt.Errorf("urlset: %w", err)
		}
		doc := &document{}
		for _, u := range set.URLs {
			if loc := strings.TrimSpace(u.Loc); loc != "" {
				doc.pages = append(doc.pages, loc)
			}
		}
		return doc, nil
	case "sitemapindex":
		var idx sitemapIndex
		if err := xml.Unmarshal(trimmed, &idx); err != nil {
			return nil, fmt.Errorf("sitemapindex: %w", err)
		}
		doc := &document{}
		for _, s := range idx.Sitemaps {
			if loc := strings.TrimSpace(s.Loc); loc != "" {
				doc.sitemaps = append(doc.sitemaps, loc)
			}
		}
		return doc, nil
	case "":
		return parseText(trimmed)
	default:
		return nil, errors.New("unknown sitemap format")
	}
}

func rootElement(data []byte) string {
	if data[0] != '<' {
		return ""
	}
	d := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := d.Token()
		if err != nil {
			return "?"
		}
		if se, ok := tok.(xml.StartElement); ok {
			return strings.ToLower(se.Name.Local)
		}
	}
}

func parseText(data []byte) (*document, error) {
	doc := &document{}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "http://") || strings.HasPrefix(line, "https://") {
			doc.pages = append(doc.pages, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(doc.pages) == 0 {
		return nil, errors.New("no urls in text sitemap")
	}
	return doc, nil
}

func resolve(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return base.ResolveReference(u).String()
}

func dedupe(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
