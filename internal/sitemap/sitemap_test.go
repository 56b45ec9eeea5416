package sitemap

import (
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func urlsetXML(locs ...string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">`)
	for _, l := range locs {
		b.WriteString("<url><loc>" + l + "</loc></url>")
	}
	b.WriteString("</urlset>")
	return b.String()
}

func indexXML(locs ...string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">`)
	for _, l := range locs {
		b.WriteString("<sitemap><loc>" + l + "</loc></sitemap>")
	}
	b.WriteString("</sitemapindex>")
	return b.String()
}

func gzipped(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func newClient() *Client {
	return New(Config{Timeout: 2 * time.Second})
}

func TestDiscoverFromRobotsWithIndex(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/robots.txt":
			w.Write([]byte("User-agent: *\nDisallow:\nSitemap: " + srv.URL + "/index.xml\n"))
		case "/index.xml":
			w.Write([]byte(indexXML(srv.URL+"/pages.xml", srv.URL+"/posts.xml.gz")))
		case "/pages.xml":
			w.Write([]byte(urlsetXML(srv.URL+"/", srv.URL+"/about")))
		case "/posts.xml.gz":
			w.Write(gzipped(t, urlsetXML(srv.URL+"/post/1", srv.URL+"/about")))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	urls, err := newClient().Discover(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, []string{srv.URL + "/", srv.URL + "/about", srv.URL + "/post/1"}, urls)
}

func TestDiscoverWellKnownPath(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/sitemap.xml" {
			w.Write([]byte(urlsetXML(srv.URL+"/a", srv.URL+"/b")))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	urls, err := newClient().Discover(context.Background(), srv.URL+"/")
	require.NoError(t, err)
	assert.Equal(t, []string{srv.URL + "/a", srv.URL + "/b"}, urls)
}

func TestDiscoverHomepageLinkAndTextSitemap(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			w.Write([]byte(`<html><head><link rel="sitemap" type="text/plain" href="/urls.txt"></head><body></body></html>`))
		case "/urls.txt":
			w.Write([]byte(srv.URL + "/x\n\n" + srv.URL + "/y\n"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	urls, err := newClient().Discover(context.Background(), srv.URL+"/")
	require.NoError(t, err)
	assert.Equal(t, []string{srv.URL + "/x", srv.URL + "/y"}, urls)
}

func TestDiscoverIndexCycle(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sitemap.xml":
			w.Write([]byte(indexXML(srv.URL+"/sitemap_index.xml", srv.URL+"/leaf.xml")))
		case "/sitemap_index.xml":
			w.Write([]byte(indexXML(srv.URL + "/sitemap.xml")))
		case "/leaf.xml":
			w.Write([]byte(urlsetXML(srv.URL + "/leaf")))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	urls, err := newClient().Discover(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, []string{srv.URL + "/leaf"}, urls)
}

func TestDiscoverNoSitemap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/sitemap.xml" {
			// Soft 404 served as HTML.
			w.Write([]byte("<html><body>not here</body></html>"))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := newClient().Discover(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrNoSitemap)
}

func TestDiscoverInvalidHomepage(t *testing.T) {
	_, err := newClient().Discover(context.Background(), "not a url")
	assert.Error(t, err)
}

func TestParse(t *testing.T) {
	t.Run("urlset", func(t *testing.T) {
		doc, err := parse([]byte(urlsetXML("https://a.test/1", " https://a.test/2 ")))
		require.NoError(t, err)
		assert.Equal(t, []string{"https://a.test/1", "https://a.test/2"}, doc.pages)
		assert.Empty(t, doc.sitemaps)
	})

	t.Run("index", func(t *testing.T) {
		doc, err := parse([]byte(indexXML("https://a.test/s1.xml")))
		require.NoError(t, err)
		assert.Equal(t, []string{"https://a.test/s1.xml"}, doc.sitemaps)
	})

	t.Run("text", func(t *testing.T) {
		doc, err := parse([]byte("https://a.test/1\nftp://ignored\nhttps://a.test/2"))
		require.NoError(t, err)
		assert.Equal(t, []string{"https://a.test/1", "https://a.test/2"}, doc.pages)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := parse([]byte("  \n"))
		assert.Error(t, err)
	})

	t.Run("unknown xml root", func(t *testing.T) {
		_, err := parse([]byte("<rss><channel></channel></rss>"))
		assert.Error(t, err)
	})
}

func TestParseRobots(t *testing.T) {
	base, _ := url.Parse("https://a.test/")
	body := []byte("User-agent: *\nsitemap: /s1.xml\nSITEMAP:https://cdn.a.test/s2.xml\n# Sitemap: ignored? no\nDisallow: /private\n")

	assert.Equal(t, []string{"https://a.test/s1.xml", "https://cdn.a.test/s2.xml"}, parseRobots(body, base))
}

func TestExtractSitemapLinks(t *testing.T) {
	base, _ := url.Parse("https://a.test/blog/")
	page := `<html><head>
<link rel="stylesheet" href="/style.css">
<link rel="Sitemap" href="sitemap.xml" />
</head><body><link rel="sitemap" href="/late.xml"></body></html>`

	assert.Equal(t, []string{"https://a.test/blog/sitemap.xml"}, extractSitemapLinks(strings.NewReader(page), base))
}

func TestDiscoverThrottlesFetches(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/sitemap.xml" {
			w.Write([]byte(urlsetXML(srv.URL + "/a")))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	// robots.txt, homepage, /sitemap.xml and /sitemap_index.xml: three
	// spaced requests after the first.
	c := New(Config{Timeout: 2 * time.Second, Concurrency: 1, FetchInterval: 40 * time.Millisecond})
	start := time.Now()
	urls, err := c.Discover(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, []string{srv.URL + "/a"}, urls)
	assert.GreaterOrEqual(t, time.Since(start), 120*time.Millisecond)

	t.Run("deadline ends the wait", func(t *testing.T) {
		c := New(Config{Timeout: 2 * time.Second, Concurrency: 1, FetchInterval: time.Hour})
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err := c.Discover(ctx, srv.URL)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
