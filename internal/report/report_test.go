package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"sitemapaudit/internal/models"
)

func sample() *models.Responses {
	m := models.NewResponses()
	m.Set("https://a.test/ok", 200)
	m.Set("https://a.test/missing", 404)
	m.Set("https://a.test/ok2", 200)
	return m
}

func TestParseViewAndFormat(t *testing.T) {
	v, err := ParseView("Counts")
	require.NoError(t, err)
	assert.Equal(t, ViewCounts, v)
	_, err = ParseView("pie")
	assert.ErrorIs(t, err, ErrUnknownView)

	f, err := ParseFormat("yml")
	require.NoError(t, err)
	assert.Equal(t, FormatYAML, f)
	_, err = ParseFormat("xml")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestValidateFilename(t *testing.T) {
	assert.NoError(t, ValidateFilename("/tmp/urls.json", FormatJSON))
	assert.ErrorIs(t, ValidateFilename("/tmp/urls.incorrectext", FormatJSON), ErrBadFilename)
	assert.NoError(t, ValidateFilename("urls.yml", FormatYAML))
	assert.ErrorIs(t, ValidateFilename("urls.json", FormatYAML), ErrBadFilename)
}

func TestGroupedJSON(t *testing.T) {
	data, err := Build(ViewGrouped, sample())
	require.NoError(t, err)

	out, err := Render(FormatJSON, data)
	require.NoError(t, err)

	var decoded map[string][]string
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, map[string][]string{
		"200": {"https://a.test/ok", "https://a.test/ok2"},
		"404": {"https://a.test/missing"},
	}, decoded)
	assert.True(t, strings.Contains(string(out), "\n    \"200\""), "expected four-space indent:\n%s", out)
}

func TestViewsJSON(t *testing.T) {
	t.Run("counts", func(t *testing.T) {
		data, err := Build(ViewCounts, sample())
		require.NoError(t, err)
		out, err := Render(FormatJSON, data)
		require.NoError(t, err)

		var decoded map[string]int
		require.NoError(t, json.Unmarshal(out, &decoded))
		assert.Equal(t, map[string]int{"200": 2, "404": 1}, decoded)
	})

	t.Run("categories", func(t *testing.T) {
		data, err := Build(ViewCategories, sample())
		require.NoError(t, err)
		out, err := Render(FormatJSON, data)
		require.NoError(t, err)

		var decoded map[string]int
		require.NoError(t, json.Unmarshal(out, &decoded))
		assert.Equal(t, map[string]int{"success": 2, "error": 1}, decoded)
	})

	t.Run("raw keeps order", func(t *testing.T) {
		data, err := Build(ViewRaw, sample())
		require.NoError(t, err)
		out, err := Render(FormatJSON, data)
		require.NoError(t, err)

		ok := strings.Index(string(out), "https://a.test/ok\"")
		missing := strings.Index(string(out), "https://a.test/missing")
		ok2 := strings.Index(string(out), "https://a.test/ok2")
		assert.True(t, ok < missing && missing < ok2, "order lost:\n%s", out)
	})

	t.Run("empty mapping", func(t *testing.T) {
		data, err := Build(ViewGrouped, models.NewResponses())
		require.NoError(t, err)
		out, err := Render(FormatJSON, data)
		require.NoError(t, err)
		assert.JSONEq(t, `{}`, string(out))

		data, err = Build(ViewCategories, models.NewResponses())
		require.NoError(t, err)
		out, err = Render(FormatJSON, data)
		require.NoError(t, err)
		assert.JSONEq(t, `{"success": 0, "error": 0}`, string(out))
	})
}

func TestYAML(t *testing.T) {
	data, err := Build(ViewGrouped, sample())
	require.NoError(t, err)
	out, err := Render(FormatYAML, data)
	require.NoError(t, err)

	var decoded map[int][]string
	require.NoError(t, yaml.Unmarshal(out, &decoded))
	assert.Equal(t, []string{"https://a.test/ok", "https://a.test/ok2"}, decoded[200])
	assert.Equal(t, []string{"https://a.test/missing"}, decoded[404])
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "urls.json")
	data, err := Build(ViewGrouped, sample())
	require.NoError(t, err)

	require.NoError(t, WriteFile(path, FormatJSON, data))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded map[string][]string
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Len(t, decoded, 2)

	assert.Error(t, WriteFile(filepath.Join(t.TempDir(), "missing", "urls.json"), FormatJSON, data))
}

func TestPagerWritesThroughWhenNotTerminal(t *testing.T) {
	var out bytes.Buffer
	p := &Pager{Command: "less", Out: &out}

	require.NoError(t, p.Page(context.Background(), []byte("hello\n")))
	assert.Equal(t, "hello\n", out.String())
}

func TestConsoleReporter(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	r := NewConsoleReporter(logger)

	r.Report(models.ProgressEvent{Index: 2, Total: 10, URL: "https://a.test/about", Status: 200, IsSuccess: true})
	r.Report(models.ProgressEvent{Index: 3, Total: 10, URL: "https://a.test/down", Status: models.StatusUnreachable, Err: errors.New("dial tcp: refused")})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "level=INFO")
	assert.Contains(t, lines[0], `msg="2 out of 10"`)
	assert.Contains(t, lines[0], "status=200")
	assert.Contains(t, lines[0], "url=https://a.test/about")
	assert.Contains(t, lines[1], "level=ERROR")
	assert.Contains(t, lines[1], "status=-1")
	assert.Contains(t, lines[1], `error="dial tcp: refused"`)
}

func TestSummaryTable(t *testing.T) {
	m := sample()
	m.Set("https://a.test/down", models.StatusUnreachable)

	var buf bytes.Buffer
	SummaryTable(&buf, m)
	out := buf.String()

	assert.Contains(t, out, "Status")
	assert.Contains(t, out, "unreachable")
	assert.Contains(t, out, "Summary: 4 checked, 2 success, 2 error")
	assert.Less(t, strings.Index(out, "unreachable"), strings.Index(out, "200"))
}
