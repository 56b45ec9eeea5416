// Package report renders audit results for people and machines: JSON or YAML
// documents, a pager view, a summary table and console progress lines.
package report

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/bytedance/sonic"
	"gopkg.in/yaml.v3"

	"sitemapaudit/internal/grouping"
	"sitemapaudit/internal/models"
	"sitemapaudit/internal/urlutil"
)

// View selects which derived structure is rendered.
type View string

const (
	ViewGrouped    View = "grouped"    // status code -> URLs
	ViewCounts     View = "counts"     // status code -> number of URLs
	ViewCategories View = "categories" // {"success": n, "error": m}
	ViewRaw        View = "raw"        // URL -> status code
)

// Format selects the document encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

var (
	ErrUnknownView   = errors.New("unknown view")
	ErrUnknownFormat = errors.New("unknown format")
	ErrBadFilename   = errors.New("invalid output filename")
)

// ParseView validates a view name.
func ParseView(s string) (View, error) {
	switch v := View(strings.ToLower(s)); v {
	case ViewGrouped, ViewCounts, ViewCategories, ViewRaw:
		return v, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownView, s)
}

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatJSON, FormatYAML:
		return f, nil
	case "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// ValidateFilename checks that filename has the extension format expects.
func ValidateFilename(filename string, format Format) error {
	ok := false
	switch format {
	case FormatJSON:
		ok = urlutil.IsJSONFilename(filename)
	case FormatYAML:
		ok = urlutil.HasExtension(filename, ".yaml", ".yml")
	}
	if !ok {
		return fmt.Errorf("%w for %s file: %s", ErrBadFilename, format, filename)
	}
	return nil
}

// Build derives the requested view from a completed mapping.
func Build(view View, m *models.Responses) (any, error) {
	switch view {
	case ViewGrouped:
		return grouping.GroupByStatus(m), nil
	case ViewCounts:
		return grouping.CountByStatus(m), nil
	case ViewCategories:
		return grouping.CountByCategory(m), nil
	case ViewRaw:
		if m == nil {
			return models.NewResponses(), nil
		}
		return m, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownView, view)
}

// Encode writes data to w in the given format, indented by four spaces.
func Encode(w io.Writer, format Format, data any) error {
	switch format {
	case FormatJSON:
		b, err := sonic.ConfigStd.MarshalIndent(data, "", "    ")
		if err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		b = append(b, '\n')
		_, err = w.Write(b)
		return err
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(4)
		if err := enc.Encode(data); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

// Render encodes data into a byte slice.
func Render(format Format, data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, format, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFile encodes data into filename, replacing any existing file.
func WriteFile(filename string, format Format, data any) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("create %s: %w", filename, err)
	}
	if err := Encode(f, format, data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
