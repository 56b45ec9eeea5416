package urlutil

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// ErrInvalidURL is returned for anything that is not an absolute http(s) URL.
var ErrInvalidURL = errors.New("url must be an absolute http or https url")

// Canonicalize returns a normalised form of rawURL used to compare sitemap
// locations: lowercase scheme and host, default ports stripped, fragment
// removed and a trailing slash trimmed except on the root path.
func Canonicalize(rawURL string) (string, error) {
	u, err := parseHTTP(rawURL)
	if err != nil {
		return "", err
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if (u.Scheme == "http" && strings.HasSuffix(u.Host, ":80")) ||
		(u.Scheme == "https" && strings.HasSuffix(u.Host, ":443")) {
		u.Host = u.Hostname()
	}
	u.Fragment = ""
	if len(u.Path) > 1 && strings.HasSuffix(u.Path, "/") {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}

	return u.String(), nil
}

// ValidateHomepage checks that rawURL can be used as a homepage to discover
// sitemaps from.
func ValidateHomepage(rawURL string) error {
	_, err := parseHTTP(rawURL)
	return err
}

func parseHTTP(rawURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("failed to parse url: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if !u.IsAbs() || (scheme != "http" && scheme != "https") || u.Host == "" {
		return nil, ErrInvalidURL
	}
	return u, nil
}

// HasExtension reports whether filename ends with one of exts, compared
// case-insensitively. exts include the leading dot.
func HasExtension(filename string, exts ...string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" || ext == filename {
		return false
	}
	for _, e := range exts {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}

// IsJSONFilename reports whether filename names a .json file.
func IsJSONFilename(filename string) bool {
	return HasExtension(filename, ".json")
}
