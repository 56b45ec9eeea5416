package models

import (
	"bytes"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"gopkg.in/yaml.v3"
)

// StatusUnreachable is recorded for a URL when no HTTP response could be
// obtained at all (DNS failure, refused connection, timeout). It is negative so
// it never collides with a real HTTP status code.
const StatusUnreachable = -1

// Responses is the URL to status code mapping built by one collection run.
// Keys keep the order in which they were first set; setting an existing key
// overwrites its status but keeps its position.
type Responses struct {
	order []string
	codes map[string]int
}

// NewResponses creates an empty mapping.
func NewResponses() *Responses {
	return &Responses{codes: make(map[string]int)}
}

// Set records the status for url. Last write wins.
func (r *Responses) Set(url string, status int) {
	if _, exists := r.codes[url]; !exists {
		r.order = append(r.order, url)
	}
	r.codes[url] = status
}

// Get returns the status recorded for url.
func (r *Responses) Get(url string) (int, bool) {
	status, ok := r.codes[url]
	return status, ok
}

// Len returns the number of distinct URLs.
func (r *Responses) Len() int {
	if r == nil {
		return 0
	}
	return len(r.order)
}

// URLs returns the keys in first-seen order.
func (r *Responses) URLs() []string {
	if r == nil {
		return nil
	}
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Each calls fn for every entry in first-seen order.
func (r *Responses) Each(fn func(url string, status int)) {
	if r == nil {
		return
	}
	for _, u := range r.order {
		fn(u, r.codes[u])
	}
}

// Map returns an unordered copy of the mapping.
func (r *Responses) Map() map[string]int {
	out := make(map[string]int, r.Len())
	r.Each(func(url string, status int) { out[url] = status })
	return out
}

// MarshalJSON writes the mapping as a JSON object in first-seen order.
func (r *Responses) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, u := range r.URLs() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := sonic.ConfigStd.Marshal(u)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.WriteString(strconv.Itoa(r.codes[u]))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalYAML writes the mapping as a YAML mapping in first-seen order.
func (r *Responses) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	r.Each(func(url string, status int) {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: url},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.Itoa(status)},
		)
	})
	return node, nil
}

// GroupedResponses maps a status code to the URLs that produced it.
type GroupedResponses map[int][]string

// StatusCounts maps a status code to the number of URLs that produced it.
type StatusCounts map[int]int

// CategoryCounts splits URLs into the success and error categories.
type CategoryCounts struct {
	Success int `json:"success" yaml:"success"`
	Error   int `json:"error" yaml:"error"`
}

// ProgressEvent is emitted once per probed URL, in input order.
type ProgressEvent struct {
	Index     int // 1-based
	Total     int
	URL       string
	Status    int
	IsSuccess bool
	Err       error // set when Status is StatusUnreachable
	Latency   time.Duration
}

// Run is a completed collection stored in the result cache.
type Run struct {
	ID        string
	Homepage  string
	CreatedAt time.Time
	Responses *Responses
}
