package report

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/rodaine/table"

	"sitemapaudit/internal/grouping"
	"sitemapaudit/internal/models"
)

// ConsoleReporter logs one line per probed URL, at info level for successes
// and error level for failures. With slog's text handler a line reads:
//
//	time=... level=INFO msg="2 out of 10" status=200 url=https://example.com/about
type ConsoleReporter struct {
	logger *slog.Logger
}

// NewConsoleReporter creates a reporter writing through logger.
func NewConsoleReporter(logger *slog.Logger) *ConsoleReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConsoleReporter{logger: logger}
}

// Report implements checker.Reporter.
func (r *ConsoleReporter) Report(ev models.ProgressEvent) {
	level := slog.LevelInfo
	if !ev.IsSuccess {
		level = slog.LevelError
	}
	attrs := []slog.Attr{
		slog.Int("status", ev.Status),
		slog.String("url", ev.URL),
	}
	if ev.Err != nil {
		attrs = append(attrs, slog.String("error", ev.Err.Error()))
	}
	r.logger.LogAttrs(context.Background(), level, fmt.Sprintf("%d out of %d", ev.Index, ev.Total), attrs...)
}

// SummaryTable prints URL counts per status code followed by the category
// totals.
func SummaryTable(w io.Writer, m *models.Responses) {
	counts := grouping.CountByStatus(m)
	statuses := make([]int, 0, len(counts))
	for status := range counts {
		statuses = append(statuses, status)
	}
	sort.Ints(statuses)

	tbl := table.New("Status", "Category", "URLs").WithWriter(w)
	for _, status := range statuses {
		tbl.AddRow(statusLabel(status), grouping.Category(status), counts[status])
	}
	tbl.Print()

	cat := grouping.CountByCategory(m)
	fmt.Fprintf(w, "\nSummary: %d checked, %d success, %d error\n", m.Len(), cat.Success, cat.Error)
}

func statusLabel(status int) string {
	if status == models.StatusUnreachable {
		return "unreachable"
	}
	return fmt.Sprint(status)
}
