// Package grouping derives status-code views from a completed response mapping.
// Every function reads the mapping and returns a freshly allocated value; none
// of them mutate their input.
package grouping

import "sitemapaudit/internal/models"

// SuccessThreshold is the first status code treated as an error.
const SuccessThreshold = 400

// Category names used in reports.
const (
	CategorySuccess = "success"
	CategoryError   = "error"
)

// IsSuccess reports whether status falls in the success category.
// The unreachable sentinel is never a success.
func IsSuccess(status int) bool {
	return status >= 0 && status < SuccessThreshold
}

// GroupByStatus transposes the mapping into status -> URLs. Within a bucket,
// URLs keep the order in which they were first inserted into m.
func GroupByStatus(m *models.Responses) models.GroupedResponses {
	grouped := make(models.GroupedResponses)
	m.Each(func(url string, status int) {
		grouped[status] = append(grouped[status], url)
	})
	return grouped
}

// CountByStatus counts URLs per status code.
func CountByStatus(m *models.Responses) models.StatusCounts {
	counts := make(models.StatusCounts)
	m.Each(func(_ string, status int) {
		counts[status]++
	})
	return counts
}

// CountByCategory counts URLs in the success and error categories.
func CountByCategory(m *models.Responses) models.CategoryCounts {
	var counts models.CategoryCounts
	m.Each(func(_ string, status int) {
		if IsSuccess(status) {
			counts.Success++
		} else {
			counts.Error++
		}
	})
	return counts
}

// Category returns the category name for status.
func Category(status int) string {
	if IsSuccess(status) {
		return CategorySuccess
	}
	return CategoryError
}
