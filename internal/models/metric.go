package models

import "fmt"

// Metric names a monotonically increasing counter kept per entity.
type Metric string

const (
	// MetricView counts page views of a content item.
	MetricView Metric = "view"
	// MetricImpression counts renders of an ad creative.
	MetricImpression Metric = "impression"
	// MetricClick counts clicks on an ad creative.
	MetricClick Metric = "click"
)

// Metrics lists every known metric in a stable order.
var Metrics = []Metric{MetricView, MetricImpression, MetricClick}

// Valid reports whether m is one of the known metrics.
func (m Metric) Valid() bool {
	switch m {
	case MetricView, MetricImpression, MetricClick:
		return true
	}
	return false
}

// ParseMetric converts a raw string into a Metric.
func ParseMetric(s string) (Metric, error) {
	m := Metric(s)
	if !m.Valid() {
		return "", fmt.Errorf("unknown metric %q", s)
	}
	return m, nil
}

func (m Metric) String() string { return string(m) }
