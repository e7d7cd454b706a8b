package main

import (
	"fmt"
	"strings"
)

// Metric names one counted quantity.
type Metric string

const (
	MetricChars   Metric = "chars"
	MetricLines   Metric = "lines"
	MetricRegions Metric = "regions"
	MetricFiles   Metric = "files"
)

// allMetrics is the canonical output order.
var allMetrics = []Metric{MetricChars, MetricLines, MetricRegions, MetricFiles}

// defaultMetrics are the metric families written when none are requested.
var defaultMetrics = []Metric{MetricChars, MetricLines, MetricRegions}

// parseMetrics turns a list like ["chars", "lines,regions"] into metrics in canonical order.
func parseMetrics(values []string) ([]Metric, error) {
	want := make(map[Metric]bool)
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			part = strings.ToLower(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			m := Metric(part)
			if !m.valid() {
				return nil, fmt.Errorf("unknown metric %q (want one of chars, lines, regions, files)", part)
			}
			want[m] = true
		}
	}
	if len(want) == 0 {
		return append([]Metric(nil), defaultMetrics...), nil
	}
	var out []Metric
	for _, m := range allMetrics {
		if want[m] {
			out = append(out, m)
		}
	}
	return out, nil
}

func (m Metric) valid() bool {
	for _, known := range allMetrics {
		if m == known {
			return true
		}
	}
	return false
}

// Counts holds the summed metrics of a file, a group or a whole run.
type Counts struct {
	Chars   uint64
	Lines   uint64
	Regions uint64
	Files   uint64
}

// Add accumulates other into c.
func (c *Counts) Add(other Counts) {
	c.Chars += other.Chars
	c.Lines += other.Lines
	c.Regions += other.Regions
	c.Files += other.Files
}

// Get returns the value for one metric.
func (c Counts) Get(m Metric) uint64 {
	switch m {
	case MetricChars:
		return c.Chars
	case MetricLines:
		return c.Lines
	case MetricRegions:
		return c.Regions
	case MetricFiles:
		return c.Files
	}
	return 0
}

// TypeCounts tallies lines or regions by segment type label.
type TypeCounts map[string]uint64

// merge adds every entry of other into t.
func (t TypeCounts) merge(other TypeCounts) {
	for k, v := range other {
		t[k] += v
	}
}

// FileRecord is the result of parsing one transcription file.
// A record with Err set has zero counts.
type FileRecord struct {
	Path        string
	Counts      Counts
	LineTypes   TypeCounts
	RegionTypes TypeCounts
	Err         error
}

// GroupSpec is a group as configured: a name and its glob patterns.
type GroupSpec struct {
	Name     string
	Patterns []string
}

// Group is a configured group with its resolved, deduplicated files.
type Group struct {
	Name     string
	Patterns []string
	Files    []string
}

// GroupTotals holds the summed metrics of one group.
type GroupTotals struct {
	Name        string
	Counts      Counts
	LineTypes   TypeCounts
	RegionTypes TypeCounts
	Failed      []string // paths that could not be parsed
}

// ReportBundle is the complete result of one run.
type ReportBundle struct {
	Groups      []GroupTotals
	Total       Counts
	LineTypes   TypeCounts
	RegionTypes TypeCounts
	Parsed      int // files parsed successfully
	Failed      int // files that contributed zero because of an error
}
