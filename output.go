package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// combinedFileName is the file holding every metric family at once.
const combinedFileName = "metrics.json"

// metricObject maps group names to one metric. With more than one group the
// grand total is included under totalKey.
func metricObject(bundle ReportBundle, m Metric, totalKey string) map[string]uint64 {
	obj := make(map[string]uint64, len(bundle.Groups)+1)
	for _, g := range bundle.Groups {
		obj[g.Name] = g.Counts.Get(m)
	}
	if len(bundle.Groups) > 1 && totalKey != "" {
		obj[totalKey] = bundle.Total.Get(m)
	}
	return obj
}

// writeJSONOutputs writes <metric>.json for each metric into dir, and
// metrics.json when combined is set. It returns the paths written.
func writeJSONOutputs(dir string, bundle ReportBundle, metrics []Metric, totalKey string, combined bool) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("error creating output directory %s: %w", dir, err)
	}

	var written []string
	all := make(map[Metric]map[string]uint64, len(metrics))
	for _, m := range metrics {
		obj := metricObject(bundle, m, totalKey)
		all[m] = obj
		p := filepath.Join(dir, string(m)+".json")
		if err := writeJSONFile(p, obj); err != nil {
			return written, err
		}
		written = append(written, p)
	}

	if combined {
		p := filepath.Join(dir, combinedFileName)
		if err := writeJSONFile(p, all); err != nil {
			return written, err
		}
		written = append(written, p)
	}
	return written, nil
}

// writeJSONFile writes v as compact JSON followed by a newline. Map keys are
// sorted by encoding/json, so equal input gives identical bytes.
func writeJSONFile(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("error encoding %s: %w", path, err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("error writing %s: %w", path, err)
	}
	return nil
}

// envKey builds PREFIX_GROUP_METRIC, or PREFIX_METRIC when group is empty.
func envKey(prefix, group string, m Metric) string {
	parts := []string{normalizeKey(prefix)}
	if group != "" {
		parts = append(parts, normalizeKey(group))
	}
	parts = append(parts, strings.ToUpper(string(m)))
	return strings.Join(parts, "_")
}

// envValues lists one variable per group and metric, plus the grand totals.
func envValues(bundle ReportBundle, metrics []Metric, prefix string) map[string]string {
	values := make(map[string]string)
	for _, m := range metrics {
		for _, g := range bundle.Groups {
			values[envKey(prefix, g.Name, m)] = strconv.FormatUint(g.Counts.Get(m), 10)
		}
		values[envKey(prefix, "", m)] = strconv.FormatUint(bundle.Total.Get(m), 10)
	}
	return values
}

// writeEnvFile writes KEY=VALUE lines, sorted by key.
func writeEnvFile(path string, values map[string]string) error {
	content, err := godotenv.Marshal(values)
	if err != nil {
		return fmt.Errorf("error encoding environment file: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("error creating directory for %s: %w", path, err)
		}
	}
	if err := os.WriteFile(path, []byte(content+"\n"), 0o644); err != nil {
		return fmt.Errorf("error writing environment file %s: %w", path, err)
	}
	return nil
}
