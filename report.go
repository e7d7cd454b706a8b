package main

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/atotto/clipboard"
	"github.com/fatih/color"
	"gopkg.in/yaml.v3"
)

var titleColor = color.New(color.FgYellow, color.Bold)

// volumeEntry is one item of an HTR-United catalog "volume" list.
type volumeEntry struct {
	Count  uint64 `yaml:"count"`
	Metric string `yaml:"metric"`
}

// catalogYAML renders the catalog volume block for the grand totals.
func catalogYAML(total Counts) ([]byte, error) {
	doc := struct {
		Volume []volumeEntry `yaml:"volume"`
	}{
		Volume: []volumeEntry{
			{Count: total.Lines, Metric: "lines"},
			{Count: total.Files, Metric: "files"},
			{Count: total.Regions, Metric: "regions"},
			{Count: total.Chars, Metric: "characters"},
		},
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("error encoding catalog: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("error encoding catalog: %w", err)
	}
	return buf.Bytes(), nil
}

// annotateCatalog prefixes the catalog block with a YAML comment stating how
// characters were counted.
func annotateCatalog(catalog []byte, convention string) []byte {
	note := "# characters: " + convention + "\n"
	return append([]byte(note), catalog...)
}

// printReport writes the human-readable summary.
func printReport(w io.Writer, bundle ReportBundle, metrics []Metric, catalog []byte) {
	showTitle(w, "Lines (All)")
	fmt.Fprintln(w, typeTable(bundle.LineTypes, "Line type"))

	showTitle(w, "Regions (All)")
	fmt.Fprintln(w, typeTable(bundle.RegionTypes, "Region type"))

	if containsMetric(metrics, MetricChars) {
		showTitle(w, "Characters (All)")
		fmt.Fprintln(w, markdownTable(
			[]string{"Characters", "Count"},
			[][]string{{"All", strconv.FormatUint(bundle.Total.Chars, 10)}},
			1,
		))
	}

	showTitle(w, "Groups")
	fmt.Fprintln(w, groupTable(bundle, metrics))

	if bundle.Failed > 0 {
		fmt.Fprintf(w, "Files that could not be parsed: %d\n\n", bundle.Failed)
	}

	showTitle(w, "Yaml Cataloging Details for HTR United")
	fmt.Fprint(w, string(catalog))
}

func showTitle(w io.Writer, title string) {
	bar := strings.Repeat("#", len(title)*3/2)
	fmt.Fprintln(w, bar)
	titleColor.Fprintln(w, "#  "+title)
	fmt.Fprintln(w, bar)
	fmt.Fprintln(w)
}

// typeTable lists segment types by descending count, then an "All" row.
func typeTable(counts TypeCounts, label string) string {
	type row struct {
		name  string
		count uint64
	}
	rows := make([]row, 0, len(counts))
	var total uint64
	for name, n := range counts {
		rows = append(rows, row{name, n})
		total += n
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].count != rows[j].count {
			return rows[i].count > rows[j].count
		}
		return rows[i].name < rows[j].name
	})

	cells := make([][]string, 0, len(rows)+2)
	for _, r := range rows {
		cells = append(cells, []string{r.name, strconv.FormatUint(r.count, 10)})
	}
	cells = append(cells, []string{"-----", "-----"}, []string{"All", strconv.FormatUint(total, 10)})
	return markdownTable([]string{label, "Count"}, cells, 1)
}

// groupTable has one row per group and one column per metric.
func groupTable(bundle ReportBundle, metrics []Metric) string {
	headers := []string{"Group"}
	for _, m := range metrics {
		headers = append(headers, string(m))
	}
	var cells [][]string
	for _, g := range bundle.Groups {
		row := []string{g.Name}
		for _, m := range metrics {
			row = append(row, strconv.FormatUint(g.Counts.Get(m), 10))
		}
		cells = append(cells, row)
	}
	all := []string{"All"}
	for _, m := range metrics {
		all = append(all, strconv.FormatUint(bundle.Total.Get(m), 10))
	}
	cells = append(cells, all)
	return markdownTable(headers, cells, 1)
}

// markdownTable renders a pipe table. Columns from numericFrom onwards are
// right-aligned.
func markdownTable(headers []string, rows [][]string, numericFrom int) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = max(utf8.RuneCountInString(h), 3)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) {
				widths[i] = max(widths[i], utf8.RuneCountInString(cell))
			}
		}
	}

	var b strings.Builder
	writeRow := func(cells []string) {
		b.WriteString("|")
		for i := range widths {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			pad := strings.Repeat(" ", widths[i]-utf8.RuneCountInString(cell))
			if i >= numericFrom {
				b.WriteString(" " + pad + cell + " |")
			} else {
				b.WriteString(" " + cell + pad + " |")
			}
		}
		b.WriteString("\n")
	}

	writeRow(headers)
	b.WriteString("|")
	for i, w := range widths {
		if i >= numericFrom {
			b.WriteString(strings.Repeat("-", w+1) + ":|")
		} else {
			b.WriteString(":" + strings.Repeat("-", w+1) + "|")
		}
	}
	b.WriteString("\n")
	for _, row := range rows {
		writeRow(row)
	}
	return b.String()
}

// copyCatalog puts the catalog YAML on the system clipboard.
func copyCatalog(catalog []byte) error {
	if clipboard.Unsupported {
		return fmt.Errorf("clipboard is not supported on this system")
	}
	if err := clipboard.WriteAll(string(catalog)); err != nil {
		return fmt.Errorf("error writing to clipboard: %w", err)
	}
	return nil
}

func containsMetric(metrics []Metric, m Metric) bool {
	for _, v := range metrics {
		if v == m {
			return true
		}
	}
	return false
}
