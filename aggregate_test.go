package main

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubParser returns canned records by path and counts its calls.
type stubParser struct {
	records map[string]FileRecord
	calls   atomic.Int64
}

func (s *stubParser) ParseFile(path string) FileRecord {
	s.calls.Add(1)
	rec, ok := s.records[path]
	if !ok {
		return FileRecord{Path: path, Err: errors.New("no such record")}
	}
	rec.Path = path
	return rec
}

func parsed(chars, lines, regions uint64) FileRecord {
	return FileRecord{
		Counts:      Counts{Chars: chars, Lines: lines, Regions: regions, Files: 1},
		LineTypes:   TypeCounts{"DefaultLine": lines},
		RegionTypes: TypeCounts{"MainZone": regions},
	}
}

func TestAggregateGroupOfTwoFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "fra/a.xml", pageXML(linesOf(3, 24, "a"), linesOf(2, 24, "a")))
	writeFile(t, dir, "fra/b.xml", pageXML(append(linesOf(2, 30, "b"), strings.Repeat("b", 20))))

	groups, err := resolveGroups(dir, []GroupSpec{{Name: "fra", Patterns: []string{"fra/*.xml"}}}, matchOptions{})
	require.NoError(t, err)

	bundle, err := newAggregator(testParser(t), quietLogger(), 2).Run(context.Background(), groups)
	require.NoError(t, err)

	require.Len(t, bundle.Groups, 1)
	assert.Equal(t, Counts{Chars: 200, Lines: 8, Regions: 3, Files: 2}, bundle.Groups[0].Counts)
	assert.Equal(t, bundle.Groups[0].Counts, bundle.Total)
	assert.Equal(t, TypeCounts{"DefaultLine": 8}, bundle.LineTypes)
	assert.Equal(t, TypeCounts{"MainZone": 3}, bundle.RegionTypes)
	assert.Equal(t, 2, bundle.Parsed)
	assert.Zero(t, bundle.Failed)
}

func TestAggregateSkipsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "g/good.xml", pageXML([]string{"abcde", "fghij"}))
	bad := writeFile(t, dir, "g/bad.xml", malformedXML)

	groups, err := resolveGroups(dir, []GroupSpec{{Name: "g", Patterns: []string{"g/*.xml"}}}, matchOptions{})
	require.NoError(t, err)

	bundle, err := newAggregator(testParser(t), quietLogger(), 0).Run(context.Background(), groups)
	require.NoError(t, err)

	g := bundle.Groups[0]
	assert.Equal(t, Counts{Chars: 10, Lines: 2, Regions: 1, Files: 2}, g.Counts)
	assert.Equal(t, []string{bad}, g.Failed)
	assert.Equal(t, 1, bundle.Parsed)
	assert.Equal(t, 1, bundle.Failed)
}

func TestAggregateAllFailed(t *testing.T) {
	p := &stubParser{}
	groups := []Group{{Name: "g", Files: []string{"x.xml", "y.xml"}}}

	bundle, err := newAggregator(p, quietLogger(), 4).Run(context.Background(), groups)
	assert.ErrorIs(t, err, ErrAllFailed)
	assert.Equal(t, 2, bundle.Failed)
	assert.Zero(t, bundle.Parsed)
	assert.Equal(t, Counts{Files: 2}, bundle.Total)
}

func TestAggregateEmptyGroups(t *testing.T) {
	p := &stubParser{}
	groups := []Group{{Name: "a"}, {Name: "b", Files: []string{}}}

	bundle, err := newAggregator(p, quietLogger(), 4).Run(context.Background(), groups)
	require.NoError(t, err, "matching nothing is not a failure")
	require.Len(t, bundle.Groups, 2)
	assert.Equal(t, Counts{}, bundle.Groups[0].Counts)
	assert.Equal(t, Counts{}, bundle.Total)
	assert.Zero(t, p.calls.Load())
}

func TestAggregateGrandTotalIsSumOfGroups(t *testing.T) {
	p := &stubParser{records: map[string]FileRecord{
		"a": parsed(10, 2, 1),
		"b": parsed(20, 3, 1),
		"c": parsed(5, 1, 1),
	}}
	groups := []Group{
		{Name: "one", Files: []string{"a", "b"}},
		{Name: "two", Files: []string{"b", "c"}},
	}

	bundle, err := newAggregator(p, quietLogger(), 3).Run(context.Background(), groups)
	require.NoError(t, err)

	var sum Counts
	for _, g := range bundle.Groups {
		sum.Add(g.Counts)
	}
	assert.Equal(t, sum, bundle.Total)
	// b belongs to both groups and is counted in each.
	assert.Equal(t, Counts{Chars: 55, Lines: 9, Regions: 4, Files: 4}, bundle.Total)
	assert.Equal(t, TypeCounts{"DefaultLine": 9}, bundle.LineTypes)
}

func TestAggregateAddingFileNeverDecreasesCounts(t *testing.T) {
	p := &stubParser{records: map[string]FileRecord{
		"a": parsed(10, 2, 1),
		"b": parsed(0, 0, 0),
		"c": parsed(7, 1, 1),
	}}
	agg := newAggregator(p, quietLogger(), 2)

	files := []string{"a"}
	prev, err := agg.Run(context.Background(), []Group{{Name: "g", Files: files}})
	require.NoError(t, err)
	for _, next := range []string{"b", "c", "broken"} {
		files = append(files, next)
		cur, err := agg.Run(context.Background(), []Group{{Name: "g", Files: files}})
		require.NoError(t, err)
		assert.GreaterOrEqual(t, cur.Total.Chars, prev.Total.Chars)
		assert.GreaterOrEqual(t, cur.Total.Lines, prev.Total.Lines)
		assert.GreaterOrEqual(t, cur.Total.Regions, prev.Total.Regions)
		assert.Greater(t, cur.Total.Files, prev.Total.Files)
		prev = cur
	}
}

func TestAggregateIndependentOfOrderAndWorkers(t *testing.T) {
	records := map[string]FileRecord{}
	var files []string
	for i := 0; i < 40; i++ {
		name := string(rune('A'+i%26)) + string(rune('a'+i/26))
		records[name] = parsed(uint64(i*3), uint64(i%5), 1)
		files = append(files, name)
	}
	reversed := make([]string, len(files))
	for i, f := range files {
		reversed[len(files)-1-i] = f
	}

	want, err := newAggregator(&stubParser{records: records}, quietLogger(), 1).
		Run(context.Background(), []Group{{Name: "g", Files: files}})
	require.NoError(t, err)

	for _, workers := range []int{2, 7, 64} {
		got, err := newAggregator(&stubParser{records: records}, quietLogger(), workers).
			Run(context.Background(), []Group{{Name: "g", Files: reversed}})
		require.NoError(t, err)
		assert.Equal(t, want.Total, got.Total, "workers=%d", workers)
		assert.Equal(t, want.LineTypes, got.LineTypes, "workers=%d", workers)
	}
}

func TestAggregateCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := &stubParser{records: map[string]FileRecord{"a": parsed(1, 1, 1)}}
	_, err := newAggregator(p, quietLogger(), 1).Run(ctx, []Group{{Name: "g", Files: []string{"a"}}})
	assert.ErrorIs(t, err, context.Canceled)
}
