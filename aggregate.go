package main

import (
	"context"
	"errors"
	"runtime"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var ErrAllFailed = errors.New("no matched file could be parsed")

// fileParser is the part of Parser the aggregator depends on.
type fileParser interface {
	ParseFile(path string) FileRecord
}

// aggregator sums file records into group and run totals.
type aggregator struct {
	parser  fileParser
	logger  *logrus.Logger
	workers int
}

func newAggregator(parser fileParser, logger *logrus.Logger, workers int) *aggregator {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &aggregator{parser: parser, logger: logger, workers: workers}
}

// Run parses every group's files and builds the report. Per-file failures
// only produce warnings. If files were matched and all of them failed, the
// bundle is returned together with ErrAllFailed.
func (a *aggregator) Run(ctx context.Context, groups []Group) (ReportBundle, error) {
	bundle := ReportBundle{
		Groups:      make([]GroupTotals, 0, len(groups)),
		LineTypes:   make(TypeCounts),
		RegionTypes: make(TypeCounts),
	}
	for _, g := range groups {
		totals, err := a.group(ctx, g)
		if err != nil {
			return ReportBundle{}, err
		}
		bundle.Groups = append(bundle.Groups, totals)
		bundle.Failed += len(totals.Failed)
		bundle.Parsed += len(g.Files) - len(totals.Failed)
	}

	// The grand total is summed from the group totals, never from the files.
	for _, totals := range bundle.Groups {
		bundle.Total.Add(totals.Counts)
		bundle.LineTypes.merge(totals.LineTypes)
		bundle.RegionTypes.merge(totals.RegionTypes)
	}

	if bundle.Failed > 0 && bundle.Parsed == 0 {
		return bundle, ErrAllFailed
	}
	return bundle, nil
}

// group parses the files of one group and sums them.
func (a *aggregator) group(ctx context.Context, g Group) (GroupTotals, error) {
	records, err := a.parseAll(ctx, g.Files)
	if err != nil {
		return GroupTotals{}, err
	}

	totals := GroupTotals{
		Name:        g.Name,
		LineTypes:   make(TypeCounts),
		RegionTypes: make(TypeCounts),
	}
	for _, rec := range records {
		if rec.Err != nil {
			a.logger.WithFields(logrus.Fields{
				"group": g.Name,
				"path":  rec.Path,
			}).WithError(rec.Err).Warn("Skipping file that could not be parsed")
			totals.Failed = append(totals.Failed, rec.Path)
			// The file was matched even though it adds nothing else.
			totals.Counts.Files++
			continue
		}
		totals.Counts.Add(rec.Counts)
		totals.LineTypes.merge(rec.LineTypes)
		totals.RegionTypes.merge(rec.RegionTypes)
	}
	a.logger.WithFields(logrus.Fields{
		"group":   g.Name,
		"files":   totals.Counts.Files,
		"chars":   totals.Counts.Chars,
		"lines":   totals.Counts.Lines,
		"regions": totals.Counts.Regions,
	}).Debug("Group aggregated")
	return totals, nil
}

// parseAll parses files concurrently. Each worker writes its own index of
// the result slice, so no locking is needed.
func (a *aggregator) parseAll(ctx context.Context, files []string) ([]FileRecord, error) {
	records := make([]FileRecord, len(files))
	if len(files) == 0 {
		return records, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(a.workers, len(files)))
	for i, path := range files {
		i, path := i, path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			records[i] = a.parser.ParseFile(path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return records, nil
}
