// Package importer loads journey-assembler exports into the attribution
// store. Exports arrive as assembler JSON, denormalized touchpoint CSV, or
// XLSX, from local files, HTTP, or FTP.
package importer

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/attribution-cli/internal/config"
	"github.com/sells-group/attribution-cli/internal/model"
	"github.com/sells-group/attribution-cli/internal/store"
)

// JourneyDocument is one journey with its embedded touchpoints, the shape
// the assembler exports.
type JourneyDocument struct {
	model.CustomerJourney
	Touchpoints []model.Touchpoint `json:"touchpoints"`
}

// Report summarizes one import run. A failed file is recorded in Errors and
// does not abort the remaining files.
type Report struct {
	Files       int      `json:"files"`
	Journeys    int      `json:"journeys"`
	Touchpoints int      `json:"touchpoints"`
	Skipped     int      `json:"skipped"`
	Errors      []string `json:"errors,omitempty"`
}

// Importer ingests export files concurrently, bounded by the configured
// concurrency. Journeys within one file are inserted sequentially.
type Importer struct {
	store  store.Store
	source *Source
	cfg    config.ImporterConfig

	mu     sync.Mutex
	report Report
}

// New builds an Importer over the given store.
func New(st store.Store, cfg config.ImporterConfig) *Importer {
	return &Importer{store: st, source: NewSource(cfg), cfg: cfg}
}

// Run imports every ref. File-level failures are tolerated so one bad export
// cannot sink a multi-file load.
func (i *Importer) Run(ctx context.Context, refs []string) (Report, error) {
	if len(refs) == 0 {
		return Report{}, eris.New("importer: no files given")
	}

	i.report = Report{}

	g, gctx := errgroup.WithContext(ctx)
	limit := i.cfg.Concurrency
	if limit <= 0 {
		limit = 4
	}
	g.SetLimit(limit)

	for _, ref := range refs {
		g.Go(func() error {
			if err := i.importFile(gctx, ref); err != nil {
				zap.L().Warn("import file failed", zap.String("ref", ref), zap.Error(err))
				i.recordError(ref, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return i.snapshot(), err
	}

	report := i.snapshot()
	zap.L().Info("import finished",
		zap.Int("files", report.Files),
		zap.Int("journeys", report.Journeys),
		zap.Int("touchpoints", report.Touchpoints),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed_files", len(report.Errors)),
	)
	return report, nil
}

func (i *Importer) importFile(ctx context.Context, ref string) error {
	docs, skipped, err := i.loadFile(ctx, ref)
	if err != nil {
		return err
	}

	inserted, touchpoints := 0, 0
	for _, doc := range docs {
		if doc.ID == "" {
			skipped++
			continue
		}
		if doc.TotalTouchpoints == 0 {
			doc.TotalTouchpoints = len(doc.Touchpoints)
		}
		if err := i.store.InsertJourney(ctx, doc.CustomerJourney, doc.Touchpoints); err != nil {
			return eris.Wrapf(err, "importer: insert journey %s", doc.ID)
		}
		inserted++
		touchpoints += len(doc.Touchpoints)
	}

	i.mu.Lock()
	i.report.Files++
	i.report.Journeys += inserted
	i.report.Touchpoints += touchpoints
	i.report.Skipped += skipped
	i.mu.Unlock()
	return nil
}

func (i *Importer) loadFile(ctx context.Context, ref string) ([]JourneyDocument, int, error) {
	switch ext := refExt(ref); ext {
	case ".json":
		rc, err := i.source.Open(ctx, ref)
		if err != nil {
			return nil, 0, err
		}
		defer rc.Close() //nolint:errcheck
		docs, err := ParseJourneysJSON(ctx, rc)
		return docs, 0, err

	case ".csv":
		rc, err := i.source.Open(ctx, ref)
		if err != nil {
			return nil, 0, err
		}
		defer rc.Close() //nolint:errcheck
		return ParseJourneysCSV(ctx, rc)

	case ".xlsx":
		// The xlsx reader needs a seekable file, so remote refs are
		// staged on disk first.
		path, err := i.source.FetchToFile(ctx, ref, os.TempDir())
		if err != nil {
			return nil, 0, err
		}
		defer os.Remove(path) //nolint:errcheck
		return ParseJourneysXLSX(path, XLSXOptions{})

	default:
		return nil, 0, eris.Errorf("importer: unsupported file format %q", ext)
	}
}

func (i *Importer) recordError(ref string, err error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.report.Errors = append(i.report.Errors, fmt.Sprintf("%s: %v", ref, err))
}

func (i *Importer) snapshot() Report {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.report
}
