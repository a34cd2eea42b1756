package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/permitlink/internal/arcgis"
	"github.com/permitlink/internal/extract"
	"github.com/permitlink/internal/linker"
	"github.com/permitlink/internal/model"
	"github.com/permitlink/internal/quality"
	"github.com/permitlink/internal/store"
)

// RecordKind selects which domain table an extraction feeds.
type RecordKind string

const (
	KindProperty RecordKind = "property"
	KindPermit   RecordKind = "permit"
)

// Service wires discovery, extraction, persistence and linking into
// the end-to-end ingestion flow.
type Service struct {
	discoverer *arcgis.Discoverer
	extractor  *extract.Extractor
	properties *store.PropertyStore
	permits    *store.PermitStore
	runs       *store.RunStore
	linker     *linker.Linker
	logger     *zap.Logger
}

func NewService(
	discoverer *arcgis.Discoverer,
	extractor *extract.Extractor,
	properties *store.PropertyStore,
	permits *store.PermitStore,
	runs *store.RunStore,
	logger *zap.Logger,
) *Service {
	return &Service{
		discoverer: discoverer,
		extractor:  extractor,
		properties: properties,
		permits:    permits,
		runs:       runs,
		linker:     linker.New(properties, permits, logger),
		logger:     logger,
	}
}

// Discover walks a portal's service catalog and returns the layers
// whose names match the configured keywords and that hold records.
func (s *Service) Discover(ctx context.Context, rootURL string) ([]model.DiscoveredLayer, error) {
	return s.discoverer.Discover(ctx, rootURL)
}

// Extract drains the given layers into the table selected by kind and
// records a run manifest per layer. Individual layer failures are
// reported in the results, not returned as an error.
func (s *Service) Extract(ctx context.Context, layers []model.DiscoveredLayer, j model.Jurisdiction, portal string, kind RecordKind) ([]extract.Result, error) {
	sink, err := s.sinkFor(kind)
	if err != nil {
		return nil, err
	}

	results := s.extractor.ExtractAll(ctx, layers, SourceMapper(j, portal), sink)

	for _, r := range results {
		finished := time.Now().UTC()
		run := store.ExtractionRun{
			LayerKey:     r.LayerKey,
			SourcePortal: portal,
			Records:      r.Records,
			Failures:     r.FailedBatches,
			StartedAt:    finished.Add(-r.Duration),
			FinishedAt:   finished,
		}
		if err := s.runs.Record(ctx, run); err != nil {
			s.logger.Warn("failed to record run manifest",
				zap.String("layer", r.LayerKey), zap.Error(err))
		}
	}
	return results, nil
}

// Ingest is the full flow for one portal: discover, then extract.
func (s *Service) Ingest(ctx context.Context, rootURL string, j model.Jurisdiction, portal string, kind RecordKind) ([]extract.Result, error) {
	layers, err := s.Discover(ctx, rootURL)
	if err != nil {
		return nil, err
	}
	if len(layers) == 0 {
		s.logger.Warn("no matching layers found", zap.String("root", rootURL))
		return nil, nil
	}
	return s.Extract(ctx, layers, j, portal, kind)
}

// Link runs one linking pass over a jurisdiction.
func (s *Service) Link(ctx context.Context, j model.Jurisdiction) (*linker.LinkReport, error) {
	return s.linker.Link(ctx, j)
}

// Rescore recomputes quality scores for a jurisdiction's active
// properties, useful after the scoring checklist changes. Returns how
// many stored scores moved.
func (s *Service) Rescore(ctx context.Context, j model.Jurisdiction) (int, error) {
	changed := 0
	err := s.properties.ForEachActive(ctx, j, func(rec *model.PropertyRecord) error {
		score := quality.Score(rec)
		if score == rec.QualityScore {
			return nil
		}
		if err := s.properties.UpdateScore(ctx, rec.ID, score); err != nil {
			return err
		}
		changed++
		return nil
	})
	if err != nil {
		return changed, fmt.Errorf("rescore failed for %s: %w", j, err)
	}
	return changed, nil
}

func (s *Service) sinkFor(kind RecordKind) (extract.Sink, error) {
	switch kind {
	case KindProperty:
		return &propertySink{properties: s.properties}, nil
	case KindPermit:
		return &permitSink{permits: s.permits}, nil
	default:
		return nil, fmt.Errorf("unknown record kind %q", kind)
	}
}

type propertySink struct {
	properties *store.PropertyStore
}

func (s *propertySink) Write(ctx context.Context, records []model.SourceRecord) error {
	for _, src := range records {
		rec := PropertyFromSource(src)
		if err := s.properties.Upsert(ctx, &rec); err != nil {
			return err
		}
	}
	return nil
}

type permitSink struct {
	permits *store.PermitStore
}

func (s *permitSink) Write(ctx context.Context, records []model.SourceRecord) error {
	for _, src := range records {
		rec := PermitFromSource(src)
		if err := s.permits.Upsert(ctx, &rec); err != nil {
			return err
		}
	}
	return nil
}
