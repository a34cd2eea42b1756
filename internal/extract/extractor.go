package extract

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/permitlink/internal/apperrors"
	"github.com/permitlink/internal/arcgis"
	"github.com/permitlink/internal/config"
	"github.com/permitlink/internal/metrics"
	"github.com/permitlink/internal/model"
)

// CheckpointStore persists per-layer extraction progress. Commit must
// be atomic: a checkpoint is only considered committed once it durably
// lands in storage.
type CheckpointStore interface {
	Load(ctx context.Context, layerKey string) (*model.ExtractionCheckpoint, error)
	Commit(ctx context.Context, cp model.ExtractionCheckpoint) error
}

// Sink receives extracted records. Write must persist the batch durably
// before returning, since the checkpoint advances past it afterwards.
type Sink interface {
	Write(ctx context.Context, records []model.SourceRecord) error
}

// Archiver stores raw page payloads for provenance. Optional.
type Archiver interface {
	ArchivePage(ctx context.Context, layerKey string, offset int, records []map[string]any) error
}

// Mapper converts one raw attribute payload into the common
// intermediate shape. Platform-specific adapters supply this.
type Mapper func(attrs map[string]any) model.SourceRecord

// Result summarizes one layer's extraction run. FailedBatches is
// surfaced so that a layer whose every batch failed reads as a failure,
// never as "0 records found".
type Result struct {
	LayerKey      string
	Records       int
	Batches       int
	FailedBatches int
	Resumed       bool
	Err           error
	Duration      time.Duration
}

// Extractor pulls all records from discovered layers in fixed-size
// offset batches, with retry, rate limiting and durable checkpoints.
type Extractor struct {
	client      *arcgis.Client
	checkpoints CheckpointStore
	archiver    Archiver
	cfg         config.ExtractConfig
	logger      *zap.Logger
}

// NewExtractor builds an extractor. archiver may be nil.
func NewExtractor(client *arcgis.Client, checkpoints CheckpointStore, archiver Archiver, cfg config.ExtractConfig, logger *zap.Logger) *Extractor {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.LayerWorkers <= 0 {
		cfg.LayerWorkers = 1
	}
	return &Extractor{
		client:      client,
		checkpoints: checkpoints,
		archiver:    archiver,
		cfg:         cfg,
		logger:      logger,
	}
}

// ExtractLayer drains one layer into sink, resuming from the layer's
// checkpoint. Batches are sequential within a layer because the next
// offset depends on the prior batch's returned size.
func (e *Extractor) ExtractLayer(ctx context.Context, layer model.DiscoveredLayer, mapper Mapper, sink Sink) Result {
	start := time.Now()
	result := Result{LayerKey: layer.Key()}

	offset, fetched := e.loadCheckpoint(ctx, layer.Key())
	result.Resumed = offset > 0

	log := e.logger.With(zap.String("layer", layer.Key()))
	log.Info("extraction starting",
		zap.Int("offset", offset),
		zap.Int("reported_count", layer.RecordCount))

	sinceCommit := 0
	for {
		if err := ctx.Err(); err != nil {
			// Graceful cancellation: everything emitted so far has been
			// durably written, so committing here is safe and lets the
			// next run resume.
			e.commit(ctx, layer.Key(), offset, fetched)
			result.Err = err
			break
		}

		records, err := e.fetchBatch(ctx, layer.QueryURL, offset)
		if err != nil {
			result.FailedBatches++
			result.Err = err
			log.Warn("abandoning layer, checkpoint stays at last committed offset",
				zap.Int("offset", offset), zap.Error(err))
			break
		}
		result.Batches++

		if len(records) == 0 {
			break
		}

		mapped := make([]model.SourceRecord, 0, len(records))
		for _, attrs := range records {
			mapped = append(mapped, mapper(attrs))
		}
		if err := sink.Write(ctx, mapped); err != nil {
			result.Err = fmt.Errorf("failed to persist batch at offset %d: %w", offset, err)
			break
		}

		if e.archiver != nil {
			if err := e.archiver.ArchivePage(ctx, layer.Key(), offset, records); err != nil {
				log.Warn("raw archive write failed", zap.Int("offset", offset), zap.Error(err))
			}
		}

		offset += len(records)
		fetched += len(records)
		sinceCommit += len(records)
		result.Records += len(records)
		metrics.RecordsExtracted.WithLabelValues(layer.Key()).Add(float64(len(records)))

		// Checkpoint cadence bounds write amplification; a crash loses
		// at most one interval of (already persisted, re-fetchable) work.
		if sinceCommit >= e.cfg.CheckpointEvery {
			e.commit(ctx, layer.Key(), offset, fetched)
			sinceCommit = 0
		}

		// A short page means the source is exhausted even when the
		// originally reported count was stale.
		if len(records) < e.cfg.BatchSize {
			break
		}
		if layer.RecordCount > 0 && fetched >= layer.RecordCount {
			break
		}

		if !sleep(ctx, e.cfg.RateDelay) {
			continue // loop re-checks ctx and commits
		}
	}

	if result.Err == nil {
		e.commit(ctx, layer.Key(), offset, fetched)
	}

	result.Duration = time.Since(start)
	log.Info("extraction finished",
		zap.Int("records", result.Records),
		zap.Int("failed_batches", result.FailedBatches),
		zap.Duration("took", result.Duration),
		zap.Error(result.Err))
	return result
}

// ExtractAll drains the given layers with a bounded pool of workers.
// One layer's failure never aborts its siblings; each layer's outcome
// is reported in its Result.
func (e *Extractor) ExtractAll(ctx context.Context, layers []model.DiscoveredLayer, mapper Mapper, sink Sink) []Result {
	tasks := make(chan int)
	results := make([]Result, len(layers))

	done := make(chan struct{})
	for w := 0; w < e.cfg.LayerWorkers; w++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for i := range tasks {
				results[i] = e.ExtractLayer(ctx, layers[i], mapper, sink)
			}
		}()
	}

	for i := range layers {
		select {
		case <-ctx.Done():
		case tasks <- i:
			continue
		}
		break
	}
	close(tasks)
	for w := 0; w < e.cfg.LayerWorkers; w++ {
		<-done
	}
	return results
}

// fetchBatch issues one page request with the fixed retry policy:
// transient failures retry up to the attempt ceiling with a fixed
// delay; malformed responses never retry.
func (e *Extractor) fetchBatch(ctx context.Context, queryURL string, offset int) ([]map[string]any, error) {
	var lastErr error
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		start := time.Now()
		records, err := e.client.QueryPage(ctx, queryURL, offset, e.cfg.BatchSize)
		metrics.BatchDuration.Observe(time.Since(start).Seconds())

		if err == nil {
			metrics.BatchesFetched.WithLabelValues("success").Inc()
			return records, nil
		}
		if apperrors.IsMalformed(err) {
			metrics.BatchesFetched.WithLabelValues("malformed").Inc()
			return nil, err
		}
		metrics.BatchesFetched.WithLabelValues("transient").Inc()
		lastErr = err

		if attempt < e.cfg.MaxAttempts {
			if !sleep(ctx, e.cfg.RetryDelay) {
				return nil, ctx.Err()
			}
		}
	}
	return nil, fmt.Errorf("batch at offset %d failed after %d attempts: %w", offset, e.cfg.MaxAttempts, lastErr)
}

// loadCheckpoint returns the resume position for a layer. A missing
// checkpoint starts from zero; a corrupt one is logged as a warning and
// also starts from zero, never failing the run.
func (e *Extractor) loadCheckpoint(ctx context.Context, layerKey string) (offset, fetched int) {
	cp, err := e.checkpoints.Load(ctx, layerKey)
	if err != nil {
		var corrupt *apperrors.CheckpointCorruptionError
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
		case errors.As(err, &corrupt):
			e.logger.Warn("checkpoint unreadable, restarting layer from zero",
				zap.String("layer", layerKey), zap.Error(err))
		default:
			e.logger.Warn("checkpoint load failed, restarting layer from zero",
				zap.String("layer", layerKey), zap.Error(err))
		}
		return 0, 0
	}
	return cp.NextOffset, cp.RecordsFetched
}

func (e *Extractor) commit(ctx context.Context, layerKey string, offset, fetched int) {
	// Commit with a background-derived context so a canceled run can
	// still record its final durable position.
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
	}
	cp := model.ExtractionCheckpoint{
		LayerKey:       layerKey,
		NextOffset:     offset,
		RecordsFetched: fetched,
		LastUpdated:    time.Now().UTC(),
	}
	if err := e.checkpoints.Commit(ctx, cp); err != nil {
		e.logger.Error("checkpoint commit failed", zap.String("layer", layerKey), zap.Error(err))
		return
	}
	metrics.CheckpointCommits.Inc()
}

// sleep waits for d or until ctx is canceled; it reports whether the
// full delay elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
