package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/permitlink/internal/apperrors"
	"github.com/permitlink/internal/arcgis"
	"github.com/permitlink/internal/config"
	"github.com/permitlink/internal/model"
)

type memCheckpoints struct {
	mu      sync.Mutex
	cps     map[string]model.ExtractionCheckpoint
	loadErr error
	commits int
}

func newMemCheckpoints() *memCheckpoints {
	return &memCheckpoints{cps: map[string]model.ExtractionCheckpoint{}}
}

func (m *memCheckpoints) Load(_ context.Context, layerKey string) (*model.ExtractionCheckpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	cp, ok := m.cps[layerKey]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return &cp, nil
}

func (m *memCheckpoints) Commit(_ context.Context, cp model.ExtractionCheckpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cps[cp.LayerKey] = cp
	m.commits++
	return nil
}

func (m *memCheckpoints) get(layerKey string) (model.ExtractionCheckpoint, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp, ok := m.cps[layerKey]
	return cp, ok
}

type memSink struct {
	mu      sync.Mutex
	records []model.SourceRecord
	err     error
}

func (s *memSink) Write(_ context.Context, records []model.SourceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, records...)
	return nil
}

func (s *memSink) all() []model.SourceRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.SourceRecord(nil), s.records...)
}

// fakeLayerServer serves a fixed population of records with ArcGIS
// offset pagination. failFirst makes the first N requests return 500.
func fakeLayerServer(t *testing.T, total int, failFirst int) (*httptest.Server, *int) {
	t.Helper()
	requests := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests <= failFirst {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		offset, _ := strconv.Atoi(r.URL.Query().Get("resultOffset"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("resultRecordCount"))

		type feature struct {
			Attributes map[string]any `json:"attributes"`
		}
		var features []feature
		for i := offset; i < total && i < offset+limit; i++ {
			features = append(features, feature{Attributes: map[string]any{
				"OBJECTID": float64(i),
				"ADDRESS":  fmt.Sprintf("%d Main St", i),
			}})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"features": features})
	})
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, &requests
}

func testMapper(attrs map[string]any) model.SourceRecord {
	addr, _ := attrs["ADDRESS"].(string)
	return model.SourceRecord{
		State:      "TN",
		County:     "Williamson",
		RawAddress: addr,
		Attrs:      attrs,
	}
}

func testExtractor(cps CheckpointStore, cfg config.ExtractConfig) *Extractor {
	client := arcgis.NewClient(5*time.Second, "", zap.NewNop())
	return NewExtractor(client, cps, nil, cfg, zap.NewNop())
}

func testConfig() config.ExtractConfig {
	return config.ExtractConfig{
		BatchSize:       10,
		MaxAttempts:     3,
		RetryDelay:      time.Millisecond,
		RateDelay:       0,
		CheckpointEvery: 1000,
		LayerWorkers:    2,
	}
}

func layerFor(srv *httptest.Server, count int) model.DiscoveredLayer {
	return model.DiscoveredLayer{
		ServiceName: "Septic_Permits",
		LayerName:   "Permits",
		LayerID:     0,
		QueryURL:    srv.URL + "/query",
		RecordCount: count,
	}
}

func TestExtractLayerDrainsAllPages(t *testing.T) {
	srv, requests := fakeLayerServer(t, 25, 0)
	cps := newMemCheckpoints()
	sink := &memSink{}

	ex := testExtractor(cps, testConfig())
	result := ex.ExtractLayer(context.Background(), layerFor(srv, 25), testMapper, sink)

	require.NoError(t, result.Err)
	assert.Equal(t, 25, result.Records)
	assert.Equal(t, 3, result.Batches)
	assert.Equal(t, 0, result.FailedBatches)
	assert.False(t, result.Resumed)
	assert.Equal(t, 3, *requests)

	records := sink.all()
	require.Len(t, records, 25)
	assert.Equal(t, "0 Main St", records[0].RawAddress)
	assert.Equal(t, "24 Main St", records[24].RawAddress)

	cp, ok := cps.get("Septic_Permits/0")
	require.True(t, ok)
	assert.Equal(t, 25, cp.NextOffset)
	assert.Equal(t, 25, cp.RecordsFetched)
}

func TestExtractLayerResumesFromCheckpoint(t *testing.T) {
	srv, _ := fakeLayerServer(t, 25, 0)
	cps := newMemCheckpoints()
	require.NoError(t, cps.Commit(context.Background(), model.ExtractionCheckpoint{
		LayerKey:       "Septic_Permits/0",
		NextOffset:     10,
		RecordsFetched: 10,
	}))
	cps.commits = 0
	sink := &memSink{}

	ex := testExtractor(cps, testConfig())
	result := ex.ExtractLayer(context.Background(), layerFor(srv, 25), testMapper, sink)

	require.NoError(t, result.Err)
	assert.True(t, result.Resumed)
	assert.Equal(t, 15, result.Records)

	records := sink.all()
	require.Len(t, records, 15)
	assert.Equal(t, "10 Main St", records[0].RawAddress)

	cp, _ := cps.get("Septic_Permits/0")
	assert.Equal(t, 25, cp.NextOffset)
	assert.Equal(t, 25, cp.RecordsFetched)
}

func TestExtractLayerRetriesTransientFailures(t *testing.T) {
	srv, requests := fakeLayerServer(t, 5, 2)
	cps := newMemCheckpoints()
	sink := &memSink{}

	ex := testExtractor(cps, testConfig())
	result := ex.ExtractLayer(context.Background(), layerFor(srv, 5), testMapper, sink)

	require.NoError(t, result.Err)
	assert.Equal(t, 5, result.Records)
	assert.Equal(t, 3, *requests)
}

func TestExtractLayerAbandonsAfterMaxAttempts(t *testing.T) {
	srv, requests := fakeLayerServer(t, 5, 100)
	cps := newMemCheckpoints()
	sink := &memSink{}

	ex := testExtractor(cps, testConfig())
	result := ex.ExtractLayer(context.Background(), layerFor(srv, 5), testMapper, sink)

	require.Error(t, result.Err)
	assert.Equal(t, 1, result.FailedBatches)
	assert.Equal(t, 0, result.Records)
	assert.Equal(t, 3, *requests)

	// The failed batch never advanced the checkpoint.
	_, ok := cps.get("Septic_Permits/0")
	assert.False(t, ok)
}

func TestExtractLayerNeverRetriesMalformedResponses(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests++
		_, _ = w.Write([]byte("<html>not json</html>"))
	}))
	t.Cleanup(srv.Close)

	cps := newMemCheckpoints()
	sink := &memSink{}

	ex := testExtractor(cps, testConfig())
	result := ex.ExtractLayer(context.Background(), layerFor(srv, 5), testMapper, sink)

	require.Error(t, result.Err)
	assert.True(t, apperrors.IsMalformed(result.Err))
	assert.Equal(t, 1, requests)
}

func TestExtractLayerStopsOnShortPage(t *testing.T) {
	// Reported count of 100 is stale; the source only has 7 records.
	srv, requests := fakeLayerServer(t, 7, 0)
	cps := newMemCheckpoints()
	sink := &memSink{}

	ex := testExtractor(cps, testConfig())
	result := ex.ExtractLayer(context.Background(), layerFor(srv, 100), testMapper, sink)

	require.NoError(t, result.Err)
	assert.Equal(t, 7, result.Records)
	assert.Equal(t, 1, *requests)
}

func TestExtractLayerDoesNotAdvancePastFailedSink(t *testing.T) {
	srv, _ := fakeLayerServer(t, 25, 0)
	cps := newMemCheckpoints()
	sink := &memSink{err: fmt.Errorf("connection reset")}

	ex := testExtractor(cps, testConfig())
	result := ex.ExtractLayer(context.Background(), layerFor(srv, 25), testMapper, sink)

	require.Error(t, result.Err)
	_, ok := cps.get("Septic_Permits/0")
	assert.False(t, ok)
}

func TestExtractLayerHonorsCheckpointCadence(t *testing.T) {
	srv, _ := fakeLayerServer(t, 30, 0)
	cps := newMemCheckpoints()
	sink := &memSink{}

	cfg := testConfig()
	cfg.CheckpointEvery = 10
	ex := testExtractor(cps, cfg)
	result := ex.ExtractLayer(context.Background(), layerFor(srv, 30), testMapper, sink)

	require.NoError(t, result.Err)
	// One commit per full interval plus the final commit.
	assert.Equal(t, 4, cps.commits)
}

func TestExtractLayerRestartsOnCorruptCheckpoint(t *testing.T) {
	srv, _ := fakeLayerServer(t, 5, 0)
	cps := newMemCheckpoints()
	cps.loadErr = &apperrors.CheckpointCorruptionError{
		LayerKey: "Septic_Permits/0",
		Err:      fmt.Errorf("negative offset"),
	}
	sink := &memSink{}

	ex := testExtractor(cps, testConfig())
	result := ex.ExtractLayer(context.Background(), layerFor(srv, 5), testMapper, sink)

	require.NoError(t, result.Err)
	assert.Equal(t, 5, result.Records)
	assert.False(t, result.Resumed)
}

func TestExtractAllIsolatesLayerFailures(t *testing.T) {
	good, _ := fakeLayerServer(t, 12, 0)
	bad, _ := fakeLayerServer(t, 12, 100)

	layers := []model.DiscoveredLayer{
		{ServiceName: "Good", LayerID: 0, QueryURL: good.URL + "/query", RecordCount: 12},
		{ServiceName: "Bad", LayerID: 0, QueryURL: bad.URL + "/query", RecordCount: 12},
	}

	cps := newMemCheckpoints()
	sink := &memSink{}
	ex := testExtractor(cps, testConfig())

	results := ex.ExtractAll(context.Background(), layers, testMapper, sink)
	require.Len(t, results, 2)

	byKey := map[string]Result{}
	for _, r := range results {
		byKey[r.LayerKey] = r
	}
	assert.NoError(t, byKey["Good/0"].Err)
	assert.Equal(t, 12, byKey["Good/0"].Records)
	assert.Error(t, byKey["Bad/0"].Err)
	assert.Equal(t, 1, byKey["Bad/0"].FailedBatches)
	assert.Len(t, sink.all(), 12)
}
