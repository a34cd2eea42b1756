package model

import (
	"fmt"
	"time"
)

// DiscoveredLayer describes a queryable layer endpoint found during a
// discovery walk. It is not persisted; the extractor consumes it
// immediately.
type DiscoveredLayer struct {
	ServiceName string `json:"service_name"`
	LayerName   string `json:"layer_name"`
	LayerID     int    `json:"layer_id"`
	QueryURL    string `json:"query_url"`
	RecordCount int    `json:"record_count"`
}

// Key returns the stable per-layer checkpoint key. Concurrent
// extractions of different layers must never share a cursor.
func (l DiscoveredLayer) Key() string {
	return fmt.Sprintf("%s/%d", l.ServiceName, l.LayerID)
}

// ExtractionCheckpoint records how far extraction of one layer has
// durably progressed, so a restart resumes instead of re-fetching.
type ExtractionCheckpoint struct {
	LayerKey       string    `json:"layer_key"`
	NextOffset     int       `json:"next_offset"`
	RecordsFetched int       `json:"records_fetched"`
	LastUpdated    time.Time `json:"last_updated"`
}
