package model

import (
	"strconv"
	"strings"
	"time"
)

// Jurisdiction is the (state, county) scope within which canonical
// addresses are assumed unique for matching purposes.
type Jurisdiction struct {
	State  string `json:"state"`
	County string `json:"county"`
}

func (j Jurisdiction) String() string {
	return j.County + ", " + j.State
}

// SourceRecord is the common intermediate shape every extractor adapter
// produces: the mandatory jurisdiction/address/provenance fields plus a
// flat bag of platform-specific attributes the core does not interpret.
type SourceRecord struct {
	State          string    `json:"jurisdiction_state"`
	County         string    `json:"jurisdiction_county"`
	RawAddress     string    `json:"raw_address"`
	SourcePortal   string    `json:"source_portal_code"`
	SourceObjectID string    `json:"source_object_id"`
	ScrapedAt      time.Time `json:"scraped_at"`

	Attrs map[string]any `json:"attrs"`
}

// Str returns the named attribute as a trimmed string, or "" when the
// attribute is missing, null, or not scalar text.
func (r *SourceRecord) Str(key string) string {
	v, ok := r.Attrs[key]
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	default:
		return ""
	}
}

// Num returns the named attribute as a float64 when it carries a
// numeric value. JSON decoding yields float64 for all numbers; DBF
// attributes arrive as text and are parsed.
func (r *SourceRecord) Num(key string) (float64, bool) {
	v, ok := r.Attrs[key]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
