package model

import (
	"time"

	"github.com/google/uuid"
)

// PropertyRecord is one parcel/assessment entity scoped to a jurisdiction.
// At most one active record may exist per (fingerprint, state, county);
// superseded records are marked inactive, never deleted.
type PropertyRecord struct {
	ID     uuid.UUID `json:"id"`
	State  string    `json:"state"`
	County string    `json:"county"`

	RawAddress       string `json:"raw_address"`
	CanonicalAddress string `json:"canonical_address"`
	Fingerprint      string `json:"fingerprint"`

	ParcelID   string `json:"parcel_id"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`

	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`

	YearBuilt        *int     `json:"year_built,omitempty"`
	SquareFootage    *int     `json:"square_footage,omitempty"`
	Bedrooms         *int     `json:"bedrooms,omitempty"`
	Bathrooms        *float64 `json:"bathrooms,omitempty"`
	ConstructionType string   `json:"construction_type,omitempty"`

	LotAcres *float64 `json:"lot_acres,omitempty"`
	LotSqFt  *float64 `json:"lot_sqft,omitempty"`

	AssessedValue *float64 `json:"assessed_value,omitempty"`
	MarketValue   *float64 `json:"market_value,omitempty"`

	OwnerName    string `json:"owner_name,omitempty"`
	OwnerAddress string `json:"owner_address,omitempty"`

	LastTransferDate  *time.Time `json:"last_transfer_date,omitempty"`
	LastTransferPrice *float64   `json:"last_transfer_price,omitempty"`

	SourcePortal   string    `json:"source_portal"`
	SourceObjectID string    `json:"source_object_id"`
	ScrapedAt      time.Time `json:"scraped_at"`

	QualityScore int  `json:"quality_score"`
	Active       bool `json:"active"`

	// Extra holds platform-specific attributes the core does not interpret.
	Extra map[string]any `json:"extra,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Jurisdiction returns the (state, county) scope that owns the record.
func (p *PropertyRecord) Jurisdiction() Jurisdiction {
	return Jurisdiction{State: p.State, County: p.County}
}
