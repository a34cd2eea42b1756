package model

import (
	"time"

	"github.com/google/uuid"
)

// PermitRecord is one regulatory filing. PropertyID is a weak reference
// to the property the filing describes: it is set once by the linker and
// never overwritten, and deleting a property must not delete its permits.
type PermitRecord struct {
	ID     uuid.UUID `json:"id"`
	State  string    `json:"state"`
	County string    `json:"county"`

	RawAddress       string `json:"raw_address"`
	CanonicalAddress string `json:"canonical_address"`
	Fingerprint      string `json:"fingerprint"`

	PermitDate    *time.Time `json:"permit_date,omitempty"`
	ApplicantName string     `json:"applicant_name,omitempty"`

	PropertyID *uuid.UUID `json:"property_id,omitempty"`

	SourcePortal   string    `json:"source_portal"`
	SourceObjectID string    `json:"source_object_id"`
	ScrapedAt      time.Time `json:"scraped_at"`

	Extra map[string]any `json:"extra,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Jurisdiction returns the (state, county) scope that owns the record.
func (p *PermitRecord) Jurisdiction() Jurisdiction {
	return Jurisdiction{State: p.State, County: p.County}
}
