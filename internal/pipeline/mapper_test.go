package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/permitlink/internal/model"
	"github.com/permitlink/internal/normalize"
)

func sourceWith(attrs map[string]any) model.SourceRecord {
	return model.SourceRecord{
		State:        "TN",
		County:       "Williamson",
		RawAddress:   "7243 Murrel Drive",
		SourcePortal: "williamson-gis",
		ScrapedAt:    time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		Attrs:        attrs,
	}
}

func TestPropertyFromSourceCanonicalizesAndScores(t *testing.T) {
	src := sourceWith(map[string]any{
		"OBJECTID":       float64(4412),
		"PARCEL_ID":      "046-123.00",
		"OWNER_NAME":     "SMITH JOHN",
		"CITY":           "FRANKLIN",
		"ZIP":            "37064",
		"ASSESSED_VALUE": float64(125000),
		"MARKET_VALUE":   float64(480000),
		"ACRES":          float64(1.2),
		"YEAR_BUILT":     float64(1998),
		"SQFT":           float64(2450),
		"BEDROOMS":       float64(4),
		"BATHROOMS":      float64(2.5),
	})

	rec := PropertyFromSource(src)

	assert.Equal(t, "7243 MURREL DR", rec.CanonicalAddress)
	assert.Equal(t, normalize.Fingerprint("7243 MURREL DR", "Williamson", "TN"), rec.Fingerprint)
	assert.Equal(t, "046-123.00", rec.ParcelID)
	assert.Equal(t, "SMITH JOHN", rec.OwnerName)
	assert.Equal(t, "4412", rec.SourceObjectID)
	require.NotNil(t, rec.YearBuilt)
	assert.Equal(t, 1998, *rec.YearBuilt)
	require.NotNil(t, rec.Bathrooms)
	assert.Equal(t, 2.5, *rec.Bathrooms)
	assert.Equal(t, 100, rec.QualityScore)
	assert.Equal(t, src.Attrs, rec.Extra)
}

func TestPropertyFromSourceHandlesVendorFieldNames(t *testing.T) {
	src := sourceWith(map[string]any{
		"PIN":      "12-011-0-44",
		"OWN_NAME": "DOE JANE",
		"YR_BUILT": float64(1974),
		"ASSD_VAL": float64(98000),
	})

	rec := PropertyFromSource(src)

	assert.Equal(t, "12-011-0-44", rec.ParcelID)
	assert.Equal(t, "DOE JANE", rec.OwnerName)
	require.NotNil(t, rec.YearBuilt)
	assert.Equal(t, 1974, *rec.YearBuilt)
	require.NotNil(t, rec.AssessedValue)
	assert.Equal(t, 98000.0, *rec.AssessedValue)
}

func TestPropertyFromSourceSparsePayload(t *testing.T) {
	src := sourceWith(map[string]any{"OBJECTID": float64(7)})

	rec := PropertyFromSource(src)

	assert.Equal(t, "7243 MURREL DR", rec.CanonicalAddress)
	assert.Nil(t, rec.YearBuilt)
	assert.Nil(t, rec.AssessedValue)
	// Only the address line of the checklist is satisfied.
	assert.Equal(t, 10, rec.QualityScore)
}

func TestPermitFromSource(t *testing.T) {
	issued := time.Date(2019, 3, 14, 0, 0, 0, 0, time.UTC)
	src := sourceWith(map[string]any{
		"OBJECTID":    float64(901),
		"PERMIT_DATE": float64(issued.UnixMilli()),
		"APPLICANT":   "ACME SEPTIC LLC",
	})

	rec := PermitFromSource(src)

	assert.Equal(t, "7243 MURREL DR", rec.CanonicalAddress)
	assert.Equal(t, normalize.Fingerprint("7243 MURREL DR", "Williamson", "TN"), rec.Fingerprint)
	assert.Equal(t, "ACME SEPTIC LLC", rec.ApplicantName)
	assert.Equal(t, "901", rec.SourceObjectID)
	require.NotNil(t, rec.PermitDate)
	assert.Equal(t, issued, *rec.PermitDate)
	assert.Nil(t, rec.PropertyID)
}

func TestPermitAndPropertyFingerprintsAgree(t *testing.T) {
	// The same street address through either mapper must produce the
	// same fingerprint, or the hash linking tier could never fire.
	prop := PropertyFromSource(sourceWith(map[string]any{}))
	permitSrc := sourceWith(map[string]any{})
	permitSrc.RawAddress = "7243 MURREL DR" // already canonical
	permit := PermitFromSource(permitSrc)

	assert.Equal(t, prop.Fingerprint, permit.Fingerprint)
}

func TestSourceMapperResolvesAddressAndObjectID(t *testing.T) {
	mapper := SourceMapper(model.Jurisdiction{State: "TN", County: "Maury"}, "maury-gis")

	src := mapper(map[string]any{
		"OBJECTID":  float64(55),
		"SITE_ADDR": "  118 Elm Avenue ",
	})

	assert.Equal(t, "TN", src.State)
	assert.Equal(t, "Maury", src.County)
	assert.Equal(t, "maury-gis", src.SourcePortal)
	assert.Equal(t, "118 Elm Avenue", src.RawAddress)
	assert.Equal(t, "55", src.SourceObjectID)
	assert.False(t, src.ScrapedAt.IsZero())
}

func TestFirstDateParsesStringLayouts(t *testing.T) {
	src := sourceWith(map[string]any{"SALE_DATE": "2021-06-30"})
	rec := PropertyFromSource(src)
	require.NotNil(t, rec.LastTransferDate)
	assert.Equal(t, time.Date(2021, 6, 30, 0, 0, 0, 0, time.UTC), *rec.LastTransferDate)
}
