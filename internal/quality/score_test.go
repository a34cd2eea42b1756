package quality

import (
	"testing"
	"time"

	"github.com/permitlink/internal/model"
)

func fptr(v float64) *float64 { return &v }
func iptr(v int) *int         { return &v }

func fullRecord() *model.PropertyRecord {
	return &model.PropertyRecord{
		CanonicalAddress: "7243 MURREL DR",
		ParcelID:         "046-123.00",
		OwnerName:        "SMITH JOHN",
		City:             "FRANKLIN",
		PostalCode:       "37064",
		AssessedValue:    fptr(125000),
		MarketValue:      fptr(480000),
		LotAcres:         fptr(1.2),
		YearBuilt:        iptr(1998),
		SquareFootage:    iptr(2450),
		Bedrooms:         iptr(4),
		Bathrooms:        fptr(2.5),
	}
}

func TestScoreCompleteRecord(t *testing.T) {
	if got := Score(fullRecord()); got != 100 {
		t.Errorf("complete record scored %d, want 100", got)
	}
}

func TestScoreEmptyRecord(t *testing.T) {
	if got := Score(&model.PropertyRecord{}); got != 0 {
		t.Errorf("empty record scored %d, want 0", got)
	}
}

func TestScoreFieldWeights(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.PropertyRecord)
		want   int
	}{
		{"missing address", func(r *model.PropertyRecord) { r.CanonicalAddress = "" }, 90},
		{"missing parcel", func(r *model.PropertyRecord) { r.ParcelID = "" }, 90},
		{"missing owner", func(r *model.PropertyRecord) { r.OwnerName = "" }, 90},
		{"missing city", func(r *model.PropertyRecord) { r.City = "" }, 95},
		{"missing postal code", func(r *model.PropertyRecord) { r.PostalCode = "" }, 95},
		{"missing assessed value", func(r *model.PropertyRecord) { r.AssessedValue = nil }, 90},
		{"missing market value", func(r *model.PropertyRecord) { r.MarketValue = nil }, 90},
		{"missing year built", func(r *model.PropertyRecord) { r.YearBuilt = nil }, 90},
		{"missing square footage", func(r *model.PropertyRecord) { r.SquareFootage = nil }, 90},
		{"missing bedrooms", func(r *model.PropertyRecord) { r.Bedrooms = nil }, 95},
		{"missing bathrooms", func(r *model.PropertyRecord) { r.Bathrooms = nil }, 95},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := fullRecord()
			tt.mutate(rec)
			if got := Score(rec); got != tt.want {
				t.Errorf("Score() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestScoreZeroValuesCountAsAbsent(t *testing.T) {
	rec := fullRecord()
	rec.AssessedValue = fptr(0)
	rec.SquareFootage = iptr(0)
	rec.Bedrooms = iptr(0)
	if got := Score(rec); got != 75 {
		t.Errorf("zero-padded record scored %d, want 75", got)
	}
}

func TestScoreImplausibleYearCountsAsAbsent(t *testing.T) {
	tests := []struct {
		name string
		year int
		want int
	}{
		{"year zero", 0, 90},
		{"before settlement", 1492, 90},
		{"far future", time.Now().Year() + 50, 90},
		{"next year is a build in progress", time.Now().Year() + 1, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := fullRecord()
			rec.YearBuilt = iptr(tt.year)
			if got := Score(rec); got != tt.want {
				t.Errorf("Score() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestScoreAcceptsEitherLotRepresentation(t *testing.T) {
	acres := fullRecord()
	acres.LotSqFt = nil
	if got := Score(acres); got != 100 {
		t.Errorf("acres-only record scored %d, want 100", got)
	}

	sqft := fullRecord()
	sqft.LotAcres = nil
	sqft.LotSqFt = fptr(52000)
	if got := Score(sqft); got != 100 {
		t.Errorf("sqft-only record scored %d, want 100", got)
	}

	neither := fullRecord()
	neither.LotAcres = nil
	neither.LotSqFt = nil
	if got := Score(neither); got != 90 {
		t.Errorf("lotless record scored %d, want 90", got)
	}
}
