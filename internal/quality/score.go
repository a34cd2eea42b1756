package quality

import (
	"time"

	"github.com/permitlink/internal/model"
)

// Field weights. They sum to 100, so the score is a percentage of the
// checklist a record satisfies. Zero or implausible values count as
// absent so a portal that pads empty columns with zeros scores the same
// as one that omits them.
const (
	weightAddress       = 10
	weightParcelID      = 10
	weightOwner         = 10
	weightCity          = 5
	weightPostalCode    = 5
	weightAssessedValue = 10
	weightMarketValue   = 10
	weightLotSize       = 10
	weightYearBuilt     = 10
	weightSquareFootage = 10
	weightBedrooms      = 5
	weightBathrooms     = 5
)

// Score rates a property record's completeness on a 0..100 scale.
func Score(rec *model.PropertyRecord) int {
	score := 0
	if rec.CanonicalAddress != "" {
		score += weightAddress
	}
	if rec.ParcelID != "" {
		score += weightParcelID
	}
	if rec.OwnerName != "" {
		score += weightOwner
	}
	if rec.City != "" {
		score += weightCity
	}
	if rec.PostalCode != "" {
		score += weightPostalCode
	}
	if positive(rec.AssessedValue) {
		score += weightAssessedValue
	}
	if positive(rec.MarketValue) {
		score += weightMarketValue
	}
	// Either lot representation satisfies the lot-size line; portals
	// report one or the other, never reliably both.
	if positive(rec.LotAcres) || positive(rec.LotSqFt) {
		score += weightLotSize
	}
	if plausibleYear(rec.YearBuilt) {
		score += weightYearBuilt
	}
	if rec.SquareFootage != nil && *rec.SquareFootage > 0 {
		score += weightSquareFootage
	}
	if rec.Bedrooms != nil && *rec.Bedrooms > 0 {
		score += weightBedrooms
	}
	if positive(rec.Bathrooms) {
		score += weightBathrooms
	}
	return score
}

func positive(v *float64) bool {
	return v != nil && *v > 0
}

func plausibleYear(year *int) bool {
	if year == nil {
		return false
	}
	return *year >= 1700 && *year <= time.Now().Year()+1
}
