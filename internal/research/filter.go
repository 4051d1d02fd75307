package research

import (
	"github.com/shopspring/decimal"

	"github.com/driveline/market-research-go/internal/models"
)

// RelevanceFilter discards pooled listings that are not meaningful
// comparables for the queried vehicle. It is deliberately permissive on
// missing fields, so a sparse record is never dropped for what it does not
// report, and strict on present-but-implausible ones.
type RelevanceFilter struct {
	maxMileageDelta int
	minPrice        decimal.Decimal
	maxPrice        decimal.Decimal
}

// NewRelevanceFilter creates a filter with the given mileage proximity window
// and price sanity bounds.
func NewRelevanceFilter(maxMileageDelta int, minPrice, maxPrice float64) *RelevanceFilter {
	return &RelevanceFilter{
		maxMileageDelta: maxMileageDelta,
		minPrice:        decimal.NewFromFloat(minPrice),
		maxPrice:        decimal.NewFromFloat(maxPrice),
	}
}

// Filter returns the listings that survive all relevance rules. Pure: no
// I/O, and the input slice is never mutated.
func (f *RelevanceFilter) Filter(records []models.ListingRecord, query models.VehicleQuery) []models.ListingRecord {
	filtered := make([]models.ListingRecord, 0, len(records))
	for _, record := range records {
		if f.matches(record, query) {
			filtered = append(filtered, record)
		}
	}
	return filtered
}

func (f *RelevanceFilter) matches(record models.ListingRecord, query models.VehicleQuery) bool {
	// Year must match exactly when reported
	if record.Year != nil && *record.Year != query.Year {
		return false
	}

	// Mileage must be within the proximity window when reported
	if record.Mileage != nil && absInt(*record.Mileage-query.Mileage) > f.maxMileageDelta {
		return false
	}

	// Asking price must be inside the sanity bounds when reported; this
	// drops data-entry errors and non-comparable luxury/junk outliers
	if record.AskingPrice != nil {
		if record.AskingPrice.LessThan(f.minPrice) || record.AskingPrice.GreaterThan(f.maxPrice) {
			return false
		}
	}

	return true
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
