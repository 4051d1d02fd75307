package research

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/driveline/market-research-go/internal/models"
)

// Depreciation curve: nothing in the first year on the lot, 15% after one
// year, then 10% per additional year, capped at 80% of the base price.
const (
	firstYearDepreciation = 0.15
	annualDepreciation    = 0.10
	maxDepreciation       = 0.80
)

var fallbackBand = decimal.NewFromFloat(0.15)

// FallbackEstimator produces a depreciation-curve valuation when no live
// comparable data exists, so a research run always yields a usable result.
type FallbackEstimator struct {
	basePrice decimal.Decimal
	now       func() time.Time
}

// NewFallbackEstimator creates an estimator around a generic base MSRP.
func NewFallbackEstimator(baseMSRP float64) *FallbackEstimator {
	return &FallbackEstimator{
		basePrice: decimal.NewFromFloat(baseMSRP),
		now:       time.Now,
	}
}

// WithClock overrides the reference clock used for vehicle age. Intended for
// tests, where the current year must be pinned.
func (e *FallbackEstimator) WithClock(now func() time.Time) *FallbackEstimator {
	e.now = now
	return e
}

// Estimate returns a degraded but valid valuation for the queried vehicle.
// It never fails.
func (e *FallbackEstimator) Estimate(query models.VehicleQuery) models.AggregatedValuation {
	age := e.now().Year() - query.Year
	if age < 0 {
		age = 0
	}

	rate := depreciationRate(age)
	estimatedValue := e.basePrice.Mul(decimal.NewFromFloat(1 - rate)).Round(0)

	one := decimal.NewFromInt(1)
	return models.AggregatedValuation{
		MarketLow:               estimatedValue.Mul(one.Sub(fallbackBand)).Round(0),
		MarketAverage:           estimatedValue,
		MarketHigh:              estimatedValue.Mul(one.Add(fallbackBand)).Round(0),
		RecommendedAskingPrice:  estimatedValue.Mul(askingPremium).Round(0),
		RecommendedDealerOffer:  estimatedValue.Mul(dealerMargin).Round(0),
		TotalComparableListings: 0,
		MarketDemand:            models.DemandLow,
		PriceTrend:              models.TrendStable,
		DataSourcesCount:        0,
		OverallConfidence:       models.ConfidencePoor,
		MarketInsights:          "Unable to find comparable listings. Using depreciation model for estimation.",
		PricingRecommendation:   "Recommendation based on generic depreciation model. Manual research recommended.",
		Sources:                 []models.ListingRecord{},
	}
}

func depreciationRate(age int) float64 {
	var rate float64
	switch {
	case age == 0:
		rate = 0
	case age == 1:
		rate = firstYearDepreciation
	default:
		rate = firstYearDepreciation + float64(age-1)*annualDepreciation
	}
	if rate > maxDepreciation {
		rate = maxDepreciation
	}
	return rate
}
