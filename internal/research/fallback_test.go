package research

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/driveline/market-research-go/internal/models"
)

func pinnedClock(year int) func() time.Time {
	return func() time.Time {
		return time.Date(year, time.June, 15, 12, 0, 0, 0, time.UTC)
	}
}

func fallbackQuery(year int) models.VehicleQuery {
	return models.VehicleQuery{Year: year, Make: "Honda", Model: "Civic", Mileage: 30000}
}

func TestFallbackEstimator_DepreciationCurve(t *testing.T) {
	tests := []struct {
		name      string
		age       int
		wantValue int64 // 35000 * (1 - rate)
	}{
		{"new vehicle", 0, 35000},
		{"one year old", 1, 29750},       // rate 0.15
		{"three years old", 3, 22750},    // rate 0.15 + 2*0.10 = 0.35
		{"eight years old", 8, 7000},     // rate capped at 0.80
		{"twenty years old", 20, 7000},   // still capped
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			estimator := NewFallbackEstimator(35000).WithClock(pinnedClock(2025))
			result := estimator.Estimate(fallbackQuery(2025 - tt.age))
			assert.True(t, result.MarketAverage.Equal(decimal.NewFromInt(tt.wantValue)),
				"average = %s, want %d", result.MarketAverage, tt.wantValue)
		})
	}
}

func TestFallbackEstimator_Band(t *testing.T) {
	estimator := NewFallbackEstimator(35000).WithClock(pinnedClock(2025))

	// Three-year-old vehicle: 35000 * 0.65 = 22750
	result := estimator.Estimate(fallbackQuery(2022))

	assert.True(t, result.MarketLow.Equal(decimal.NewFromFloat(19338)), "low = %s", result.MarketLow)    // round(22750*0.85)
	assert.True(t, result.MarketHigh.Equal(decimal.NewFromFloat(26163)), "high = %s", result.MarketHigh) // round(22750*1.15)
	assert.True(t, result.RecommendedAskingPrice.Equal(decimal.NewFromFloat(23888)))                     // round(22750*1.05)
	assert.True(t, result.RecommendedDealerOffer.Equal(decimal.NewFromFloat(19338)))                     // round(22750*0.85)
	assert.True(t, result.MarketLow.LessThanOrEqual(result.MarketAverage))
	assert.True(t, result.MarketAverage.LessThanOrEqual(result.MarketHigh))
}

func TestFallbackEstimator_DegradedSignals(t *testing.T) {
	estimator := NewFallbackEstimator(35000).WithClock(pinnedClock(2025))

	result := estimator.Estimate(fallbackQuery(2021))

	assert.Equal(t, 0, result.TotalComparableListings)
	assert.Equal(t, 0, result.DataSourcesCount)
	assert.Equal(t, models.ConfidencePoor, result.OverallConfidence)
	assert.Equal(t, models.DemandLow, result.MarketDemand)
	assert.Equal(t, models.TrendStable, result.PriceTrend)
	assert.Empty(t, result.Sources)
	assert.Contains(t, result.MarketInsights, "depreciation model")
}

func TestFallbackEstimator_FutureModelYear(t *testing.T) {
	estimator := NewFallbackEstimator(35000).WithClock(pinnedClock(2025))

	// Next model year sold early: treated as age zero, no depreciation
	result := estimator.Estimate(fallbackQuery(2026))
	assert.True(t, result.MarketAverage.Equal(decimal.NewFromInt(35000)))
}
