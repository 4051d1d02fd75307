package research

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driveline/market-research-go/internal/models"
)

// thirtySyntheticListings builds 30 same-year listings priced 10000..39000 in
// 1000 steps, split across two sources.
func thirtySyntheticListings() []models.ListingRecord {
	records := make([]models.ListingRecord, 0, 30)
	for i := 0; i < 30; i++ {
		source := "cargurus"
		if i%2 == 1 {
			source = "autotrader"
		}
		records = append(records, makeListing(source, float64(10000+i*1000), 45000, 2020))
	}
	return records
}

func TestStatisticalAggregator_PercentileBounds(t *testing.T) {
	aggregator := NewStatisticalAggregator()

	result := aggregator.Aggregate(thirtySyntheticListings())

	// 30 prices: 10th percentile index 3 -> 13000, 90th index 27 -> 37000
	assert.True(t, result.MarketLow.Equal(decimal.NewFromInt(13000)), "low = %s", result.MarketLow)
	assert.True(t, result.MarketHigh.Equal(decimal.NewFromInt(37000)), "high = %s", result.MarketHigh)
	assert.True(t, result.MarketAverage.Equal(decimal.NewFromInt(24500)), "average = %s", result.MarketAverage)
}

func TestStatisticalAggregator_Recommendations(t *testing.T) {
	aggregator := NewStatisticalAggregator()

	result := aggregator.Aggregate(thirtySyntheticListings())

	// 24500 * 1.05 and 24500 * 0.85
	assert.True(t, result.RecommendedAskingPrice.Equal(decimal.NewFromInt(25725)))
	assert.True(t, result.RecommendedDealerOffer.Equal(decimal.NewFromInt(20825)))
}

func TestStatisticalAggregator_DemandAndConfidence(t *testing.T) {
	aggregator := NewStatisticalAggregator()

	result := aggregator.Aggregate(thirtySyntheticListings())

	// count=30 -> high demand; 30 listings from 2 sources -> excellent
	assert.Equal(t, models.DemandHigh, result.MarketDemand)
	assert.Equal(t, 2, result.DataSourcesCount)
	assert.Equal(t, models.ConfidenceExcellent, result.OverallConfidence)
	assert.Equal(t, 30, result.TotalComparableListings)
	assert.Equal(t, models.TrendStable, result.PriceTrend)
}

func TestStatisticalAggregator_DemandThresholds(t *testing.T) {
	tests := []struct {
		count  int
		demand models.MarketDemand
	}{
		{3, models.DemandVeryLow},
		{5, models.DemandVeryLow},
		{6, models.DemandLow},
		{10, models.DemandLow},
		{11, models.DemandModerate},
		{25, models.DemandModerate},
		{26, models.DemandHigh},
		{50, models.DemandHigh},
		{51, models.DemandVeryHigh},
	}

	aggregator := NewStatisticalAggregator()
	for _, tt := range tests {
		t.Run(fmt.Sprintf("count_%d", tt.count), func(t *testing.T) {
			records := make([]models.ListingRecord, 0, tt.count)
			for i := 0; i < tt.count; i++ {
				records = append(records, makeListing("cargurus", 20000, 45000, 2020))
			}
			result := aggregator.Aggregate(records)
			assert.Equal(t, tt.demand, result.MarketDemand)
		})
	}
}

func TestStatisticalAggregator_ConfidenceNeedsSourceDiversity(t *testing.T) {
	aggregator := NewStatisticalAggregator()

	// 25 listings from a single source cannot be better than fair
	records := make([]models.ListingRecord, 0, 25)
	for i := 0; i < 25; i++ {
		records = append(records, makeListing("cargurus", 20000, 45000, 2020))
	}
	result := aggregator.Aggregate(records)
	assert.Equal(t, models.ConfidenceFair, result.OverallConfidence)
	assert.Equal(t, 1, result.DataSourcesCount)
}

func TestStatisticalAggregator_OrderingInvariant(t *testing.T) {
	aggregator := NewStatisticalAggregator()

	pools := [][]models.ListingRecord{
		thirtySyntheticListings(),
		{makeListing("cargurus", 20000, 45000, 2020)},
		{
			makeListing("cargurus", 5000, 45000, 2020),
			makeListing("cargurus", 5000, 45000, 2020),
			makeListing("cargurus", 499000, 45000, 2020),
		},
		{
			// Heavily skewed pool where the mean lands below the 10th
			// percentile element
			makeListing("cargurus", 5000, 45000, 2020),
			makeListing("autotrader", 100000, 45000, 2020),
			makeListing("autotrader", 100000, 45000, 2020),
			makeListing("autotrader", 100000, 45000, 2020),
			makeListing("autotrader", 100000, 45000, 2020),
			makeListing("autotrader", 100000, 45000, 2020),
			makeListing("autotrader", 100000, 45000, 2020),
			makeListing("autotrader", 100000, 45000, 2020),
			makeListing("autotrader", 100000, 45000, 2020),
			makeListing("autotrader", 100000, 45000, 2020),
			makeListing("autotrader", 100000, 45000, 2020),
		},
	}

	for i, pool := range pools {
		result := aggregator.Aggregate(pool)
		assert.True(t, result.MarketLow.LessThanOrEqual(result.MarketAverage), "pool %d: low > average", i)
		assert.True(t, result.MarketAverage.LessThanOrEqual(result.MarketHigh), "pool %d: average > high", i)
	}
}

func TestStatisticalAggregator_SmallPoolCollapses(t *testing.T) {
	aggregator := NewStatisticalAggregator()

	// With two prices both percentile indices resolve near the same element;
	// accepted behavior, not an error
	result := aggregator.Aggregate([]models.ListingRecord{
		makeListing("cargurus", 20000, 45000, 2020),
		makeListing("cargurus", 22000, 45000, 2020),
	})

	assert.True(t, result.MarketLow.LessThanOrEqual(result.MarketHigh))
	assert.Equal(t, models.ConfidencePoor, result.OverallConfidence)
}

func TestStatisticalAggregator_AverageDaysToSell(t *testing.T) {
	aggregator := NewStatisticalAggregator()

	withDays := makeListing("cargurus", 20000, 45000, 2020)
	days1 := 30
	withDays.DaysOnMarket = &days1

	alsoWithDays := makeListing("cargurus", 21000, 45000, 2020)
	days2 := 45
	alsoWithDays.DaysOnMarket = &days2

	withoutDays := makeListing("autotrader", 22000, 45000, 2020)

	result := aggregator.Aggregate([]models.ListingRecord{withDays, alsoWithDays, withoutDays})
	require.NotNil(t, result.AverageDaysToSell)
	assert.Equal(t, 38, *result.AverageDaysToSell) // round(75/2)

	noDays := aggregator.Aggregate([]models.ListingRecord{withoutDays})
	assert.Nil(t, noDays.AverageDaysToSell)
}

func TestStatisticalAggregator_NarrativeOutput(t *testing.T) {
	aggregator := NewStatisticalAggregator()

	result := aggregator.Aggregate(thirtySyntheticListings())

	assert.Contains(t, result.MarketInsights, "Found 30 comparable listings across 2 market sources.")
	assert.Contains(t, result.MarketInsights, "Price range: $13,000 - $37,000")
	assert.Contains(t, result.MarketInsights, "Market average: $24,500")
	assert.Contains(t, result.MarketInsights, "sell quickly")

	assert.Contains(t, result.PricingRecommendation, "Based on excellent confidence market data:")
	assert.Contains(t, result.PricingRecommendation, "Recommended asking price: $25,725")
	assert.Contains(t, result.PricingRecommendation, "Competitive dealer offer: $20,825")
}

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{24500, "24,500"},
		{1234567, "1,234,567"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatAmount(decimal.NewFromInt(tt.in)))
	}
}
