package research

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/driveline/market-research-go/internal/models"
)

// Pricing recommendations are derived from the market average with a fixed
// 5% asking premium and a 15% dealer margin.
var (
	askingPremium = decimal.NewFromFloat(1.05)
	dealerMargin  = decimal.NewFromFloat(0.85)
)

// StatisticalAggregator combines filtered comparable listings into a single
// valuation: percentile-based price bounds, demand and confidence
// classification, and the narrative summaries shown to the vehicle owner.
type StatisticalAggregator struct{}

// NewStatisticalAggregator creates an aggregator.
func NewStatisticalAggregator() *StatisticalAggregator {
	return &StatisticalAggregator{}
}

// Aggregate computes the valuation for a non-empty listing pool. Callers must
// route empty pools to the fallback estimator instead.
func (a *StatisticalAggregator) Aggregate(records []models.ListingRecord) models.AggregatedValuation {
	prices := sortedPrices(records)

	marketLow := percentileValue(prices, 0.1)
	marketHigh := percentileValue(prices, 0.9)
	marketAverage := meanPrice(prices)

	// Percentiles of a skewed pool can land on the wrong side of the mean;
	// clamp so low <= average <= high holds for every output
	if marketLow.GreaterThan(marketAverage) {
		marketLow = marketAverage
	}
	if marketHigh.LessThan(marketAverage) {
		marketHigh = marketAverage
	}

	demand := classifyDemand(len(records))
	sourcesCount := countDistinctSources(records)
	confidence := classifyConfidence(len(records), sourcesCount)

	valuation := models.AggregatedValuation{
		MarketLow:               marketLow,
		MarketAverage:           marketAverage,
		MarketHigh:              marketHigh,
		RecommendedAskingPrice:  marketAverage.Mul(askingPremium).Round(0),
		RecommendedDealerOffer:  marketAverage.Mul(dealerMargin).Round(0),
		TotalComparableListings: len(records),
		AverageDaysToSell:       averageDaysToSell(records),
		MarketDemand:            demand,
		PriceTrend:              models.TrendStable,
		DataSourcesCount:        sourcesCount,
		OverallConfidence:       confidence,
		Sources:                 records,
	}

	valuation.MarketInsights = generateInsights(valuation)
	valuation.PricingRecommendation = generateRecommendation(valuation)
	return valuation
}

// sortedPrices extracts the positive asking prices in ascending order.
func sortedPrices(records []models.ListingRecord) []decimal.Decimal {
	prices := make([]decimal.Decimal, 0, len(records))
	for _, record := range records {
		if record.HasPrice() {
			prices = append(prices, *record.AskingPrice)
		}
	}
	sort.Slice(prices, func(i, j int) bool { return prices[i].LessThan(prices[j]) })
	return prices
}

// percentileValue returns the element at the rank-ordered percentile index.
// With very small pools the indices collapse toward the same element, which
// is accepted behavior rather than an error.
func percentileValue(prices []decimal.Decimal, pct float64) decimal.Decimal {
	if len(prices) == 0 {
		return decimal.Zero
	}
	idx := int(math.Floor(float64(len(prices)) * pct))
	if idx >= len(prices) {
		idx = len(prices) - 1
	}
	return prices[idx]
}

func meanPrice(prices []decimal.Decimal) decimal.Decimal {
	if len(prices) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, p := range prices {
		sum = sum.Add(p)
	}
	return sum.Div(decimal.NewFromInt(int64(len(prices)))).Round(0)
}

func averageDaysToSell(records []models.ListingRecord) *int {
	var sum, count int
	for _, record := range records {
		if record.DaysOnMarket != nil && *record.DaysOnMarket > 0 {
			sum += *record.DaysOnMarket
			count++
		}
	}
	if count == 0 {
		return nil
	}
	avg := int(math.Round(float64(sum) / float64(count)))
	return &avg
}

// classifyDemand is a step function purely on comparable listing count.
func classifyDemand(listingCount int) models.MarketDemand {
	switch {
	case listingCount > 50:
		return models.DemandVeryHigh
	case listingCount > 25:
		return models.DemandHigh
	case listingCount > 10:
		return models.DemandModerate
	case listingCount > 5:
		return models.DemandLow
	default:
		return models.DemandVeryLow
	}
}

func classifyConfidence(listingCount, sourcesCount int) models.ConfidenceLevel {
	switch {
	case listingCount >= 20 && sourcesCount >= 2:
		return models.ConfidenceExcellent
	case listingCount >= 10 && sourcesCount >= 2:
		return models.ConfidenceGood
	case listingCount >= 5:
		return models.ConfidenceFair
	default:
		return models.ConfidencePoor
	}
}

func countDistinctSources(records []models.ListingRecord) int {
	seen := make(map[string]struct{})
	for _, record := range records {
		seen[record.SourceName] = struct{}{}
	}
	return len(seen)
}

func generateInsights(v models.AggregatedValuation) string {
	insights := []string{
		fmt.Sprintf("Found %d comparable listings across %d market sources.", v.TotalComparableListings, v.DataSourcesCount),
		fmt.Sprintf("Price range: $%s - $%s", formatAmount(v.MarketLow), formatAmount(v.MarketHigh)),
		fmt.Sprintf("Market average: $%s", formatAmount(v.MarketAverage)),
	}

	switch v.MarketDemand {
	case models.DemandVeryHigh, models.DemandHigh:
		insights = append(insights, "Strong market demand suggests this vehicle will sell quickly.")
	case models.DemandLow, models.DemandVeryLow:
		insights = append(insights, "Limited comparable listings may indicate niche market or low supply.")
	}

	return strings.Join(insights, " ")
}

func generateRecommendation(v models.AggregatedValuation) string {
	recs := []string{
		fmt.Sprintf("Based on %s confidence market data:", v.OverallConfidence),
		fmt.Sprintf("Recommended asking price: $%s", formatAmount(v.RecommendedAskingPrice)),
		fmt.Sprintf("Competitive dealer offer: $%s", formatAmount(v.RecommendedDealerOffer)),
	}

	if v.MarketDemand == models.DemandVeryHigh || v.MarketDemand == models.DemandHigh {
		recs = append(recs, "Strong demand allows for pricing at the higher end of the range.")
	}

	return strings.Join(recs, " ")
}

// formatAmount renders a whole-dollar amount with thousands separators.
func formatAmount(d decimal.Decimal) string {
	s := d.Round(0).StringFixed(0)
	negative := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	var parts []string
	for len(s) > 3 {
		parts = append([]string{s[len(s)-3:]}, parts...)
		s = s[:len(s)-3]
	}
	parts = append([]string{s}, parts...)

	out := strings.Join(parts, ",")
	if negative {
		out = "-" + out
	}
	return out
}
