package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketDemand classifies how actively comparable vehicles are trading.
type MarketDemand string

const (
	DemandVeryHigh MarketDemand = "very_high"
	DemandHigh     MarketDemand = "high"
	DemandModerate MarketDemand = "moderate"
	DemandLow      MarketDemand = "low"
	DemandVeryLow  MarketDemand = "very_low"
)

// PriceTrend describes the movement of the market average over time.
type PriceTrend string

const (
	TrendIncreasing PriceTrend = "increasing"
	TrendStable     PriceTrend = "stable"
	TrendDecreasing PriceTrend = "decreasing"
)

// ConfidenceLevel grades how trustworthy an aggregated valuation is.
type ConfidenceLevel string

const (
	ConfidenceExcellent ConfidenceLevel = "excellent"
	ConfidenceGood      ConfidenceLevel = "good"
	ConfidenceFair      ConfidenceLevel = "fair"
	ConfidencePoor      ConfidenceLevel = "poor"
)

// VehicleQuery describes the vehicle being priced. It is built once per
// research request and never mutated afterwards.
type VehicleQuery struct {
	VIN     string `json:"vin,omitempty"`
	Year    int    `json:"year"`
	Make    string `json:"make"`
	Model   string `json:"model"`
	Trim    string `json:"trim,omitempty"`
	Mileage int    `json:"mileage"`
	ZipCode string `json:"zip_code,omitempty"`
}

// ListingRecord is one normalized comparable listing produced by a source
// adapter. Records live only for the duration of a research run; a summarized
// subset is persisted afterwards.
type ListingRecord struct {
	SourceName      string                 `json:"source_name" db:"source_name"`
	SourceURL       string                 `json:"source_url,omitempty" db:"source_url"`
	AskingPrice     *decimal.Decimal       `json:"asking_price,omitempty" db:"asking_price"`
	Mileage         *int                   `json:"mileage,omitempty" db:"mileage"`
	Year            *int                   `json:"year,omitempty" db:"year"`
	DealerName      string                 `json:"dealer_name,omitempty" db:"dealer_name"`
	DealerLocation  string                 `json:"dealer_location,omitempty" db:"dealer_location"`
	ListingID       string                 `json:"listing_id,omitempty" db:"listing_id"`
	DaysOnMarket    *int                   `json:"days_on_market,omitempty" db:"days_on_market"`
	ConfidenceScore float64                `json:"confidence_score" db:"confidence_score"`
	RawData         map[string]interface{} `json:"raw_data,omitempty" db:"raw_data"`
}

// HasPrice reports whether the listing carries a positive asking price.
func (l ListingRecord) HasPrice() bool {
	return l.AskingPrice != nil && l.AskingPrice.IsPositive()
}

// AggregatedValuation is the final output of one research run.
type AggregatedValuation struct {
	MarketLow               decimal.Decimal `json:"market_low"`
	MarketAverage           decimal.Decimal `json:"market_average"`
	MarketHigh              decimal.Decimal `json:"market_high"`
	RecommendedAskingPrice  decimal.Decimal `json:"recommended_asking_price"`
	RecommendedDealerOffer  decimal.Decimal `json:"recommended_dealer_offer"`
	TotalComparableListings int             `json:"total_comparable_listings"`
	AverageDaysToSell       *int            `json:"average_days_to_sell,omitempty"`
	MarketDemand            MarketDemand    `json:"market_demand"`
	PriceTrend              PriceTrend      `json:"price_trend"`
	DataSourcesCount        int             `json:"data_sources_count"`
	OverallConfidence       ConfidenceLevel `json:"overall_confidence"`
	MarketInsights          string          `json:"market_insights"`
	PricingRecommendation   string          `json:"pricing_recommendation"`
	Sources                 []ListingRecord `json:"sources"`
}

// PriceHistoryPoint is one append-only snapshot of the market average for a
// subject, recorded each time research runs.
type PriceHistoryPoint struct {
	RecordedAt    time.Time       `json:"recorded_at" db:"recorded_at"`
	MarketAverage decimal.Decimal `json:"market_average" db:"market_average"`
	SourceCount   int             `json:"source_count" db:"source_count"`
}
