package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/driveline/market-research-go/internal/models"
)

// ErrAnalysisNotFound is returned when no analysis snapshot exists for a
// subject.
var ErrAnalysisNotFound = errors.New("market analysis not found")

// MarketAnalysisRow is the persisted current-state snapshot of a subject's
// aggregated valuation.
type MarketAnalysisRow struct {
	SubjectID               string          `json:"subject_id" db:"subject_id"`
	MarketLow               decimal.Decimal `json:"market_low" db:"market_low"`
	MarketAverage           decimal.Decimal `json:"market_average" db:"market_average"`
	MarketHigh              decimal.Decimal `json:"market_high" db:"market_high"`
	RecommendedAskingPrice  decimal.Decimal `json:"recommended_asking_price" db:"recommended_asking_price"`
	RecommendedDealerOffer  decimal.Decimal `json:"recommended_dealer_offer" db:"recommended_dealer_offer"`
	TotalComparableListings int             `json:"total_comparable_listings" db:"total_comparable_listings"`
	AverageDaysToSell       *int            `json:"average_days_to_sell,omitempty" db:"average_days_to_sell"`
	MarketDemand            string          `json:"market_demand" db:"market_demand"`
	PriceTrend              string          `json:"price_trend" db:"price_trend"`
	DataSourcesCount        int             `json:"data_sources_count" db:"data_sources_count"`
	OverallConfidence       string          `json:"overall_confidence" db:"overall_confidence"`
	MarketInsights          string          `json:"market_insights" db:"market_insights"`
	PricingRecommendation   string          `json:"pricing_recommendation" db:"pricing_recommendation"`
	LastUpdated             time.Time       `json:"last_updated" db:"last_updated"`
}

// DatabasePool defines the interface for database pool operations.
// This interface allows for both real pool and mock pool implementations.
type DatabasePool interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// ResearchRepository handles database operations for market research results:
// per-run source listings, the upserted analysis snapshot, and the
// append-only price history.
type ResearchRepository struct {
	pool DatabasePool
}

// NewResearchRepository creates a research repository.
func NewResearchRepository(pool DatabasePool) *ResearchRepository {
	return &ResearchRepository{pool: pool}
}

// InsertListings stores every source listing from one research run as an
// individual row.
func (r *ResearchRepository) InsertListings(ctx context.Context, subjectID string, listings []models.ListingRecord) error {
	for _, listing := range listings {
		rawData := listing.RawData
		if rawData == nil {
			rawData = map[string]interface{}{}
		}
		rawJSON, err := json.Marshal(rawData)
		if err != nil {
			return fmt.Errorf("failed to marshal raw listing data: %w", err)
		}

		_, err = r.pool.Exec(ctx, `
			INSERT INTO market_listings (
				subject_id, source_name, source_url, asking_price, mileage, year,
				dealer_name, dealer_location, listing_id, days_on_market,
				confidence_score, raw_data
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			subjectID, listing.SourceName, listing.SourceURL, listing.AskingPrice,
			listing.Mileage, listing.Year, listing.DealerName, listing.DealerLocation,
			listing.ListingID, listing.DaysOnMarket, listing.ConfidenceScore, rawJSON,
		)
		if err != nil {
			return fmt.Errorf("failed to insert market listing: %w", err)
		}
	}
	return nil
}

// UpsertAnalysis writes the valuation as the subject's current snapshot,
// replacing any previous one.
func (r *ResearchRepository) UpsertAnalysis(ctx context.Context, subjectID string, v models.AggregatedValuation) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO market_analyses (
			subject_id, market_low, market_average, market_high,
			recommended_asking_price, recommended_dealer_offer,
			total_comparable_listings, average_days_to_sell, market_demand,
			price_trend, data_sources_count, overall_confidence,
			market_insights, pricing_recommendation, last_updated
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (subject_id) DO UPDATE SET
			market_low = EXCLUDED.market_low,
			market_average = EXCLUDED.market_average,
			market_high = EXCLUDED.market_high,
			recommended_asking_price = EXCLUDED.recommended_asking_price,
			recommended_dealer_offer = EXCLUDED.recommended_dealer_offer,
			total_comparable_listings = EXCLUDED.total_comparable_listings,
			average_days_to_sell = EXCLUDED.average_days_to_sell,
			market_demand = EXCLUDED.market_demand,
			price_trend = EXCLUDED.price_trend,
			data_sources_count = EXCLUDED.data_sources_count,
			overall_confidence = EXCLUDED.overall_confidence,
			market_insights = EXCLUDED.market_insights,
			pricing_recommendation = EXCLUDED.pricing_recommendation,
			last_updated = EXCLUDED.last_updated`,
		subjectID, v.MarketLow, v.MarketAverage, v.MarketHigh,
		v.RecommendedAskingPrice, v.RecommendedDealerOffer,
		v.TotalComparableListings, v.AverageDaysToSell, string(v.MarketDemand),
		string(v.PriceTrend), v.DataSourcesCount, string(v.OverallConfidence),
		v.MarketInsights, v.PricingRecommendation, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert market analysis: %w", err)
	}
	return nil
}

// AppendPriceHistory adds one history point for the subject. History rows are
// append-only and never updated.
func (r *ResearchRepository) AppendPriceHistory(ctx context.Context, subjectID string, point models.PriceHistoryPoint) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO price_history (subject_id, recorded_at, market_average, source_count)
		VALUES ($1, $2, $3, $4)`,
		subjectID, point.RecordedAt, point.MarketAverage, point.SourceCount,
	)
	if err != nil {
		return fmt.Errorf("failed to append price history: %w", err)
	}
	return nil
}

// GetAnalysis returns the current analysis snapshot for a subject.
func (r *ResearchRepository) GetAnalysis(ctx context.Context, subjectID string) (*MarketAnalysisRow, error) {
	var row MarketAnalysisRow
	err := r.pool.QueryRow(ctx, `
		SELECT subject_id, market_low, market_average, market_high,
		       recommended_asking_price, recommended_dealer_offer,
		       total_comparable_listings, average_days_to_sell, market_demand,
		       price_trend, data_sources_count, overall_confidence,
		       market_insights, pricing_recommendation, last_updated
		FROM market_analyses
		WHERE subject_id = $1`,
		subjectID,
	).Scan(
		&row.SubjectID, &row.MarketLow, &row.MarketAverage, &row.MarketHigh,
		&row.RecommendedAskingPrice, &row.RecommendedDealerOffer,
		&row.TotalComparableListings, &row.AverageDaysToSell, &row.MarketDemand,
		&row.PriceTrend, &row.DataSourcesCount, &row.OverallConfidence,
		&row.MarketInsights, &row.PricingRecommendation, &row.LastUpdated,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAnalysisNotFound
		}
		return nil, fmt.Errorf("failed to get market analysis: %w", err)
	}
	return &row, nil
}

// GetListings returns the most recent stored listings for a subject.
func (r *ResearchRepository) GetListings(ctx context.Context, subjectID string, limit int) ([]models.ListingRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT source_name, source_url, asking_price, mileage, year,
		       dealer_name, dealer_location, listing_id, days_on_market,
		       confidence_score
		FROM market_listings
		WHERE subject_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		subjectID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query market listings: %w", err)
	}
	defer rows.Close()

	var listings []models.ListingRecord
	for rows.Next() {
		var listing models.ListingRecord
		if err := rows.Scan(
			&listing.SourceName, &listing.SourceURL, &listing.AskingPrice,
			&listing.Mileage, &listing.Year, &listing.DealerName,
			&listing.DealerLocation, &listing.ListingID, &listing.DaysOnMarket,
			&listing.ConfidenceScore,
		); err != nil {
			return nil, fmt.Errorf("failed to scan market listing: %w", err)
		}
		listings = append(listings, listing)
	}
	return listings, rows.Err()
}

// GetPriceHistory returns the most recent history points for a subject,
// newest first.
func (r *ResearchRepository) GetPriceHistory(ctx context.Context, subjectID string, limit int) ([]models.PriceHistoryPoint, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT recorded_at, market_average, source_count
		FROM price_history
		WHERE subject_id = $1
		ORDER BY recorded_at DESC
		LIMIT $2`,
		subjectID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query price history: %w", err)
	}
	defer rows.Close()

	var points []models.PriceHistoryPoint
	for rows.Next() {
		var point models.PriceHistoryPoint
		if err := rows.Scan(&point.RecordedAt, &point.MarketAverage, &point.SourceCount); err != nil {
			return nil, fmt.Errorf("failed to scan price history point: %w", err)
		}
		points = append(points, point)
	}
	return points, rows.Err()
}

// DeleteHistoryBefore prunes history points recorded before the cutoff and
// returns how many rows were removed.
func (r *ResearchRepository) DeleteHistoryBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM price_history WHERE recorded_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune price history: %w", err)
	}
	return tag.RowsAffected(), nil
}
