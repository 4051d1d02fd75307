package research

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/driveline/market-research-go/internal/logging"
	"github.com/driveline/market-research-go/internal/models"
	"github.com/driveline/market-research-go/internal/sources"
)

// ResearchStore is the persistence collaborator for research results. The
// orchestrator computes; the store decides how rows land in the database.
type ResearchStore interface {
	InsertListings(ctx context.Context, subjectID string, listings []models.ListingRecord) error
	UpsertAnalysis(ctx context.Context, subjectID string, valuation models.AggregatedValuation) error
	AppendPriceHistory(ctx context.Context, subjectID string, point models.PriceHistoryPoint) error
}

// Orchestrator is the entry point of the market research engine. It fans out
// to every registered source adapter concurrently, pools their listings,
// filters for relevance, and aggregates the survivors into a valuation,
// falling back to the depreciation model when nothing usable remains.
type Orchestrator struct {
	adapters   []sources.SourceAdapter
	filter     *RelevanceFilter
	aggregator *StatisticalAggregator
	fallback   *FallbackEstimator
	store      ResearchStore
	log        *logrus.Entry

	// Collapses concurrent runs for the same subject into one flight, so a
	// manual refresh racing a background run does not double-fetch.
	group singleflight.Group
}

// NewOrchestrator creates an orchestrator with its source adapters injected,
// which lets tests swap the network adapters for fixtures.
func NewOrchestrator(adapters []sources.SourceAdapter, filter *RelevanceFilter, aggregator *StatisticalAggregator, fallback *FallbackEstimator, store ResearchStore) *Orchestrator {
	return &Orchestrator{
		adapters:   adapters,
		filter:     filter,
		aggregator: aggregator,
		fallback:   fallback,
		store:      store,
		log:        logging.ForComponent("research_orchestrator"),
	}
}

// Adapters returns the registered source adapters.
func (o *Orchestrator) Adapters() []sources.SourceAdapter {
	return o.adapters
}

// PerformResearch runs one complete research pass for the queried vehicle.
// It never fails: the worst outcome is a poor-confidence fallback valuation.
func (o *Orchestrator) PerformResearch(ctx context.Context, query models.VehicleQuery) models.AggregatedValuation {
	o.log.WithFields(logrus.Fields{
		"year":    query.Year,
		"make":    query.Make,
		"model":   query.Model,
		"mileage": query.Mileage,
	}).Info("Starting market research")

	pooled := o.collectListings(ctx, query)
	filtered := o.filter.Filter(pooled, query)

	o.log.WithFields(logrus.Fields{
		"pooled":   len(pooled),
		"filtered": len(filtered),
	}).Info("Pooled source listings")

	if len(filtered) == 0 {
		o.log.Info("No usable comparables, using depreciation fallback")
		return o.fallback.Estimate(query)
	}
	return o.aggregator.Aggregate(filtered)
}

// collectListings dispatches every adapter concurrently and merges whatever
// they produce. Adapters swallow their own failures, so a slow or broken
// source simply contributes nothing.
func (o *Orchestrator) collectListings(ctx context.Context, query models.VehicleQuery) []models.ListingRecord {
	var (
		mu     sync.Mutex
		pooled []models.ListingRecord
		wg     sync.WaitGroup
	)

	for _, adapter := range o.adapters {
		wg.Add(1)
		go func(adapter sources.SourceAdapter) {
			defer wg.Done()
			listings := adapter.Search(ctx, query)
			if len(listings) == 0 {
				return
			}
			mu.Lock()
			pooled = append(pooled, listings...)
			mu.Unlock()
		}(adapter)
	}

	wg.Wait()
	return pooled
}

// StoreResearchResults persists a valuation against a caller-supplied subject
// identifier: every surviving listing as its own row, the valuation as the
// subject's current snapshot, and one appended price-history point. Storage
// failures propagate, since a failed write is a fault the caller must see.
func (o *Orchestrator) StoreResearchResults(ctx context.Context, subjectID string, valuation models.AggregatedValuation) error {
	if err := o.store.InsertListings(ctx, subjectID, valuation.Sources); err != nil {
		return fmt.Errorf("failed to store source listings: %w", err)
	}

	if err := o.store.UpsertAnalysis(ctx, subjectID, valuation); err != nil {
		return fmt.Errorf("failed to store market analysis: %w", err)
	}

	point := models.PriceHistoryPoint{
		RecordedAt:    time.Now().UTC(),
		MarketAverage: valuation.MarketAverage,
		SourceCount:   valuation.DataSourcesCount,
	}
	if err := o.store.AppendPriceHistory(ctx, subjectID, point); err != nil {
		return fmt.Errorf("failed to append price history: %w", err)
	}

	o.log.WithField("subject_id", subjectID).Info("Stored research results")
	return nil
}

// ResearchSubject performs research and persists the outcome for one subject.
// Concurrent calls for the same subject share a single run.
func (o *Orchestrator) ResearchSubject(ctx context.Context, subjectID string, query models.VehicleQuery) (models.AggregatedValuation, error) {
	result, err, _ := o.group.Do(subjectID, func() (interface{}, error) {
		valuation := o.PerformResearch(ctx, query)
		if err := o.StoreResearchResults(ctx, subjectID, valuation); err != nil {
			return nil, err
		}
		return valuation, nil
	})
	if err != nil {
		return models.AggregatedValuation{}, err
	}
	return result.(models.AggregatedValuation), nil
}
