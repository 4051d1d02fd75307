package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driveline/market-research-go/internal/cache"
	"github.com/driveline/market-research-go/internal/models"
	"github.com/driveline/market-research-go/internal/research"
	"github.com/driveline/market-research-go/internal/sources"
)

type fixtureAdapter struct {
	name     string
	listings []models.ListingRecord
}

func (a *fixtureAdapter) Name() string { return a.name }

func (a *fixtureAdapter) Search(context.Context, models.VehicleQuery) []models.ListingRecord {
	return a.listings
}

type recordingStore struct {
	mu       sync.Mutex
	failWith error
	history  int
}

func (s *recordingStore) InsertListings(context.Context, string, []models.ListingRecord) error {
	return s.failWith
}

func (s *recordingStore) UpsertAnalysis(context.Context, string, models.AggregatedValuation) error {
	return s.failWith
}

func (s *recordingStore) AppendPriceHistory(context.Context, string, models.PriceHistoryPoint) error {
	if s.failWith != nil {
		return s.failWith
	}
	s.mu.Lock()
	s.history++
	s.mu.Unlock()
	return nil
}

func (s *recordingStore) historyCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history
}

func fixtureListings(n int) []models.ListingRecord {
	listings := make([]models.ListingRecord, 0, n)
	for i := 0; i < n; i++ {
		price := decimal.NewFromInt(int64(20000 + i*500))
		mileage := 45000
		year := 2020
		listings = append(listings, models.ListingRecord{
			SourceName:      "cargurus",
			AskingPrice:     &price,
			Mileage:         &mileage,
			Year:            &year,
			ConfidenceScore: 0.85,
		})
	}
	return listings
}

func newTestOrchestrator(store research.ResearchStore, listings []models.ListingRecord) *research.Orchestrator {
	adapters := []sources.SourceAdapter{&fixtureAdapter{name: "cargurus", listings: listings}}
	return research.NewOrchestrator(
		adapters,
		research.NewRelevanceFilter(20000, 5000, 500000),
		research.NewStatisticalAggregator(),
		research.NewFallbackEstimator(35000),
		store,
	)
}

func waitForStatus(t *testing.T, q *Queue, jobID string, want JobStatus) *JobState {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		state, err := q.GetState(context.Background(), jobID)
		require.NoError(t, err)
		if state.Status == want {
			return state
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("job %s never reached status %s", jobID, want)
	return nil
}

func TestResearchWorker_ProcessesJobToCompletion(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	q := NewQueue(rdb, "research_jobs")
	store := &recordingStore{}
	valuationCache := cache.NewRedisValuationCache(rdb, time.Hour)

	w := NewResearchWorker(q, newTestOrchestrator(store, fixtureListings(12)), valuationCache, 1, 100*time.Millisecond)
	w.Start()
	defer w.Stop()

	jobID, err := q.Enqueue(context.Background(), "subject-1", queueTestQuery())
	require.NoError(t, err)

	waitForStatus(t, q, jobID, JobStatusCompleted)
	assert.Equal(t, 1, store.historyCount())

	cached, ok := valuationCache.Get(context.Background(), "subject-1")
	require.True(t, ok)
	assert.Equal(t, 12, cached.TotalComparableListings)
}

func TestResearchWorker_MarksFailedOnStoreError(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	q := NewQueue(rdb, "research_jobs")
	store := &recordingStore{failWith: errors.New("connection refused")}

	w := NewResearchWorker(q, newTestOrchestrator(store, fixtureListings(6)), nil, 1, 100*time.Millisecond)
	w.Start()
	defer w.Stop()

	jobID, err := q.Enqueue(context.Background(), "subject-1", queueTestQuery())
	require.NoError(t, err)

	state := waitForStatus(t, q, jobID, JobStatusFailed)
	assert.Contains(t, state.Error, "connection refused")
}
