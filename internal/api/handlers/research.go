package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/driveline/market-research-go/internal/cache"
	"github.com/driveline/market-research-go/internal/config"
	"github.com/driveline/market-research-go/internal/database"
	"github.com/driveline/market-research-go/internal/logging"
	"github.com/driveline/market-research-go/internal/models"
	"github.com/driveline/market-research-go/internal/research"
	"github.com/driveline/market-research-go/internal/utils"
	"github.com/driveline/market-research-go/internal/worker"
)

// maxSampleListings bounds how many raw listings ride along in API responses.
const maxSampleListings = 5

// ResearchHandler exposes the market research engine over HTTP.
type ResearchHandler struct {
	repo           *database.ResearchRepository
	valuationCache *cache.RedisValuationCache
	engine         *research.Orchestrator
	queue          *worker.Queue
	researchCfg    config.ResearchConfig
	log            *logrus.Entry
}

// NewResearchHandler creates the research HTTP handler.
func NewResearchHandler(repo *database.ResearchRepository, valuationCache *cache.RedisValuationCache, engine *research.Orchestrator, queue *worker.Queue, researchCfg config.ResearchConfig) *ResearchHandler {
	return &ResearchHandler{
		repo:           repo,
		valuationCache: valuationCache,
		engine:         engine,
		queue:          queue,
		researchCfg:    researchCfg,
		log:            logging.ForComponent("research_handler"),
	}
}

// AnalyzeRequest is the payload for a research run.
type AnalyzeRequest struct {
	SubjectID string `json:"subject_id"`
	VIN       string `json:"vin"`
	Year      int    `json:"year"`
	Make      string `json:"make"`
	Model     string `json:"model"`
	Trim      string `json:"trim"`
	Mileage   *int   `json:"mileage"`
	ZipCode   string `json:"zip_code"`
}

// SampleListing is the trimmed listing view returned by the API, keeping
// response sizes reasonable.
type SampleListing struct {
	Source   string           `json:"source"`
	Price    *decimal.Decimal `json:"price,omitempty"`
	Mileage  *int             `json:"mileage,omitempty"`
	Location string           `json:"location,omitempty"`
}

// PricingView groups the computed price points.
type PricingView struct {
	MarketLow              decimal.Decimal `json:"market_low"`
	MarketAverage          decimal.Decimal `json:"market_average"`
	MarketHigh             decimal.Decimal `json:"market_high"`
	RecommendedAskingPrice decimal.Decimal `json:"recommended_asking_price"`
	RecommendedDealerOffer decimal.Decimal `json:"recommended_dealer_offer"`
}

// MarketView groups the demand and trend signals.
type MarketView struct {
	TotalComparableListings int                 `json:"total_comparable_listings"`
	AverageDaysToSell       *int                `json:"average_days_to_sell,omitempty"`
	MarketDemand            models.MarketDemand `json:"market_demand"`
	PriceTrend              models.PriceTrend   `json:"price_trend"`
}

// ConfidenceView groups the trust signals.
type ConfidenceView struct {
	DataSourcesCount  int                    `json:"data_sources_count"`
	OverallConfidence models.ConfidenceLevel `json:"overall_confidence"`
}

// AnalyzeVehicle performs market research for a vehicle. When a subject ID is
// supplied the results are also persisted and cached for later retrieval.
func (h *ResearchHandler) AnalyzeVehicle(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	query, err := h.buildQuery(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.log.WithFields(logrus.Fields{
		"year":       query.Year,
		"make":       query.Make,
		"model":      query.Model,
		"subject_id": req.SubjectID,
	}).Info("Starting market analysis")

	valuation := h.engine.PerformResearch(c.Request.Context(), query)

	if req.SubjectID != "" {
		if err := h.engine.StoreResearchResults(c.Request.Context(), req.SubjectID, valuation); err != nil {
			h.log.WithError(err).Error("Failed to store research results")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store market research results"})
			return
		}
		h.valuationCache.Set(c.Request.Context(), req.SubjectID, valuation)
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"pricing": PricingView{
				MarketLow:              valuation.MarketLow,
				MarketAverage:          valuation.MarketAverage,
				MarketHigh:             valuation.MarketHigh,
				RecommendedAskingPrice: valuation.RecommendedAskingPrice,
				RecommendedDealerOffer: valuation.RecommendedDealerOffer,
			},
			"market": MarketView{
				TotalComparableListings: valuation.TotalComparableListings,
				AverageDaysToSell:       valuation.AverageDaysToSell,
				MarketDemand:            valuation.MarketDemand,
				PriceTrend:              valuation.PriceTrend,
			},
			"confidence": ConfidenceView{
				DataSourcesCount:  valuation.DataSourcesCount,
				OverallConfidence: valuation.OverallConfidence,
			},
			"insights":        valuation.MarketInsights,
			"recommendation":  valuation.PricingRecommendation,
			"sample_listings": sampleListings(valuation.Sources),
		},
	})
}

// GetMarketResearch returns the stored research for a subject, served from
// the valuation cache when fresh.
func (h *ResearchHandler) GetMarketResearch(c *gin.Context) {
	subjectID := c.Param("subjectID")

	if valuation, ok := h.valuationCache.Get(c.Request.Context(), subjectID); ok {
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"cached":  true,
			"data":    valuationView(*valuation),
		})
		return
	}

	analysis, err := h.repo.GetAnalysis(c.Request.Context(), subjectID)
	if err != nil {
		if errors.Is(err, database.ErrAnalysisNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "market research not found for this subject"})
			return
		}
		h.log.WithError(err).Error("Failed to load market analysis")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve market research"})
		return
	}

	listings, err := h.repo.GetListings(c.Request.Context(), subjectID, 10)
	if err != nil {
		h.log.WithError(err).Error("Failed to load stored listings")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve market research"})
		return
	}

	history, err := h.repo.GetPriceHistory(c.Request.Context(), subjectID, 30)
	if err != nil {
		h.log.WithError(err).Error("Failed to load price history")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve market research"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"cached":  false,
		"data": gin.H{
			"analysis":      analysis,
			"sources":       sampleListings(listings),
			"price_history": history,
		},
	})
}

// RefreshMarketResearch enqueues a fresh research run for a subject. The
// request carries the vehicle attributes; the worker pool does the rest.
func (h *ResearchHandler) RefreshMarketResearch(c *gin.Context) {
	subjectID := c.Param("subjectID")

	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	query, err := h.buildQuery(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	jobID, err := h.queue.Enqueue(c.Request.Context(), subjectID, query)
	if err != nil {
		h.log.WithError(err).Error("Failed to enqueue research job")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue research refresh"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success":    true,
		"job_id":     jobID,
		"subject_id": subjectID,
		"status":     worker.JobStatusPending,
	})
}

// GetJobStatus reports the lifecycle state of a queued research job.
func (h *ResearchHandler) GetJobStatus(c *gin.Context) {
	state, err := h.queue.GetState(c.Request.Context(), c.Param("jobID"))
	if err != nil {
		if errors.Is(err, worker.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "research job not found"})
			return
		}
		h.log.WithError(err).Error("Failed to read job state")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read job status"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": state})
}

// SourceView describes one registered market source.
type SourceView struct {
	Name        string  `json:"name"`
	DisplayName string  `json:"display_name"`
	Weight      float64 `json:"weight"`
	Status      string  `json:"status"`
}

// GetAvailableSources lists the registered source adapters and their static
// trust weights.
func (h *ResearchHandler) GetAvailableSources(c *gin.Context) {
	caser := cases.Title(language.English)

	views := make([]SourceView, 0, len(h.engine.Adapters()))
	for _, adapter := range h.engine.Adapters() {
		views = append(views, SourceView{
			Name:        adapter.Name(),
			DisplayName: caser.String(adapter.Name()),
			Weight:      h.researchCfg.SourceWeight(adapter.Name()),
			Status:      "active",
		})
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": views})
}

func (h *ResearchHandler) buildQuery(req AnalyzeRequest) (models.VehicleQuery, error) {
	if req.Year == 0 {
		return models.VehicleQuery{}, utils.NewValidationError("year is required")
	}
	if req.Make == "" {
		return models.VehicleQuery{}, utils.NewValidationError("make is required")
	}
	if req.Model == "" {
		return models.VehicleQuery{}, utils.NewValidationError("model is required")
	}
	if req.Mileage == nil {
		return models.VehicleQuery{}, utils.NewValidationError("mileage is required")
	}
	if *req.Mileage < 0 {
		return models.VehicleQuery{}, utils.NewValidationErrorf("mileage must be non-negative, got %d", *req.Mileage)
	}
	if req.VIN != "" && len(req.VIN) != 17 {
		return models.VehicleQuery{}, utils.NewValidationErrorf("vin must be 17 characters, got %d", len(req.VIN))
	}

	zip := req.ZipCode
	if zip == "" {
		zip = h.researchCfg.DefaultZipCode
	}

	return models.VehicleQuery{
		VIN:     req.VIN,
		Year:    req.Year,
		Make:    req.Make,
		Model:   req.Model,
		Trim:    req.Trim,
		Mileage: *req.Mileage,
		ZipCode: zip,
	}, nil
}

func valuationView(v models.AggregatedValuation) gin.H {
	return gin.H{
		"pricing": PricingView{
			MarketLow:              v.MarketLow,
			MarketAverage:          v.MarketAverage,
			MarketHigh:             v.MarketHigh,
			RecommendedAskingPrice: v.RecommendedAskingPrice,
			RecommendedDealerOffer: v.RecommendedDealerOffer,
		},
		"market": MarketView{
			TotalComparableListings: v.TotalComparableListings,
			AverageDaysToSell:       v.AverageDaysToSell,
			MarketDemand:            v.MarketDemand,
			PriceTrend:              v.PriceTrend,
		},
		"confidence": ConfidenceView{
			DataSourcesCount:  v.DataSourcesCount,
			OverallConfidence: v.OverallConfidence,
		},
		"insights":        v.MarketInsights,
		"recommendation":  v.PricingRecommendation,
		"sample_listings": sampleListings(v.Sources),
	}
}

func sampleListings(listings []models.ListingRecord) []SampleListing {
	samples := make([]SampleListing, 0, maxSampleListings)
	for _, listing := range listings {
		if len(samples) == maxSampleListings {
			break
		}
		samples = append(samples, SampleListing{
			Source:   listing.SourceName,
			Price:    listing.AskingPrice,
			Mileage:  listing.Mileage,
			Location: listing.DealerLocation,
		})
	}
	return samples
}
