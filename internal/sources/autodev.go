package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/driveline/market-research-go/internal/models"
)

const autoDevSourceName = "autodev"

// AutoDevAdapter queries the Auto.dev VIN valuation API. Unlike the scraping
// adapters it returns at most one record, carrying the API's averaged market
// value with the low/high band kept as raw diagnostic data.
type AutoDevAdapter struct {
	baseURL string
	apiKey  string
	weight  float64
	client  *http.Client
	log     *logrus.Entry
}

type autoDevValuationResponse struct {
	MarketValue *struct {
		Low     *float64 `json:"low"`
		Min     *float64 `json:"min"`
		Average *float64 `json:"average"`
		Avg     *float64 `json:"avg"`
		High    *float64 `json:"high"`
		Max     *float64 `json:"max"`
	} `json:"marketValue"`
	Confidence string `json:"confidence"`
}

type autoDevErrorResponse struct {
	Error string `json:"error"`
}

// NewAutoDevAdapter creates an Auto.dev source adapter.
func NewAutoDevAdapter(baseURL, apiKey string, weight float64, timeout time.Duration) *AutoDevAdapter {
	return &AutoDevAdapter{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		weight:  weight,
		client:  newHTTPClient(timeout),
		log:     logrus.WithField("source", autoDevSourceName),
	}
}

func (a *AutoDevAdapter) Name() string { return autoDevSourceName }

// Search fetches the VIN valuation for the queried vehicle. Queries without a
// VIN, a missing API key, or any request failure resolve to an empty result.
func (a *AutoDevAdapter) Search(ctx context.Context, query models.VehicleQuery) []models.ListingRecord {
	if a.apiKey == "" {
		a.log.Debug("API key not configured, skipping")
		return nil
	}
	if query.VIN == "" {
		a.log.Debug("Query has no VIN, skipping")
		return nil
	}

	var response autoDevValuationResponse
	path := fmt.Sprintf("/v1/vin/%s", query.VIN)
	if err := a.makeRequest(ctx, path, &response); err != nil {
		a.log.WithError(err).Warn("VIN valuation request failed")
		return nil
	}

	mv := response.MarketValue
	if mv == nil {
		a.log.Info("No market value in VIN valuation response")
		return nil
	}

	average := firstValue(mv.Average, mv.Avg)
	if average <= 0 {
		return nil
	}

	askingPrice := decimal.NewFromFloat(average).Round(0)
	year := query.Year
	record := models.ListingRecord{
		SourceName:      autoDevSourceName,
		AskingPrice:     &askingPrice,
		Year:            &year,
		ConfidenceScore: a.weight,
		RawData: map[string]interface{}{
			"low":        firstValue(mv.Low, mv.Min),
			"high":       firstValue(mv.High, mv.Max),
			"confidence": response.Confidence,
		},
	}

	a.log.Info("Fetched VIN market valuation")
	return []models.ListingRecord{record}
}

func (a *AutoDevAdapter) makeRequest(ctx context.Context, path string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			a.log.WithError(err).Debug("Error closing response body")
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errorResp autoDevErrorResponse
		if err := json.Unmarshal(respBody, &errorResp); err == nil && errorResp.Error != "" {
			return fmt.Errorf("auto.dev error (%d): %s", resp.StatusCode, errorResp.Error)
		}
		return fmt.Errorf("auto.dev error (%d): %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

func firstValue(values ...*float64) float64 {
	for _, v := range values {
		if v != nil {
			return *v
		}
	}
	return 0
}
