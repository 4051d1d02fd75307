package sources

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/driveline/market-research-go/internal/models"
)

const autoTraderSourceName = "autotrader"

var autoTraderListingIDPattern = regexp.MustCompile(`listing/([0-9]+)`)

// AutoTraderAdapter scrapes comparable listings from AutoTrader search results.
type AutoTraderAdapter struct {
	baseURL    string
	defaultZip string
	weight     float64
	client     *http.Client
	log        *logrus.Entry
}

// NewAutoTraderAdapter creates an AutoTrader source adapter.
func NewAutoTraderAdapter(baseURL, defaultZip string, weight float64, timeout time.Duration) *AutoTraderAdapter {
	return &AutoTraderAdapter{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		defaultZip: defaultZip,
		weight:     weight,
		client:     newHTTPClient(timeout),
		log:        logrus.WithField("source", autoTraderSourceName),
	}
}

func (a *AutoTraderAdapter) Name() string { return autoTraderSourceName }

// Search fetches and parses AutoTrader listings for the queried vehicle. Any
// failure resolves to an empty result.
func (a *AutoTraderAdapter) Search(ctx context.Context, query models.VehicleQuery) []models.ListingRecord {
	searchURL := a.buildSearchURL(query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		a.log.WithError(err).Warn("Failed to build search request")
		return nil
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", acceptHeader)

	resp, err := a.client.Do(req)
	if err != nil {
		a.log.WithError(err).Warn("Search request failed")
		return nil
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			a.log.WithError(err).Debug("Error closing response body")
		}
	}()

	if resp.StatusCode != http.StatusOK {
		a.log.WithField("status", resp.StatusCode).Warn("Search returned non-200 response")
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		a.log.WithError(err).Warn("Failed to parse search response")
		return nil
	}

	listings := a.parseListings(doc, query)
	a.log.WithField("count", len(listings)).Info("Parsed AutoTrader listings")
	return listings
}

func (a *AutoTraderAdapter) buildSearchURL(query models.VehicleQuery) string {
	makeSlug := slugify(query.Make, "%20")
	modelSlug := slugify(query.Model, "%20")
	zip := zipOrDefault(query.ZipCode, a.defaultZip)

	return fmt.Sprintf("%s/cars-for-sale/all-cars/%s/%s?zip=%s&startYear=%d&endYear=%d",
		a.baseURL, makeSlug, modelSlug, zip, query.Year, query.Year)
}

func (a *AutoTraderAdapter) parseListings(doc *goquery.Document, query models.VehicleQuery) []models.ListingRecord {
	var listings []models.ListingRecord

	doc.Find(`.inventory-listing, .listing-container`).Each(func(_ int, sel *goquery.Selection) {
		priceText := sel.Find(`.first-price, .pricing-detail`).Text()
		price := parseNumeric(priceText)
		if price <= 0 {
			return
		}

		mileageText := sel.Find(`.item-card-basics, .mileage`).Text()
		dealerName := strings.TrimSpace(sel.Find(`.dealer-name, .seller-name`).Text())
		location := strings.TrimSpace(sel.Find(`.dealer-address, .location-text`).Text())

		record := models.ListingRecord{
			SourceName:      autoTraderSourceName,
			DealerName:      dealerName,
			DealerLocation:  location,
			ConfidenceScore: a.weight,
			RawData: map[string]interface{}{
				"price_text":   priceText,
				"mileage_text": mileageText,
			},
		}

		askingPrice := decimal.NewFromInt(int64(price))
		record.AskingPrice = &askingPrice

		if mileage := parseNumeric(mileageText); mileage > 0 {
			record.Mileage = &mileage
		}
		year := query.Year
		record.Year = &year

		if href, ok := sel.Find(`a[href*="/cars-for-sale/"]`).Attr("href"); ok {
			record.SourceURL = a.baseURL + href
			if m := autoTraderListingIDPattern.FindStringSubmatch(href); m != nil {
				record.ListingID = m[1]
			}
		}

		listings = append(listings, record)
	})

	return listings
}
