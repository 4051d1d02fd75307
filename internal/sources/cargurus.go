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

const carGurusSourceName = "cargurus"

var carGurusListingIDPattern = regexp.MustCompile(`/([0-9]+)`)

// CarGurusAdapter scrapes comparable listings from CarGurus search results.
type CarGurusAdapter struct {
	baseURL    string
	defaultZip string
	weight     float64
	client     *http.Client
	log        *logrus.Entry
}

// NewCarGurusAdapter creates a CarGurus source adapter.
func NewCarGurusAdapter(baseURL, defaultZip string, weight float64, timeout time.Duration) *CarGurusAdapter {
	return &CarGurusAdapter{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		defaultZip: defaultZip,
		weight:     weight,
		client:     newHTTPClient(timeout),
		log:        logrus.WithField("source", carGurusSourceName),
	}
}

func (a *CarGurusAdapter) Name() string { return carGurusSourceName }

// Search fetches and parses CarGurus listings for the queried vehicle. Any
// failure resolves to an empty result.
func (a *CarGurusAdapter) Search(ctx context.Context, query models.VehicleQuery) []models.ListingRecord {
	searchURL := a.buildSearchURL(query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		a.log.WithError(err).Warn("Failed to build search request")
		return nil
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

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
	a.log.WithField("count", len(listings)).Info("Parsed CarGurus listings")
	return listings
}

func (a *CarGurusAdapter) buildSearchURL(query models.VehicleQuery) string {
	makeSlug := slugify(query.Make, "-")
	modelSlug := slugify(query.Model, "-")
	zip := zipOrDefault(query.ZipCode, a.defaultZip)

	return fmt.Sprintf("%s/Cars/inventorylisting/viewDetailsFilterViewInventoryListing.action?"+
		"sourceContext=carGurusHomePageModel&"+
		"entitySelectingHelper.selectedEntity=%d_%s_%s&"+
		"zip=%s",
		a.baseURL, query.Year, makeSlug, modelSlug, zip)
}

func (a *CarGurusAdapter) parseListings(doc *goquery.Document, query models.VehicleQuery) []models.ListingRecord {
	var listings []models.ListingRecord

	doc.Find(`.listing-row, .car-blade`).Each(func(_ int, sel *goquery.Selection) {
		priceText := sel.Find(`.price, [data-cg-ft="listing-price"]`).Text()
		price := parseNumeric(priceText)
		if price <= 0 {
			return
		}

		mileageText := sel.Find(`.mileage, [data-cg-ft="listing-mileage"]`).Text()
		dealerName := strings.TrimSpace(sel.Find(`.dealer-name, [data-cg-ft="dealer-name"]`).Text())
		location := strings.TrimSpace(sel.Find(`.dealer-address, .location`).Text())

		record := models.ListingRecord{
			SourceName:      carGurusSourceName,
			DealerName:      dealerName,
			DealerLocation:  location,
			ConfidenceScore: a.weight,
			RawData: map[string]interface{}{
				"price_text":   priceText,
				"mileage_text": mileageText,
				"dealer":       dealerName,
			},
		}

		askingPrice := decimal.NewFromInt(int64(price))
		record.AskingPrice = &askingPrice

		if mileage := parseNumeric(mileageText); mileage > 0 {
			record.Mileage = &mileage
		}
		year := query.Year
		record.Year = &year

		if href, ok := sel.Find(`a[href*="/listing/"]`).Attr("href"); ok {
			record.SourceURL = a.baseURL + href
			if m := carGurusListingIDPattern.FindStringSubmatch(href); m != nil {
				record.ListingID = m[1]
			}
		}

		listings = append(listings, record)
	})

	return listings
}
