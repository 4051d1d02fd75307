package sources

import (
	"context"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/driveline/market-research-go/internal/models"
)

const (
	// Browser-like headers keep marketplace frontends from serving the
	// bot-challenge page outright.
	userAgent    = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"
	acceptHeader = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
)

// SourceAdapter queries exactly one external marketplace and normalizes its
// listings. Search never returns an error: fetch or parse failures are logged
// inside the adapter and surface as an empty result, so one broken source can
// never abort a research run.
type SourceAdapter interface {
	Name() string
	Search(ctx context.Context, query models.VehicleQuery) []models.ListingRecord
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

var nonDigits = regexp.MustCompile(`[^0-9]`)

// parseNumeric extracts the digits from free text like "$24,500" or
// "31,200 mi" and returns them as an int. Returns 0 when no digits remain.
func parseNumeric(text string) int {
	digits := nonDigits.ReplaceAllString(text, "")
	if digits == "" {
		return 0
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0
	}
	return n
}

// slugify lowercases a make or model name and joins its words with the
// source-specific separator.
func slugify(s, sep string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), sep)
}

func zipOrDefault(zip, fallback string) string {
	if zip != "" {
		return zip
	}
	return fallback
}
