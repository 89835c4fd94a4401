// Package scrape talks to the external scraping provider: it submits
// batch runs, fetches finished datasets, and normalizes raw items into
// domain snapshots.
package scrape

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/daniel7634/amzwatch/internal/monitor"
)

// rawItem mirrors the provider's dataset item shape. Only the fields the
// pipeline consumes are declared; everything else rides along in Raw.
type rawItem struct {
	ASIN           string          `json:"asin"`
	Title          string          `json:"title"`
	Price          json.RawMessage `json:"price"`
	ProductRating  string          `json:"productRating"`
	CountReview    *int            `json:"countReview"`
	ProductDetails []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"productDetails"`
	CategoriesExtended []struct {
		Name string `json:"name"`
	} `json:"categoriesExtended"`
}

var (
	ratingPattern = regexp.MustCompile(`(\d+\.?\d*)`)
	parenPattern  = regexp.MustCompile(`\([^)]*\)`)
	rankPattern   = regexp.MustCompile(`#(\d+)\s+in\s+([^#]+)`)
)

// ParseItems decodes a provider dataset payload into normalized items.
// An item without an ASIN makes the whole payload invalid: a malformed
// batch must fail atomically instead of half-ingesting.
func ParseItems(data []byte) ([]monitor.ScrapedItem, error) {
	var rawMsgs []json.RawMessage
	if err := json.Unmarshal(data, &rawMsgs); err != nil {
		return nil, eris.Wrap(err, "decode dataset")
	}

	items := make([]monitor.ScrapedItem, 0, len(rawMsgs))
	for i, msg := range rawMsgs {
		var raw rawItem
		if err := json.Unmarshal(msg, &raw); err != nil {
			return nil, eris.Wrapf(err, "decode dataset item %d", i)
		}
		if strings.TrimSpace(raw.ASIN) == "" {
			return nil, eris.Errorf("dataset item %d has no asin", i)
		}

		item := monitor.ScrapedItem{
			ASIN:        strings.TrimSpace(raw.ASIN),
			Title:       raw.Title,
			Price:       parsePrice(raw.Price),
			Rating:      parseRating(raw.ProductRating),
			ReviewCount: raw.CountReview,
			Rankings:    parseRankings(raw.ProductDetails),
			Raw:         msg,
		}
		for _, cat := range raw.CategoriesExtended {
			if cat.Name != "" {
				item.Categories = append(item.Categories, cat.Name)
			}
		}
		items = append(items, item)
	}
	return items, nil
}

// parsePrice accepts the price as a JSON number or a display string like
// "$1,299.99". Unparseable values degrade to nil, not an error.
func parsePrice(raw json.RawMessage) *decimal.Decimal {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var num float64
	if err := json.Unmarshal(raw, &num); err == nil {
		d := decimal.NewFromFloat(num)
		return &d
	}

	var str string
	if err := json.Unmarshal(raw, &str); err != nil {
		return nil
	}
	str = strings.TrimSpace(strings.ReplaceAll(strings.ReplaceAll(str, "$", ""), ",", ""))
	if str == "" {
		return nil
	}
	d, err := decimal.NewFromString(str)
	if err != nil {
		return nil
	}
	return &d
}

// parseRating extracts the leading number from strings like
// "4.5 out of 5 stars".
func parseRating(s string) *decimal.Decimal {
	match := ratingPattern.FindString(s)
	if match == "" {
		return nil
	}
	d, err := decimal.NewFromString(match)
	if err != nil {
		return nil
	}
	return &d
}

// parseRankings pulls best-seller ranks out of the product detail rows.
// The provider concatenates every rank mention into one value like
// "#123 in Kitchen (See Top 100) #4 in Blenders"; parenthesized asides
// are stripped before matching.
func parseRankings(details []struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}) []monitor.Ranking {
	var rankings []monitor.Ranking
	for _, detail := range details {
		if !strings.Contains(detail.Name, "Best Sellers Rank") {
			continue
		}
		cleaned := parenPattern.ReplaceAllString(detail.Value, "")
		for _, m := range rankPattern.FindAllStringSubmatch(cleaned, -1) {
			rank, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			rankings = append(rankings, monitor.Ranking{
				Rank:     rank,
				Category: strings.TrimSpace(m[2]),
			})
		}
	}
	return rankings
}

// SnapshotFromItem converts a normalized item into a daily snapshot
// stamped with the UTC date of now.
func SnapshotFromItem(item monitor.ScrapedItem, now time.Time) monitor.Snapshot {
	day := now.UTC().Truncate(24 * time.Hour)
	return monitor.Snapshot{
		ASIN:         item.ASIN,
		SnapshotDate: day,
		Price:        item.Price,
		Rating:       item.Rating,
		ReviewCount:  item.ReviewCount,
		Rankings:     item.Rankings,
		Raw:          item.Raw,
	}
}

// ProductFromItem converts a normalized item into a catalog row.
func ProductFromItem(item monitor.ScrapedItem) monitor.Product {
	return monitor.Product{
		ASIN:       item.ASIN,
		Title:      item.Title,
		Categories: item.Categories,
	}
}
