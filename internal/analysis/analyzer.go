// Package analysis aggregates snapshot history into per-product series
// and turns them into competitor reports via a language model.
package analysis

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/daniel7634/amzwatch/internal/monitor"
)

// ProductSeries summarizes one ASIN's snapshots over the report window.
type ProductSeries struct {
	ASIN          string
	Title         string
	SnapshotCount int

	LatestPrice *decimal.Decimal
	AvgPrice    *decimal.Decimal
	MinPrice    *decimal.Decimal
	MaxPrice    *decimal.Decimal

	LatestRating *decimal.Decimal
	RatingDelta  *decimal.Decimal

	LatestRank   *monitor.Ranking
	RankImproved *int // positions climbed over the window, negative for drops

	LatestReviewCount *int
}

// ReportData is the assembled input for report generation.
type ReportData struct {
	Main        ProductSeries
	Competitors []ProductSeries
	WindowDays  int
	From        time.Time
	To          time.Time
}

// Analyzer builds ReportData from the snapshot and catalog stores.
type Analyzer struct {
	snapshots monitor.SnapshotStore
	catalog   monitor.CatalogStore
	clock     monitor.Clock
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(snapshots monitor.SnapshotStore, catalog monitor.CatalogStore, clock monitor.Clock) *Analyzer {
	return &Analyzer{snapshots: snapshots, catalog: catalog, clock: clock}
}

// Collect loads the window of history for the main product and its
// competitors. Products with no snapshots in the window still appear,
// with zeroed series, so the report can name the gap.
func (a *Analyzer) Collect(ctx context.Context, params monitor.ReportParameters) (ReportData, error) {
	to := a.clock.Now().UTC()
	from := to.AddDate(0, 0, -params.WindowDays)

	titles, err := a.titles(ctx, params)
	if err != nil {
		return ReportData{}, err
	}

	data := ReportData{WindowDays: params.WindowDays, From: from, To: to}
	data.Main, err = a.series(ctx, params.MainASIN, titles, from, to)
	if err != nil {
		return ReportData{}, err
	}
	for _, asin := range params.CompetitorASINs {
		series, err := a.series(ctx, asin, titles, from, to)
		if err != nil {
			return ReportData{}, err
		}
		data.Competitors = append(data.Competitors, series)
	}
	return data, nil
}

func (a *Analyzer) titles(ctx context.Context, params monitor.ReportParameters) (map[string]string, error) {
	asins := append([]string{params.MainASIN}, params.CompetitorASINs...)
	products, err := a.catalog.FetchProducts(ctx, asins)
	if err != nil {
		return nil, err
	}
	titles := make(map[string]string, len(products))
	for _, p := range products {
		titles[p.ASIN] = p.Title
	}
	return titles, nil
}

func (a *Analyzer) series(ctx context.Context, asin string, titles map[string]string, from, to time.Time) (ProductSeries, error) {
	snapshots, err := a.snapshots.Window(ctx, asin, from, to)
	if err != nil {
		return ProductSeries{}, err
	}

	series := ProductSeries{
		ASIN:          asin,
		Title:         titles[asin],
		SnapshotCount: len(snapshots),
	}
	if len(snapshots) == 0 {
		return series, nil
	}

	first, last := snapshots[0], snapshots[len(snapshots)-1]
	series.LatestPrice = last.Price
	series.LatestRating = last.Rating
	series.LatestReviewCount = last.ReviewCount
	series.LatestRank = last.PrimaryRanking()

	var sum decimal.Decimal
	priced := 0
	for _, snap := range snapshots {
		if snap.Price == nil {
			continue
		}
		sum = sum.Add(*snap.Price)
		priced++
		if series.MinPrice == nil || snap.Price.LessThan(*series.MinPrice) {
			series.MinPrice = snap.Price
		}
		if series.MaxPrice == nil || snap.Price.GreaterThan(*series.MaxPrice) {
			series.MaxPrice = snap.Price
		}
	}
	if priced > 0 {
		avg := sum.DivRound(decimal.NewFromInt(int64(priced)), 2)
		series.AvgPrice = &avg
	}

	if first.Rating != nil && last.Rating != nil {
		delta := last.Rating.Sub(*first.Rating)
		series.RatingDelta = &delta
	}
	if fr, lr := first.PrimaryRanking(), last.PrimaryRanking(); fr != nil && lr != nil {
		improved := fr.Rank - lr.Rank
		series.RankImproved = &improved
	}
	return series, nil
}
