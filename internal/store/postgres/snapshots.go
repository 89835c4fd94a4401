package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/daniel7634/amzwatch/internal/monitor"
)

// SnapshotStore implements monitor.SnapshotStore on product_snapshots.
type SnapshotStore struct {
	db DB
}

// NewSnapshotStore creates a SnapshotStore.
func NewSnapshotStore(db DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

const upsertSnapshotSQL = `
INSERT INTO product_snapshots (asin, snapshot_date, price, rating, review_count, rankings, raw)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (asin, snapshot_date) DO UPDATE
SET price = EXCLUDED.price,
    rating = EXCLUDED.rating,
    review_count = EXCLUDED.review_count,
    rankings = EXCLUDED.rankings,
    raw = EXCLUDED.raw`

// UpsertSnapshots writes daily observations keyed by (asin, snapshot
// date). A redelivered webhook rewrites the same rows instead of
// duplicating history.
func (s *SnapshotStore) UpsertSnapshots(ctx context.Context, snapshots []monitor.Snapshot) error {
	for _, snap := range snapshots {
		rankings, err := json.Marshal(snap.Rankings)
		if err != nil {
			return monitor.Persistence("encode rankings", err)
		}
		_, err = s.db.Exec(ctx, upsertSnapshotSQL,
			snap.ASIN,
			snap.SnapshotDate,
			nullDecimal(snap.Price),
			nullDecimal(snap.Rating),
			snap.ReviewCount,
			rankings,
			[]byte(snap.Raw),
		)
		if err != nil {
			return monitor.Persistence("upsert snapshot", err)
		}
	}
	return nil
}

const snapshotColumns = `asin, snapshot_date, price, rating, review_count, rankings, raw`

const latestSnapshotSQL = `
SELECT ` + snapshotColumns + `
FROM product_snapshots
WHERE asin = $1
ORDER BY snapshot_date DESC
LIMIT 1`

// Latest returns the most recent snapshot for an ASIN.
func (s *SnapshotStore) Latest(ctx context.Context, asin string) (*monitor.Snapshot, error) {
	return s.scanOne(s.db.QueryRow(ctx, latestSnapshotSQL, asin))
}

const previousSnapshotSQL = `
SELECT ` + snapshotColumns + `
FROM product_snapshots
WHERE asin = $1 AND snapshot_date < $2
ORDER BY snapshot_date DESC
LIMIT 1`

// PreviousBefore returns the newest snapshot strictly older than date.
func (s *SnapshotStore) PreviousBefore(ctx context.Context, asin string, date time.Time) (*monitor.Snapshot, error) {
	return s.scanOne(s.db.QueryRow(ctx, previousSnapshotSQL, asin, date))
}

const windowSnapshotSQL = `
SELECT ` + snapshotColumns + `
FROM product_snapshots
WHERE asin = $1 AND snapshot_date >= $2 AND snapshot_date <= $3
ORDER BY snapshot_date ASC`

// Window returns snapshots within [from, to], oldest first.
func (s *SnapshotStore) Window(ctx context.Context, asin string, from, to time.Time) ([]monitor.Snapshot, error) {
	rows, err := s.db.Query(ctx, windowSnapshotSQL, asin, from, to)
	if err != nil {
		return nil, monitor.Persistence("query snapshot window", err)
	}
	defer rows.Close()

	var snapshots []monitor.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, *snap)
	}
	if err := rows.Err(); err != nil {
		return nil, monitor.Persistence("iterate snapshots", err)
	}
	return snapshots, nil
}

func (s *SnapshotStore) scanOne(row pgx.Row) (*monitor.Snapshot, error) {
	snap, err := scanSnapshot(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, monitor.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func scanSnapshot(row pgx.Row) (*monitor.Snapshot, error) {
	var snap monitor.Snapshot
	var price, rating decimal.NullDecimal
	var rankings, raw []byte

	err := row.Scan(&snap.ASIN, &snap.SnapshotDate, &price, &rating, &snap.ReviewCount, &rankings, &raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, monitor.Persistence("scan snapshot", err)
	}

	if price.Valid {
		snap.Price = &price.Decimal
	}
	if rating.Valid {
		snap.Rating = &rating.Decimal
	}
	if len(rankings) > 0 {
		if err := json.Unmarshal(rankings, &snap.Rankings); err != nil {
			return nil, monitor.Persistence("decode rankings", err)
		}
	}
	snap.Raw = raw
	return &snap, nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}
