package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"FlowSentry/internal/domain/models"
	"FlowSentry/internal/domain/repository"
)

// ClickHouseTickArchive implements TickArchive on ClickHouse. Batches arrive
// from the archiver usecase, never from the detection path.
type ClickHouseTickArchive struct {
	db    *sql.DB
	table string
}

var _ repository.TickArchive = (*ClickHouseTickArchive)(nil)

// NewClickHouseTickArchive creates the archive.
func NewClickHouseTickArchive(db *sql.DB, table string) *ClickHouseTickArchive {
	if table == "" {
		table = "flow_ticks_raw"
	}
	return &ClickHouseTickArchive{db: db, table: table}
}

// InitSchema ensures the raw tick table exists (idempotent).
func (s *ClickHouseTickArchive) InitSchema(ctx context.Context) error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts DateTime64(3),
		ticker LowCardinality(String),
		price Float64,
		volume Float64,
		trade_size Float64,
		dark_pool UInt8,
		exchange LowCardinality(String)
	) ENGINE = MergeTree() ORDER BY (ticker, ts)`, s.table)
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("init tick archive: %w", err)
	}
	return nil
}

func (s *ClickHouseTickArchive) StoreBatch(ctx context.Context, ticks []*models.MarketTick) error {
	if len(ticks) == 0 {
		return nil
	}
	// Multi-row VALUES keeps round-trips down; 2000 rows per statement.
	const chunkSize = 2000
	for start := 0; start < len(ticks); start += chunkSize {
		end := start + chunkSize
		if end > len(ticks) {
			end = len(ticks)
		}

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*7)
		for _, t := range ticks[start:end] {
			if t == nil || t.Ticker == "" || t.Timestamp.IsZero() {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				t.Timestamp,
				t.Ticker,
				t.Price,
				t.Volume,
				t.TradeSize,
				boolToUInt8(t.DarkPool),
				t.Exchange,
			)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (ts, ticker, price, volume, trade_size, dark_pool, exchange) VALUES %s", s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return err
		}
	}
	return nil
}

func (s *ClickHouseTickArchive) Query(ctx context.Context, ticker string, from, to time.Time, limit int) ([]*models.MarketTick, error) {
	q := fmt.Sprintf("SELECT ts, ticker, price, volume, trade_size, dark_pool, exchange FROM %s WHERE ticker = ? AND ts >= ? AND ts <= ? ORDER BY ts DESC LIMIT ?", s.table)
	rows, err := s.db.QueryContext(ctx, q, ticker, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.MarketTick
	for rows.Next() {
		var (
			t    models.MarketTick
			dark uint8
		)
		if err := rows.Scan(&t.Timestamp, &t.Ticker, &t.Price, &t.Volume, &t.TradeSize, &dark, &t.Exchange); err != nil {
			return nil, err
		}
		t.DarkPool = dark != 0
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (s *ClickHouseTickArchive) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *ClickHouseTickArchive) Close() error {
	return nil // pool owned by pkg/clickhouse
}
