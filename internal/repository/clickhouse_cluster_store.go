package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"FlowSentry/internal/domain/models"
	"FlowSentry/internal/domain/repository"
)

// ClickHouseClusterStore implements ClusterStore on ClickHouse. Clusters and
// feedback are append-only; reads serve the signals API.
type ClickHouseClusterStore struct {
	db            *sql.DB
	clusterTable  string
	feedbackTable string
}

// NewClickHouseClusterStore creates the store.
func NewClickHouseClusterStore(db *sql.DB, clusterTable, feedbackTable string) repository.ClusterStore {
	if clusterTable == "" {
		clusterTable = "flow_clusters"
	}
	if feedbackTable == "" {
		feedbackTable = "flow_feedback"
	}
	return &ClickHouseClusterStore{db: db, clusterTable: clusterTable, feedbackTable: feedbackTable}
}

func (s *ClickHouseClusterStore) Init(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id String,
			ts DateTime64(3),
			ticker LowCardinality(String),
			score Float64,
			conviction LowCardinality(String),
			event_count UInt16,
			events String,
			details String
		) ENGINE = MergeTree() ORDER BY (ticker, ts)`, s.clusterTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			ts DateTime64(3),
			cluster_id String,
			ticker LowCardinality(String),
			conviction LowCardinality(String),
			move_1m Float64,
			move_5m Float64,
			move_15m Float64,
			was_correct UInt8,
			false_positive UInt8,
			false_negative UInt8
		) ENGINE = MergeTree() ORDER BY (ticker, ts)`, s.feedbackTable),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init cluster store: %w", err)
		}
	}
	return nil
}

func (s *ClickHouseClusterStore) StoreCluster(ctx context.Context, ev *models.ClusterEvent) error {
	events, err := json.Marshal(ev.Events)
	if err != nil {
		return fmt.Errorf("marshal cluster events: %w", err)
	}
	details, err := json.Marshal(ev.Details)
	if err != nil {
		return fmt.Errorf("marshal cluster details: %w", err)
	}

	q := fmt.Sprintf("INSERT INTO %s (id, ts, ticker, score, conviction, event_count, events, details) VALUES (?, ?, ?, ?, ?, ?, ?, ?)", s.clusterTable)
	_, err = s.db.ExecContext(ctx, q,
		ev.ID,
		ev.Timestamp,
		ev.Ticker,
		ev.Score,
		string(ev.Conviction),
		uint16(len(ev.Events)),
		string(events),
		string(details),
	)
	return err
}

func (s *ClickHouseClusterStore) StoreFeedback(ctx context.Context, rec *models.FeedbackRecord) error {
	q := fmt.Sprintf("INSERT INTO %s (ts, cluster_id, ticker, conviction, move_1m, move_5m, move_15m, was_correct, false_positive, false_negative) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)", s.feedbackTable)
	_, err := s.db.ExecContext(ctx, q,
		rec.Timestamp,
		rec.Cluster.ID,
		rec.Ticker,
		string(rec.Cluster.Conviction),
		rec.Move.Move1m,
		rec.Move.Move5m,
		rec.Move.Move15m,
		boolToUInt8(rec.WasCorrect),
		boolToUInt8(rec.FalsePositive),
		boolToUInt8(rec.FalseNegative),
	)
	return err
}

func (s *ClickHouseClusterStore) QueryClusters(ctx context.Context, ticker string, from, to time.Time, limit int) ([]*models.ClusterEvent, error) {
	q := fmt.Sprintf("SELECT id, ts, ticker, score, conviction, events, details FROM %s WHERE ts >= ? AND ts <= ?", s.clusterTable)
	args := []interface{}{from, to}
	if ticker != "" {
		q += " AND ticker = ?"
		args = append(args, ticker)
	}
	q += " ORDER BY ts DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.ClusterEvent
	for rows.Next() {
		var (
			ce              models.ClusterEvent
			conviction      string
			events, details string
		)
		if err := rows.Scan(&ce.ID, &ce.Timestamp, &ce.Ticker, &ce.Score, &conviction, &events, &details); err != nil {
			return nil, err
		}
		ce.Conviction = models.ConvictionLevel(conviction)
		if err := json.Unmarshal([]byte(events), &ce.Events); err != nil {
			return nil, fmt.Errorf("unmarshal cluster events: %w", err)
		}
		if details != "" {
			if err := json.Unmarshal([]byte(details), &ce.Details); err != nil {
				return nil, fmt.Errorf("unmarshal cluster details: %w", err)
			}
		}
		out = append(out, &ce)
	}
	return out, rows.Err()
}

func (s *ClickHouseClusterStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *ClickHouseClusterStore) Close() error {
	return nil // pool owned by pkg/clickhouse
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
