package store

import (
	"context"
	"fmt"

	"botfleet/internal/core"

	"github.com/jackc/pgx/v5/pgxpool"
)

// MetricStore implements core.IMetricStore: the bot equity/pnl time series.
type MetricStore struct {
	pool *pgxpool.Pool
}

// Append inserts one point in the time series.
func (s *MetricStore) Append(ctx context.Context, m *core.Metric) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO metrics (bot_id, timestamp, equity, pnl) VALUES ($1,$2,$3,$4)`,
		m.BotID, m.Timestamp, m.Equity, m.PnL)
	if err != nil {
		return fmt.Errorf("insert metric: %w", err)
	}
	return nil
}

// Series returns the time series for botID since sinceUnix, ascending by
// timestamp, backing the 7-day metrics window spec §6 names.
func (s *MetricStore) Series(ctx context.Context, botID string, sinceUnix int64) ([]*core.Metric, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT bot_id, timestamp, equity, pnl FROM metrics
		WHERE bot_id = $1 AND timestamp >= to_timestamp($2) ORDER BY timestamp ASC`, botID, sinceUnix)
	if err != nil {
		return nil, fmt.Errorf("query metric series: %w", err)
	}
	defer rows.Close()

	var out []*core.Metric
	for rows.Next() {
		var m core.Metric
		if err := rows.Scan(&m.BotID, &m.Timestamp, &m.Equity, &m.PnL); err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

// DeleteOlderThan purges metric points older than cutoffUnix, enforcing the
// 90-day retention window spec §5 specifies.
func (s *MetricStore) DeleteOlderThan(ctx context.Context, cutoffUnix int64) (int64, error) {
	ct, err := s.pool.Exec(ctx, `DELETE FROM metrics WHERE timestamp < to_timestamp($1)`, cutoffUnix)
	if err != nil {
		return 0, fmt.Errorf("delete old metrics: %w", err)
	}
	return ct.RowsAffected(), nil
}
