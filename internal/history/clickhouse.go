package history

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// ClickHouseSink writes events to ClickHouse over the native protocol.
type ClickHouseSink struct {
	conn driver.Conn
}

// NewClickHouseSink parses a clickhouse:// DSN, opens a native connection
// and ensures the launch_history table exists.
func NewClickHouseSink(dsn string) (*ClickHouseSink, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse clickhouse dsn: %w", err)
	}
	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}
	s := &ClickHouseSink{conn: conn}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}
	if err := s.ensureSchema(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *ClickHouseSink) ensureSchema(ctx context.Context) error {
	ddl := `CREATE TABLE IF NOT EXISTS launch_history (
		event_type  LowCardinality(String),
		occurred_at DateTime64(3),
		account     String,
		pid         Int64,
		launched_at DateTime64(3),
		detail      String
	) ENGINE = MergeTree()
	ORDER BY (account, occurred_at)`
	if err := s.conn.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensure launch_history schema: %w", err)
	}
	return nil
}

// Emit inserts one event row.
func (s *ClickHouseSink) Emit(ctx context.Context, ev Event) error {
	err := s.conn.Exec(ctx,
		`INSERT INTO launch_history (event_type, occurred_at, account, pid, launched_at, detail)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		string(ev.Type), ev.OccurredAt, ev.Account, int64(ev.PID), ev.LaunchedAt, ev.Detail,
	)
	if err != nil {
		return fmt.Errorf("insert launch_history: %w", err)
	}
	return nil
}

func (s *ClickHouseSink) Close() error { return s.conn.Close() }
