package history

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Dialect selects placeholder style for the SQL sink.
type Dialect int

const (
	DialectSQLite Dialect = iota
	DialectPostgres
)

// SQLSink writes events to a relational table named launch_history.
type SQLSink struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLiteSink opens (or creates) a SQLite database at path.
func NewSQLiteSink(path string) (*SQLSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return newSQLSink(db, DialectSQLite)
}

// NewPostgresSink connects to PostgreSQL via the pgx stdlib driver.
func NewPostgresSink(dsn string) (*SQLSink, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return newSQLSink(db, DialectPostgres)
}

func newSQLSink(db *sql.DB, d Dialect) (*SQLSink, error) {
	s := &SQLSink{db: db, dialect: d}
	if err := s.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLSink) ensureSchema() error {
	ddl := `CREATE TABLE IF NOT EXISTS launch_history (
		event_type TEXT NOT NULL,
		occurred_at TIMESTAMP NOT NULL,
		account TEXT NOT NULL,
		pid BIGINT NOT NULL,
		launched_at TIMESTAMP,
		detail TEXT
	)`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("ensure launch_history schema: %w", err)
	}
	if _, err := s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_launch_history_account ON launch_history(account, occurred_at)`); err != nil {
		return fmt.Errorf("ensure launch_history index: %w", err)
	}
	return nil
}

func (s *SQLSink) placeholder(i int) string {
	if s.dialect == DialectPostgres {
		return fmt.Sprintf("$%d", i)
	}
	return "?"
}

func (s *SQLSink) placeholders(n int) string {
	out := ""
	for i := 1; i <= n; i++ {
		if i > 1 {
			out += ", "
		}
		out += s.placeholder(i)
	}
	return out
}

// Emit inserts one event row.
func (s *SQLSink) Emit(ctx context.Context, ev Event) error {
	q := fmt.Sprintf(
		`INSERT INTO launch_history (event_type, occurred_at, account, pid, launched_at, detail) VALUES (%s)`,
		s.placeholders(6),
	)
	if _, err := s.db.ExecContext(ctx, q,
		string(ev.Type), ev.OccurredAt, ev.Account, int64(ev.PID), ev.LaunchedAt, ev.Detail,
	); err != nil {
		return fmt.Errorf("insert launch_history: %w", err)
	}
	return nil
}

// Recent returns up to limit events for an account, newest first. An empty
// account selects across all accounts.
func (s *SQLSink) Recent(ctx context.Context, account string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	var (
		rows *sql.Rows
		err  error
	)
	if account == "" {
		q := fmt.Sprintf(`SELECT event_type, occurred_at, account, pid, launched_at, detail
			FROM launch_history ORDER BY occurred_at DESC LIMIT %s`, s.placeholder(1))
		rows, err = s.db.QueryContext(ctx, q, limit)
	} else {
		q := fmt.Sprintf(`SELECT event_type, occurred_at, account, pid, launched_at, detail
			FROM launch_history WHERE account = %s ORDER BY occurred_at DESC LIMIT %s`,
			s.placeholder(1), s.placeholder(2))
		rows, err = s.db.QueryContext(ctx, q, account, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("query launch_history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Event
	for rows.Next() {
		var (
			ev  Event
			typ string
		)
		if err := rows.Scan(&typ, &ev.OccurredAt, &ev.Account, &ev.PID, &ev.LaunchedAt, &ev.Detail); err != nil {
			return nil, fmt.Errorf("scan launch_history: %w", err)
		}
		ev.Type = EventType(typ)
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *SQLSink) Close() error { return s.db.Close() }
