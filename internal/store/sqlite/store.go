// Package sqlite keeps iteration results in a local SQLite file, for
// simulation runs that have no PostgreSQL at hand.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/alanyoungcy/cyclebot/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS iterations (
	id              TEXT PRIMARY KEY,
	seq             INTEGER NOT NULL,
	started_at      INTEGER NOT NULL,
	finished_at     INTEGER NOT NULL,
	simulated       INTEGER NOT NULL DEFAULT 0,
	budget_exceeded INTEGER NOT NULL DEFAULT 0,
	per_exchange    TEXT    NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS opportunities (
	id               TEXT PRIMARY KEY,
	iteration_id     TEXT    NOT NULL REFERENCES iterations (id) ON DELETE CASCADE,
	exchange         TEXT    NOT NULL,
	path             TEXT    NOT NULL,
	hops             INTEGER NOT NULL,
	net_profit       REAL    NOT NULL,
	gross_weight_sum REAL    NOT NULL,
	strategy         TEXT    NOT NULL DEFAULT '',
	simulated        INTEGER NOT NULL DEFAULT 0,
	rank             INTEGER NOT NULL,
	detected_at      INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_opportunities_iteration ON opportunities (iteration_id, rank);
CREATE INDEX IF NOT EXISTS idx_opportunities_detected_at ON opportunities (detected_at DESC);
`

const pathSep = ">"

// Store implements domain.IterationStore on SQLite. Timestamps are stored as
// Unix nanoseconds.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the
// schema.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	// One writer keeps SQLite from reporting SQLITE_BUSY under the engine.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveIteration stores the iteration and its ranked list in one transaction.
// Saving the same iteration twice is a no-op.
func (s *Store) SaveIteration(ctx context.Context, res domain.IterationResult) error {
	perExchange, err := json.Marshal(res.PerExchange)
	if err != nil {
		return fmt.Errorf("sqlite: marshal outcomes %s: %w", res.ID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin iteration %s: %w", res.ID, err)
	}
	defer func() { _ = tx.Rollback() }()

	out, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO iterations
			(id, seq, started_at, finished_at, simulated, budget_exceeded, per_exchange)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		res.ID, int64(res.Seq), res.StartedAt.UnixNano(), res.FinishedAt.UnixNano(),
		res.Simulated, res.BudgetExceeded, string(perExchange),
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert iteration %s: %w", res.ID, err)
	}
	if n, _ := out.RowsAffected(); n == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO opportunities
			(id, iteration_id, exchange, path, hops, net_profit, gross_weight_sum,
			 strategy, simulated, rank, detected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("sqlite: prepare opportunity insert: %w", err)
	}
	defer stmt.Close()

	for _, o := range res.Ranked {
		if _, err := stmt.ExecContext(ctx,
			o.ID, res.ID, string(o.Exchange), joinPath(o.Path), o.Hops, o.NetProfit, o.GrossWeightSum,
			o.Strategy, o.Simulated, o.Rank, o.Timestamp.UnixNano(),
		); err != nil {
			return fmt.Errorf("sqlite: insert opportunity %s: %w", o.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit iteration %s: %w", res.ID, err)
	}
	return nil
}

// LatestIteration returns the most recently finished iteration, or
// domain.ErrNotFound.
func (s *Store) LatestIteration(ctx context.Context) (domain.IterationResult, error) {
	var (
		res                  domain.IterationResult
		seq, started, finish int64
		perExchange          string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, seq, started_at, finished_at, simulated, budget_exceeded, per_exchange
		FROM iterations ORDER BY finished_at DESC, seq DESC LIMIT 1`,
	).Scan(&res.ID, &seq, &started, &finish, &res.Simulated, &res.BudgetExceeded, &perExchange)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.IterationResult{}, domain.ErrNotFound
		}
		return domain.IterationResult{}, fmt.Errorf("sqlite: latest iteration: %w", err)
	}
	res.Seq = uint64(seq)
	res.StartedAt = time.Unix(0, started).UTC()
	res.FinishedAt = time.Unix(0, finish).UTC()
	if err := json.Unmarshal([]byte(perExchange), &res.PerExchange); err != nil {
		return domain.IterationResult{}, fmt.Errorf("sqlite: unmarshal outcomes %s: %w", res.ID, err)
	}

	res.Ranked, err = s.queryOpportunities(ctx,
		`SELECT `+oppCols+` FROM opportunities WHERE iteration_id = ? ORDER BY rank`, res.ID)
	if err != nil {
		return domain.IterationResult{}, err
	}
	return res, nil
}

// ListRecentOpportunities returns opportunities newest first.
func (s *Store) ListRecentOpportunities(ctx context.Context, limit int) ([]domain.Opportunity, error) {
	query := `SELECT ` + oppCols + ` FROM opportunities ORDER BY detected_at DESC, rank`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return s.queryOpportunities(ctx, query, args...)
}

const oppCols = `id, exchange, path, hops, net_profit, gross_weight_sum, strategy, simulated, rank, detected_at`

func (s *Store) queryOpportunities(ctx context.Context, query string, args ...any) ([]domain.Opportunity, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query opportunities: %w", err)
	}
	defer rows.Close()

	var opps []domain.Opportunity
	for rows.Next() {
		var (
			o              domain.Opportunity
			exchange, path string
			detected       int64
		)
		if err := rows.Scan(&o.ID, &exchange, &path, &o.Hops, &o.NetProfit, &o.GrossWeightSum,
			&o.Strategy, &o.Simulated, &o.Rank, &detected); err != nil {
			return nil, fmt.Errorf("sqlite: scan opportunity: %w", err)
		}
		o.Exchange = domain.ExchangeID(exchange)
		o.Path = splitPath(path)
		o.Timestamp = time.Unix(0, detected).UTC()
		opps = append(opps, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: opportunities rows: %w", err)
	}
	return opps, nil
}

func joinPath(path []domain.Currency) string {
	parts := make([]string, len(path))
	for i, c := range path {
		parts[i] = string(c)
	}
	return strings.Join(parts, pathSep)
}

func splitPath(s string) []domain.Currency {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, pathSep)
	out := make([]domain.Currency, len(parts))
	for i, p := range parts {
		out[i] = domain.Currency(p)
	}
	return out
}

// Compile-time interface check.
var _ domain.IterationStore = (*Store)(nil)
