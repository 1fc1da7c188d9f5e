package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/cyclebot/internal/domain"
)

// IterationStore implements domain.IterationStore using PostgreSQL.
type IterationStore struct {
	pool *pgxpool.Pool
}

// NewIterationStore creates a new IterationStore backed by the given pool.
func NewIterationStore(pool *pgxpool.Pool) *IterationStore {
	return &IterationStore{pool: pool}
}

const oppSelectCols = `id, exchange, path, hops, net_profit, gross_weight_sum,
	strategy, simulated, rank, detected_at`

// SaveIteration stores the iteration and its ranked opportunities in one
// transaction. Saving the same iteration twice is a no-op.
func (s *IterationStore) SaveIteration(ctx context.Context, res domain.IterationResult) error {
	perExchange, err := json.Marshal(res.PerExchange)
	if err != nil {
		return fmt.Errorf("postgres: marshal outcomes %s: %w", res.ID, err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin iteration %s: %w", res.ID, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const insertIteration = `
		INSERT INTO iterations (
			id, seq, started_at, finished_at, simulated, budget_exceeded,
			per_exchange, ranked_count
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`

	tag, err := tx.Exec(ctx, insertIteration,
		res.ID, int64(res.Seq), res.StartedAt, res.FinishedAt, res.Simulated, res.BudgetExceeded,
		perExchange, len(res.Ranked),
	)
	if err != nil {
		return fmt.Errorf("postgres: insert iteration %s: %w", res.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return nil
	}

	const insertOpp = `
		INSERT INTO opportunities (
			id, iteration_id, exchange, path, signature, hops, net_profit,
			gross_weight_sum, strategy, simulated, rank, detected_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	batch := &pgx.Batch{}
	for _, o := range res.Ranked {
		batch.Queue(insertOpp,
			o.ID, res.ID, string(o.Exchange), currencies(o.Path), o.Signature(), o.Hops, o.NetProfit,
			o.GrossWeightSum, o.Strategy, o.Simulated, o.Rank, o.Timestamp,
		)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("postgres: insert opportunities %s: %w", res.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit iteration %s: %w", res.ID, err)
	}
	return nil
}

// LatestIteration returns the most recently finished iteration with its
// ranked list. It returns domain.ErrNotFound when nothing was stored yet.
func (s *IterationStore) LatestIteration(ctx context.Context) (domain.IterationResult, error) {
	const query = `
		SELECT id, seq, started_at, finished_at, simulated, budget_exceeded, per_exchange
		FROM iterations ORDER BY finished_at DESC, seq DESC LIMIT 1`

	var (
		res         domain.IterationResult
		seq         int64
		perExchange []byte
	)
	err := s.pool.QueryRow(ctx, query).Scan(
		&res.ID, &seq, &res.StartedAt, &res.FinishedAt, &res.Simulated, &res.BudgetExceeded, &perExchange,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.IterationResult{}, domain.ErrNotFound
		}
		return domain.IterationResult{}, fmt.Errorf("postgres: latest iteration: %w", err)
	}
	res.Seq = uint64(seq)
	if err := json.Unmarshal(perExchange, &res.PerExchange); err != nil {
		return domain.IterationResult{}, fmt.Errorf("postgres: unmarshal outcomes %s: %w", res.ID, err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+oppSelectCols+` FROM opportunities WHERE iteration_id = $1 ORDER BY rank`, res.ID)
	if err != nil {
		return domain.IterationResult{}, fmt.Errorf("postgres: list iteration opportunities: %w", err)
	}
	res.Ranked, err = scanOpportunities(rows)
	if err != nil {
		return domain.IterationResult{}, err
	}
	return res, nil
}

// ListRecentOpportunities returns opportunities ordered by detection time,
// newest first.
func (s *IterationStore) ListRecentOpportunities(ctx context.Context, limit int) ([]domain.Opportunity, error) {
	query := `SELECT ` + oppSelectCols + ` FROM opportunities ORDER BY detected_at DESC, rank`
	args := []any{}

	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent opportunities: %w", err)
	}
	return scanOpportunities(rows)
}

func scanOpportunities(rows pgx.Rows) ([]domain.Opportunity, error) {
	defer rows.Close()

	var opps []domain.Opportunity
	for rows.Next() {
		var (
			o        domain.Opportunity
			exchange string
			path     []string
		)
		if err := rows.Scan(
			&o.ID, &exchange, &path, &o.Hops, &o.NetProfit, &o.GrossWeightSum,
			&o.Strategy, &o.Simulated, &o.Rank, &o.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan opportunity: %w", err)
		}
		o.Exchange = domain.ExchangeID(exchange)
		o.Path = make([]domain.Currency, len(path))
		for i, c := range path {
			o.Path[i] = domain.Currency(c)
		}
		opps = append(opps, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: opportunities rows: %w", err)
	}
	return opps, nil
}

func currencies(path []domain.Currency) []string {
	out := make([]string, len(path))
	for i, c := range path {
		out[i] = string(c)
	}
	return out
}

// Compile-time interface check.
var _ domain.IterationStore = (*IterationStore)(nil)
