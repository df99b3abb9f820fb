package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/dolr-ai/content-moderation-sub000/internal/retry"
	"github.com/dolr-ai/content-moderation-sub000/internal/taxonomy"
)

// WarehouseOptions is the tuning blob for the remote index, decoded from
// JSON configuration (WAREHOUSE_OPTIONS).
type WarehouseOptions struct {
	// Metric selects the distance operator; defaults to cosine.
	Metric Metric `json:"metric,omitempty"`
	// Probes is the number of IVF lists the backend scans per query.
	// 0 falls back to an exact sequential scan.
	Probes int `json:"probes,omitempty"`
}

// ParseWarehouseOptions decodes the JSON tuning blob, applying defaults for
// absent fields. An empty string yields the defaults.
func ParseWarehouseOptions(blob string) (WarehouseOptions, error) {
	opts := WarehouseOptions{Metric: MetricCosine}
	if blob == "" {
		return opts, nil
	}
	if err := json.Unmarshal([]byte(blob), &opts); err != nil {
		return WarehouseOptions{}, fmt.Errorf("index: parse warehouse options: %w", err)
	}
	if opts.Metric == "" {
		opts.Metric = MetricCosine
	}
	if opts.Metric != MetricCosine && opts.Metric != MetricL2 {
		return WarehouseOptions{}, fmt.Errorf("index: unknown warehouse metric %q", opts.Metric)
	}
	if opts.Probes < 0 {
		return WarehouseOptions{}, fmt.Errorf("index: probes must be non-negative, got %d", opts.Probes)
	}
	return opts, nil
}

// distanceOperator maps a metric to its pgvector operator.
func distanceOperator(m Metric) string {
	if m == MetricL2 {
		return "<->"
	}
	return "<=>"
}

// WarehouseIndex is the remote searcher backed by a warehouse table with a
// vector column. Each search is one network round trip, retried with
// exponential backoff because the backing call is subject to transient
// failure and quota throttling.
type WarehouseIndex struct {
	pool   *pgxpool.Pool
	table  string
	dim    int
	opts   WarehouseOptions
	policy retry.Policy
	logger *zap.Logger

	// run performs one round trip; swappable in tests.
	run func(ctx context.Context, sql string, query []float32, k int) ([]RetrievedExample, error)
}

// NewWarehouseIndex creates a remote index over the given table. The table
// must expose text, category and embedding columns; dim guards query vectors
// before they cross the network.
func NewWarehouseIndex(pool *pgxpool.Pool, table string, dim int, opts WarehouseOptions, policy retry.Policy, logger *zap.Logger) (*WarehouseIndex, error) {
	if pool == nil {
		return nil, errors.New("index: warehouse pool is required")
	}
	if table == "" {
		return nil, errors.New("index: warehouse table is required")
	}
	if dim <= 0 {
		return nil, fmt.Errorf("index: warehouse dimension must be positive, got %d", dim)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Metric == "" {
		opts.Metric = MetricCosine
	}
	w := &WarehouseIndex{
		pool:   pool,
		table:  table,
		dim:    dim,
		opts:   opts,
		policy: policy,
		logger: logger,
	}
	w.run = w.queryOnce
	return w, nil
}

// Search queries the warehouse for the k nearest rows by the configured
// metric, ordered by ascending distance.
func (w *WarehouseIndex) Search(ctx context.Context, query []float32, k int) ([]RetrievedExample, error) {
	if k <= 0 {
		return nil, ErrBadK
	}
	if len(query) != w.dim {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(query), w.dim)
	}

	op := distanceOperator(w.opts.Metric)
	sql := fmt.Sprintf(
		`SELECT text, category, embedding %s $1 AS distance FROM %s ORDER BY embedding %s $1 LIMIT $2`,
		op, w.table, op)

	var results []RetrievedExample
	retryLog := func(attempt, maxAttempts int, delay time.Duration, err error) {
		w.logger.Warn("retrying warehouse search",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxAttempts),
			zap.Duration("delay", delay),
			zap.Error(err))
	}

	_, err := retry.Do(ctx, w.policy, warehouseRetryable, retryLog, func(attempt int) error {
		rows, err := w.run(ctx, sql, query, k)
		if err != nil {
			return err
		}
		results = rows
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("index: warehouse search: %w", err)
	}
	// An empty table is an error, same as the local index: proceeding would
	// hand the orchestrator an example-free prompt.
	if len(results) == 0 {
		return nil, ErrEmptyIndex
	}
	return results, nil
}

// queryOnce runs a single search round trip inside a transaction so the
// probes setting is scoped to the query.
func (w *WarehouseIndex) queryOnce(ctx context.Context, sql string, query []float32, k int) ([]RetrievedExample, error) {
	tx, err := w.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if w.opts.Probes > 0 {
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL ivfflat.probes = %d", w.opts.Probes)); err != nil {
			return nil, err
		}
	}

	rows, err := tx.Query(ctx, sql, pgvector.NewVector(query), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []RetrievedExample
	for rows.Next() {
		var r RetrievedExample
		var category string
		if err := rows.Scan(&r.Text, &category, &r.Distance); err != nil {
			return nil, err
		}
		r.Category = taxonomy.Category(category)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, tx.Commit(ctx)
}

// warehouseRetryable treats everything transient except caller cancellation.
// Postgres-side errors on a read-only query are either connectivity or
// throttling, both worth a backoff.
func warehouseRetryable(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
