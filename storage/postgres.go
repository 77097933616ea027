package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"cardpulse_scraper/models"
)

// PostgresStore holds tracked queries and scrape-run records when a shared
// database is configured. Its absence disables tracked-query sweeps from
// the database, never startup.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) GetTrackedQueries(ctx context.Context) ([]models.TrackedQuery, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, query, enabled, last_run_at, created_at
		FROM tracked_queries
		WHERE enabled
		ORDER BY COALESCE(last_run_at, 'epoch'::timestamptz), id`)
	if err != nil {
		return nil, fmt.Errorf("tracked queries: %w", err)
	}
	defer rows.Close()

	var queries []models.TrackedQuery
	for rows.Next() {
		var q models.TrackedQuery
		if err := rows.Scan(&q.ID, &q.Query, &q.Enabled, &q.LastRunAt, &q.CreatedAt); err != nil {
			return nil, err
		}
		queries = append(queries, q)
	}
	return queries, rows.Err()
}

func (s *PostgresStore) TouchTrackedQuery(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE tracked_queries SET last_run_at = NOW() WHERE id = $1`, id)
	return err
}

func (s *PostgresStore) CreateScrapeRun(ctx context.Context, run *models.ScrapeRun) error {
	// Keyed by trace_id; the local store owns the numeric run id.
	_, err := s.pool.Exec(ctx, `
		INSERT INTO scrape_runs (trace_id, query, started_at, status)
		VALUES ($1, $2, $3, $4)`,
		run.TraceID, run.Query, run.StartedAt, run.Status)
	return err
}

func (s *PostgresStore) UpdateScrapeRun(ctx context.Context, run *models.ScrapeRun) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE scrape_runs SET finished_at = $1, status = $2, listings_found = $3,
			active_count = $4, sold_count = $5, delivered = $6, skipped_items = $7,
			errors_count = $8
		WHERE trace_id = $9`,
		run.FinishedAt, run.Status, run.ListingsFound, run.ActiveCount,
		run.SoldCount, run.Delivered, run.SkippedItems, run.ErrorsCount, run.TraceID)
	return err
}
