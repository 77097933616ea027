package storage

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"cardpulse_scraper/models"
)

// SQLiteStore is the local operational store: run history and log lines for
// offline inspection. Listing data itself is never persisted.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS scrape_runs (
		id INTEGER PRIMARY KEY,
		trace_id TEXT,
		query TEXT,
		started_at DATETIME,
		finished_at DATETIME,
		status TEXT,
		listings_found INTEGER,
		active_count INTEGER,
		sold_count INTEGER,
		delivered INTEGER,
		skipped_items INTEGER,
		errors_count INTEGER
	);

	CREATE TABLE IF NOT EXISTS scrape_logs (
		id INTEGER PRIMARY KEY,
		run_id INTEGER,
		timestamp DATETIME,
		level TEXT,
		message TEXT,
		query TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_status ON scrape_runs(status, started_at);
	CREATE INDEX IF NOT EXISTS idx_logs_run ON scrape_logs(run_id, timestamp);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) CreateRun(run *models.ScrapeRun) (int64, error) {
	result, err := s.db.Exec(`
		INSERT INTO scrape_runs (trace_id, query, started_at, status, listings_found,
			active_count, sold_count, delivered, skipped_items, errors_count)
		VALUES (?, ?, ?, ?, 0, 0, 0, 0, 0, 0)`,
		run.TraceID, run.Query, run.StartedAt, run.Status)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (s *SQLiteStore) UpdateRun(run *models.ScrapeRun) error {
	_, err := s.db.Exec(`
		UPDATE scrape_runs SET finished_at = ?, status = ?, listings_found = ?,
			active_count = ?, sold_count = ?, delivered = ?, skipped_items = ?, errors_count = ?
		WHERE id = ?`,
		run.FinishedAt, run.Status, run.ListingsFound, run.ActiveCount,
		run.SoldCount, run.Delivered, run.SkippedItems, run.ErrorsCount, run.ID)
	return err
}

func (s *SQLiteStore) Log(runID *int64, level models.LogLevel, message, query string) error {
	_, err := s.db.Exec(`
		INSERT INTO scrape_logs (run_id, timestamp, level, message, query)
		VALUES (?, ?, ?, ?, ?)`,
		runID, time.Now(), level, message, query)
	return err
}

func (s *SQLiteStore) RecentRuns(limit int) ([]models.ScrapeRun, error) {
	rows, err := s.db.Query(`
		SELECT id, trace_id, query, started_at, finished_at, status, listings_found,
			active_count, sold_count, delivered, skipped_items, errors_count
		FROM scrape_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []models.ScrapeRun
	for rows.Next() {
		var run models.ScrapeRun
		var finished sql.NullTime
		if err := rows.Scan(&run.ID, &run.TraceID, &run.Query, &run.StartedAt, &finished,
			&run.Status, &run.ListingsFound, &run.ActiveCount, &run.SoldCount,
			&run.Delivered, &run.SkippedItems, &run.ErrorsCount); err != nil {
			return nil, err
		}
		if finished.Valid {
			run.FinishedAt = &finished.Time
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *SQLiteStore) RecentLogs(limit int) ([]models.ScrapeLog, error) {
	rows, err := s.db.Query(`
		SELECT id, run_id, timestamp, level, message, query
		FROM scrape_logs ORDER BY timestamp DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []models.ScrapeLog
	for rows.Next() {
		var l models.ScrapeLog
		var runID sql.NullInt64
		if err := rows.Scan(&l.ID, &runID, &l.Timestamp, &l.Level, &l.Message, &l.Query); err != nil {
			return nil, err
		}
		if runID.Valid {
			l.RunID = &runID.Int64
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
