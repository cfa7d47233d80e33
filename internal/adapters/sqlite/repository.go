package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"skisTrader/internal/domain"
	"skisTrader/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements the ports.KlineRepository, ports.StateRepository and
// ports.SweepRepository interfaces using SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

var (
	_ ports.KlineRepository = (*Repository)(nil)
	_ ports.StateRepository = (*Repository)(nil)
	_ ports.SweepRepository = (*Repository)(nil)
)

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("%w: logger is required for SQLite repository", ports.ErrConfigurationError)
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/skis.db" // Default path
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("%w: failed to open database at '%s': %v", ports.ErrDBConnection, dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("%w: failed to ping database at '%s': %v", ports.ErrDBConnection, dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// A single writer avoids SQLITE_BUSY under the sweep runner.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	repo := &Repository{db: db, logger: cfg.Logger}
	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Debug(context.Background(), "Database schema initialized/verified")

	return repo, nil
}

// initializeSchema creates tables if they don't exist.
// Prices are stored as TEXT to keep decimals exact.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS klines (
		symbol TEXT NOT NULL,
		interval TEXT NOT NULL,
		open_time INTEGER NOT NULL,
		close_time INTEGER NOT NULL,
		open TEXT NOT NULL,
		high TEXT NOT NULL,
		low TEXT NOT NULL,
		close TEXT NOT NULL,
		volume TEXT NOT NULL,
		buy_volume TEXT NOT NULL,
		trade_count INTEGER NOT NULL,
		PRIMARY KEY (symbol, interval, open_time)
	);

	CREATE TABLE IF NOT EXISTS strategy_state (
		pair TEXT PRIMARY KEY,
		data TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sweep_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_name TEXT NOT NULL,
		params TEXT NOT NULL,
		final_equity TEXT NOT NULL,
		max_drawdown TEXT NOT NULL,
		winrate_count TEXT NOT NULL,
		trade_count INTEGER NOT NULL,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sweep_results_run_name ON sweep_results (run_name);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("%w: failed to execute schema initialization: %v", ports.ErrQueryFailed, err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Debug(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// --- KlineRepository Implementation ---

// SaveKlines upserts klines in one transaction.
func (r *Repository) SaveKlines(ctx context.Context, klines []*domain.Kline) error {
	if len(klines) == 0 {
		return nil
	}
	const query = `
	INSERT INTO klines (symbol, interval, open_time, close_time, open, high, low, close, volume, buy_volume, trade_count)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (symbol, interval, open_time) DO UPDATE SET
		close_time = excluded.close_time, open = excluded.open, high = excluded.high, low = excluded.low,
		close = excluded.close, volume = excluded.volume, buy_volume = excluded.buy_volume,
		trade_count = excluded.trade_count`

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to begin kline transaction: %v", ports.ErrUpdateFailed, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("%w: failed to prepare kline insert: %v", ports.ErrUpdateFailed, err)
	}
	defer stmt.Close()

	for _, k := range klines {
		_, err := stmt.ExecContext(ctx,
			k.Symbol, k.Interval, k.OpenTime.UnixMilli(), k.CloseTime.UnixMilli(),
			k.Open.String(), k.High.String(), k.Low.String(), k.Close.String(),
			k.Volume.String(), k.BuyVolume.String(), k.TradeCount)
		if err != nil {
			return fmt.Errorf("%w: failed to insert kline %s %s at %s: %v", ports.ErrUpdateFailed, k.Symbol, k.Interval, k.OpenTime, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit klines: %v", ports.ErrUpdateFailed, err)
	}
	r.logger.Debug(ctx, "Klines saved", map[string]interface{}{"count": len(klines), "symbol": klines[0].Symbol})
	return nil
}

// FindKlines returns klines with open time in [start, end), ordered by open time.
func (r *Repository) FindKlines(ctx context.Context, symbol, interval string, start, end time.Time) ([]*domain.Kline, error) {
	const query = `
	SELECT symbol, interval, open_time, close_time, open, high, low, close, volume, buy_volume, trade_count
	FROM klines
	WHERE symbol = ? AND interval = ? AND open_time >= ? AND open_time < ?
	ORDER BY open_time ASC`

	rows, err := r.db.QueryContext(ctx, query, symbol, interval, start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query klines for %s: %v", ports.ErrQueryFailed, symbol, err)
	}
	defer rows.Close()

	klines := make([]*domain.Kline, 0)
	for rows.Next() {
		k, err := scanKline(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to scan kline: %v", ports.ErrQueryFailed, err)
		}
		klines = append(klines, k)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: error iterating kline rows: %v", ports.ErrQueryFailed, err)
	}
	return klines, nil
}

// CountKlines counts klines with open time in [start, end).
func (r *Repository) CountKlines(ctx context.Context, symbol, interval string, start, end time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM klines WHERE symbol = ? AND interval = ? AND open_time >= ? AND open_time < ?`
	var count int
	err := r.db.QueryRowContext(ctx, query, symbol, interval, start.UnixMilli(), end.UnixMilli()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to count klines for %s: %v", ports.ErrQueryFailed, symbol, err)
	}
	return count, nil
}

// --- StateRepository Implementation ---

// SaveSkisData stores the latest strategy data for pair.
func (r *Repository) SaveSkisData(ctx context.Context, pair string, data domain.SkisData) error {
	const query = `
	INSERT INTO strategy_state (pair, data, updated_at) VALUES (?, ?, ?)
	ON CONFLICT (pair) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode strategy state for %s: %w", pair, err)
	}
	if _, err := r.db.ExecContext(ctx, query, pair, string(payload), time.Now().UTC()); err != nil {
		return fmt.Errorf("%w: failed to save strategy state for %s: %v", ports.ErrUpdateFailed, pair, err)
	}
	r.logger.Debug(ctx, "Strategy state saved", map[string]interface{}{"pair": pair, "trend": data.Trend.String()})
	return nil
}

// LoadSkisData returns the stored strategy data for pair or ports.ErrStateNotFound.
func (r *Repository) LoadSkisData(ctx context.Context, pair string) (domain.SkisData, error) {
	const query = `SELECT data FROM strategy_state WHERE pair = ?`

	var payload string
	err := r.db.QueryRowContext(ctx, query, pair).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.SkisData{}, fmt.Errorf("pair %s: %w", pair, ports.ErrStateNotFound)
		}
		return domain.SkisData{}, fmt.Errorf("%w: failed to load strategy state for %s: %v", ports.ErrQueryFailed, pair, err)
	}

	var data domain.SkisData
	if err := json.Unmarshal([]byte(payload), &data); err != nil {
		return domain.SkisData{}, fmt.Errorf("failed to decode strategy state for %s: %w", pair, err)
	}
	return data, nil
}

// --- SweepRepository Implementation ---

// SaveSweepResults stores results in one transaction and assigns their IDs.
func (r *Repository) SaveSweepResults(ctx context.Context, results []*domain.SweepResult) error {
	if len(results) == 0 {
		return nil
	}
	const query = `
	INSERT INTO sweep_results (run_name, params, final_equity, max_drawdown, winrate_count, trade_count, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to begin sweep transaction: %v", ports.ErrUpdateFailed, err)
	}
	defer tx.Rollback()

	for _, res := range results {
		params, err := json.Marshal(res.Params)
		if err != nil {
			return fmt.Errorf("failed to encode sweep params: %w", err)
		}
		if res.CreatedAt.IsZero() {
			res.CreatedAt = time.Now().UTC()
		}
		result, err := tx.ExecContext(ctx, query,
			res.RunName, string(params), res.FinalEquity.String(), res.MaxDrawdown.String(),
			res.WinrateCount.String(), res.TradeCount, res.CreatedAt)
		if err != nil {
			return fmt.Errorf("%w: failed to insert sweep result for run %s: %v", ports.ErrUpdateFailed, res.RunName, err)
		}
		if res.ID, err = result.LastInsertId(); err != nil {
			return fmt.Errorf("%w: failed to get last insert ID for run %s: %v", ports.ErrUpdateFailed, res.RunName, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit sweep results: %v", ports.ErrUpdateFailed, err)
	}
	r.logger.Debug(ctx, "Sweep results saved", map[string]interface{}{"count": len(results), "run": results[0].RunName})
	return nil
}

// FindTopSweepResults returns the best results of a run by final equity.
func (r *Repository) FindTopSweepResults(ctx context.Context, runName string, limit int) ([]*domain.SweepResult, error) {
	const query = `
	SELECT id, run_name, params, final_equity, max_drawdown, winrate_count, trade_count, created_at
	FROM sweep_results
	WHERE run_name = ?
	ORDER BY CAST(final_equity AS REAL) DESC, id ASC
	LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, runName, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query sweep results for run %s: %v", ports.ErrQueryFailed, runName, err)
	}
	defer rows.Close()

	results := make([]*domain.SweepResult, 0)
	for rows.Next() {
		res, err := scanSweepResult(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to scan sweep result: %v", ports.ErrQueryFailed, err)
		}
		results = append(results, res)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: error iterating sweep rows: %v", ports.ErrQueryFailed, err)
	}
	return results, nil
}

// ListSweepRuns returns the distinct run names, most recently written first.
func (r *Repository) ListSweepRuns(ctx context.Context) ([]string, error) {
	const query = `SELECT run_name FROM sweep_results GROUP BY run_name ORDER BY MAX(id) DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list sweep runs: %v", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	runs := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("%w: failed to scan run name: %v", ports.ErrQueryFailed, err)
		}
		runs = append(runs, name)
	}
	return runs, rows.Err()
}

// --- Helper Scan Functions ---

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanKline scans a row into a domain.Kline struct.
func scanKline(s scanner) (*domain.Kline, error) {
	k := &domain.Kline{IsFinal: true}
	var openTime, closeTime int64
	err := s.Scan(&k.Symbol, &k.Interval, &openTime, &closeTime,
		&k.Open, &k.High, &k.Low, &k.Close, &k.Volume, &k.BuyVolume, &k.TradeCount)
	if err != nil {
		return nil, err
	}
	k.OpenTime = time.UnixMilli(openTime).UTC()
	k.CloseTime = time.UnixMilli(closeTime).UTC()
	return k, nil
}

// scanSweepResult scans a row into a domain.SweepResult struct.
func scanSweepResult(s scanner) (*domain.SweepResult, error) {
	res := &domain.SweepResult{}
	var params string
	err := s.Scan(&res.ID, &res.RunName, &params, &res.FinalEquity, &res.MaxDrawdown,
		&res.WinrateCount, &res.TradeCount, &res.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(params), &res.Params); err != nil {
		return nil, fmt.Errorf("decoding params: %w", err)
	}
	return res, nil
}
