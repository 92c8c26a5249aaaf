package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	apperrors "nse-backtester/internal/errors"
	"nse-backtester/internal/models"
	"nse-backtester/pkg/utils"
)

// SQLiteStore implements DataStore using SQLite.
// Times are written in UTC and read back in the store's location (IST).
type SQLiteStore struct {
	db  *sql.DB
	loc *time.Location
}

// NewSQLiteStore creates a new SQLite-based data store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", apperrors.ErrDatabaseError, dbPath, err)
	}

	// Configure connection pool for concurrent access
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{
		db:  db,
		loc: utils.IndiaLocation,
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: initialize schema: %v", apperrors.ErrDatabaseError, err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Intraday bars, keyed by symbol, interval and bar time
	CREATE TABLE IF NOT EXISTS bars (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		interval TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		volume REAL NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(symbol, interval, timestamp)
	);

	-- One row per backtest run
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		created_at DATETIME NOT NULL,
		symbol TEXT NOT NULL,
		strategy TEXT NOT NULL,
		mode TEXT NOT NULL,
		initial_capital REAL NOT NULL,
		final_equity REAL NOT NULL,
		realized_pnl REAL NOT NULL,
		num_trades INTEGER NOT NULL,
		win_rate REAL NOT NULL,
		num_signals INTEGER NOT NULL,
		max_drawdown REAL NOT NULL DEFAULT 0
	);

	-- Closed round trips of a run
	CREATE TABLE IF NOT EXISTS run_trades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		entry_price REAL NOT NULL,
		exit_price REAL NOT NULL,
		pnl REAL NOT NULL,
		fees REAL NOT NULL,
		exit_tag TEXT NOT NULL,
		reason TEXT,
		entry_time DATETIME,
		exit_time DATETIME,
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	-- Ranked signals of a scan
	CREATE TABLE IF NOT EXISTS signals (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		scan_id TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		rank INTEGER NOT NULL,
		symbol TEXT NOT NULL,
		strategy TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		side TEXT NOT NULL,
		entry_price REAL NOT NULL,
		stop_loss REAL NOT NULL,
		targets TEXT,
		confidence REAL NOT NULL,
		reasoning TEXT,
		meta TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_bars_symbol_interval ON bars(symbol, interval, timestamp);
	CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
	CREATE INDEX IF NOT EXISTS idx_runs_symbol ON runs(symbol, strategy);
	CREATE INDEX IF NOT EXISTS idx_run_trades_run ON run_trades(run_id, seq);
	CREATE INDEX IF NOT EXISTS idx_signals_scan ON signals(scan_id, rank);
	CREATE INDEX IF NOT EXISTS idx_signals_created ON signals(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveBars upserts bars for their symbols at the given interval.
func (s *SQLiteStore) SaveBars(ctx context.Context, interval string, bars []models.MarketBar) error {
	if len(bars) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO bars (symbol, interval, timestamp, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, b := range bars {
		_, err := stmt.ExecContext(ctx, b.Symbol, interval, b.Timestamp.UTC(), b.Open, b.High, b.Low, b.Close, b.Volume)
		if err != nil {
			return fmt.Errorf("failed to insert bar: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetBars returns bars in [from, to] in ascending time order.
func (s *SQLiteStore) GetBars(ctx context.Context, symbol, interval string, from, to time.Time) ([]models.MarketBar, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, open, high, low, close, volume
		FROM bars
		WHERE symbol = ? AND interval = ? AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC
	`, symbol, interval, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query bars: %w", err)
	}
	defer rows.Close()

	return s.scanBars(rows, symbol)
}

// LatestBars returns the most recent limit bars in ascending time order.
func (s *SQLiteStore) LatestBars(ctx context.Context, symbol, interval string, limit int) ([]models.MarketBar, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, open, high, low, close, volume FROM (
			SELECT timestamp, open, high, low, close, volume
			FROM bars
			WHERE symbol = ? AND interval = ?
			ORDER BY timestamp DESC
			LIMIT ?
		) ORDER BY timestamp ASC
	`, symbol, interval, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query bars: %w", err)
	}
	defer rows.Close()

	return s.scanBars(rows, symbol)
}

func (s *SQLiteStore) scanBars(rows *sql.Rows, symbol string) ([]models.MarketBar, error) {
	var bars []models.MarketBar
	for rows.Next() {
		b := models.MarketBar{Symbol: symbol}
		if err := rows.Scan(&b.Timestamp, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan bar: %w", err)
		}
		b.Timestamp = b.Timestamp.In(s.loc)
		bars = append(bars, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bars: %w", err)
	}

	return bars, nil
}

// GetBarsFreshness returns the time of the newest stored bar, or the zero time.
func (s *SQLiteStore) GetBarsFreshness(ctx context.Context, symbol, interval string) (time.Time, error) {
	var latest sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT timestamp FROM bars
		WHERE symbol = ? AND interval = ?
		ORDER BY timestamp DESC LIMIT 1
	`, symbol, interval).Scan(&latest)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get bars freshness: %w", err)
	}
	if !latest.Valid {
		return time.Time{}, nil
	}
	return latest.Time.In(s.loc), nil
}

// SaveRun stores a run and its trades, assigning an ID and creation time when unset.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, created_at, symbol, strategy, mode, initial_capital, final_equity,
			realized_pnl, num_trades, win_rate, num_signals, max_drawdown)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.CreatedAt.UTC(), run.Symbol, run.Strategy, string(run.Mode), run.InitialCapital,
		run.FinalEquity, run.RealizedPnL, run.NumTrades, run.WinRate, run.NumSignals, run.MaxDrawdown)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO run_trades (run_id, seq, symbol, side, quantity, entry_price, exit_price,
			pnl, fees, exit_tag, reason, entry_time, exit_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for i, t := range run.Trades {
		_, err := stmt.ExecContext(ctx, run.ID, i, t.Symbol, string(t.Side), t.Quantity, t.Entry, t.Exit,
			t.PnLEst, t.Fees, t.ExitTag, t.Reason, t.EntryTime.UTC(), t.ExitTime.UTC())
		if err != nil {
			return fmt.Errorf("failed to insert trade: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetRuns returns runs newest first. Trades are not loaded; see GetRunTrades.
func (s *SQLiteStore) GetRuns(ctx context.Context, filter RunFilter) ([]Run, error) {
	query := `
		SELECT id, created_at, symbol, strategy, mode, initial_capital, final_equity,
			realized_pnl, num_trades, win_rate, num_signals, max_drawdown
		FROM runs WHERE 1=1
	`
	var args []interface{}
	var conditions []string

	if filter.Symbol != "" {
		conditions = append(conditions, "symbol = ?")
		args = append(args, filter.Symbol)
	}
	if filter.Strategy != "" {
		conditions = append(conditions, "strategy = ?")
		args = append(args, filter.Strategy)
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, filter.Since.UTC())
	}

	if len(conditions) > 0 {
		query += " AND " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var mode string
		if err := rows.Scan(&r.ID, &r.CreatedAt, &r.Symbol, &r.Strategy, &mode, &r.InitialCapital,
			&r.FinalEquity, &r.RealizedPnL, &r.NumTrades, &r.WinRate, &r.NumSignals, &r.MaxDrawdown); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.Mode = models.RunMode(mode)
		r.CreatedAt = r.CreatedAt.In(s.loc)
		runs = append(runs, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

// GetRunTrades returns a run's trades in the order they closed.
func (s *SQLiteStore) GetRunTrades(ctx context.Context, runID string) ([]models.TradeRecord, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM runs WHERE id = ?`, runID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to look up run: %w", err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("run %s: %w", runID, apperrors.ErrDataNotFound)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, side, quantity, entry_price, exit_price, pnl, fees, exit_tag, reason, entry_time, exit_time
		FROM run_trades WHERE run_id = ? ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []models.TradeRecord
	for rows.Next() {
		var t models.TradeRecord
		var side string
		var reason sql.NullString
		var entryTime, exitTime sql.NullTime
		if err := rows.Scan(&t.Symbol, &side, &t.Quantity, &t.Entry, &t.Exit, &t.PnLEst, &t.Fees,
			&t.ExitTag, &reason, &entryTime, &exitTime); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		t.Side = models.Side(side)
		t.Reason = reason.String
		if entryTime.Valid {
			t.EntryTime = entryTime.Time.In(s.loc)
		}
		if exitTime.Valid {
			t.ExitTime = exitTime.Time.In(s.loc)
		}
		trades = append(trades, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trades: %w", err)
	}
	return trades, nil
}

// SaveSignals stores signals as a new scan, keeping their order as the rank,
// and returns the scan ID.
func (s *SQLiteStore) SaveSignals(ctx context.Context, signals []models.Signal) (string, error) {
	scanID := uuid.NewString()
	created := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO signals (scan_id, created_at, rank, symbol, strategy, timestamp, side,
			entry_price, stop_loss, targets, confidence, reasoning, meta)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return "", fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for i, sig := range signals {
		targetsJSON, _ := json.Marshal(sig.Targets)
		metaJSON, _ := json.Marshal(sig.Meta)
		_, err := stmt.ExecContext(ctx, scanID, created, i+1, sig.Symbol, sig.Strategy, sig.Timestamp.UTC(),
			string(sig.Side), sig.Entry, sig.Stop, string(targetsJSON), sig.Confidence, sig.Reasoning, string(metaJSON))
		if err != nil {
			return "", fmt.Errorf("failed to insert signal: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit transaction: %w", err)
	}
	return scanID, nil
}

// LatestSignals returns the most recent scan in rank order, or nil when no
// scan has been saved. A scan with no signals is not recorded.
func (s *SQLiteStore) LatestSignals(ctx context.Context) (*Scan, error) {
	var scan Scan
	err := s.db.QueryRowContext(ctx, `
		SELECT scan_id, created_at FROM signals
		ORDER BY created_at DESC, id DESC LIMIT 1
	`).Scan(&scan.ID, &scan.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find latest scan: %w", err)
	}
	scan.CreatedAt = scan.CreatedAt.In(s.loc)

	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, strategy, timestamp, side, entry_price, stop_loss, targets, confidence, reasoning, meta
		FROM signals WHERE scan_id = ? ORDER BY rank ASC
	`, scan.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query signals: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var sig models.Signal
		var side string
		var targetsJSON, reasoning, metaJSON sql.NullString
		if err := rows.Scan(&sig.Symbol, &sig.Strategy, &sig.Timestamp, &side, &sig.Entry, &sig.Stop,
			&targetsJSON, &sig.Confidence, &reasoning, &metaJSON); err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}
		sig.Side = models.Side(side)
		sig.Timestamp = sig.Timestamp.In(s.loc)
		sig.Reasoning = reasoning.String
		if targetsJSON.Valid {
			json.Unmarshal([]byte(targetsJSON.String), &sig.Targets)
		}
		if metaJSON.Valid {
			json.Unmarshal([]byte(metaJSON.String), &sig.Meta)
		}
		scan.Signals = append(scan.Signals, sig)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating signals: %w", err)
	}
	return &scan, nil
}

var _ DataStore = (*SQLiteStore)(nil)
