package backtest

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// ResultStore 管理 backtest_runs/trades/equity 三张表。
type ResultStore struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

func NewResultStore(root string) (*ResultStore, error) {
	if root == "" {
		return nil, fmt.Errorf("result store root 不能为空")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(root, "runs.db")
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := ensureResultSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &ResultStore{db: db, path: path}, nil
}

func (s *ResultStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func ensureResultSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS backtest_runs (
			id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			timeframe TEXT NOT NULL,
			start_ts INTEGER NOT NULL,
			end_ts INTEGER NOT NULL,
			initial_balance REAL NOT NULL,
			seed INTEGER NOT NULL,
			rules TEXT NOT NULL,
			stop_loss_pct REAL NOT NULL,
			take_profit_pct REAL NOT NULL,
			force_close_end INTEGER NOT NULL DEFAULT 0,
			net_profit REAL NOT NULL DEFAULT 0,
			net_profit_pct REAL NOT NULL DEFAULT 0,
			win_rate REAL NOT NULL DEFAULT 0,
			max_drawdown_pct REAL NOT NULL DEFAULT 0,
			avg_trade_hours REAL NOT NULL DEFAULT 0,
			total_trades INTEGER NOT NULL DEFAULT 0,
			winning_trades INTEGER NOT NULL DEFAULT 0,
			losing_trades INTEGER NOT NULL DEFAULT 0,
			final_balance REAL NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS backtest_trades (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			entry_ts INTEGER NOT NULL,
			exit_ts INTEGER NOT NULL,
			entry_price REAL NOT NULL,
			exit_price REAL NOT NULL,
			position_size REAL NOT NULL,
			profit REAL NOT NULL,
			return_pct REAL NOT NULL,
			duration_hours REAL NOT NULL,
			exit_reason TEXT NOT NULL,
			FOREIGN KEY(run_id) REFERENCES backtest_runs(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS backtest_equity (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			ts INTEGER NOT NULL,
			balance REAL NOT NULL,
			FOREIGN KEY(run_id) REFERENCES backtest_runs(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_trades_run ON backtest_trades(run_id);`,
		`CREATE INDEX IF NOT EXISTS idx_equity_run ON backtest_equity(run_id, ts);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// SaveReport 以单事务写入 run、成交明细与资金曲线。
func (s *ResultStore) SaveReport(ctx context.Context, report Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return fmt.Errorf("result store 已关闭")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	run := report.Run
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO backtest_runs (
			id, symbol, timeframe, start_ts, end_ts, initial_balance, seed, rules,
			stop_loss_pct, take_profit_pct, force_close_end,
			net_profit, net_profit_pct, win_rate, max_drawdown_pct, avg_trade_hours,
			total_trades, winning_trades, losing_trades, final_balance, created_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		run.ID, run.Symbol, run.Timeframe, run.StartTS, run.EndTS, run.InitialBalance, run.Seed, run.Rules,
		run.StopLossPct, run.TakeProfitPct, boolToInt(run.ForceCloseEnd),
		run.Stats.NetProfit, run.Stats.NetProfitPct, run.Stats.WinRate, run.Stats.MaxDrawdownPct, run.Stats.AvgTradeHours,
		run.Stats.TotalTrades, run.Stats.WinningTrades, run.Stats.LosingTrades, run.Stats.FinalBalance,
		run.CreatedAt.UnixMilli(),
	); err != nil {
		_ = tx.Rollback()
		return err
	}
	tradeStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO backtest_trades (
			run_id, entry_ts, exit_ts, entry_price, exit_price,
			position_size, profit, return_pct, duration_hours, exit_reason
		) VALUES (?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer tradeStmt.Close()
	for _, t := range report.Trades {
		if _, err := tradeStmt.ExecContext(ctx, run.ID, t.EntryTS, t.ExitTS, t.EntryPrice, t.ExitPrice,
			t.PositionSize, t.Profit, t.ReturnPct, t.DurationHours, t.ExitReason); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	eqStmt, err := tx.PrepareContext(ctx, `INSERT INTO backtest_equity (run_id, ts, balance) VALUES (?,?,?)`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer eqStmt.Close()
	for _, p := range report.Equity {
		if _, err := eqStmt.ExecContext(ctx, run.ID, p.TS, p.Balance); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// ListRuns 返回最近的回测记录（按创建时间倒序）。
func (s *ResultStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, symbol, timeframe, start_ts, end_ts, initial_balance, seed, rules,
		       stop_loss_pct, take_profit_pct, force_close_end,
		       net_profit, net_profit_pct, win_rate, max_drawdown_pct, avg_trade_hours,
		       total_trades, winning_trades, losing_trades, final_balance, created_at
		FROM backtest_runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, run)
	}
	return list, rows.Err()
}

// GetRun 返回指定 ID 的回测记录。
func (s *ResultStore) GetRun(ctx context.Context, id string) (Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.db.QueryRowContext(ctx, `
		SELECT id, symbol, timeframe, start_ts, end_ts, initial_balance, seed, rules,
		       stop_loss_pct, take_profit_pct, force_close_end,
		       net_profit, net_profit_pct, win_rate, max_drawdown_pct, avg_trade_hours,
		       total_trades, winning_trades, losing_trades, final_balance, created_at
		FROM backtest_runs WHERE id = ?`, id)
	return scanRun(row)
}

// ListTrades 返回某次回测的成交明细（按入场时间升序）。
func (s *ResultStore) ListTrades(ctx context.Context, runID string, limit int) ([]ClosedTrade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > 5000 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, entry_ts, exit_ts, entry_price, exit_price,
		       position_size, profit, return_pct, duration_hours, exit_reason
		FROM backtest_trades WHERE run_id = ? ORDER BY entry_ts ASC LIMIT ?`, runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []ClosedTrade
	for rows.Next() {
		var t ClosedTrade
		if err := rows.Scan(&t.ID, &t.EntryTS, &t.ExitTS, &t.EntryPrice, &t.ExitPrice,
			&t.PositionSize, &t.Profit, &t.ReturnPct, &t.DurationHours, &t.ExitReason); err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

// ListEquity 返回资金曲线（按时间升序）。
func (s *ResultStore) ListEquity(ctx context.Context, runID string, limit int) ([]EquityPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > 100000 {
		limit = 100000
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, balance FROM backtest_equity WHERE run_id = ? ORDER BY ts ASC LIMIT ?`, runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []EquityPoint
	for rows.Next() {
		var p EquityPoint
		if err := rows.Scan(&p.TS, &p.Balance); err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		run       Run
		forced    int
		createdAt int64
	)
	if err := row.Scan(&run.ID, &run.Symbol, &run.Timeframe, &run.StartTS, &run.EndTS, &run.InitialBalance,
		&run.Seed, &run.Rules, &run.StopLossPct, &run.TakeProfitPct, &forced,
		&run.Stats.NetProfit, &run.Stats.NetProfitPct, &run.Stats.WinRate, &run.Stats.MaxDrawdownPct,
		&run.Stats.AvgTradeHours, &run.Stats.TotalTrades, &run.Stats.WinningTrades, &run.Stats.LosingTrades,
		&run.Stats.FinalBalance, &createdAt); err != nil {
		return Run{}, err
	}
	run.ForceCloseEnd = forced != 0
	run.CreatedAt = time.UnixMilli(createdAt).UTC()
	return run, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
