// Package store persists strategies, execution records and cumulative
// profits in a local sqlite database. Writers serialize through a file lock
// so concurrent CLI invocations do not corrupt the database.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

type Store struct {
	db   *sql.DB
	lock *flock.Flock
}

// ActionRecord is the persisted form of one strategy action.
type ActionRecord struct {
	Type        string `json:"type"`
	Target      string `json:"target"`
	Data        string `json:"data"`
	Value       string `json:"value,omitempty"`
	ExpectedGas uint64 `json:"expectedGas,omitempty"`
	Critical    bool   `json:"critical"`
	Description string `json:"description,omitempty"`
}

// StrategyRecord is the persisted view of a strategy.
type StrategyRecord struct {
	ID             uint64         `json:"id"`
	Creator        string         `json:"creator"`
	Name           string         `json:"name"`
	Description    string         `json:"description,omitempty"`
	Actions        []ActionRecord `json:"actions"`
	MinProfitBPS   uint32         `json:"minProfitBps"`
	MaxGasPrice    string         `json:"maxGasPrice,omitempty"`
	Deadline       int64          `json:"deadline,omitempty"`
	Active         bool           `json:"active"`
	ExecutionCount uint64         `json:"executionCount"`
	TotalProfit    string         `json:"totalProfit"`
	CreatedAt      string         `json:"createdAt"`
}

// ExecutionRecord is one committed execution. ExecutionID is assigned on
// save when empty.
type ExecutionRecord struct {
	ExecutionID string `json:"executionId"`
	StrategyID  uint64 `json:"strategyId"`
	Executor    string `json:"executor"`
	Asset       string `json:"asset"`
	Principal   string `json:"principal"`
	Premium     string `json:"premium"`
	Profit      string `json:"profit"`
	Success     bool   `json:"success"`
	CreatedAt   string `json:"createdAt"`
}

func Open(path, lockPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}

	queries := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		`CREATE TABLE IF NOT EXISTS strategies (
			id INTEGER PRIMARY KEY,
			creator TEXT NOT NULL,
			active INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			payload BLOB NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS executions (
			execution_id TEXT PRIMARY KEY,
			strategy_id INTEGER NOT NULL,
			executor TEXT NOT NULL,
			success INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			payload BLOB NOT NULL
		);`,
		"CREATE INDEX IF NOT EXISTS idx_executions_strategy ON executions(strategy_id, created_at DESC);",
		`CREATE TABLE IF NOT EXISTS profits (
			executor TEXT NOT NULL,
			asset TEXT NOT NULL,
			total TEXT NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (executor, asset)
		);`,
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value BLOB NOT NULL
		);`,
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init store schema: %w", err)
		}
	}
	return &Store{db: db, lock: flock.New(lockPath)}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) withLock(fn func() error) error {
	locked, err := s.lock.TryLockContext(context.Background(), 5*time.Second)
	if err != nil {
		return fmt.Errorf("lock store: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock store: timeout acquiring lock")
	}
	defer func() { _ = s.lock.Unlock() }()
	return fn()
}

func parseRFC3339Unix(v string) int64 {
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Now().UTC().Unix()
	}
	return t.UTC().Unix()
}

// SaveStrategy upserts a strategy record keyed by id.
func (s *Store) SaveStrategy(rec StrategyRecord) error {
	if rec.ID == 0 {
		return fmt.Errorf("save strategy: missing id")
	}
	return s.withLock(func() error {
		payload, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal strategy: %w", err)
		}
		active := 0
		if rec.Active {
			active = 1
		}
		_, err = s.db.Exec(`
			INSERT INTO strategies (id, creator, active, created_at, payload)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				creator=excluded.creator,
				active=excluded.active,
				payload=excluded.payload
		`, rec.ID, rec.Creator, active, parseRFC3339Unix(rec.CreatedAt), payload)
		if err != nil {
			return fmt.Errorf("save strategy: %w", err)
		}
		return nil
	})
}

func (s *Store) GetStrategy(id uint64) (StrategyRecord, error) {
	var payload []byte
	err := s.db.QueryRow("SELECT payload FROM strategies WHERE id = ?", id).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return StrategyRecord{}, fmt.Errorf("strategy not found: %d", id)
		}
		return StrategyRecord{}, fmt.Errorf("read strategy: %w", err)
	}
	var rec StrategyRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return StrategyRecord{}, fmt.Errorf("decode strategy payload: %w", err)
	}
	return rec, nil
}

// ListStrategies returns records in id order, optionally filtered by creator.
func (s *Store) ListStrategies(creator string, limit int) ([]StrategyRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var (
		rows *sql.Rows
		err  error
	)
	if strings.TrimSpace(creator) == "" {
		rows, err = s.db.Query("SELECT payload FROM strategies ORDER BY id ASC LIMIT ?", limit)
	} else {
		rows, err = s.db.Query("SELECT payload FROM strategies WHERE creator = ? ORDER BY id ASC LIMIT ?", creator, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list strategies: %w", err)
	}
	defer rows.Close()

	records := make([]StrategyRecord, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan strategy row: %w", err)
		}
		var rec StrategyRecord
		if err := json.Unmarshal(payload, &rec); err != nil {
			return nil, fmt.Errorf("decode strategy row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate strategy rows: %w", err)
	}
	return records, nil
}

// SaveExecution inserts an execution record, assigning a fresh execution id
// when the record carries none.
func (s *Store) SaveExecution(rec ExecutionRecord) (string, error) {
	if strings.TrimSpace(rec.ExecutionID) == "" {
		rec.ExecutionID = uuid.NewString()
	}
	if strings.TrimSpace(rec.CreatedAt) == "" {
		rec.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	err := s.withLock(func() error {
		payload, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal execution: %w", err)
		}
		success := 0
		if rec.Success {
			success = 1
		}
		_, err = s.db.Exec(`
			INSERT INTO executions (execution_id, strategy_id, executor, success, created_at, payload)
			VALUES (?, ?, ?, ?, ?, ?)
		`, rec.ExecutionID, rec.StrategyID, rec.Executor, success, parseRFC3339Unix(rec.CreatedAt), payload)
		if err != nil {
			return fmt.Errorf("save execution: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return rec.ExecutionID, nil
}

// ListExecutions returns the most recent executions, optionally scoped to one
// strategy (id 0 means all).
func (s *Store) ListExecutions(strategyID uint64, limit int) ([]ExecutionRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	var (
		rows *sql.Rows
		err  error
	)
	if strategyID == 0 {
		rows, err = s.db.Query("SELECT payload FROM executions ORDER BY created_at DESC LIMIT ?", limit)
	} else {
		rows, err = s.db.Query("SELECT payload FROM executions WHERE strategy_id = ? ORDER BY created_at DESC LIMIT ?", strategyID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	records := make([]ExecutionRecord, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan execution row: %w", err)
		}
		var rec ExecutionRecord
		if err := json.Unmarshal(payload, &rec); err != nil {
			return nil, fmt.Errorf("decode execution row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate execution rows: %w", err)
	}
	return records, nil
}

// AddProfit adds delta to the cumulative profit for (executor, asset).
func (s *Store) AddProfit(executor, asset string, delta *big.Int) error {
	return s.withLock(func() error {
		var current string
		err := s.db.QueryRow("SELECT total FROM profits WHERE executor = ? AND asset = ?", executor, asset).Scan(&current)
		total := new(big.Int)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("read profit: %w", err)
		default:
			if _, ok := total.SetString(current, 10); !ok {
				return fmt.Errorf("corrupt profit total %q for %s/%s", current, executor, asset)
			}
		}
		total.Add(total, delta)
		_, err = s.db.Exec(`
			INSERT INTO profits (executor, asset, total, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(executor, asset) DO UPDATE SET
				total=excluded.total,
				updated_at=excluded.updated_at
		`, executor, asset, total.String(), time.Now().UTC().Unix())
		if err != nil {
			return fmt.Errorf("save profit: %w", err)
		}
		return nil
	})
}

// SetValue stores an opaque settings blob under key.
func (s *Store) SetValue(key string, value []byte) error {
	return s.withLock(func() error {
		_, err := s.db.Exec(`
			INSERT INTO settings (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value=excluded.value
		`, key, value)
		if err != nil {
			return fmt.Errorf("save setting %s: %w", key, err)
		}
		return nil
	})
}

// GetValue returns the settings blob for key, nil when absent.
func (s *Store) GetValue(key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read setting %s: %w", key, err)
	}
	return value, nil
}

// GetProfit returns the cumulative profit, zero for unknown keys.
func (s *Store) GetProfit(executor, asset string) (*big.Int, error) {
	var current string
	err := s.db.QueryRow("SELECT total FROM profits WHERE executor = ? AND asset = ?", executor, asset).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read profit: %w", err)
	}
	total := new(big.Int)
	if _, ok := total.SetString(current, 10); !ok {
		return nil, fmt.Errorf("corrupt profit total %q for %s/%s", current, executor, asset)
	}
	return total, nil
}
