// Package storage persists runs: one session per pipeline run, its
// transcript and the extracted decision.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dyike/cortextrader/config"
	"github.com/dyike/cortextrader/models"
	"github.com/dyike/cortextrader/pkg/sqlite"
)

const (
	StatusRunning  = "running"
	StatusDone     = "done"
	StatusError    = "error"
	StatusCanceled = "canceled"
)

// ErrDataDirNotConfigured is returned when neither DBPath nor DataDir is set.
var ErrDataDirNotConfigured = errors.New("data_dir is not configured")

var schemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    ticker TEXT NOT NULL,
    trade_date TEXT NOT NULL,
    status TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`,
	`CREATE TABLE IF NOT EXISTS messages (
    session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    seq INTEGER NOT NULL,
    stage TEXT NOT NULL DEFAULT '',
    role TEXT NOT NULL,
    content TEXT NOT NULL DEFAULT '',
    tool_calls_json TEXT NOT NULL DEFAULT '',
    tool_call_id TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (session_id, seq)
)`,
	`CREATE TABLE IF NOT EXISTS decisions (
    session_id TEXT PRIMARY KEY REFERENCES sessions(id) ON DELETE CASCADE,
    action TEXT NOT NULL,
    target_price TEXT,
    confidence REAL NOT NULL,
    risk_score REAL NOT NULL,
    reasoning TEXT NOT NULL DEFAULT '',
    raw TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_ticker ON sessions(ticker, trade_date)`,
}

type Store struct {
	db *sql.DB
}

type Session struct {
	ID        string
	Ticker    string
	TradeDate string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Message struct {
	SessionID  string
	Seq        int
	Stage      string
	Role       string
	Content    string
	ToolCalls  []string
	ToolCallID string
	CreatedAt  time.Time
}

type DecisionRecord struct {
	SessionID string
	Decision  models.Decision
	Raw       string
	CreatedAt time.Time
}

func Open(ctx context.Context, dbPath string) (*Store, error) {
	db, err := sqlite.Open(dbPath)
	if err != nil {
		return nil, err
	}
	if err := sqlite.Migrate(ctx, db, schemaDDL...); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// OpenFromConfig opens cfg.DBPath, or cortextrader.db under cfg.DataDir.
func OpenFromConfig(ctx context.Context, cfg *config.Config) (*Store, error) {
	path := strings.TrimSpace(cfg.DBPath)
	if path == "" {
		dataDir := strings.TrimSpace(cfg.DataDir)
		if dataDir == "" {
			return nil, ErrDataDirNotConfigured
		}
		path = filepath.Join(dataDir, "cortextrader.db")
	}
	return Open(ctx, path)
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) CreateSession(ctx context.Context, sess Session) error {
	if strings.TrimSpace(sess.ID) == "" {
		return fmt.Errorf("session id is required")
	}
	if sess.Status == "" {
		sess.Status = StatusRunning
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO sessions (id, ticker, trade_date, status)
VALUES (?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    ticker=excluded.ticker,
    trade_date=excluded.trade_date,
    status=excluded.status,
    updated_at=CURRENT_TIMESTAMP
`, sess.ID, sess.Ticker, sess.TradeDate, sess.Status)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *Store) UpdateSessionStatus(ctx context.Context, sessionID, status string) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE sessions SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
`, status, sessionID)
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return fmt.Errorf("update session status: session %s not found", sessionID)
	}
	return nil
}

// InsertMessage stores msg. Seq must be positive and unique per session.
func (s *Store) InsertMessage(ctx context.Context, msg Message) error {
	if msg.Seq <= 0 {
		return fmt.Errorf("message seq must be positive")
	}
	if strings.TrimSpace(msg.Role) == "" {
		return fmt.Errorf("message role is required")
	}
	var toolCalls string
	if len(msg.ToolCalls) > 0 {
		data, err := json.Marshal(msg.ToolCalls)
		if err != nil {
			return fmt.Errorf("marshal tool calls: %w", err)
		}
		toolCalls = string(data)
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO messages (session_id, seq, stage, role, content, tool_calls_json, tool_call_id)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, msg.SessionID, msg.Seq, msg.Stage, msg.Role, msg.Content, toolCalls, msg.ToolCallID)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// SaveDecision stores or replaces the decision of a session.
func (s *Store) SaveDecision(ctx context.Context, sessionID string, d models.Decision, raw string) error {
	var target sql.NullString
	if d.TargetPrice != nil {
		target = sql.NullString{String: d.TargetPrice.String(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO decisions (session_id, action, target_price, confidence, risk_score, reasoning, raw)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(session_id) DO UPDATE SET
    action=excluded.action,
    target_price=excluded.target_price,
    confidence=excluded.confidence,
    risk_score=excluded.risk_score,
    reasoning=excluded.reasoning,
    raw=excluded.raw
`, sessionID, string(d.Action), target, d.Confidence, d.RiskScore, d.Reasoning, raw)
	if err != nil {
		return fmt.Errorf("save decision: %w", err)
	}
	return nil
}

// GetSession returns nil without error when the session does not exist.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, ticker, trade_date, status, created_at, updated_at FROM sessions WHERE id = ?
`, id)
	var sess Session
	if err := row.Scan(&sess.ID, &sess.Ticker, &sess.TradeDate, &sess.Status, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &sess, nil
}

// ListSessions returns the newest sessions first, optionally for one ticker.
func (s *Store) ListSessions(ctx context.Context, ticker string, limit int) ([]Session, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, ticker, trade_date, status, created_at, updated_at
FROM sessions
WHERE (? = '' OR ticker = ?)
ORDER BY created_at DESC, rowid DESC
LIMIT ?
`, ticker, ticker, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.Ticker, &sess.TradeDate, &sess.Status, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *Store) ListMessages(ctx context.Context, sessionID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT session_id, seq, stage, role, content, tool_calls_json, tool_call_id, created_at
FROM messages
WHERE session_id = ?
ORDER BY seq ASC
`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var (
			m         Message
			toolCalls string
		)
		if err := rows.Scan(&m.SessionID, &m.Seq, &m.Stage, &m.Role, &m.Content, &toolCalls, &m.ToolCallID, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if toolCalls != "" {
			if err := json.Unmarshal([]byte(toolCalls), &m.ToolCalls); err != nil {
				return nil, fmt.Errorf("decode tool calls of message %d: %w", m.Seq, err)
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetDecision returns nil without error when no decision was saved.
func (s *Store) GetDecision(ctx context.Context, sessionID string) (*DecisionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT session_id, action, target_price, confidence, risk_score, reasoning, raw, created_at
FROM decisions WHERE session_id = ?
`, sessionID)
	var (
		rec    DecisionRecord
		action string
		target sql.NullString
	)
	err := row.Scan(&rec.SessionID, &action, &target, &rec.Decision.Confidence, &rec.Decision.RiskScore,
		&rec.Decision.Reasoning, &rec.Raw, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get decision: %w", err)
	}
	rec.Decision.Action = models.Action(action)
	if target.Valid {
		p, err := decimal.NewFromString(target.String)
		if err != nil {
			return nil, fmt.Errorf("decode target price %q: %w", target.String, err)
		}
		rec.Decision.TargetPrice = &p
	}
	return &rec, nil
}
