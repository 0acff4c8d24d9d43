// Package history provides SQLite persistence for settled plays.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/MJE43/flip-go/internal/wager"
)

// Session groups the plays made during one run of the client.
type Session struct {
	ID        string     `json:"id"`
	Creator   string     `json:"creator"`
	StartedAt time.Time  `json:"startedAt"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
}

// Play is one settled play.
type Play struct {
	ID          string          `json:"id"`
	SessionID   string          `json:"sessionId"`
	PlayID      string          `json:"playId"`
	Selection   wager.Selection `json:"selection"`
	Wager       float64         `json:"wager"`
	Lamports    int64           `json:"lamports"`
	ResultIndex int             `json:"resultIndex"`
	Won         bool            `json:"won"`
	Payout      decimal.Decimal `json:"payout"`
	SettledAt   time.Time       `json:"settledAt"`
}

// PlaysPage is a paginated plays response.
type PlaysPage struct {
	Plays      []Play `json:"plays"`
	TotalCount int    `json:"totalCount"`
	Page       int    `json:"page"`
	PerPage    int    `json:"perPage"`
	TotalPages int    `json:"totalPages"`
}

// Summary aggregates every stored play.
type Summary struct {
	Plays   int             `json:"plays"`
	Wins    int             `json:"wins"`
	Losses  int             `json:"losses"`
	Wagered float64         `json:"wagered"`
	PaidOut decimal.Decimal `json:"paidOut"`
}

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("history: not found")

// Store provides SQLite persistence for play history.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the history database at dbPath.
func Open(dbPath string) (*Store, error) {
	// Per-connection pragmas go in the DSN so every pooled connection gets them.
	dsn := dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("history: open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: enable WAL: %w", err)
	}
	return &Store{db: db}, nil
}

// Migrate creates the history tables.
func (s *Store) Migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			creator TEXT NOT NULL DEFAULT '',
			started_at DATETIME NOT NULL,
			ended_at DATETIME
		)`,
		`CREATE TABLE IF NOT EXISTS plays (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			play_id TEXT NOT NULL,
			selection TEXT NOT NULL,
			wager REAL NOT NULL,
			lamports INTEGER NOT NULL,
			result_index INTEGER NOT NULL,
			won BOOLEAN NOT NULL DEFAULT 0,
			payout TEXT NOT NULL DEFAULT '0',
			settled_at DATETIME NOT NULL,
			FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_plays_session ON plays(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_plays_settled ON plays(settled_at)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_plays_play_id ON plays(play_id)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("history: migrate: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// StartSession inserts a new session and returns its ID.
func (s *Store) StartSession(ctx context.Context, creator string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, creator, started_at) VALUES (?, ?, ?)`,
		id, creator, time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("history: start session: %w", err)
	}
	return id, nil
}

// EndSession stamps the session's end time.
func (s *Store) EndSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET ended_at = ? WHERE id = ?`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("history: end session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("history: session %q: %w", id, ErrNotFound)
	}
	return nil
}

// GetSession fetches a session by ID.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	sess := &Session{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, creator, started_at, ended_at FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.Creator, &sess.StartedAt, &sess.EndedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("history: session %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("history: get session: %w", err)
	}
	return sess, nil
}

// InsertPlay records a settled play. The gateway play id is unique; recording the
// same play twice is a no-op.
func (s *Store) InsertPlay(ctx context.Context, p *Play) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.SettledAt.IsZero() {
		p.SettledAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO plays (id, session_id, play_id, selection, wager, lamports, result_index, won, payout, settled_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(play_id) DO NOTHING`,
		p.ID, p.SessionID, p.PlayID, string(p.Selection), p.Wager, p.Lamports,
		p.ResultIndex, p.Won, p.Payout.String(), p.SettledAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("history: insert play %s: %w", p.PlayID, err)
	}
	return nil
}

const playColumns = `id, session_id, play_id, selection, wager, lamports, result_index, won, payout, settled_at`

func scanPlays(rows *sql.Rows) ([]Play, error) {
	var plays []Play
	for rows.Next() {
		var p Play
		var sel, payout string
		if err := rows.Scan(&p.ID, &p.SessionID, &p.PlayID, &sel, &p.Wager, &p.Lamports,
			&p.ResultIndex, &p.Won, &payout, &p.SettledAt); err != nil {
			return nil, fmt.Errorf("history: scan play: %w", err)
		}
		p.Selection = wager.Selection(sel)
		d, err := decimal.NewFromString(payout)
		if err != nil {
			return nil, fmt.Errorf("history: play %s payout %q: %w", p.PlayID, payout, err)
		}
		p.Payout = d
		plays = append(plays, p)
	}
	return plays, rows.Err()
}

// Recent returns the latest plays across all sessions, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Play, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+playColumns+` FROM plays ORDER BY settled_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: recent plays: %w", err)
	}
	defer rows.Close()
	return scanPlays(rows)
}

// SessionPlays returns paginated plays for a session, newest first.
func (s *Store) SessionPlays(ctx context.Context, sessionID string, page, perPage int) (*PlaysPage, error) {
	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 50
	}
	offset := (page - 1) * perPage

	var total int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM plays WHERE session_id = ?", sessionID,
	).Scan(&total); err != nil {
		return nil, fmt.Errorf("history: count plays: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+playColumns+` FROM plays WHERE session_id = ?
		 ORDER BY settled_at DESC, rowid DESC LIMIT ? OFFSET ?`,
		sessionID, perPage, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("history: session plays: %w", err)
	}
	defer rows.Close()

	plays, err := scanPlays(rows)
	if err != nil {
		return nil, err
	}

	totalPages := total / perPage
	if total%perPage > 0 {
		totalPages++
	}
	return &PlaysPage{
		Plays:      plays,
		TotalCount: total,
		Page:       page,
		PerPage:    perPage,
		TotalPages: totalPages,
	}, nil
}

// Summarize aggregates every stored play.
func (s *Store) Summarize(ctx context.Context) (Summary, error) {
	var sum Summary
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(won), 0), COALESCE(SUM(wager), 0) FROM plays`,
	).Scan(&sum.Plays, &sum.Wins, &sum.Wagered)
	if err != nil {
		return Summary{}, fmt.Errorf("history: summarize: %w", err)
	}
	sum.Losses = sum.Plays - sum.Wins

	// Payouts are exact decimals stored as text; sum them here rather than in SQL.
	rows, err := s.db.QueryContext(ctx, `SELECT payout FROM plays`)
	if err != nil {
		return Summary{}, fmt.Errorf("history: summarize payouts: %w", err)
	}
	defer rows.Close()
	sum.PaidOut = decimal.Zero
	for rows.Next() {
		var payout string
		if err := rows.Scan(&payout); err != nil {
			return Summary{}, fmt.Errorf("history: scan payout: %w", err)
		}
		d, err := decimal.NewFromString(payout)
		if err != nil {
			return Summary{}, fmt.Errorf("history: payout %q: %w", payout, err)
		}
		sum.PaidOut = sum.PaidOut.Add(d)
	}
	return sum, rows.Err()
}

// DeleteSession removes a session and its plays.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id); err != nil {
		return fmt.Errorf("history: delete session: %w", err)
	}
	return nil
}
