package app

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SessionMeta is the index entry for one chat session. Transcript content
// lives in the JSONL store; the index only tracks identity and recency so the
// TUI can list and resume sessions cheaply.
type SessionMeta struct {
	ID        string    `json:"id"`
	AgentID   string    `json:"agent_id"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SessionIndex is the sqlite-backed index of sessions and prompt history.
type SessionIndex struct {
	Root   string
	dbPath string

	mu   sync.Mutex
	db   *sql.DB
	once sync.Once
	err  error
}

func NewSessionIndex(root string) (*SessionIndex, error) {
	if strings.TrimSpace(root) == "" {
		root = DefaultAgentRoot("")
	}
	root = filepath.Clean(root)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	idx := &SessionIndex{
		Root:   root,
		dbPath: filepath.Join(root, "chatrelay.db"),
	}
	// Initialize eagerly so callers fail fast.
	if err := idx.init(); err != nil {
		return nil, err
	}
	return idx, nil
}

func (s *SessionIndex) init() error {
	s.once.Do(func() {
		db, err := sql.Open("sqlite", s.dbPath)
		if err != nil {
			s.err = err
			return
		}
		// Keep sqlite responsive under contention.
		_, _ = db.Exec("PRAGMA busy_timeout = 5000;")
		_, _ = db.Exec("PRAGMA journal_mode = WAL;")
		_, _ = db.Exec("PRAGMA synchronous = NORMAL;")

		schema := []string{
			`CREATE TABLE IF NOT EXISTS sessions (
				id TEXT PRIMARY KEY,
				agent_id TEXT NOT NULL,
				title TEXT,
				created_at_ns INTEGER NOT NULL,
				updated_at_ns INTEGER NOT NULL
			);`,
			`CREATE INDEX IF NOT EXISTS idx_sessions_agent_updated ON sessions(agent_id, updated_at_ns);`,
			`CREATE TABLE IF NOT EXISTS current_sessions (
				agent_id TEXT PRIMARY KEY,
				session_id TEXT NOT NULL,
				updated_at_ns INTEGER NOT NULL
			);`,
			`CREATE TABLE IF NOT EXISTS prompt_history (
				agent_id TEXT NOT NULL,
				pos INTEGER NOT NULL,
				entry TEXT NOT NULL,
				PRIMARY KEY (agent_id, pos)
			);`,
		}
		for _, stmt := range schema {
			if _, err := db.Exec(stmt); err != nil {
				_ = db.Close()
				s.err = err
				return
			}
		}

		s.db = db
	})
	return s.err
}

func (s *SessionIndex) dbConn() (*sql.DB, error) {
	if err := s.init(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return nil, errors.New("session index unavailable")
	}
	return db, nil
}

func normalizeAgentID(agentID string) string {
	agentID = strings.TrimSpace(agentID)
	if agentID == "" {
		return "default"
	}
	return agentID
}

func (s *SessionIndex) CreateSession(agentID, title string) (*SessionMeta, error) {
	agentID = normalizeAgentID(agentID)
	db, err := s.dbConn()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	sess := &SessionMeta{
		ID:        uuid.NewString(),
		AgentID:   agentID,
		Title:     strings.TrimSpace(title),
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err = db.Exec(
		`INSERT INTO sessions (id, agent_id, title, created_at_ns, updated_at_ns) VALUES (?, ?, ?, ?, ?)`,
		sess.ID, sess.AgentID, sess.Title, now.UnixNano(), now.UnixNano(),
	)
	if err != nil {
		return nil, err
	}
	if err := s.SetCurrentSession(agentID, sess.ID); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *SessionIndex) SetCurrentSession(agentID, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return errors.New("missing sessionID")
	}
	agentID = normalizeAgentID(agentID)
	db, err := s.dbConn()
	if err != nil {
		return err
	}
	_, err = db.Exec(
		`INSERT INTO current_sessions (agent_id, session_id, updated_at_ns) VALUES (?, ?, ?)
		 ON CONFLICT(agent_id) DO UPDATE SET session_id = excluded.session_id, updated_at_ns = excluded.updated_at_ns`,
		agentID, sessionID, time.Now().UnixNano(),
	)
	return err
}

// CurrentSession returns the active session id for an agent, or "" when none
// has been recorded yet.
func (s *SessionIndex) CurrentSession(agentID string) (string, error) {
	agentID = normalizeAgentID(agentID)
	db, err := s.dbConn()
	if err != nil {
		return "", err
	}
	var sessionID string
	err = db.QueryRow(`SELECT session_id FROM current_sessions WHERE agent_id = ?`, agentID).Scan(&sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(sessionID), nil
}

func (s *SessionIndex) TouchSession(sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return errors.New("missing sessionID")
	}
	db, err := s.dbConn()
	if err != nil {
		return err
	}
	_, err = db.Exec(`UPDATE sessions SET updated_at_ns = ? WHERE id = ?`, time.Now().UnixNano(), sessionID)
	return err
}

func (s *SessionIndex) SetSessionTitle(sessionID, title string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return errors.New("missing sessionID")
	}
	db, err := s.dbConn()
	if err != nil {
		return err
	}
	_, err = db.Exec(
		`UPDATE sessions SET title = ?, updated_at_ns = ? WHERE id = ?`,
		strings.TrimSpace(title), time.Now().UnixNano(), sessionID,
	)
	return err
}

func (s *SessionIndex) ListSessions(agentID string, limit int) ([]SessionMeta, error) {
	agentID = normalizeAgentID(agentID)
	db, err := s.dbConn()
	if err != nil {
		return nil, err
	}
	q := `SELECT id, agent_id, title, created_at_ns, updated_at_ns FROM sessions WHERE agent_id = ? ORDER BY updated_at_ns DESC`
	args := []any{agentID}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []SessionMeta{}
	for rows.Next() {
		var (
			sess      SessionMeta
			title     sql.NullString
			createdNs int64
			updatedNs int64
		)
		if err := rows.Scan(&sess.ID, &sess.AgentID, &title, &createdNs, &updatedNs); err != nil {
			return nil, err
		}
		sess.Title = title.String
		sess.CreatedAt = time.Unix(0, createdNs)
		sess.UpdatedAt = time.Unix(0, updatedNs)
		out = append(out, sess)
	}
	return out, rows.Err()
}

const promptHistoryMax = 200

func normalizePromptHistory(entries []string, max int) []string {
	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if n := len(out); n > 0 && out[n-1] == entry {
			continue
		}
		out = append(out, entry)
	}
	if max > 0 && len(out) > max {
		out = out[len(out)-max:]
	}
	return out
}

func (s *SessionIndex) SavePromptHistory(agentID string, entries []string) error {
	agentID = normalizeAgentID(agentID)
	db, err := s.dbConn()
	if err != nil {
		return err
	}
	entries = normalizePromptHistory(entries, promptHistoryMax)

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM prompt_history WHERE agent_id = ?`, agentID); err != nil {
		_ = tx.Rollback()
		return err
	}
	for i, entry := range entries {
		if _, err := tx.Exec(
			`INSERT INTO prompt_history (agent_id, pos, entry) VALUES (?, ?, ?)`,
			agentID, i, entry,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *SessionIndex) LoadPromptHistory(agentID string) ([]string, error) {
	agentID = normalizeAgentID(agentID)
	db, err := s.dbConn()
	if err != nil {
		return nil, err
	}
	rows, err := db.Query(`SELECT entry FROM prompt_history WHERE agent_id = ? ORDER BY pos`, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var entry string
		if err := rows.Scan(&entry); err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return normalizePromptHistory(out, promptHistoryMax), rows.Err()
}

func (s *SessionIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
