package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nidhogg/nuka-drive/internal/autonomy"
	"github.com/nidhogg/nuka-drive/internal/history"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS engine_state (
	agent_id  TEXT PRIMARY KEY,
	state     TEXT NOT NULL,
	saved_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS decisions (
	id            TEXT PRIMARY KEY,
	agent_id      TEXT NOT NULL,
	kind          TEXT NOT NULL,
	chosen        INTEGER NOT NULL,
	probability   REAL NOT NULL,
	desire_score  REAL NOT NULL,
	record        TEXT NOT NULL,
	decided_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decisions_agent_time ON decisions (agent_id, decided_at);
`

// sqliteTime sorts lexically.
const sqliteTime = "2006-01-02T15:04:05.000000000Z"

// SQLite stores engine state in a local database file.
type SQLite struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLite opens path and creates the schema. ":memory:" is allowed.
func NewSQLite(path string, logger *zap.Logger) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// A single connection keeps ":memory:" databases coherent.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	logger.Info("SQLite opened", zap.String("path", path))
	return &SQLite{db: db, logger: logger}, nil
}

// Save upserts the engine state for st.AgentID.
func (s *SQLite) Save(ctx context.Context, st autonomy.State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal state %s: %w", st.AgentID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO engine_state (agent_id, state, saved_at) VALUES (?, ?, ?)
		ON CONFLICT (agent_id) DO UPDATE SET state = excluded.state, saved_at = excluded.saved_at`,
		st.AgentID, string(data), st.SavedAt.UTC().Format(sqliteTime),
	)
	if err != nil {
		return fmt.Errorf("save state %s: %w", st.AgentID, err)
	}
	return nil
}

// Load retrieves the engine state for an agent.
func (s *SQLite) Load(ctx context.Context, agentID string) (autonomy.State, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT state FROM engine_state WHERE agent_id = ?`, agentID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return autonomy.State{}, fmt.Errorf("load state %s: %w", agentID, ErrNotFound)
	}
	if err != nil {
		return autonomy.State{}, fmt.Errorf("load state %s: %w", agentID, err)
	}
	var st autonomy.State
	if err := json.Unmarshal([]byte(data), &st); err != nil {
		return autonomy.State{}, fmt.Errorf("decode state %s: %w", agentID, err)
	}
	return st, nil
}

// AgentIDs lists every agent with saved state.
func (s *SQLite) AgentIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT agent_id FROM engine_state ORDER BY agent_id`)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AppendDecision adds a record to the decision log.
func (s *SQLite) AppendDecision(ctx context.Context, agentID string, r history.Record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal decision %s: %w", r.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO decisions (id, agent_id, kind, chosen, probability, desire_score, record, decided_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET record = excluded.record`,
		r.ID, agentID, string(r.Kind), r.Chosen, r.Probability, r.DesireScore,
		string(data), r.Timestamp.UTC().Format(sqliteTime),
	)
	if err != nil {
		return fmt.Errorf("append decision %s: %w", r.ID, err)
	}
	return nil
}

// RecentDecisions returns up to limit logged decisions, oldest first.
func (s *SQLite) RecentDecisions(ctx context.Context, agentID string, limit int) ([]history.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT record FROM (
			SELECT record, decided_at FROM decisions
			WHERE agent_id = ?
			ORDER BY decided_at DESC
			LIMIT ?
		) ORDER BY decided_at`, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	defer rows.Close()

	var out []history.Record
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		var r history.Record
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, fmt.Errorf("decode decision: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}
