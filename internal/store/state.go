package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/nidhogg/nuka-drive/internal/autonomy"
	"github.com/nidhogg/nuka-drive/internal/history"
)

// Save upserts the engine state for st.AgentID.
func (s *Postgres) Save(ctx context.Context, st autonomy.State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal state %s: %w", st.AgentID, err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO engine_state (agent_id, state, saved_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (agent_id) DO UPDATE SET
			state = EXCLUDED.state,
			saved_at = EXCLUDED.saved_at`,
		st.AgentID, data, st.SavedAt,
	)
	if err != nil {
		return fmt.Errorf("save state %s: %w", st.AgentID, err)
	}
	return nil
}

// Load retrieves the engine state for an agent.
func (s *Postgres) Load(ctx context.Context, agentID string) (autonomy.State, error) {
	var data []byte
	err := s.db.QueryRow(ctx, `SELECT state FROM engine_state WHERE agent_id = $1`, agentID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return autonomy.State{}, fmt.Errorf("load state %s: %w", agentID, ErrNotFound)
	}
	if err != nil {
		return autonomy.State{}, fmt.Errorf("load state %s: %w", agentID, err)
	}
	var st autonomy.State
	if err := json.Unmarshal(data, &st); err != nil {
		return autonomy.State{}, fmt.Errorf("decode state %s: %w", agentID, err)
	}
	return st, nil
}

// AgentIDs lists every agent with saved state.
func (s *Postgres) AgentIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT agent_id FROM engine_state ORDER BY agent_id`)
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

// AppendDecision adds a record to the unbounded decision log.
func (s *Postgres) AppendDecision(ctx context.Context, agentID string, r history.Record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal decision %s: %w", r.ID, err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO decisions (id, agent_id, kind, chosen, probability, desire_score, record, decided_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET record = EXCLUDED.record`,
		r.ID, agentID, string(r.Kind), r.Chosen, r.Probability, r.DesireScore, data, r.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("append decision %s: %w", r.ID, err)
	}
	return nil
}

// RecentDecisions returns up to limit logged decisions, oldest first.
func (s *Postgres) RecentDecisions(ctx context.Context, agentID string, limit int) ([]history.Record, error) {
	rows, err := s.db.Query(ctx, `
		SELECT record FROM (
			SELECT record, decided_at FROM decisions
			WHERE agent_id = $1
			ORDER BY decided_at DESC
			LIMIT $2
		) recent ORDER BY decided_at`, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	defer rows.Close()

	var out []history.Record
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		var r history.Record
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("decode decision: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
