// Package runs keeps the history of relay workflow runs in Postgres.
package runs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mikeboe/agent-relay/pkg/relay"
)

// conn is the part of *pgxpool.Pool the store uses.
type conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Run is one row of workflow_runs.
type Run struct {
	ID          uuid.UUID          `json:"id"`
	Topic       string             `json:"topic"`
	State       relay.State        `json:"state"`
	Transitions []relay.Transition `json:"transitions"`
	Artifact    *string            `json:"artifact,omitempty"`
	Reason      *string            `json:"reason,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

type LogEntry struct {
	ID        int             `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Level     string          `json:"level"`
	Message   string          `json:"message"`
	Metadata  json.RawMessage `json:"metadata"`
}

type Store struct {
	conn conn
}

// NewStore returns a store on db, usually a *pgxpool.Pool whose schema was
// created with database.InitSchema.
func NewStore(db conn) *Store {
	return &Store{conn: db}
}

// Create inserts a new idle run for topic.
func (s *Store) Create(ctx context.Context, topic string) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.conn.Exec(ctx,
		"INSERT INTO workflow_runs (id, topic, state) VALUES ($1, $2, $3)",
		id, topic, string(relay.Idle))
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create run: %w", err)
	}
	return id, nil
}

// Record appends t to the run's transitions and moves it to t.To.
func (s *Store) Record(ctx context.Context, id uuid.UUID, t relay.Transition) error {
	entry, err := json.Marshal([]relay.Transition{t})
	if err != nil {
		return fmt.Errorf("failed to marshal transition: %w", err)
	}
	_, err = s.conn.Exec(ctx, `
		UPDATE workflow_runs
		SET state = $2, transitions = transitions || $3::jsonb, updated_at = NOW()
		WHERE id = $1
	`, id, string(t.To), entry)
	if err != nil {
		return fmt.Errorf("failed to record transition: %w", err)
	}
	return nil
}

// Finish stores the final state, artifact and failure reason of a run.
func (s *Store) Finish(ctx context.Context, id uuid.UUID, out *relay.Outcome) error {
	_, err := s.conn.Exec(ctx, `
		UPDATE workflow_runs
		SET state = $2, artifact = $3, reason = $4, updated_at = NOW()
		WHERE id = $1
	`, id, string(out.State), nullable(out.Artifact), nullable(out.Reason()))
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	return nil
}

// List returns the most recent runs, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.conn.Query(ctx, `
		SELECT id, topic, state, transitions, artifact, reason, created_at, updated_at
		FROM workflow_runs
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r           Run
			state       string
			transitions []byte
		)
		if err := rows.Scan(&r.ID, &r.Topic, &state, &transitions, &r.Artifact, &r.Reason, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.State = relay.State(state)
		if err := json.Unmarshal(transitions, &r.Transitions); err != nil {
			return nil, fmt.Errorf("failed to decode transitions of run %s: %w", r.ID, err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Logs returns the log lines written for a run, oldest first.
func (s *Store) Logs(ctx context.Context, id uuid.UUID) ([]LogEntry, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT id, timestamp, level, message, metadata
		FROM workflow_logs
		WHERE run_id = $1
		ORDER BY id ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get logs: %w", err)
	}
	defer rows.Close()

	var logs []LogEntry
	for rows.Next() {
		var l LogEntry
		if err := rows.Scan(&l.ID, &l.Timestamp, &l.Level, &l.Message, &l.Metadata); err != nil {
			return nil, fmt.Errorf("failed to scan log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
