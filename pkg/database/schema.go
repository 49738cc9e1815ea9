package database

import (
	"context"
	"fmt"
)

// InitSchema creates the workflow run history tables.
func (db *PostgresDB) InitSchema(ctx context.Context) error {
	runsQuery := `
		CREATE TABLE IF NOT EXISTS workflow_runs (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			topic TEXT NOT NULL,
			state TEXT NOT NULL DEFAULT 'idle',
			transitions JSONB NOT NULL DEFAULT '[]',
			artifact TEXT,
			reason TEXT,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		);
	`
	if _, err := db.Pool.Exec(ctx, runsQuery); err != nil {
		return fmt.Errorf("failed to create workflow_runs table: %w", err)
	}

	logsQuery := `
		CREATE TABLE IF NOT EXISTS workflow_logs (
			id SERIAL PRIMARY KEY,
			run_id UUID NOT NULL REFERENCES workflow_runs(id) ON DELETE CASCADE,
			timestamp TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			level TEXT NOT NULL,
			message TEXT NOT NULL,
			metadata JSONB
		);
	`
	if _, err := db.Pool.Exec(ctx, logsQuery); err != nil {
		return fmt.Errorf("failed to create workflow_logs table: %w", err)
	}

	if _, err := db.Pool.Exec(ctx, "CREATE INDEX IF NOT EXISTS idx_workflow_logs_run_id ON workflow_logs(run_id)"); err != nil {
		return fmt.Errorf("failed to create index on workflow_logs: %w", err)
	}
	if _, err := db.Pool.Exec(ctx, "CREATE INDEX IF NOT EXISTS idx_workflow_runs_created_at ON workflow_runs(created_at DESC)"); err != nil {
		return fmt.Errorf("failed to create index on workflow_runs: %w", err)
	}

	return nil
}
