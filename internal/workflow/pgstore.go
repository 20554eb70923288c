package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pitabwire/crmflow/model"
)

// WorkflowSchema creates the table PgWorkflowStore reads and writes. The
// full workflow lives in the document column; the remaining columns are
// projections used for filtering.
const WorkflowSchema = `
CREATE TABLE IF NOT EXISTS crm_workflows (
	id            TEXT PRIMARY KEY,
	customer_id   TEXT NOT NULL,
	current_stage TEXT NOT NULL,
	assigned_to   TEXT NOT NULL DEFAULT '',
	assigned_role TEXT NOT NULL DEFAULT '',
	document      JSONB NOT NULL,
	version       INTEGER NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS crm_workflows_stage_idx ON crm_workflows (current_stage);
CREATE INDEX IF NOT EXISTS crm_workflows_role_idx ON crm_workflows (assigned_role);
`

// uniqueViolation is the PostgreSQL SQLSTATE for a duplicate key.
const uniqueViolation = "23505"

// PgWorkflowStore is a PostgreSQL-backed WorkflowStore using pgx/v5.
type PgWorkflowStore struct {
	pool *pgxpool.Pool
}

// NewPgWorkflowStore creates a new PostgreSQL workflow store.
func NewPgWorkflowStore(pool *pgxpool.Pool) *PgWorkflowStore {
	return &PgWorkflowStore{pool: pool}
}

// EnsureSchema creates the workflow table and indexes if missing.
func (s *PgWorkflowStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, WorkflowSchema); err != nil {
		return fmt.Errorf("create workflow schema: %w", err)
	}
	return nil
}

// Create inserts a new workflow.
func (s *PgWorkflowStore) Create(ctx context.Context, wf model.Workflow) error {
	doc, err := json.Marshal(wf)
	if err != nil {
		return fmt.Errorf("marshal workflow: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO crm_workflows (
			id, customer_id, current_stage, assigned_to, assigned_role,
			document, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		wf.ID, wf.CustomerID, wf.CurrentStage, wf.AssignedTo, wf.AssignedRole,
		doc, wf.Version, wf.CreatedAt, wf.UpdatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return model.NewConflictError(fmt.Sprintf("workflow %q already exists", wf.ID))
	}
	if err != nil {
		return fmt.Errorf("insert workflow: %w", err)
	}
	return nil
}

// Get retrieves a workflow by ID.
func (s *PgWorkflowStore) Get(ctx context.Context, id string) (model.Workflow, error) {
	var doc []byte
	var version int

	err := s.pool.QueryRow(ctx, `
		SELECT document, version FROM crm_workflows WHERE id = $1`,
		id,
	).Scan(&doc, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Workflow{}, model.NewNotFoundError(
			fmt.Sprintf("workflow %q not found", id),
		)
	}
	if err != nil {
		return model.Workflow{}, fmt.Errorf("query workflow: %w", err)
	}
	return decodeWorkflow(doc, version)
}

// Update persists an updated workflow with optimistic locking.
func (s *PgWorkflowStore) Update(ctx context.Context, wf model.Workflow) error {
	stored := wf
	stored.Version++
	doc, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("marshal workflow: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE crm_workflows SET
			current_stage = $1,
			assigned_to = $2,
			assigned_role = $3,
			document = $4,
			version = $5,
			updated_at = $6
		WHERE id = $7 AND version = $8`,
		wf.CurrentStage, wf.AssignedTo, wf.AssignedRole,
		doc, stored.Version, wf.UpdatedAt,
		wf.ID, wf.Version,
	)
	if err != nil {
		return fmt.Errorf("update workflow: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := s.Get(ctx, wf.ID); model.IsCode(getErr, model.ErrNotFound) {
			return getErr
		}
		return model.NewConflictError(
			fmt.Sprintf("workflow %q version conflict (expected %d)", wf.ID, wf.Version),
		)
	}
	return nil
}

// List returns workflows matching filters ordered by creation time.
func (s *PgWorkflowStore) List(ctx context.Context, filters WorkflowFilters) ([]model.Workflow, error) {
	query := `SELECT document, version FROM crm_workflows WHERE TRUE`
	var args []any
	argIdx := 1

	if filters.Stage != "" {
		query += fmt.Sprintf(" AND current_stage = $%d", argIdx)
		args = append(args, filters.Stage)
		argIdx++
	}
	if filters.Role != "" {
		query += fmt.Sprintf(" AND assigned_role = $%d", argIdx)
		args = append(args, filters.Role)
		argIdx++
	}
	if filters.AssignedTo != "" {
		query += fmt.Sprintf(" AND assigned_to = $%d", argIdx)
		args = append(args, filters.AssignedTo)
		argIdx++
	}

	query += " ORDER BY created_at ASC, id ASC"

	if filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, filters.Limit)
		argIdx++
	}
	if filters.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, filters.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query workflows: %w", err)
	}
	defer rows.Close()

	var result []model.Workflow
	for rows.Next() {
		var doc []byte
		var version int
		if err := rows.Scan(&doc, &version); err != nil {
			return nil, fmt.Errorf("scan workflow: %w", err)
		}
		wf, err := decodeWorkflow(doc, version)
		if err != nil {
			return nil, err
		}
		result = append(result, wf)
	}
	return result, rows.Err()
}

// HealthCheck pings the pool.
func (s *PgWorkflowStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func decodeWorkflow(doc []byte, version int) (model.Workflow, error) {
	var wf model.Workflow
	if err := json.Unmarshal(doc, &wf); err != nil {
		return model.Workflow{}, fmt.Errorf("unmarshal workflow: %w", err)
	}
	// The column is authoritative.
	wf.Version = version
	return wf, nil
}
