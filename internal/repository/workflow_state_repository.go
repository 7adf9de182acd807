package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/workflow-service/internal/domain"
)

// WorkflowStateRepository manages persistence for workflow states.
type WorkflowStateRepository interface {
	Create(ctx context.Context, state *domain.WorkflowState) error
	Update(ctx context.Context, state *domain.WorkflowState) error
	GetByID(ctx context.Context, id string) (*domain.WorkflowState, error)
	Delete(ctx context.Context, id string) error
	ListByWorkflow(ctx context.Context, workflowID string) ([]domain.WorkflowState, error)
	DeleteByWorkflow(ctx context.Context, workflowID string) error
}

type workflowStateRepository struct {
	pool *pgxpool.Pool
}

// NewWorkflowStateRepository constructs repository.
func NewWorkflowStateRepository(pool *pgxpool.Pool) WorkflowStateRepository {
	return &workflowStateRepository{pool: pool}
}

func (r *workflowStateRepository) db(ctx context.Context) querier {
	return poolOrTx(ctx, r.pool)
}

func (r *workflowStateRepository) Create(ctx context.Context, state *domain.WorkflowState) error {
	const query = `
        INSERT INTO workflow_states (workflow_id, name, is_initial, is_final)
        VALUES ($1,$2,$3,$4)
        RETURNING id`
	return r.db(ctx).QueryRow(ctx, query,
		state.WorkflowID,
		state.Name,
		state.IsInitial,
		state.IsFinal,
	).Scan(&state.ID)
}

func (r *workflowStateRepository) Update(ctx context.Context, state *domain.WorkflowState) error {
	const query = `
        UPDATE workflow_states SET name=$1, is_initial=$2, is_final=$3
        WHERE id=$4`
	cmd, err := r.db(ctx).Exec(ctx, query, state.Name, state.IsInitial, state.IsFinal, state.ID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *workflowStateRepository) GetByID(ctx context.Context, id string) (*domain.WorkflowState, error) {
	const query = `
        SELECT id, workflow_id, name, is_initial, is_final
        FROM workflow_states WHERE id=$1`
	var state domain.WorkflowState
	if err := r.db(ctx).QueryRow(ctx, query, id).Scan(
		&state.ID,
		&state.WorkflowID,
		&state.Name,
		&state.IsInitial,
		&state.IsFinal,
	); err != nil {
		return nil, mapNoRows(err)
	}
	return &state, nil
}

func (r *workflowStateRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.db(ctx).Exec(ctx, `DELETE FROM workflow_states WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *workflowStateRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]domain.WorkflowState, error) {
	const query = `
        SELECT id, workflow_id, name, is_initial, is_final
        FROM workflow_states WHERE workflow_id=$1 ORDER BY created_at ASC`
	rows, err := r.db(ctx).Query(ctx, query, workflowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.WorkflowState
	for rows.Next() {
		var state domain.WorkflowState
		if err := rows.Scan(&state.ID, &state.WorkflowID, &state.Name, &state.IsInitial, &state.IsFinal); err != nil {
			return nil, err
		}
		result = append(result, state)
	}
	return result, rows.Err()
}

func (r *workflowStateRepository) DeleteByWorkflow(ctx context.Context, workflowID string) error {
	_, err := r.db(ctx).Exec(ctx, `DELETE FROM workflow_states WHERE workflow_id=$1`, workflowID)
	return err
}
