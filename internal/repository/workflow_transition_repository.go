package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/workflow-service/internal/domain"
)

// WorkflowTransitionRepository manages persistence for workflow edges.
type WorkflowTransitionRepository interface {
	Create(ctx context.Context, transition *domain.WorkflowTransition) error
	Update(ctx context.Context, transition *domain.WorkflowTransition) error
	GetByID(ctx context.Context, id string) (*domain.WorkflowTransition, error)
	Delete(ctx context.Context, id string) error
	ListByWorkflow(ctx context.Context, workflowID string) ([]domain.WorkflowTransition, error)
	ListFromState(ctx context.Context, workflowID, fromStateID string) ([]domain.WorkflowTransition, error)
	Find(ctx context.Context, workflowID, fromStateID, toStateID string) (*domain.WorkflowTransition, error)
	DeleteByWorkflow(ctx context.Context, workflowID string) error
}

type workflowTransitionRepository struct {
	pool *pgxpool.Pool
}

// NewWorkflowTransitionRepository constructs repository.
func NewWorkflowTransitionRepository(pool *pgxpool.Pool) WorkflowTransitionRepository {
	return &workflowTransitionRepository{pool: pool}
}

func (r *workflowTransitionRepository) db(ctx context.Context) querier {
	return poolOrTx(ctx, r.pool)
}

const transitionColumns = `id, workflow_id, from_state_id, to_state_id, event_name, sla_hours, escalate_on_violation`

func (r *workflowTransitionRepository) Create(ctx context.Context, transition *domain.WorkflowTransition) error {
	const query = `
        INSERT INTO workflow_transitions (workflow_id, from_state_id, to_state_id, event_name, sla_hours, escalate_on_violation)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id`
	return r.db(ctx).QueryRow(ctx, query,
		transition.WorkflowID,
		transition.FromStateID,
		transition.ToStateID,
		transition.EventName,
		durationToHours(transition.SLA),
		transition.EscalateOnViolation,
	).Scan(&transition.ID)
}

func (r *workflowTransitionRepository) Update(ctx context.Context, transition *domain.WorkflowTransition) error {
	const query = `
        UPDATE workflow_transitions SET from_state_id=$1, to_state_id=$2, event_name=$3,
            sla_hours=$4, escalate_on_violation=$5
        WHERE id=$6`
	cmd, err := r.db(ctx).Exec(ctx, query,
		transition.FromStateID,
		transition.ToStateID,
		transition.EventName,
		durationToHours(transition.SLA),
		transition.EscalateOnViolation,
		transition.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *workflowTransitionRepository) GetByID(ctx context.Context, id string) (*domain.WorkflowTransition, error) {
	query := `SELECT ` + transitionColumns + ` FROM workflow_transitions WHERE id=$1`
	transition, err := scanTransitionRow(r.db(ctx).QueryRow(ctx, query, id))
	if err != nil {
		return nil, mapNoRows(err)
	}
	return transition, nil
}

func (r *workflowTransitionRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.db(ctx).Exec(ctx, `DELETE FROM workflow_transitions WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *workflowTransitionRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]domain.WorkflowTransition, error) {
	query := `SELECT ` + transitionColumns + ` FROM workflow_transitions WHERE workflow_id=$1 ORDER BY created_at ASC`
	rows, err := r.db(ctx).Query(ctx, query, workflowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTransitions(rows)
}

func (r *workflowTransitionRepository) ListFromState(ctx context.Context, workflowID, fromStateID string) ([]domain.WorkflowTransition, error) {
	query := `SELECT ` + transitionColumns + ` FROM workflow_transitions
        WHERE workflow_id=$1 AND from_state_id=$2 ORDER BY created_at ASC`
	rows, err := r.db(ctx).Query(ctx, query, workflowID, fromStateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTransitions(rows)
}

func (r *workflowTransitionRepository) Find(ctx context.Context, workflowID, fromStateID, toStateID string) (*domain.WorkflowTransition, error) {
	query := `SELECT ` + transitionColumns + ` FROM workflow_transitions
        WHERE workflow_id=$1 AND from_state_id=$2 AND to_state_id=$3`
	transition, err := scanTransitionRow(r.db(ctx).QueryRow(ctx, query, workflowID, fromStateID, toStateID))
	if err != nil {
		return nil, mapNoRows(err)
	}
	return transition, nil
}

func (r *workflowTransitionRepository) DeleteByWorkflow(ctx context.Context, workflowID string) error {
	_, err := r.db(ctx).Exec(ctx, `DELETE FROM workflow_transitions WHERE workflow_id=$1`, workflowID)
	return err
}

func scanTransitionRow(row pgx.Row) (*domain.WorkflowTransition, error) {
	var transition domain.WorkflowTransition
	var slaHours *int64
	if err := row.Scan(
		&transition.ID,
		&transition.WorkflowID,
		&transition.FromStateID,
		&transition.ToStateID,
		&transition.EventName,
		&slaHours,
		&transition.EscalateOnViolation,
	); err != nil {
		return nil, err
	}
	transition.SLA = hoursToDuration(slaHours)
	return &transition, nil
}

func scanTransitions(rows pgx.Rows) ([]domain.WorkflowTransition, error) {
	var result []domain.WorkflowTransition
	for rows.Next() {
		transition, err := scanTransitionRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *transition)
	}
	return result, rows.Err()
}
