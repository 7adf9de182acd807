package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/workflow-service/internal/domain"
)

// WorkflowRepository encapsulates workflow template persistence,
// including the team linkage rows.
type WorkflowRepository interface {
	Create(ctx context.Context, workflow *domain.Workflow) error
	Update(ctx context.Context, workflow *domain.Workflow) error
	GetByID(ctx context.Context, id string) (*domain.Workflow, error)
	Delete(ctx context.Context, id string) error
	ListByTeam(ctx context.Context, teamID string, projectOnly bool) ([]domain.Workflow, error)
	ListGlobalUnlinked(ctx context.Context, teamID string) ([]domain.Workflow, error)
	GetGlobalProjectWorkflow(ctx context.Context) (*domain.Workflow, error)
	CountByParent(ctx context.Context, workflowID string) (int, error)
	LinkTeam(ctx context.Context, workflowID, teamID string) error
	UnlinkAllTeams(ctx context.Context, workflowID string) error
}

type workflowRepository struct {
	pool *pgxpool.Pool
}

// NewWorkflowRepository instantiates repository.
func NewWorkflowRepository(pool *pgxpool.Pool) WorkflowRepository {
	return &workflowRepository{pool: pool}
}

func (r *workflowRepository) db(ctx context.Context) querier {
	return poolOrTx(ctx, r.pool)
}

const workflowColumns = `id, name, description, request_label, owner_team_id, visibility,
       escalation_level1_hours, escalation_level2_hours, escalation_level3_hours,
       tags, use_for_project, cloned_from_global, parent_workflow_id, created_at, updated_at`

func (r *workflowRepository) Create(ctx context.Context, workflow *domain.Workflow) error {
	const query = `
        INSERT INTO workflows (name, description, request_label, owner_team_id, visibility,
            escalation_level1_hours, escalation_level2_hours, escalation_level3_hours,
            tags, use_for_project, cloned_from_global, parent_workflow_id)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
        RETURNING id, created_at, updated_at`
	return r.db(ctx).QueryRow(ctx, query,
		workflow.Name,
		workflow.Description,
		workflow.RequestLabel,
		workflow.OwnerTeamID,
		workflow.Visibility,
		durationToHours(workflow.EscalationLevel1),
		durationToHours(workflow.EscalationLevel2),
		durationToHours(workflow.EscalationLevel3),
		workflow.Tags,
		workflow.UseForProject,
		workflow.ClonedFromGlobal,
		workflow.ParentWorkflowID,
	).Scan(&workflow.ID, &workflow.CreatedAt, &workflow.UpdatedAt)
}

func (r *workflowRepository) Update(ctx context.Context, workflow *domain.Workflow) error {
	const query = `
        UPDATE workflows SET name=$1, description=$2, request_label=$3, visibility=$4,
            escalation_level1_hours=$5, escalation_level2_hours=$6, escalation_level3_hours=$7,
            tags=$8, use_for_project=$9, updated_at=NOW()
        WHERE id=$10`
	cmd, err := r.db(ctx).Exec(ctx, query,
		workflow.Name,
		workflow.Description,
		workflow.RequestLabel,
		workflow.Visibility,
		durationToHours(workflow.EscalationLevel1),
		durationToHours(workflow.EscalationLevel2),
		durationToHours(workflow.EscalationLevel3),
		workflow.Tags,
		workflow.UseForProject,
		workflow.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *workflowRepository) GetByID(ctx context.Context, id string) (*domain.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE id=$1`
	row := r.db(ctx).QueryRow(ctx, query, id)
	workflow, err := scanWorkflow(row)
	if err != nil {
		return nil, mapNoRows(err)
	}
	return workflow, nil
}

func (r *workflowRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.db(ctx).Exec(ctx, `DELETE FROM workflows WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *workflowRepository) ListByTeam(ctx context.Context, teamID string, projectOnly bool) ([]domain.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows
        WHERE id IN (SELECT workflow_id FROM workflow_team_links WHERE team_id=$1)`
	if projectOnly {
		query += ` AND use_for_project=TRUE`
	}
	query += ` ORDER BY created_at ASC`
	rows, err := r.db(ctx).Query(ctx, query, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanWorkflows(rows)
}

func (r *workflowRepository) ListGlobalUnlinked(ctx context.Context, teamID string) ([]domain.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows
        WHERE owner_team_id IS NULL
          AND id NOT IN (SELECT workflow_id FROM workflow_team_links WHERE team_id=$1)
        ORDER BY created_at ASC`
	rows, err := r.db(ctx).Query(ctx, query, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanWorkflows(rows)
}

func (r *workflowRepository) GetGlobalProjectWorkflow(ctx context.Context) (*domain.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows
        WHERE owner_team_id IS NULL AND use_for_project=TRUE
        LIMIT 1`
	row := r.db(ctx).QueryRow(ctx, query)
	workflow, err := scanWorkflow(row)
	if err != nil {
		return nil, mapNoRows(err)
	}
	return workflow, nil
}

func (r *workflowRepository) CountByParent(ctx context.Context, workflowID string) (int, error) {
	var count int
	err := r.db(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM workflows WHERE parent_workflow_id=$1`, workflowID).Scan(&count)
	return count, err
}

func (r *workflowRepository) LinkTeam(ctx context.Context, workflowID, teamID string) error {
	const query = `
        INSERT INTO workflow_team_links (workflow_id, team_id)
        VALUES ($1,$2)
        ON CONFLICT (workflow_id, team_id) DO NOTHING`
	_, err := r.db(ctx).Exec(ctx, query, workflowID, teamID)
	return err
}

func (r *workflowRepository) UnlinkAllTeams(ctx context.Context, workflowID string) error {
	_, err := r.db(ctx).Exec(ctx, `DELETE FROM workflow_team_links WHERE workflow_id=$1`, workflowID)
	return err
}

func scanWorkflow(row pgx.Row) (*domain.Workflow, error) {
	var workflow domain.Workflow
	var level1, level2, level3 *int64
	if err := row.Scan(
		&workflow.ID,
		&workflow.Name,
		&workflow.Description,
		&workflow.RequestLabel,
		&workflow.OwnerTeamID,
		&workflow.Visibility,
		&level1,
		&level2,
		&level3,
		&workflow.Tags,
		&workflow.UseForProject,
		&workflow.ClonedFromGlobal,
		&workflow.ParentWorkflowID,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
	); err != nil {
		return nil, err
	}
	workflow.EscalationLevel1 = hoursToDuration(level1)
	workflow.EscalationLevel2 = hoursToDuration(level2)
	workflow.EscalationLevel3 = hoursToDuration(level3)
	return &workflow, nil
}

func scanWorkflows(rows pgx.Rows) ([]domain.Workflow, error) {
	var result []domain.Workflow
	for rows.Next() {
		workflow, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *workflow)
	}
	return result, rows.Err()
}
