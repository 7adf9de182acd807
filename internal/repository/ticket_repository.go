package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/workflow-service/internal/domain"
)

// TicketFilter captures listing parameters.
type TicketFilter struct {
	WorkflowID *string
	StateID    *string
	Completed  *bool
	Priorities []domain.TicketPriority
	Limit      int
	Offset     int
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	CountActiveByWorkflow(ctx context.Context, workflowID string) (int, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

func (r *ticketRepository) db(ctx context.Context) querier {
	return poolOrTx(ctx, r.pool)
}

const ticketColumns = `id, external_key, workflow_id, current_state_id, title, description,
       priority, tags, is_new, is_completed, is_deleted, completed_at, created_at, updated_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (external_key, workflow_id, current_state_id, title, description, priority, tags, is_new, is_completed)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        RETURNING id, created_at, updated_at`
	return r.db(ctx).QueryRow(ctx, query,
		ticket.ExternalKey,
		ticket.WorkflowID,
		ticket.CurrentStateID,
		ticket.Title,
		ticket.Description,
		ticket.Priority,
		ticket.Tags,
		ticket.IsNew,
		ticket.IsCompleted,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET current_state_id=$1, title=$2, description=$3, priority=$4, tags=$5,
            is_new=$6, is_completed=$7, is_deleted=$8, completed_at=$9, updated_at=NOW()
        WHERE id=$10`
	cmd, err := r.db(ctx).Exec(ctx, query,
		ticket.CurrentStateID,
		ticket.Title,
		ticket.Description,
		ticket.Priority,
		ticket.Tags,
		ticket.IsNew,
		ticket.IsCompleted,
		ticket.IsDeleted,
		ticket.CompletedAt,
		ticket.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	ticket, err := scanTicketRow(r.db(ctx).QueryRow(ctx, query, id))
	if err != nil {
		return nil, mapNoRows(err)
	}
	return ticket, nil
}

func (r *ticketRepository) CountActiveByWorkflow(ctx context.Context, workflowID string) (int, error) {
	var count int
	err := r.db(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM tickets WHERE workflow_id=$1 AND is_deleted=FALSE`, workflowID).Scan(&count)
	return count, err
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	base := `SELECT ` + ticketColumns + ` FROM tickets`
	clauses := []string{"is_deleted=FALSE"}
	args := []any{}

	if filter.WorkflowID != nil {
		args = append(args, *filter.WorkflowID)
		clauses = append(clauses, fmt.Sprintf("workflow_id=$%d", len(args)))
	}
	if filter.StateID != nil {
		args = append(args, *filter.StateID)
		clauses = append(clauses, fmt.Sprintf("current_state_id=$%d", len(args)))
	}
	if filter.Completed != nil {
		args = append(args, *filter.Completed)
		clauses = append(clauses, fmt.Sprintf("is_completed=$%d", len(args)))
	}
	if len(filter.Priorities) > 0 {
		placeholders := make([]string, len(filter.Priorities))
		for i, priority := range filter.Priorities {
			args = append(args, priority)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("priority IN (%s)", strings.Join(placeholders, ",")))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY updated_at DESC LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicketRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func scanTicketRow(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.ExternalKey,
		&ticket.WorkflowID,
		&ticket.CurrentStateID,
		&ticket.Title,
		&ticket.Description,
		&ticket.Priority,
		&ticket.Tags,
		&ticket.IsNew,
		&ticket.IsCompleted,
		&ticket.IsDeleted,
		&ticket.CompletedAt,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}
