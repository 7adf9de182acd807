package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/workflow-service/internal/domain"
)

// TransitionHistoryRepository stores the append-only transition ledger.
type TransitionHistoryRepository interface {
	Create(ctx context.Context, entry *domain.TransitionHistory) error
	GetByID(ctx context.Context, id string) (*domain.TransitionHistory, error)
	UpdateStatus(ctx context.Context, id string, status domain.TransitionStatus) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.TransitionHistory, error)
	ListDueBefore(ctx context.Context, deadline time.Time) ([]domain.TransitionHistory, error)
}

type transitionHistoryRepository struct {
	pool *pgxpool.Pool
}

// NewTransitionHistoryRepository builds repository.
func NewTransitionHistoryRepository(pool *pgxpool.Pool) TransitionHistoryRepository {
	return &transitionHistoryRepository{pool: pool}
}

func (r *transitionHistoryRepository) db(ctx context.Context) querier {
	return poolOrTx(ctx, r.pool)
}

const historyColumns = `id, ticket_id, from_state_id, to_state_id, event_name, transitioned_at, sla_due_at, status`

func (r *transitionHistoryRepository) Create(ctx context.Context, entry *domain.TransitionHistory) error {
	const query = `
        INSERT INTO workflow_transition_history (ticket_id, from_state_id, to_state_id, event_name, transitioned_at, sla_due_at, status)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id`
	return r.db(ctx).QueryRow(ctx, query,
		entry.TicketID,
		entry.FromStateID,
		entry.ToStateID,
		entry.EventName,
		entry.TransitionedAt,
		entry.SLADueAt,
		entry.Status,
	).Scan(&entry.ID)
}

func (r *transitionHistoryRepository) GetByID(ctx context.Context, id string) (*domain.TransitionHistory, error) {
	query := `SELECT ` + historyColumns + ` FROM workflow_transition_history WHERE id=$1`
	entry, err := scanHistoryRow(r.db(ctx).QueryRow(ctx, query, id))
	if err != nil {
		return nil, mapNoRows(err)
	}
	return entry, nil
}

func (r *transitionHistoryRepository) UpdateStatus(ctx context.Context, id string, status domain.TransitionStatus) error {
	cmd, err := r.db(ctx).Exec(ctx,
		`UPDATE workflow_transition_history SET status=$1 WHERE id=$2`, status, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *transitionHistoryRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.TransitionHistory, error) {
	query := `SELECT ` + historyColumns + ` FROM workflow_transition_history
        WHERE ticket_id=$1 ORDER BY transitioned_at ASC`
	rows, err := r.db(ctx).Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanHistories(rows)
}

func (r *transitionHistoryRepository) ListDueBefore(ctx context.Context, deadline time.Time) ([]domain.TransitionHistory, error) {
	query := `SELECT ` + historyColumns + ` FROM workflow_transition_history
        WHERE status=$1 AND sla_due_at IS NOT NULL AND sla_due_at <= $2
        ORDER BY sla_due_at ASC`
	rows, err := r.db(ctx).Query(ctx, query, domain.TransitionInProgress, deadline)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanHistories(rows)
}

func scanHistoryRow(row pgx.Row) (*domain.TransitionHistory, error) {
	var entry domain.TransitionHistory
	if err := row.Scan(
		&entry.ID,
		&entry.TicketID,
		&entry.FromStateID,
		&entry.ToStateID,
		&entry.EventName,
		&entry.TransitionedAt,
		&entry.SLADueAt,
		&entry.Status,
	); err != nil {
		return nil, err
	}
	return &entry, nil
}

func scanHistories(rows pgx.Rows) ([]domain.TransitionHistory, error) {
	var result []domain.TransitionHistory
	for rows.Next() {
		entry, err := scanHistoryRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *entry)
	}
	return result, rows.Err()
}
