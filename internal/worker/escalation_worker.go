package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/workflow-service/internal/config"
	"github.com/spec-kit/workflow-service/internal/events"
	"github.com/spec-kit/workflow-service/internal/observability"
	"github.com/spec-kit/workflow-service/internal/persistence"
	"github.com/spec-kit/workflow-service/internal/service"
)

const sweepLockKey = "workflow:sla:sweep"

// EscalationWorker periodically sweeps the transition ledger: it logs
// rows about to violate their SLA and escalates rows already past due.
// A Redis lock keeps concurrent instances from sweeping the same rows.
type EscalationWorker struct {
	sla        *service.SLAService
	dispatcher events.Dispatcher
	redis      *persistence.Redis
	metrics    *observability.Metrics
	logger     *zap.Logger
	cfg        config.SLAConfig
}

// NewEscalationWorker constructs the worker.
func NewEscalationWorker(
	sla *service.SLAService,
	dispatcher events.Dispatcher,
	redis *persistence.Redis,
	metrics *observability.Metrics,
	logger *zap.Logger,
	cfg config.SLAConfig,
) *EscalationWorker {
	return &EscalationWorker{
		sla:        sla,
		dispatcher: dispatcher,
		redis:      redis,
		metrics:    metrics,
		logger:     logger,
		cfg:        cfg,
	}
}

// Run blocks until the context is cancelled, sweeping on every tick.
// Sweep failures are logged and retried on the next tick.
func (w *EscalationWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.SweepInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep performs one warning + escalation pass.
func (w *EscalationWorker) Sweep(ctx context.Context) {
	if !w.redis.TryLock(ctx, sweepLockKey, w.cfg.SweepLockTTL()) {
		return
	}
	defer w.redis.Unlock(ctx, sweepLockKey)

	soon, err := w.sla.FindViolatingSoon(ctx, w.cfg.WarnWindow())
	if err != nil {
		w.logger.Error("sla warn scan failed", zap.Error(err))
		return
	}
	for _, entry := range soon {
		w.logger.Warn("sla violation imminent",
			zap.String("history_id", entry.ID),
			zap.String("ticket_id", entry.TicketID),
			zap.Timep("due_at", entry.SLADueAt))
	}

	violated, err := w.sla.FindAlreadyViolated(ctx)
	if err != nil {
		w.logger.Error("sla violation scan failed", zap.Error(err))
		return
	}

	escalated := 0
	for _, entry := range violated {
		updated, err := w.sla.Escalate(ctx, entry.ID)
		if err != nil {
			w.logger.Error("escalation failed",
				zap.String("history_id", entry.ID),
				zap.Error(err))
			continue
		}
		escalated++
		w.publishEscalated(ctx, updated.ID, updated.TicketID, updated.SLADueAt)
	}

	w.metrics.RecordSweep(escalated)
	if escalated > 0 {
		w.logger.Info("escalation sweep complete", zap.Int("escalated", escalated))
	}
}

func (w *EscalationWorker) publishEscalated(ctx context.Context, historyID, ticketID string, dueAt *time.Time) {
	if w.dispatcher == nil {
		return
	}
	payload := events.SLAEscalatedPayload{
		HistoryID: historyID,
		TicketID:  ticketID,
	}
	if dueAt != nil {
		payload.DueAt = *dueAt
	}
	_ = w.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventSLAEscalated,
		Timestamp: time.Now(),
		Payload:   payload,
	})
}
