package trigger

import (
	"context"
	"log/slog"
	"strings"
)

// Ledger statuses that end a ledger entry's lifecycle.
const (
	WithdrawalCompleted = "completed"
	CommissionSettled   = "settled"
)

// LedgerEvent reports a status change on a withdrawal or commission entry.
type LedgerEvent struct {
	EntryID       string `json:"entry_id"`
	DistributorID int64  `json:"distributor_id"`
	Status        string `json:"status"`
}

// Listener turns ledger events into published checks. Errors never reach
// the ledger: they are logged and dropped.
type Listener struct {
	publisher Publisher
	logger    *slog.Logger
}

// NewListener creates a listener that publishes through p.
func NewListener(p Publisher, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{publisher: p, logger: logger.With("component", "trigger.listener")}
}

// OnWithdrawal publishes a check when a withdrawal completes. It reports
// whether a check was published.
func (l *Listener) OnWithdrawal(ctx context.Context, ev LedgerEvent) bool {
	return l.on(ctx, ev, WithdrawalCompleted, SourceWithdrawal)
}

// OnCommission publishes a check when a commission is settled.
func (l *Listener) OnCommission(ctx context.Context, ev LedgerEvent) bool {
	return l.on(ctx, ev, CommissionSettled, SourceCommission)
}

func (l *Listener) on(ctx context.Context, ev LedgerEvent, status, source string) bool {
	if !strings.EqualFold(ev.Status, status) {
		return false
	}
	if ev.DistributorID <= 0 {
		l.logger.WarnContext(ctx, "ledger event without distributor",
			"source", source,
			"entry_id", ev.EntryID,
		)
		return false
	}

	msg := NewMessage(ev.DistributorID, source, ev.EntryID)
	if err := l.publisher.Publish(ctx, msg); err != nil {
		l.logger.ErrorContext(ctx, "failed to publish upgrade check",
			"source", source,
			"entry_id", ev.EntryID,
			"distributor_id", ev.DistributorID,
			"error", err,
		)
		return false
	}
	return true
}
