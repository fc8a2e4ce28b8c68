package trigger

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"mercator-hq/ascent/pkg/telemetry/logging"
	"mercator-hq/ascent/pkg/tier"
	"mercator-hq/ascent/pkg/upgrade"
)

// DefaultMaxAttempts bounds re-resolution after conflicts.
const DefaultMaxAttempts = 3

// Outcomes recorded for handled messages, in addition to upgrade.Outcome values.
const (
	OutcomeNotFound = "not_found"
	OutcomeInvalid  = "invalid"
)

var tracer = otel.Tracer("mercator-hq/ascent/pkg/trigger")

// Upgrader is the part of upgrade.Service the handler needs.
type Upgrader interface {
	CheckAndUpgrade(ctx context.Context, distributorID int64, opts ...upgrade.UpgradeOption) (*upgrade.Result, error)
}

// Recorder receives trigger metrics.
type Recorder interface {
	RecordMessage(outcome string)
	RecordPublish(source string, err error)
}

type nopRecorder struct{}

func (nopRecorder) RecordMessage(string)        {}
func (nopRecorder) RecordPublish(string, error) {}

func recorderOrNop(r Recorder) Recorder {
	if r == nil {
		return nopRecorder{}
	}
	return r
}

// Handler processes check messages.
type Handler struct {
	upgrader    Upgrader
	maxAttempts int
	recorder    Recorder
	logger      *slog.Logger
}

// NewHandler creates a handler. maxAttempts below 1 uses DefaultMaxAttempts.
func NewHandler(upgrader Upgrader, maxAttempts int, recorder Recorder, logger *slog.Logger) *Handler {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		upgrader:    upgrader,
		maxAttempts: maxAttempts,
		recorder:    recorderOrNop(recorder),
		logger:      logger.With("component", "trigger.handler"),
	}
}

// Handle checks the distributor named by msg. A nil return means the
// message may be acknowledged.
func (h *Handler) Handle(ctx context.Context, msg Message) error {
	ctx = logging.WithDistributorID(ctx, msg.DistributorID)
	ctx = logging.WithTriggerID(ctx, msg.ID)

	ctx, span := tracer.Start(ctx, "trigger.Handle")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("distributor.id", msg.DistributorID),
		attribute.String("trigger.source", msg.Source),
	)

	outcome, err := h.handle(ctx, msg)
	h.recorder.RecordMessage(outcome)
	span.SetAttributes(attribute.String("trigger.outcome", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (h *Handler) handle(ctx context.Context, msg Message) (string, error) {
	if err := msg.Validate(); err != nil {
		h.logger.ErrorContext(ctx, "dropping invalid upgrade check message", "error", err)
		return OutcomeInvalid, nil
	}

	var opts []upgrade.UpgradeOption
	if msg.Reference != "" {
		opts = append(opts, upgrade.WithTriggeringReference(msg.Reference))
	}

	h.logger.DebugContext(ctx, "handling upgrade check", "source", msg.Source)
	for attempt := 1; ; attempt++ {
		result, err := h.upgrader.CheckAndUpgrade(ctx, msg.DistributorID, opts...)
		switch {
		case err == nil:
			if result.Record != nil {
				h.logger.InfoContext(ctx, "distributor upgraded",
					"previous_tier", result.Record.PreviousTier.Name,
					"new_tier", result.Record.NewTier.Name,
					"history_id", result.Record.ID,
				)
			}
			return string(result.Outcome), nil

		case upgrade.IsNotFound(err):
			h.logger.WarnContext(ctx, "distributor not found, skipping upgrade check")
			return OutcomeNotFound, nil

		case tier.IsConflict(err) && attempt < h.maxAttempts:
			h.logger.DebugContext(ctx, "concurrent tier change, resolving again", "attempt", attempt)

		case tier.IsConflict(err):
			h.logger.WarnContext(ctx, "giving up after repeated conflicts", "attempts", attempt)
			return string(upgrade.OutcomeConflict), fmt.Errorf("distributor %d: %d attempts: %w", msg.DistributorID, attempt, err)

		default:
			h.logger.ErrorContext(ctx, "upgrade check failed", "error", err)
			return string(upgrade.OutcomeFailed), err
		}
	}
}
