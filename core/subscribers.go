package core

import (
	"log/slog"

	"merkledrop/core/events"
	"merkledrop/observability"
	"merkledrop/observability/logging"
)

// LogSubscriber writes every committed event to a structured logger.
// Participant addresses are masked; the indexer keeps the full record.
type LogSubscriber struct {
	Logger *slog.Logger
}

func (s LogSubscriber) Emit(evt events.Event) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	payload := evt.Event()
	if payload == nil {
		return
	}
	args := make([]any, 0, 1+len(payload.Attributes))
	args = append(args, slog.String("event", payload.Type))
	for _, key := range payload.Keys() {
		args = append(args, logging.MaskField(key, payload.Attributes[key]))
	}
	logger.Info("ledger event", args...)
}

// MetricsSubscriber counts committed events and payouts.
type MetricsSubscriber struct{}

func (MetricsSubscriber) Emit(evt events.Event) {
	metrics := observability.Events()
	metrics.RecordEvent(evt.EventType())
	switch e := evt.(type) {
	case events.Transfer:
		metrics.RecordTransfer()
	case events.TrancheClaimed:
		metrics.RecordPayout(e.EventType(), e.Amount)
	case events.TrancheClosed:
		metrics.RecordPayout(e.EventType(), e.Unclaimed)
	case events.CampaignClaimed:
		for _, amount := range e.Transferred {
			metrics.RecordPayout(e.EventType(), amount)
		}
	case events.CampaignShutdown:
		for _, amount := range e.Unclaimed {
			metrics.RecordPayout(e.EventType(), amount)
		}
	}
}
