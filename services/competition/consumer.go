package competition

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"tradeleague/pkg/kafka"
)

// StatusChangedEvent announces a competition status transition. Consumers
// treat it as informational; the database row is the source of truth.
type StatusChangedEvent struct {
	CompetitionID string    `json:"competitionId"`
	FromStatus    Status    `json:"fromStatus"`
	ToStatus      Status    `json:"toStatus"`
	ChangedBy     string    `json:"changedBy,omitempty"`
	ChangedAt     time.Time `json:"changedAt"`
}

// StatusHandler consumes competition status announcements.
type StatusHandler struct{}

type StatusHandlerParams struct {
	fx.In
}

func NewStatusHandler(StatusHandlerParams) *StatusHandler {
	return &StatusHandler{}
}

func (h *StatusHandler) HandleMessage(ctx context.Context, msg *kafka.Message) error {
	var ev StatusChangedEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		zap.L().Warn("discarding malformed status event",
			zap.String("key", string(msg.Key)),
			zap.Error(err),
		)
		return nil
	}

	zap.L().Info("competition status changed",
		zap.String("competition_id", ev.CompetitionID),
		zap.String("from", string(ev.FromStatus)),
		zap.String("to", string(ev.ToStatus)),
		zap.String("changed_by", ev.ChangedBy),
		zap.Time("changed_at", ev.ChangedAt),
	)

	return nil
}
