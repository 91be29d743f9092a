package leaderboard

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
)

const TypeLeaderboardRecalculate = "leaderboard:recalculate"

type RecalculatePayload struct {
	CompetitionID string `json:"competitionId"`
}

func NewRecalculateTask(competitionID string) (*asynq.Task, error) {
	payload, err := json.Marshal(RecalculatePayload{CompetitionID: competitionID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeLeaderboardRecalculate, payload, asynq.Queue("default")), nil
}

// RecalculateHandler processes leaderboard:recalculate tasks.
type RecalculateHandler struct {
	service *Service
}

func NewRecalculateHandler(service *Service) *RecalculateHandler {
	return &RecalculateHandler{service: service}
}

func (h *RecalculateHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	var p RecalculatePayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return err
	}
	return h.service.Recalculate(ctx, p.CompetitionID)
}

type registerTasksParams struct {
	fx.In

	Mux         *asynq.ServeMux
	Recalculate *RecalculateHandler
}

func registerTasks(p registerTasksParams) {
	p.Mux.Handle(TypeLeaderboardRecalculate, p.Recalculate)
}
