package competition

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const TypeCompetitionSweep = "competition:sweep"

// NewSweepTask builds the periodic task that ends expired competitions.
func NewSweepTask() *asynq.Task {
	return asynq.NewTask(TypeCompetitionSweep, nil, asynq.Queue("default"))
}

// SweepHandler processes competition:sweep tasks.
type SweepHandler struct {
	service *Service
}

func NewSweepHandler(service *Service) *SweepHandler {
	return &SweepHandler{service: service}
}

func (h *SweepHandler) ProcessTask(ctx context.Context, _ *asynq.Task) error {
	ended, err := h.service.EndExpired(ctx, time.Now())
	if err != nil {
		return err
	}
	if len(ended) > 0 {
		zap.L().Info("expired competitions swept", zap.Strings("competition_ids", ended))
	}
	return nil
}

type registerTasksParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Mux       *asynq.ServeMux
	Client    *asynq.Client
	Sweep     *SweepHandler
}

// registerTasks wires the sweep handler into the task server and starts a
// ticker that enqueues a sweep every minute.
func registerTasks(p registerTasksParams) {
	p.Mux.Handle(TypeCompetitionSweep, p.Sweep)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				ticker := time.NewTicker(time.Minute)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						if _, err := p.Client.EnqueueContext(ctx, NewSweepTask()); err != nil {
							zap.L().Error("failed to enqueue competition sweep", zap.Error(err))
						}
					}
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			<-done
			return nil
		},
	})
}
