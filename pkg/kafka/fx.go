package kafka

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ConsumerModule = fx.Module("kafka:consumer",
	fx.Provide(NewConsumer),
	fx.Invoke(runConsumer),
)

type consumerParams struct {
	fx.In
	Lifecycle fx.Lifecycle
	Consumer  *Consumer
}

func runConsumer(p consumerParams) {
	runCtx, cancel := context.WithCancel(context.Background())

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := p.Consumer.Run(runCtx); err != nil && runCtx.Err() == nil {
					zap.L().Error("[Kafka] Consumer stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			return p.Consumer.Close()
		},
	})
}
