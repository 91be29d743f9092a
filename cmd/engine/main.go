package main

import (
	"log"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"tradeleague/internal/httpapi"
	"tradeleague/pkg/asynq"
	"tradeleague/pkg/config"
	"tradeleague/pkg/db"
	"tradeleague/pkg/health"
	"tradeleague/pkg/kafka"
	"tradeleague/pkg/logger"
	"tradeleague/pkg/ratelimit"
	"tradeleague/pkg/redis"
	"tradeleague/pkg/reliability"
	"tradeleague/pkg/server"
	"tradeleague/services/competition"
	"tradeleague/services/distribution"
	"tradeleague/services/leaderboard"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		ratelimit.Module,
		asynq.Client,
		asynq.Server,
		kafka.ProducerModule,
		kafka.ConsumerModule,
		health.Module,
		fx.Provide(
			provideTracerProvider,
			provideMeterProvider,
			provideSnowflakeNode,
			providePublisher,
			reliability.NewZapAlerter,
		),
		competition.Module,
		leaderboard.Module,
		distribution.Module,
		httpapi.Module,
		server.ProvideHTTPServer,
		fx.Invoke(
			migrate,
			registerConsumers,
		),
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})

func provideTracerProvider() trace.TracerProvider {
	return otel.GetTracerProvider()
}

func provideMeterProvider() metric.MeterProvider {
	return otel.GetMeterProvider()
}

func provideSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

func providePublisher(p *kafka.Producer) kafka.Publisher {
	return p
}

func migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&competition.Competition{},
		&competition.PrizeTier{},
		&leaderboard.Participant{},
		&leaderboard.TradeAttribution{},
		&distribution.Audit{},
		&distribution.LedgerEntry{},
	)
}

type consumerParams struct {
	fx.In

	Config    *config.Config
	Consumer  *kafka.Consumer
	Publisher kafka.Publisher
	Trades    *leaderboard.TradeHandler
	Status    *competition.StatusHandler
	Alerter   reliability.Alerter
}

func registerConsumers(p consumerParams) {
	cfg := p.Config.Kafka

	p.Consumer.Register(cfg.TradeTopic,
		reliability.NewWrap(p.Trades, p.Publisher, cfg.DeadTopic))
	p.Consumer.Register(cfg.StatusTopic, p.Status)
	p.Consumer.Register(cfg.DeadTopic,
		reliability.NewDeadLetterHandler(p.Trades, p.Publisher, cfg.DeadTopic, cfg.ParkedTopic,
			p.Config.Engine.RetryCeiling, p.Alerter))
}
