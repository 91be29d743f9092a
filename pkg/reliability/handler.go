package reliability

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"tradeleague/pkg/kafka"
)

var (
	deadLettered = promauto.NewCounter(prometheus.CounterOpts{Name: "reliability_dead_lettered_total"})
	retried      = promauto.NewCounter(prometheus.CounterOpts{Name: "reliability_retries_total"})
	parked       = promauto.NewCounter(prometheus.CounterOpts{Name: "reliability_parked_total"})
)

// Alerter is invoked when a message exhausts its retry budget. It is the
// operator-visible escalation path; the message itself is parked, never
// dropped.
type Alerter interface {
	Alert(ctx context.Context, env *Envelope, err error)
}

type zapAlerter struct{}

func (zapAlerter) Alert(ctx context.Context, env *Envelope, err error) {
	zap.L().Error("message exhausted retry budget, parked for inspection",
		zap.String("key", env.Key),
		zap.Int("retry_count", env.RetryCount),
		zap.String("dead_letter_reason", env.DeadLetterReason),
		zap.Error(err),
	)
}

// NewZapAlerter returns the default alert hook, a structured error log.
func NewZapAlerter() Alerter {
	return zapAlerter{}
}

// Wrap decorates a business handler so a failure never surfaces to the
// broker: the original message is wrapped in an Envelope, published to the
// dead-letter topic and then acknowledged. From that point redelivery flows
// only through the dead-letter channel.
type Wrap struct {
	inner     kafka.MessageHandler
	publisher kafka.Publisher
	deadTopic string
}

func NewWrap(inner kafka.MessageHandler, publisher kafka.Publisher, deadTopic string) *Wrap {
	return &Wrap{
		inner:     inner,
		publisher: publisher,
		deadTopic: deadTopic,
	}
}

func (w *Wrap) HandleMessage(ctx context.Context, msg *kafka.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = w.deadLetter(ctx, msg, fmt.Errorf("panic: %v", r))
		}
	}()

	if handlerErr := w.inner.HandleMessage(ctx, msg); handlerErr != nil {
		return w.deadLetter(ctx, msg, handlerErr)
	}
	return nil
}

func (w *Wrap) deadLetter(ctx context.Context, msg *kafka.Message, cause error) error {
	env := &Envelope{
		Key:              string(msg.Key),
		Message:          json.RawMessage(msg.Value),
		DeadLetterReason: cause.Error(),
		Stack:            string(debug.Stack()),
		RetryCount:       0,
	}

	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal dead-letter envelope: %w", err)
	}

	if err := w.publisher.Publish(ctx, w.deadTopic, env.Key, payload); err != nil {
		// the original message must not be acked if the envelope was lost
		return fmt.Errorf("publish dead-letter envelope: %w", err)
	}

	deadLettered.Inc()
	zap.L().Warn("message dead-lettered",
		zap.String("key", env.Key),
		zap.String("reason", env.DeadLetterReason),
	)
	return nil
}

// DeadLetterHandler consumes the dead-letter topic, re-invoking the original
// business logic. Renewed failure increments retryCount and republishes;
// once the count reaches the ceiling the envelope is parked and the alert
// hook fires.
type DeadLetterHandler struct {
	inner       kafka.MessageHandler
	publisher   kafka.Publisher
	deadTopic   string
	parkedTopic string
	ceiling     int
	alerter     Alerter
}

func NewDeadLetterHandler(inner kafka.MessageHandler, publisher kafka.Publisher, deadTopic, parkedTopic string, ceiling int, alerter Alerter) *DeadLetterHandler {
	if alerter == nil {
		alerter = NewZapAlerter()
	}
	return &DeadLetterHandler{
		inner:       inner,
		publisher:   publisher,
		deadTopic:   deadTopic,
		parkedTopic: parkedTopic,
		ceiling:     ceiling,
		alerter:     alerter,
	}
}

func (h *DeadLetterHandler) HandleMessage(ctx context.Context, msg *kafka.Message) error {
	var env Envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		// a malformed envelope can never succeed; park it immediately
		h.park(ctx, msg.Value, string(msg.Key), &env, err)
		return nil
	}

	retried.Inc()
	replayErr := h.replay(ctx, &env)
	if replayErr == nil {
		zap.L().Info("dead-lettered message replayed successfully",
			zap.String("key", env.Key),
			zap.Int("retry_count", env.RetryCount),
		)
		return nil
	}

	env.RetryCount++
	env.DeadLetterReason = replayErr.Error()

	if env.RetryCount >= h.ceiling {
		payload, _ := json.Marshal(&env)
		h.park(ctx, payload, env.Key, &env, replayErr)
		return nil
	}

	payload, err := json.Marshal(&env)
	if err != nil {
		return fmt.Errorf("marshal dead-letter envelope: %w", err)
	}
	if err := h.publisher.Publish(ctx, h.deadTopic, env.Key, payload); err != nil {
		return fmt.Errorf("republish dead-letter envelope: %w", err)
	}

	zap.L().Warn("dead-lettered message failed again, republished",
		zap.String("key", env.Key),
		zap.Int("retry_count", env.RetryCount),
		zap.Error(replayErr),
	)
	return nil
}

func (h *DeadLetterHandler) replay(ctx context.Context, env *Envelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	return h.inner.HandleMessage(ctx, &kafka.Message{
		Topic: h.deadTopic,
		Key:   []byte(env.Key),
		Value: env.Message,
	})
}

func (h *DeadLetterHandler) park(ctx context.Context, payload []byte, key string, env *Envelope, cause error) {
	parked.Inc()
	if err := h.publisher.Publish(ctx, h.parkedTopic, key, payload); err != nil {
		zap.L().Error("failed to park dead-lettered message",
			zap.String("key", key),
			zap.Error(err),
		)
	}
	h.alerter.Alert(ctx, env, cause)
}
