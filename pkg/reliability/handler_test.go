package reliability

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tradeleague/pkg/kafka"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type published struct {
	topic string
	key   string
	value []byte
}

type fakePublisher struct {
	messages []published
	failNext bool
}

func (p *fakePublisher) Publish(ctx context.Context, topic, key string, value []byte) error {
	if p.failNext {
		p.failNext = false
		return errors.New("broker unavailable")
	}
	p.messages = append(p.messages, published{topic: topic, key: key, value: value})
	return nil
}

type countingHandler struct {
	calls    int
	failures int // fail the first N calls
	lastMsg  *kafka.Message
}

func (h *countingHandler) HandleMessage(ctx context.Context, msg *kafka.Message) error {
	h.calls++
	h.lastMsg = msg
	if h.calls <= h.failures {
		return errors.New("handler boom")
	}
	return nil
}

type recordingAlerter struct {
	alerts []*Envelope
}

func (a *recordingAlerter) Alert(ctx context.Context, env *Envelope, err error) {
	a.alerts = append(a.alerts, env)
}

func TestWrapPublishesEnvelopeAndAcks(t *testing.T) {
	pub := &fakePublisher{}
	inner := &countingHandler{failures: 1}
	w := NewWrap(inner, pub, "dead")

	err := w.HandleMessage(context.Background(), &kafka.Message{
		Topic: "trades",
		Key:   []byte("trade-1"),
		Value: []byte(`{"tradeId":"trade-1"}`),
	})
	require.NoError(t, err, "failure must be absorbed so the original is acked")

	require.Len(t, pub.messages, 1)
	require.Equal(t, "dead", pub.messages[0].topic)

	var env Envelope
	require.NoError(t, json.Unmarshal(pub.messages[0].value, &env))
	require.Equal(t, "trade-1", env.Key)
	require.JSONEq(t, `{"tradeId":"trade-1"}`, string(env.Message))
	require.Equal(t, 0, env.RetryCount)
	require.Contains(t, env.DeadLetterReason, "handler boom")
	require.NotEmpty(t, env.Stack)
}

func TestWrapSuccessDoesNotPublish(t *testing.T) {
	pub := &fakePublisher{}
	inner := &countingHandler{}
	w := NewWrap(inner, pub, "dead")

	err := w.HandleMessage(context.Background(), &kafka.Message{Key: []byte("k"), Value: []byte(`{}`)})
	require.NoError(t, err)
	require.Empty(t, pub.messages)
}

func TestWrapPropagatesPublishFailure(t *testing.T) {
	pub := &fakePublisher{failNext: true}
	inner := &countingHandler{failures: 1}
	w := NewWrap(inner, pub, "dead")

	err := w.HandleMessage(context.Background(), &kafka.Message{Key: []byte("k"), Value: []byte(`{}`)})
	require.Error(t, err, "original must stay unacked when the envelope could not be published")
}

// Drains the dead-letter channel the way the broker would: every republished
// envelope is fed back into the handler until the channel is quiet.
func drainDeadLetters(t *testing.T, h *DeadLetterHandler, pub *fakePublisher, deadTopic string) {
	t.Helper()
	for i := 0; i < 100; i++ {
		var next *published
		for j := range pub.messages {
			if pub.messages[j].topic == deadTopic {
				next = &pub.messages[j]
				pub.messages = append(pub.messages[:j], pub.messages[j+1:]...)
				break
			}
		}
		if next == nil {
			return
		}
		require.NoError(t, h.HandleMessage(context.Background(), &kafka.Message{
			Topic: deadTopic,
			Key:   []byte(next.key),
			Value: next.value,
		}))
	}
	t.Fatal("dead-letter channel never drained")
}

func TestRetryStopsAtCeilingAndAlerts(t *testing.T) {
	pub := &fakePublisher{}
	inner := &countingHandler{failures: 1000} // never succeeds
	alerter := &recordingAlerter{}

	w := NewWrap(inner, pub, "dead")
	dlh := NewDeadLetterHandler(inner, pub, "dead", "dead.parked", 5, alerter)

	require.NoError(t, w.HandleMessage(context.Background(), &kafka.Message{
		Key:   []byte("poison"),
		Value: []byte(`{"tradeId":"poison"}`),
	}))

	drainDeadLetters(t, dlh, pub, "dead")

	// initial failure + exactly 5 retries, never a 7th invocation
	require.Equal(t, 6, inner.calls)

	require.Len(t, alerter.alerts, 1)
	require.Equal(t, 5, alerter.alerts[0].RetryCount)

	require.Len(t, pub.messages, 1, "only the parked copy remains")
	require.Equal(t, "dead.parked", pub.messages[0].topic)

	var parked Envelope
	require.NoError(t, json.Unmarshal(pub.messages[0].value, &parked))
	require.Equal(t, "poison", parked.Key)
	require.Equal(t, 5, parked.RetryCount)
	require.JSONEq(t, `{"tradeId":"poison"}`, string(parked.Message))
}

func TestRetrySucceedsMidway(t *testing.T) {
	pub := &fakePublisher{}
	inner := &countingHandler{failures: 3} // initial + 2 retries fail, 3rd retry succeeds
	alerter := &recordingAlerter{}

	w := NewWrap(inner, pub, "dead")
	dlh := NewDeadLetterHandler(inner, pub, "dead", "dead.parked", 5, alerter)

	require.NoError(t, w.HandleMessage(context.Background(), &kafka.Message{
		Key:   []byte("flaky"),
		Value: []byte(`{"tradeId":"flaky"}`),
	}))

	drainDeadLetters(t, dlh, pub, "dead")

	require.Equal(t, 4, inner.calls)
	require.Empty(t, alerter.alerts)
	require.Empty(t, pub.messages, "nothing parked, nothing left in flight")
}

func TestDeadLetterHandlerParksMalformedEnvelope(t *testing.T) {
	pub := &fakePublisher{}
	inner := &countingHandler{}
	alerter := &recordingAlerter{}
	dlh := NewDeadLetterHandler(inner, pub, "dead", "dead.parked", 5, alerter)

	require.NoError(t, dlh.HandleMessage(context.Background(), &kafka.Message{
		Key:   []byte("junk"),
		Value: []byte("not json"),
	}))

	require.Zero(t, inner.calls)
	require.Len(t, alerter.alerts, 1)
	require.Len(t, pub.messages, 1)
	require.Equal(t, "dead.parked", pub.messages[0].topic)
}

func TestReplayReceivesOriginalPayload(t *testing.T) {
	pub := &fakePublisher{}
	inner := &countingHandler{failures: 1}

	w := NewWrap(inner, pub, "dead")
	dlh := NewDeadLetterHandler(inner, pub, "dead", "dead.parked", 5, nil)

	original := []byte(`{"tradeId":"t-9","usdVolume":"123.45"}`)
	require.NoError(t, w.HandleMessage(context.Background(), &kafka.Message{Key: []byte("t-9"), Value: original}))

	drainDeadLetters(t, dlh, pub, "dead")

	require.Equal(t, 2, inner.calls)
	require.JSONEq(t, string(original), string(inner.lastMsg.Value))
	require.Equal(t, "t-9", string(inner.lastMsg.Key))
}
