package reliability

import "encoding/json"

// Envelope wraps a failed message for transport through the dead-letter
// channel. It is a wire shape only; nothing persists it.
type Envelope struct {
	Key              string          `json:"key"`
	Message          json.RawMessage `json:"message"`
	DeadLetterReason string          `json:"deadLetterReason"`
	Stack            string          `json:"stack"`
	RetryCount       int             `json:"retryCount"`
}
