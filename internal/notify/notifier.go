package notify

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Notifier delivers business events to an external webhook. Delivery is
// strictly fire-and-forget: a failed or slow sink must never surface as an
// error to the caller or roll back the transaction that produced the event.
type Notifier struct {
	client *resty.Client
	url    string
	logger *zap.Logger
}

// New builds a webhook notifier. An empty URL yields a disabled notifier
// whose Notify is a no-op.
func New(webhookURL string, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}

	restyClient := resty.New().
		SetHeader("Content-Type", "application/json").
		SetTimeout(10 * time.Second)

	return &Notifier{
		client: restyClient,
		url:    webhookURL,
		logger: logger,
	}
}

type eventEnvelope struct {
	Event     string      `json:"event"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

func (n *Notifier) Notify(ctx context.Context, event string, payload interface{}) {
	if n == nil || n.url == "" {
		return
	}

	envelope := eventEnvelope{
		Event:     event,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}

	go func() {
		sendCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		resp, err := n.client.R().
			SetContext(sendCtx).
			SetBody(envelope).
			Post(n.url)
		if err != nil {
			n.logger.Warn("notification delivery failed",
				zap.String("event", event), zap.Error(err))
			return
		}
		if resp.IsError() {
			n.logger.Warn("notification sink rejected event",
				zap.String("event", event), zap.Int("status", resp.StatusCode()))
		}
	}()
}
