package models

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/telhawk-systems/hookrelay/common/messaging"
	"github.com/telhawk-systems/hookrelay/common/relaystats"
)

// Delivery is the metadata of one relayed request. Message text and file
// content are never part of it.
type Delivery struct {
	ID          string
	RequestID   string
	Kind        string
	WebhookURL  string
	ClientIP    string
	Success     bool
	HTTPStatus  int
	Error       string
	FileBytes   int64
	Duration    time.Duration
	CompletedAt time.Time
}

// NewDelivery starts a record with a fresh id.
func NewDelivery(requestID, kind, webhookURL, clientIP string) *Delivery {
	return &Delivery{
		ID:         uuid.New().String(),
		RequestID:  requestID,
		Kind:       kind,
		WebhookURL: webhookURL,
		ClientIP:   clientIP,
	}
}

// WebhookHost and WebhookPath split the target without its query string.
func (d *Delivery) WebhookHost() string {
	host, _ := splitWebhook(d.WebhookURL)
	return host
}

func (d *Delivery) WebhookPath() string {
	_, path := splitWebhook(d.WebhookURL)
	return path
}

// Event converts the delivery to its bus representation.
func (d *Delivery) Event() messaging.DeliveryEvent {
	return messaging.DeliveryEvent{
		ID:          d.ID,
		RequestID:   d.RequestID,
		Kind:        d.Kind,
		WebhookHost: d.WebhookHost(),
		WebhookPath: d.WebhookPath(),
		Success:     d.Success,
		HTTPStatus:  d.HTTPStatus,
		Error:       d.Error,
		FileBytes:   d.FileBytes,
		DurationMS:  d.Duration.Milliseconds(),
		CompletedAt: d.CompletedAt,
	}
}

// Outcome converts the delivery to a stats outcome.
func (d *Delivery) Outcome() relaystats.Outcome {
	return relaystats.Outcome{
		Webhook:  d.WebhookURL,
		Kind:     d.Kind,
		Success:  d.Success,
		Status:   d.HTTPStatus,
		Bytes:    d.FileBytes,
		ClientIP: d.ClientIP,
	}
}

func splitWebhook(raw string) (string, string) {
	key := relaystats.WebhookKey(raw)
	if key == "" {
		return "", ""
	}
	if i := strings.IndexByte(key, '/'); i >= 0 {
		return key[:i], key[i:]
	}
	return key, "/"
}
