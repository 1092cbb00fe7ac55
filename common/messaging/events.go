package messaging

import "time"

// DeliveryEvent describes one relayed request. It carries metadata only: no
// message text and no file content.
type DeliveryEvent struct {
	ID          string    `json:"id"`
	RequestID   string    `json:"request_id,omitempty"`
	Kind        string    `json:"kind"`
	WebhookHost string    `json:"webhook_host"`
	WebhookPath string    `json:"webhook_path"`
	Success     bool      `json:"success"`
	HTTPStatus  int       `json:"http_status,omitempty"`
	Error       string    `json:"error,omitempty"`
	FileBytes   int64     `json:"file_bytes,omitempty"`
	DurationMS  int64     `json:"duration_ms"`
	CompletedAt time.Time `json:"completed_at"`
}
