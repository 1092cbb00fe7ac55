package messaging

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDeliverySubject(t *testing.T) {
	tests := []struct {
		kind string
		want string
	}{
		{kind: "chat", want: "relay.deliveries.completed.chat"},
		{kind: "video", want: "relay.deliveries.completed.video"},
		{kind: "", want: "relay.deliveries.completed"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := DeliverySubject(tt.kind); got != tt.want {
				t.Errorf("DeliverySubject(%q) = %q, want %q", tt.kind, got, tt.want)
			}
		})
	}
}

func TestSubjectDeliveriesAllIsWildcard(t *testing.T) {
	if SubjectDeliveriesAll != "relay.deliveries.completed.>" {
		t.Errorf("unexpected wildcard subject %q", SubjectDeliveriesAll)
	}
}

func TestDeliveryEventOmitsContent(t *testing.T) {
	event := DeliveryEvent{
		ID:          "d-1",
		Kind:        "pdf",
		WebhookHost: "n8n.example.com",
		WebhookPath: "/webhook/abc",
		Success:     true,
		HTTPStatus:  200,
		FileBytes:   1024,
		DurationMS:  12,
		CompletedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	data, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, forbidden := range []string{"message", "file", "data"} {
		if _, ok := fields[forbidden]; ok {
			t.Errorf("event must not carry %q", forbidden)
		}
	}
	if _, ok := fields["error"]; ok {
		t.Error("empty error should be omitted")
	}
}
