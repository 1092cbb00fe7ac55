package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/telhawk-systems/hookrelay/common/messaging"
	"github.com/telhawk-systems/hookrelay/common/middleware"
	"github.com/telhawk-systems/hookrelay/common/relaystats"
	"github.com/telhawk-systems/hookrelay/relay/internal/models"
)

// DeliveryRecorder receives every finished delivery.
type DeliveryRecorder interface {
	RecordDelivery(ctx context.Context, d *models.Delivery) error
}

// NamedRecorder labels a recorder in logs and metrics.
type NamedRecorder struct {
	Name     string
	Recorder DeliveryRecorder
}

// StatsRecorder queues deliveries on a relaystats collector.
type StatsRecorder struct {
	Collector *relaystats.Collector
}

func (r StatsRecorder) RecordDelivery(_ context.Context, d *models.Delivery) error {
	r.Collector.Record(d.Outcome())
	return nil
}

// EventRecorder publishes a DeliveryEvent per delivery.
type EventRecorder struct {
	Publisher messaging.Publisher
}

func (r EventRecorder) RecordDelivery(ctx context.Context, d *models.Delivery) error {
	data, err := json.Marshal(d.Event())
	if err != nil {
		return fmt.Errorf("marshal delivery event: %w", err)
	}
	msg := &messaging.Message{
		Subject: messaging.DeliverySubject(d.Kind),
		Data:    data,
	}
	if d.RequestID != "" {
		msg.Metadata = map[string]string{middleware.HeaderRequestID: d.RequestID}
	}
	return r.Publisher.PublishMsg(ctx, msg)
}
