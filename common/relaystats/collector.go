package relaystats

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Flusher writes one batch. *Client implements it.
type Flusher interface {
	FlushBatch(ctx context.Context, batch *BatchUpdate) error
}

// Collector accumulates outcomes in memory and flushes them periodically.
// Safe for concurrent use.
type Collector struct {
	client        Flusher
	flushInterval time.Duration
	logger        *slog.Logger

	mu      sync.Mutex
	batches map[string]*BatchUpdate

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCollector starts a collector that flushes every flushInterval.
func NewCollector(client Flusher, flushInterval time.Duration, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	if flushInterval <= 0 {
		flushInterval = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Collector{
		client:        client,
		flushInterval: flushInterval,
		logger:        logger,
		batches:       make(map[string]*BatchUpdate),
		ctx:           ctx,
		cancel:        cancel,
	}

	c.wg.Add(1)
	go c.flushLoop()

	return c
}

// Record queues o. Outcomes for URLs without a host are ignored.
func (c *Collector) Record(o Outcome) {
	key := WebhookKey(o.Webhook)
	if key == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	batch, ok := c.batches[key]
	if !ok {
		batch = NewBatchUpdate(key)
		c.batches[key] = batch
	}
	batch.Add(o)
}

func (c *Collector) flushLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			c.flush()
			return
		case <-ticker.C:
			c.flush()
		}
	}
}

func (c *Collector) flush() {
	c.mu.Lock()
	batches := c.batches
	c.batches = make(map[string]*BatchUpdate)
	c.mu.Unlock()

	if len(batches) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	flushed := 0
	var total int64
	for _, batch := range batches {
		if err := c.client.FlushBatch(ctx, batch); err != nil {
			c.logger.Error("failed to flush webhook stats batch",
				"webhook", batch.Webhook,
				"deliveries", batch.Total,
				"error", err,
			)
			c.requeue(batch)
			continue
		}
		flushed++
		total += batch.Total
	}

	if flushed > 0 {
		c.logger.Debug("flushed webhook stats", "webhooks", flushed, "deliveries", total)
	}
}

func (c *Collector) requeue(batch *BatchUpdate) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.batches[batch.Webhook]; ok {
		existing.Merge(batch)
		return
	}
	c.batches[batch.Webhook] = batch
}

// FlushNow flushes synchronously.
func (c *Collector) FlushNow() {
	c.flush()
}

// Stop ends the background loop after a final flush.
func (c *Collector) Stop() {
	c.cancel()
	c.wg.Wait()
}

// Pending returns the number of unflushed deliveries per webhook.
func (c *Collector) Pending() map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]int64, len(c.batches))
	for webhook, batch := range c.batches {
		out[webhook] = batch.Total
	}
	return out
}
