// Package relaystats keeps Redis-backed per-webhook delivery statistics.
//
// Several relay instances write concurrently; any of them can read.
//
// Redis Key Structure:
//
//	relay:stats:{webhook}               - Hash with totals and last outcome
//	relay:hourly:{webhook}:{YYYYMMDDHH} - Deliveries in that hour (expires 48h)
//	relay:daily:{webhook}:{YYYYMMDD}    - Deliveries on that day (expires 7d)
//	relay:clients:{webhook}:{YYYYMMDD}  - Set of client IPs for the day (expires 7d)
//	relay:instances:{webhook}           - Hash of relay instance -> last seen
//
// {webhook} is the webhook host and path. Query strings are never stored.
package relaystats

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefixStats = "relay:stats:"

// Stats is the usage summary of one webhook.
type Stats struct {
	Webhook          string            `json:"webhook"`
	LastUsedAt       *time.Time        `json:"last_used_at,omitempty"`
	LastStatus       int               `json:"last_status,omitempty"`
	LastKind         string            `json:"last_kind,omitempty"`
	TotalDeliveries  int64             `json:"total_deliveries"`
	Succeeded        int64             `json:"succeeded"`
	Failed           int64             `json:"failed"`
	BytesUploaded    int64             `json:"bytes_uploaded"`
	DeliveriesHour   int64             `json:"deliveries_last_hour"`
	Deliveries24h    int64             `json:"deliveries_last_24h"`
	UniqueClients    int64             `json:"unique_clients_today"`
	RelayInstances   map[string]string `json:"relay_instances,omitempty"`
	StatsRetrievedAt time.Time         `json:"stats_retrieved_at"`
}

// Client records and reads webhook statistics.
type Client struct {
	redis      *redis.Client
	instanceID string
	now        func() time.Time
}

// NewClient connects to redisURL and verifies the connection.
func NewClient(redisURL, instanceID string) (*Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return NewClientFromRedis(client, instanceID), nil
}

// NewClientFromRedis wraps an existing connection.
func NewClientFromRedis(client *redis.Client, instanceID string) *Client {
	return &Client{
		redis:      client,
		instanceID: instanceID,
		now:        time.Now,
	}
}

// WebhookKey reduces a webhook URL to host and path. It returns "" for URLs
// without a host.
func WebhookKey(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Host) + u.EscapedPath()
}

// Outcome is one finished delivery.
type Outcome struct {
	Webhook  string
	Kind     string
	Success  bool
	Status   int
	Bytes    int64
	ClientIP string
}

// BatchUpdate accumulates outcomes for one webhook between flushes.
type BatchUpdate struct {
	Webhook    string
	Total      int64
	Succeeded  int64
	Failed     int64
	Bytes      int64
	LastStatus int
	LastKind   string
	Clients    map[string]struct{}
}

// NewBatchUpdate creates an empty batch for webhook.
func NewBatchUpdate(webhook string) *BatchUpdate {
	return &BatchUpdate{
		Webhook: webhook,
		Clients: make(map[string]struct{}),
	}
}

// Add folds o into the batch.
func (b *BatchUpdate) Add(o Outcome) {
	b.Total++
	if o.Success {
		b.Succeeded++
	} else {
		b.Failed++
	}
	b.Bytes += o.Bytes
	if o.Status != 0 {
		b.LastStatus = o.Status
	}
	if o.Kind != "" {
		b.LastKind = o.Kind
	}
	if o.ClientIP != "" {
		b.Clients[o.ClientIP] = struct{}{}
	}
}

// Merge folds other into b. Used to requeue a batch whose flush failed.
func (b *BatchUpdate) Merge(other *BatchUpdate) {
	b.Total += other.Total
	b.Succeeded += other.Succeeded
	b.Failed += other.Failed
	b.Bytes += other.Bytes
	if b.LastStatus == 0 {
		b.LastStatus = other.LastStatus
	}
	if b.LastKind == "" {
		b.LastKind = other.LastKind
	}
	for ip := range other.Clients {
		b.Clients[ip] = struct{}{}
	}
}

// FlushBatch writes batch to Redis in one pipeline.
func (c *Client) FlushBatch(ctx context.Context, batch *BatchUpdate) error {
	if batch.Total == 0 {
		return nil
	}

	now := c.now()
	hourKey := now.Format("2006010215")
	dayKey := now.Format("20060102")
	nowUnix := strconv.FormatInt(now.Unix(), 10)

	pipe := c.redis.Pipeline()

	statsKey := keyPrefixStats + batch.Webhook
	fields := map[string]any{"last_used_at": nowUnix}
	if batch.LastStatus != 0 {
		fields["last_status"] = batch.LastStatus
	}
	if batch.LastKind != "" {
		fields["last_kind"] = batch.LastKind
	}
	pipe.HSet(ctx, statsKey, fields)
	pipe.HIncrBy(ctx, statsKey, "total", batch.Total)
	pipe.HIncrBy(ctx, statsKey, "succeeded", batch.Succeeded)
	pipe.HIncrBy(ctx, statsKey, "failed", batch.Failed)
	pipe.HIncrBy(ctx, statsKey, "bytes", batch.Bytes)

	hourlyKey := fmt.Sprintf("relay:hourly:%s:%s", batch.Webhook, hourKey)
	pipe.IncrBy(ctx, hourlyKey, batch.Total)
	pipe.Expire(ctx, hourlyKey, 48*time.Hour)

	dailyKey := fmt.Sprintf("relay:daily:%s:%s", batch.Webhook, dayKey)
	pipe.IncrBy(ctx, dailyKey, batch.Total)
	pipe.Expire(ctx, dailyKey, 7*24*time.Hour)

	if len(batch.Clients) > 0 {
		clientsKey := fmt.Sprintf("relay:clients:%s:%s", batch.Webhook, dayKey)
		ips := make([]any, 0, len(batch.Clients))
		for ip := range batch.Clients {
			ips = append(ips, ip)
		}
		pipe.SAdd(ctx, clientsKey, ips...)
		pipe.Expire(ctx, clientsKey, 7*24*time.Hour)
	}

	instancesKey := "relay:instances:" + batch.Webhook
	pipe.HSet(ctx, instancesKey, c.instanceID, nowUnix)
	pipe.Expire(ctx, instancesKey, 24*time.Hour)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to flush batch: %w", err)
	}
	return nil
}

// GetStats reads the statistics of one webhook, given as a URL or a WebhookKey.
func (c *Client) GetStats(ctx context.Context, webhook string) (*Stats, error) {
	if key := WebhookKey(webhook); key != "" {
		webhook = key
	}

	now := c.now()
	dayKey := now.Format("20060102")

	pipe := c.redis.Pipeline()
	statsCmd := pipe.HGetAll(ctx, keyPrefixStats+webhook)

	hourlyCmds := make([]*redis.StringCmd, 24)
	for i := range hourlyCmds {
		t := now.Add(-time.Duration(i) * time.Hour)
		hourlyCmds[i] = pipe.Get(ctx, fmt.Sprintf("relay:hourly:%s:%s", webhook, t.Format("2006010215")))
	}
	clientsCmd := pipe.SCard(ctx, fmt.Sprintf("relay:clients:%s:%s", webhook, dayKey))
	instancesCmd := pipe.HGetAll(ctx, "relay:instances:"+webhook)

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}

	stats := &Stats{
		Webhook:          webhook,
		StatsRetrievedAt: now,
		RelayInstances:   make(map[string]string),
	}

	if m, err := statsCmd.Result(); err == nil {
		if unix, err := strconv.ParseInt(m["last_used_at"], 10, 64); err == nil {
			t := time.Unix(unix, 0).UTC()
			stats.LastUsedAt = &t
		}
		stats.LastStatus, _ = strconv.Atoi(m["last_status"])
		stats.LastKind = m["last_kind"]
		stats.TotalDeliveries, _ = strconv.ParseInt(m["total"], 10, 64)
		stats.Succeeded, _ = strconv.ParseInt(m["succeeded"], 10, 64)
		stats.Failed, _ = strconv.ParseInt(m["failed"], 10, 64)
		stats.BytesUploaded, _ = strconv.ParseInt(m["bytes"], 10, 64)
	}

	for i, cmd := range hourlyCmds {
		if v, err := cmd.Int64(); err == nil {
			if i == 0 {
				stats.DeliveriesHour = v
			}
			stats.Deliveries24h += v
		}
	}
	if v, err := clientsCmd.Result(); err == nil {
		stats.UniqueClients = v
	}
	if instances, err := instancesCmd.Result(); err == nil {
		for instance, lastSeen := range instances {
			if unix, err := strconv.ParseInt(lastSeen, 10, 64); err == nil {
				stats.RelayInstances[instance] = time.Unix(unix, 0).UTC().Format(time.RFC3339)
			}
		}
	}

	return stats, nil
}

// ListActiveWebhooks returns the webhooks used within since.
func (c *Client) ListActiveWebhooks(ctx context.Context, since time.Duration) ([]string, error) {
	cutoff := c.now().Add(-since).Unix()
	var webhooks []string

	iter := c.redis.Scan(ctx, 0, keyPrefixStats+"*", 1000).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		lastUsed, err := c.redis.HGet(ctx, key, "last_used_at").Int64()
		if err == nil && lastUsed >= cutoff {
			webhooks = append(webhooks, strings.TrimPrefix(key, keyPrefixStats))
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan webhooks: %w", err)
	}
	return webhooks, nil
}

// Ping checks the Redis connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.redis.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.redis.Close()
}
