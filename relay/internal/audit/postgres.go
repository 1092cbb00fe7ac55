// Package audit persists delivery metadata to PostgreSQL.
package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/telhawk-systems/hookrelay/common/database"
	"github.com/telhawk-systems/hookrelay/relay/internal/models"
)

// Record is a stored delivery as returned by ListRecent.
type Record struct {
	ID          string    `json:"id"`
	RequestID   string    `json:"request_id,omitempty"`
	Kind        string    `json:"kind"`
	WebhookHost string    `json:"webhook_host"`
	WebhookPath string    `json:"webhook_path"`
	ClientIP    string    `json:"client_ip,omitempty"`
	Success     bool      `json:"success"`
	HTTPStatus  int       `json:"http_status,omitempty"`
	Error       string    `json:"error,omitempty"`
	FileBytes   int64     `json:"file_bytes,omitempty"`
	DurationMS  int64     `json:"duration_ms"`
	CompletedAt time.Time `json:"completed_at"`
}

// PostgresRepository stores deliveries in the deliveries table.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository connects and verifies the connection.
func NewPostgresRepository(ctx context.Context, connString string) (*PostgresRepository, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	return &PostgresRepository{pool: pool}, nil
}

// Migrate applies the schema migrations found at sourceURL, e.g. "file://migrations".
func Migrate(sourceURL, connString string) error {
	m, err := migrate.New(sourceURL, connString)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

const insertDelivery = `
INSERT INTO deliveries (
    id, request_id, kind, webhook_host, webhook_path, client_ip,
    success, http_status, error, file_bytes, duration_ms, completed_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

// RecordDelivery inserts d.
func (r *PostgresRepository) RecordDelivery(ctx context.Context, d *models.Delivery) error {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	_, err := r.pool.Exec(ctx, insertDelivery,
		d.ID, d.RequestID, d.Kind, d.WebhookHost(), d.WebhookPath(), d.ClientIP,
		d.Success, d.HTTPStatus, d.Error, d.FileBytes, d.Duration.Milliseconds(), d.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert delivery: %w", err)
	}
	return nil
}

const selectRecent = `
SELECT id::text, request_id, kind, webhook_host, webhook_path, client_ip,
       success, http_status, error, file_bytes, duration_ms, completed_at
FROM deliveries
ORDER BY completed_at DESC
LIMIT $1`

// ListRecent returns the newest deliveries first.
func (r *PostgresRepository) ListRecent(ctx context.Context, limit int) ([]Record, error) {
	ctx, cancel := database.ReadContext(ctx)
	defer cancel()

	rows, err := r.pool.Query(ctx, selectRecent, limit)
	if err != nil {
		return nil, fmt.Errorf("query deliveries: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0, limit)
	for rows.Next() {
		var rec Record
		if err := rows.Scan(
			&rec.ID, &rec.RequestID, &rec.Kind, &rec.WebhookHost, &rec.WebhookPath, &rec.ClientIP,
			&rec.Success, &rec.HTTPStatus, &rec.Error, &rec.FileBytes, &rec.DurationMS, &rec.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deliveries: %w", err)
	}
	return records, nil
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}
