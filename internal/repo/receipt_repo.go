package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/courier/internal/domain"
)

// Receipt — аудит получения задачи воркером.
type Receipt struct {
	TaskID          string
	Kind            domain.TaskKind
	EnqueuedAt      time.Time
	FirstReceivedAt time.Time
	LastReceivedAt  time.Time

	// Deliveries — сколько раз брокер отдавал это сообщение.
	Deliveries int
}

// ReceiptRepo — репозиторий для task_receipts.
type ReceiptRepo struct {
	pool *pgxpool.Pool
}

// NewReceiptRepo создаёт новый ReceiptRepo.
func NewReceiptRepo(pool *pgxpool.Pool) *ReceiptRepo {
	return &ReceiptRepo{pool: pool}
}

// Record отмечает получение задачи. При редоставке увеличивает счётчик.
func (r *ReceiptRepo) Record(ctx context.Context, task *domain.Task, receivedAt time.Time) error {
	query := `
		INSERT INTO task_receipts (task_id, kind, enqueued_at, first_received_at, last_received_at, deliveries)
		VALUES ($1, $2, $3, $4, $4, 1)
		ON CONFLICT (task_id) DO UPDATE
		SET last_received_at = EXCLUDED.last_received_at,
		    deliveries = task_receipts.deliveries + 1
	`
	_, err := r.pool.Exec(ctx, query,
		task.ID,
		string(task.Kind),
		task.EnqueuedAt,
		receivedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("record receipt: %w", err)
	}
	return nil
}

// Get возвращает receipt задачи.
func (r *ReceiptRepo) Get(ctx context.Context, taskID string) (*Receipt, error) {
	query := `
		SELECT task_id, kind, enqueued_at, first_received_at, last_received_at, deliveries
		FROM task_receipts
		WHERE task_id = $1
	`
	var (
		rc   Receipt
		kind string
	)
	err := r.pool.QueryRow(ctx, query, taskID).Scan(
		&rc.TaskID,
		&kind,
		&rc.EnqueuedAt,
		&rc.FirstReceivedAt,
		&rc.LastReceivedAt,
		&rc.Deliveries,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get receipt: %w", err)
	}
	rc.Kind = domain.TaskKind(kind)
	return &rc, nil
}
