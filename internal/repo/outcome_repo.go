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

// OutcomeRepo — репозиторий для task_outcomes.
//
// Outcome записывается ровно один раз: повторная запись того же
// task_id возвращает ErrConflict и ничего не меняет.
type OutcomeRepo struct {
	pool *pgxpool.Pool
}

// NewOutcomeRepo создаёт новый OutcomeRepo.
func NewOutcomeRepo(pool *pgxpool.Pool) *OutcomeRepo {
	return &OutcomeRepo{pool: pool}
}

// AlreadyCompleted проверяет, есть ли outcome для задачи.
func (r *OutcomeRepo) AlreadyCompleted(ctx context.Context, taskID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM task_outcomes WHERE task_id = $1)`,
		taskID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check outcome: %w", err)
	}
	return exists, nil
}

// Record сохраняет outcome в отдельной транзакции.
func (r *OutcomeRepo) Record(ctx context.Context, outcome *domain.TaskOutcome) error {
	if !outcome.Status.IsTerminal() {
		return fmt.Errorf("record outcome: status %q is not terminal", outcome.Status)
	}

	query := `
		INSERT INTO task_outcomes (task_id, kind, status, attempts, completed_at, detail)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (task_id) DO NOTHING
	`

	var inserted int64
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, query,
			outcome.TaskID,
			string(outcome.Kind),
			string(outcome.Status),
			outcome.Attempts,
			outcome.CompletedAt,
			nullString(outcome.Detail),
		)
		if err != nil {
			return err
		}
		inserted = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}
	if inserted == 0 {
		return ErrConflict
	}
	return nil
}

// GetByTaskID возвращает outcome задачи.
func (r *OutcomeRepo) GetByTaskID(ctx context.Context, taskID string) (*domain.TaskOutcome, error) {
	query := `
		SELECT task_id, kind, status, attempts, completed_at, detail
		FROM task_outcomes
		WHERE task_id = $1
	`
	return scanOutcome(r.pool.QueryRow(ctx, query, taskID))
}

// OutcomeFilter — параметры фильтрации outcomes.
type OutcomeFilter struct {
	Status domain.OutcomeStatus
	Kind   domain.TaskKind
	Since  time.Time
	Limit  int
	Offset int
}

// List возвращает outcomes, новые первыми.
func (r *OutcomeRepo) List(ctx context.Context, filter OutcomeFilter) ([]domain.TaskOutcome, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}

	query := `
		SELECT task_id, kind, status, attempts, completed_at, detail
		FROM task_outcomes
		WHERE ($1::text IS NULL OR status = $1)
		  AND ($2::text IS NULL OR kind = $2)
		  AND ($3::timestamptz IS NULL OR completed_at >= $3)
		ORDER BY completed_at DESC
		LIMIT $4 OFFSET $5
	`
	rows, err := r.pool.Query(ctx, query,
		nullString(string(filter.Status)),
		nullString(string(filter.Kind)),
		nullTime(filter.Since),
		filter.Limit,
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []domain.TaskOutcome
	for rows.Next() {
		o, err := scanOutcome(rows)
		if err != nil {
			return nil, err
		}
		outcomes = append(outcomes, *o)
	}
	return outcomes, rows.Err()
}

// CountByStatus возвращает количество outcomes по статусам.
// Отсутствующие статусы возвращаются с нулём.
func (r *OutcomeRepo) CountByStatus(ctx context.Context) (map[domain.OutcomeStatus]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM task_outcomes GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count outcomes: %w", err)
	}
	defer rows.Close()

	counts := map[domain.OutcomeStatus]int64{
		domain.OutcomeSucceeded:       0,
		domain.OutcomeFailedPermanent: 0,
	}
	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[domain.OutcomeStatus(status)] = n
	}
	return counts, rows.Err()
}

// --- Helpers ---

func scanOutcome(row pgx.Row) (*domain.TaskOutcome, error) {
	var (
		o      domain.TaskOutcome
		kind   string
		status string
		detail *string
	)
	err := row.Scan(&o.TaskID, &kind, &status, &o.Attempts, &o.CompletedAt, &detail)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan outcome: %w", err)
	}

	o.Kind = domain.TaskKind(kind)
	o.Status = domain.OutcomeStatus(status)
	if detail != nil {
		o.Detail = *detail
	}
	return &o, nil
}

// nullString возвращает nil для пустой строки.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// nullTime возвращает nil для нулевого времени.
func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
