package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/courier/internal/config"
	"github.com/shaiso/courier/internal/domain"
	"github.com/shaiso/courier/internal/mq"
	"github.com/shaiso/courier/internal/repo"
)

// TaskPublisher публикует задачи в очередь воркера.
type TaskPublisher interface {
	PublishTask(ctx context.Context, task *domain.Task) error
}

// OutcomeReader читает сохранённые outcomes.
type OutcomeReader interface {
	GetByTaskID(ctx context.Context, taskID string) (*domain.TaskOutcome, error)
	List(ctx context.Context, filter repo.OutcomeFilter) ([]domain.TaskOutcome, error)
	CountByStatus(ctx context.Context) (map[domain.OutcomeStatus]int64, error)
}

// ReceiptReader читает аудит получения задач.
type ReceiptReader interface {
	Get(ctx context.Context, taskID string) (*repo.Receipt, error)
}

// Backend — то, с чем работают команды.
type Backend interface {
	Publisher(ctx context.Context) (TaskPublisher, error)
	Outcomes(ctx context.Context) (OutcomeReader, error)
	Receipts(ctx context.Context) (ReceiptReader, error)
}

// Client подключается к брокеру и хранилищу лениво:
// enqueue не трогает базу, outcomes не трогает брокер.
type Client struct {
	cfg    *config.Config
	logger *slog.Logger

	mu        sync.Mutex
	pool      *pgxpool.Pool
	publisher *mq.Publisher
}

// NewClient создаёт Client по конфигурации.
func NewClient(cfg *config.Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{cfg: cfg, logger: logger}
}

// Publisher открывает соединение с брокером в confirm-режиме.
func (c *Client) Publisher(ctx context.Context) (TaskPublisher, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.publisher != nil {
		return c.publisher, nil
	}

	mqClient := mq.NewClient(mq.Config{
		URL:      c.cfg.Broker.URL,
		Topology: mq.DefaultTopology(c.cfg.Broker.Queue),
		Logger:   c.logger,
	})
	p, err := mqClient.DialPublisher(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	c.publisher = p
	return p, nil
}

// Outcomes открывает небольшой пул к PostgreSQL.
func (c *Client) Outcomes(ctx context.Context) (OutcomeReader, error) {
	pool, err := c.dbPool(ctx)
	if err != nil {
		return nil, err
	}
	return repo.NewOutcomeRepo(pool), nil
}

// Receipts использует тот же пул, что и Outcomes.
func (c *Client) Receipts(ctx context.Context) (ReceiptReader, error) {
	pool, err := c.dbPool(ctx)
	if err != nil {
		return nil, err
	}
	return repo.NewReceiptRepo(pool), nil
}

func (c *Client) dbPool(ctx context.Context) (*pgxpool.Pool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pool == nil {
		pool, err := repo.NewPool(ctx, repo.PoolConfig{URL: c.cfg.Store.URL, MaxConns: 2})
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		c.pool = pool
	}
	return c.pool, nil
}

// Close закрывает открытые соединения.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	if c.publisher != nil {
		errs = append(errs, c.publisher.Close())
		c.publisher = nil
	}
	if c.pool != nil {
		c.pool.Close()
		c.pool = nil
	}
	return errors.Join(errs...)
}
