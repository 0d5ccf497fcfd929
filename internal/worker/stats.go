package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shaiso/courier/internal/domain"
)

// statsParser принимает 5-польные выражения и дескрипторы (@every 30s, @hourly).
var statsParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// OutcomeCounter — источник статистики. Реализуется *repo.OutcomeRepo.
type OutcomeCounter interface {
	CountByStatus(ctx context.Context) (map[domain.OutcomeStatus]int64, error)
}

// StatsReporter периодически обновляет gauge courier_outcomes{status}.
type StatsReporter struct {
	counter  OutcomeCounter
	schedule cron.Schedule
	metrics  *Metrics
	logger   *slog.Logger
	cron     *cron.Cron
}

// NewStatsReporter проверяет расписание и создаёт reporter.
func NewStatsReporter(counter OutcomeCounter, expr string, metrics *Metrics, logger *slog.Logger) (*StatsReporter, error) {
	schedule, err := statsParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid stats schedule %q: %w", expr, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StatsReporter{
		counter:  counter,
		schedule: schedule,
		metrics:  metrics,
		logger:   logger,
	}, nil
}

// Start запускает периодическое обновление; первое — сразу.
// Остановка — через Stop или отмену ctx.
func (s *StatsReporter) Start(ctx context.Context) {
	s.Refresh(ctx)

	s.cron = cron.New()
	s.cron.Schedule(s.schedule, cron.FuncJob(func() { s.Refresh(ctx) }))
	s.cron.Start()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
}

// Stop останавливает расписание и ждёт текущий запуск.
func (s *StatsReporter) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

// Refresh читает счётчики и обновляет gauge.
func (s *StatsReporter) Refresh(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	counts, err := s.counter.CountByStatus(ctx)
	if err != nil {
		s.logger.Warn("failed to refresh outcome stats", "error", err)
		return
	}
	for status, n := range counts {
		s.metrics.Outcomes.WithLabelValues(string(status)).Set(float64(n))
	}
	s.logger.Debug("outcome stats refreshed", "counts", counts)
}
