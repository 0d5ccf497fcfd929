// Courier Worker — доставляет уведомления из очереди в Telegram.
//
// Worker:
//   - Получает задачи из RabbitMQ (at-least-once)
//   - Проверяет идемпотентность по task_id в PostgreSQL
//   - Отправляет сообщение через Telegram Bot API с retry и backoff
//   - Сохраняет итог и только потом подтверждает сообщение
//
// Воркеры масштабируются горизонтально: дубликаты отсекает хранилище.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/shaiso/courier/internal/api"
	"github.com/shaiso/courier/internal/backoff"
	"github.com/shaiso/courier/internal/config"
	"github.com/shaiso/courier/internal/delivery"
	"github.com/shaiso/courier/internal/mq"
	"github.com/shaiso/courier/internal/repo"
	"github.com/shaiso/courier/internal/telegram"
	"github.com/shaiso/courier/internal/telemetry"
	"github.com/shaiso/courier/internal/worker"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "courier-worker:", err)
		os.Exit(1)
	}

	logger := telemetry.SetupLogger(cfg.Log.Level, cfg.Log.Format)
	logger.Info("starting courier-worker", "version", version)

	if err := run(cfg, logger); err != nil {
		logger.Error("courier-worker failed", "error", err)
		os.Exit(1)
	}
	logger.Info("courier-worker stopped")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := telemetry.InitTracing(ctx, telemetry.TracingConfig{
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown", "error", err)
		}
	}()

	// DB pool
	pool, err := repo.NewPool(ctx, repo.PoolConfig{URL: cfg.Store.URL, MaxConns: cfg.Store.MaxConns})
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	if err := repo.EnsureSchema(ctx, pool); err != nil {
		return err
	}
	logger.Info("database connected", "max_conns", pool.Config().MaxConns)

	// Telegram: неверный токен — фатально, недоступность API — нет
	tg, err := telegram.NewClient(telegram.Config{
		BotToken:  cfg.Telegram.BotToken,
		APIURL:    cfg.Telegram.APIURL,
		Timeout:   cfg.Telegram.Timeout,
		ParseMode: cfg.Telegram.ParseMode,
	}, logger)
	if err != nil {
		return err
	}
	if err := checkBot(ctx, tg, logger); err != nil {
		return err
	}

	metrics := worker.NewMetrics(prometheus.DefaultRegisterer)
	outcomes := repo.NewOutcomeRepo(pool)

	processor := worker.NewProcessor(worker.ProcessorConfig{
		Store:       outcomes,
		Receipts:    repo.NewReceiptRepo(pool),
		Client:      delivery.NewThrottled(tg, cfg.Delivery.RateLimitInterval),
		MaxAttempts: cfg.Worker.MaxAttempts,
		Retry: backoff.Policy{
			Initial:    cfg.Worker.RetryInitial,
			Max:        cfg.Worker.RetryMax,
			Multiplier: 2,
			Jitter:     0.2,
		},
		Metrics: metrics,
		Logger:  logger,
	})

	broker := mq.NewClient(mq.Config{
		URL:      cfg.Broker.URL,
		Topology: mq.DefaultTopology(cfg.Broker.Queue),
		Prefetch: cfg.Worker.Concurrency,
		Logger:   logger,
	})
	logger.Info("broker topology", "topology", broker.Topology().String())

	reconnect := backoff.ReconnectPolicy()
	reconnect.Initial = cfg.Broker.ReconnectInitial
	reconnect.Max = cfg.Broker.ReconnectMax

	w := worker.New(worker.Config{
		Dial:          worker.MQDialer(broker),
		Processor:     processor,
		Concurrency:   cfg.Worker.Concurrency,
		ShutdownGrace: cfg.Worker.ShutdownGrace,
		Reconnect:     &reconnect,
		Metrics:       metrics,
		Logger:        logger,
	})

	if cfg.Worker.StatsSchedule != "" {
		stats, err := worker.NewStatsReporter(outcomes, cfg.Worker.StatsSchedule, metrics, logger)
		if err != nil {
			return err
		}
		stats.Start(ctx)
		defer stats.Stop()
	}

	// HTTP mux: /healthz + /metrics
	mux := api.NewMux(map[string]api.Check{
		"broker": func(context.Context) error {
			if !w.Healthy() {
				return errors.New("disconnected")
			}
			return nil
		},
		"database": pool.Ping,
	}, prometheus.DefaultGatherer, logger)
	server := api.NewServer(":"+strconv.Itoa(cfg.HTTP.Port), mux)
	go func() {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	runErr := w.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}

	return runErr
}

// checkBot вызывает getMe. Постоянная ошибка (неверный токен) — ошибка
// конфигурации; временные сбои и таймаут переживём: доставка будет повторяться.
func checkBot(ctx context.Context, tg *telegram.Client, logger *slog.Logger) error {
	checkCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	me, err := tg.GetMe(checkCtx)
	if err == nil {
		logger.Info("telegram bot authorized", "username", me.Username)
		return nil
	}

	if !telegram.IsRetryable(err) && checkCtx.Err() == nil {
		return fmt.Errorf("telegram: %w", err)
	}
	logger.Warn("telegram API unavailable at startup",
		"retry_after", telegram.GetRetryAfter(err),
		"error", err,
	)
	return nil
}
