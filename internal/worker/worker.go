package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/shaiso/courier/internal/backoff"
	"github.com/shaiso/courier/internal/mq"
)

// Default configuration values.
const (
	defaultConcurrency   = 8
	defaultShutdownGrace = 30 * time.Second
)

// Session — открытая сессия с брокером.
type Session interface {
	Receive(ctx context.Context) (Delivery, error)
	Close() error
}

// Dialer открывает сессию за одну попытку.
type Dialer func(ctx context.Context) (Session, error)

// MQDialer адаптирует *mq.Client к Dialer.
func MQDialer(c *mq.Client) Dialer {
	return func(ctx context.Context) (Session, error) {
		s, err := c.Dial(ctx)
		if err != nil {
			return nil, err
		}
		return mqSession{s}, nil
	}
}

type mqSession struct {
	*mq.Session
}

func (s mqSession) Receive(ctx context.Context) (Delivery, error) {
	d, err := s.Session.Receive(ctx)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Config — конфигурация Worker.
type Config struct {
	Dial      Dialer
	Processor *Processor

	// Concurrency — сколько задач обрабатывается одновременно (default: 8).
	// QoS prefetch брокера должен быть равен этому значению.
	Concurrency int

	// ShutdownGrace — сколько ждать in-flight задачи при остановке (default: 30s).
	ShutdownGrace time.Duration

	// Reconnect — backoff переподключения (default: 1s → 30s, ±20%).
	Reconnect *backoff.Policy

	// Clock (если nil — backoff.SystemClock).
	Clock backoff.Clock

	Metrics *Metrics
	Logger  *slog.Logger
}

// Worker — Worker Loop: владеет сессией брокера и пулом обработчиков.
//
// Жизненный цикл:
//   - Dial с экспоненциальным backoff, пока не получится
//   - перед каждым переподключением тоже ждём backoff
//   - Receive → обработка в пуле не больше Concurrency задач
//   - ConnectionLost: прекращаем приём, дожидаемся in-flight, переподключаемся
//   - отмена ctx: прекращаем приём, ждём in-flight до ShutdownGrace,
//     остальные бросаем без ack, закрываем сессию
type Worker struct {
	dial        Dialer
	processor   *Processor
	concurrency int
	grace       time.Duration
	reconnect   backoff.Policy
	clock       backoff.Clock
	metrics     *Metrics
	logger      *slog.Logger

	running   atomic.Bool
	connected atomic.Bool
	inFlight  atomic.Int64
}

// New создаёт Worker.
func New(cfg Config) *Worker {
	w := &Worker{
		dial:        cfg.Dial,
		processor:   cfg.Processor,
		concurrency: cfg.Concurrency,
		grace:       cfg.ShutdownGrace,
		reconnect:   backoff.ReconnectPolicy(),
		clock:       cfg.Clock,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
	}
	if cfg.Reconnect != nil {
		w.reconnect = *cfg.Reconnect
	}
	if w.concurrency <= 0 {
		w.concurrency = defaultConcurrency
	}
	if w.grace <= 0 {
		w.grace = defaultShutdownGrace
	}
	if w.clock == nil {
		w.clock = backoff.SystemClock
	}
	if w.metrics == nil {
		w.metrics = NewMetrics(nil)
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	return w
}

// Healthy сообщает, есть ли сейчас сессия с брокером.
func (w *Worker) Healthy() bool {
	return w.connected.Load()
}

// Run работает до отмены ctx. Возвращает nil после корректной остановки
// и ошибку, если очередь объявлена несовместимо (mq.ErrQueueMismatch).
func (w *Worker) Run(ctx context.Context) error {
	if !w.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer w.running.Store(false)

	// Обработчики не видят отмену ctx: их прерывает только истечение grace.
	procCtx, abandon := context.WithCancel(context.WithoutCancel(ctx))
	defer abandon()

	w.logger.Info("starting worker",
		"concurrency", w.concurrency,
		"shutdown_grace", w.grace,
	)

	b := backoff.New(w.reconnect)
	for {
		if ctx.Err() != nil {
			break
		}

		session, err := w.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if errors.Is(err, mq.ErrQueueMismatch) {
				return err
			}
			delay := b.Next(w.clock.Now(), 0)
			w.logger.Warn("broker unavailable, retrying",
				"attempt", b.Attempt(),
				"delay", delay,
				"error", err,
			)
			if err := b.Wait(ctx, w.clock); err != nil {
				break
			}
			continue
		}

		w.setConnected(true)
		received, err := w.consume(ctx, procCtx, abandon, session)
		w.setConnected(false)

		if closeErr := session.Close(); closeErr != nil {
			w.logger.Debug("close session", "error", closeErr)
		}

		if ctx.Err() != nil {
			break
		}

		// Сессия, отдавшая хотя бы одно сообщение, считается рабочей:
		// счётчик сбрасывается. Иначе задержка продолжает расти.
		if received > 0 {
			b.Reset()
		}

		w.metrics.Reconnects.Inc()
		delay := b.Next(w.clock.Now(), 0)
		w.logger.Warn("broker connection lost, reconnecting",
			"received", received,
			"delay", delay,
			"error", err,
		)
		if err := b.Wait(ctx, w.clock); err != nil {
			break
		}
	}

	w.logger.Info("worker stopped")
	return nil
}

// consume принимает сообщения, пока сессия жива и ctx не отменён.
// Возвращает число принятых сообщений после того, как все запущенные
// обработчики завершились.
func (w *Worker) consume(ctx, procCtx context.Context, abandon context.CancelFunc, session Session) (int, error) {
	var (
		g        errgroup.Group
		slots    = semaphore.NewWeighted(int64(w.concurrency))
		received int
		recvErr  error
	)

	for {
		// Слот берём до Receive: неразобранные сообщения остаются у брокера.
		if err := slots.Acquire(ctx, 1); err != nil {
			recvErr = err
			break
		}

		d, err := session.Receive(ctx)
		if err != nil {
			slots.Release(1)
			recvErr = err
			break
		}

		received++
		w.inFlight.Add(1)
		g.Go(func() error {
			defer slots.Release(1)
			defer w.inFlight.Add(-1)
			w.processor.Process(procCtx, d)
			return nil
		})
	}

	w.drain(ctx, &g, abandon)
	return received, recvErr
}

// drain ждёт in-flight обработчики. После отмены ctx ждёт не дольше grace,
// затем отменяет procCtx и дожидается, пока обработчики выйдут.
func (w *Worker) drain(ctx context.Context, g *errgroup.Group, abandon context.CancelFunc) {
	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	select {
	case <-done:
		return
	case <-ctx.Done():
	}

	n := w.inFlight.Load()
	if n == 0 {
		<-done
		return
	}
	w.logger.Info("waiting for in-flight tasks", "in_flight", n, "grace", w.grace)

	select {
	case <-done:
	case <-w.clock.After(w.grace):
		w.logger.Warn("shutdown grace expired, abandoning in-flight tasks",
			"in_flight", w.inFlight.Load(),
		)
		abandon()
		<-done
	}
}

func (w *Worker) setConnected(ok bool) {
	w.connected.Store(ok)
	if ok {
		w.metrics.Connected.Set(1)
	} else {
		w.metrics.Connected.Set(0)
	}
}
