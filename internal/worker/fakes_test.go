package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shaiso/courier/internal/codec"
	"github.com/shaiso/courier/internal/domain"
	"github.com/shaiso/courier/internal/mq"
	"github.com/shaiso/courier/internal/repo"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// --- Broker ---

// fakeDelivery записывает, чем закончилась обработка.
type fakeDelivery struct {
	body []byte
	meta codec.Meta

	ackErr error

	mu      sync.Mutex
	acks    int
	nacks   int
	requeue bool
	settled chan struct{}
}

func newDelivery(body []byte) *fakeDelivery {
	return &fakeDelivery{body: body, settled: make(chan struct{})}
}

func (d *fakeDelivery) Body() []byte            { return d.body }
func (d *fakeDelivery) Meta() codec.Meta        { return d.meta }
func (d *fakeDelivery) Headers() map[string]any { return nil }

func (d *fakeDelivery) Ack() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.acks++
	d.markSettled()
	return d.ackErr
}

func (d *fakeDelivery) Nack(requeue bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nacks++
	d.requeue = requeue
	d.markSettled()
	return nil
}

func (d *fakeDelivery) markSettled() {
	select {
	case <-d.settled:
	default:
		close(d.settled)
	}
}

func (d *fakeDelivery) counts() (acks, nacks int, requeue bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.acks, d.nacks, d.requeue
}

// fakeSession отдаёт сообщения из канала; закрытие канала — потеря соединения.
type fakeSession struct {
	deliveries chan Delivery

	mu     sync.Mutex
	closed bool
}

func newSession(buffer int) *fakeSession {
	return &fakeSession{deliveries: make(chan Delivery, buffer)}
}

func (s *fakeSession) Receive(ctx context.Context) (Delivery, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case d, ok := <-s.deliveries:
		if !ok {
			return nil, mq.ErrConnectionLost
		}
		return d, nil
	}
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// --- Store ---

// memStore — OutcomeStore в памяти с уникальностью по task_id.
type memStore struct {
	mu       sync.Mutex
	outcomes map[string]domain.TaskOutcome
	checks   int

	checkErr  error
	recordErr error
}

func newMemStore() *memStore {
	return &memStore{outcomes: make(map[string]domain.TaskOutcome)}
}

func (s *memStore) AlreadyCompleted(_ context.Context, taskID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks++
	if s.checkErr != nil {
		return false, s.checkErr
	}
	_, ok := s.outcomes[taskID]
	return ok, nil
}

func (s *memStore) Record(_ context.Context, o *domain.TaskOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recordErr != nil {
		return s.recordErr
	}
	if _, ok := s.outcomes[o.TaskID]; ok {
		return repo.ErrConflict
	}
	s.outcomes[o.TaskID] = *o
	return nil
}

func (s *memStore) get(taskID string) (domain.TaskOutcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.outcomes[taskID]
	return o, ok
}

func (s *memStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.outcomes)
}

type memReceipts struct {
	mu   sync.Mutex
	seen map[string]int
}

func (r *memReceipts) Record(_ context.Context, task *domain.Task, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seen == nil {
		r.seen = make(map[string]int)
	}
	r.seen[task.ID]++
	return nil
}

// --- Delivery client ---

type sendCall struct {
	recipient string
	content   string
}

// scriptedClient возвращает ошибки из script по порядку, дальше — nil.
type scriptedClient struct {
	mu     sync.Mutex
	script []error
	calls  []sendCall
}

func (c *scriptedClient) Send(_ context.Context, recipient, content string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, sendCall{recipient, content})
	if len(c.script) == 0 {
		return nil
	}
	err := c.script[0]
	c.script = c.script[1:]
	return err
}

func (c *scriptedClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

// alwaysFailing всегда возвращает err.
type alwaysFailing struct {
	err   error
	mu    sync.Mutex
	calls int
}

func (c *alwaysFailing) Send(context.Context, string, string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.err
}

var errTimeout = errors.New("i/o timeout")

// --- Helpers ---

func encodeTask(t *testing.T, id string, kind domain.TaskKind, payload any) []byte {
	t.Helper()

	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	body, err := codec.Encode(&domain.Task{
		ID:         id,
		Kind:       kind,
		Payload:    raw,
		EnqueuedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return body
}

func notification(recipient, content string) domain.NotificationPayload {
	return domain.NotificationPayload{Recipient: recipient, Content: content}
}

// waitFor опрашивает cond до истечения timeout.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}
