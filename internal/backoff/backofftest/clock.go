// Package backofftest — управляемые часы для тестов backoff и воркера.
package backofftest

import (
	"sync"
	"time"
)

// Clock — фиктивные часы.
//
// По умолчанию After сразу сдвигает время на d и возвращает готовый канал.
// После Hold таймеры ждут Advance: так проверяются ожидания, которые
// не должны истечь сами.
type Clock struct {
	mu      sync.Mutex
	now     time.Time
	sleeps  []time.Duration
	held    bool
	pending []timer
}

type timer struct {
	at time.Time
	ch chan time.Time
}

// NewClock создаёт Clock, начинающий с now.
func NewClock(now time.Time) *Clock {
	return &Clock{now: now}
}

// Now возвращает текущее фиктивное время.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After запоминает запрошенную задержку. Без Hold время сдвигается
// сразу, с Hold канал сработает после Advance.
func (c *Clock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sleeps = append(c.sleeps, d)
	ch := make(chan time.Time, 1)

	if c.held {
		c.pending = append(c.pending, timer{at: c.now.Add(d), ch: ch})
		return ch
	}

	c.now = c.now.Add(d)
	ch <- c.now
	return ch
}

// Hold переключает часы в ручной режим.
func (c *Clock) Hold() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.held = true
}

// Advance сдвигает время и срабатывает наступившие таймеры.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
	rest := c.pending[:0]
	for _, t := range c.pending {
		if t.at.After(c.now) {
			rest = append(rest, t)
			continue
		}
		t.ch <- c.now
	}
	c.pending = rest
}

// Pending возвращает число ждущих таймеров.
func (c *Clock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Sleeps возвращает копию всех запрошенных задержек.
func (c *Clock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}
