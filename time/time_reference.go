// Copyright 2024, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/epoch-bridge/blob/master/LICENSE

// Package time abstracts the wall clock so epoch arithmetic and waiting can be
// driven by an artificial clock in tests.
package time

import (
	"sync"
	"time"
)

// Reference is a source of time that can also be waited on.
type Reference interface {
	Get() time.Time
	Sleep(time.Duration)
	SleepUntil(time.Time)
	// After fires once d has passed on this reference.
	After(d time.Duration) <-chan time.Time
	NewTicker(time.Duration) Ticker
}

type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realTimeReference struct{}

func NewRealTimeReference() Reference {
	return realTimeReference{}
}

func (realTimeReference) Get() time.Time {
	return time.Now()
}

func (realTimeReference) Sleep(d time.Duration) {
	time.Sleep(d)
}

func (realTimeReference) SleepUntil(t time.Time) {
	time.Sleep(time.Until(t))
}

func (realTimeReference) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

type realTicker struct {
	*time.Ticker
}

func (t realTicker) C() <-chan time.Time {
	return t.Ticker.C
}

func (realTimeReference) NewTicker(d time.Duration) Ticker {
	return realTicker{time.NewTicker(d)}
}

type waiter struct {
	deadline time.Time
	ch       chan time.Time
}

// ArtificialTimeReference only moves when Set or Add is called. Waiters whose
// deadline has been reached are released on every move.
type ArtificialTimeReference struct {
	mu      sync.Mutex
	current time.Time
	waiters []waiter
}

func NewArtificialTimeReference() *ArtificialTimeReference {
	return &ArtificialTimeReference{current: time.Unix(0, 0)}
}

func (a *ArtificialTimeReference) Get() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

func (a *ArtificialTimeReference) Set(t time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.current = t
	a.release()
}

func (a *ArtificialTimeReference) Add(d time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.current = a.current.Add(d)
	a.release()
}

// Must hold a.mu.
func (a *ArtificialTimeReference) release() {
	remaining := a.waiters[:0]
	for _, w := range a.waiters {
		if !a.current.Before(w.deadline) {
			w.ch <- a.current
			continue
		}
		remaining = append(remaining, w)
	}
	a.waiters = remaining
}

func (a *ArtificialTimeReference) until(deadline time.Time) <-chan time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	ch := make(chan time.Time, 1)
	if !a.current.Before(deadline) {
		ch <- a.current
		return ch
	}
	a.waiters = append(a.waiters, waiter{deadline: deadline, ch: ch})
	return ch
}

// Waiters is the number of pending sleeps, useful to sync tests with a
// goroutine that is about to block.
func (a *ArtificialTimeReference) Waiters() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.waiters)
}

func (a *ArtificialTimeReference) After(d time.Duration) <-chan time.Time {
	return a.until(a.Get().Add(d))
}

func (a *ArtificialTimeReference) Sleep(d time.Duration) {
	<-a.After(d)
}

func (a *ArtificialTimeReference) SleepUntil(t time.Time) {
	<-a.until(t)
}

type artificialTicker struct {
	c    chan time.Time
	stop chan struct{}
	once sync.Once
}

func (t *artificialTicker) C() <-chan time.Time {
	return t.c
}

func (t *artificialTicker) Stop() {
	t.once.Do(func() { close(t.stop) })
}

func (a *ArtificialTimeReference) NewTicker(interval time.Duration) Ticker {
	t := &artificialTicker{c: make(chan time.Time, 1), stop: make(chan struct{})}
	go func() {
		for {
			select {
			case <-t.stop:
				return
			case now := <-a.After(interval):
				select {
				case t.c <- now:
				default:
				}
			}
		}
	}()
	return t
}
