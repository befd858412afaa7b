// Copyright 2024, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/epoch-bridge/blob/master/LICENSE

// Package stopwaiter runs the goroutines of a long-lived component under one
// cancellable context so they can be stopped together and waited for.
package stopwaiter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"

	utilTime "github.com/offchainlabs/epoch-bridge/time"
)

const stopDelayWarningTimeout = 30 * time.Second

var (
	ErrNotStarted     = errors.New("not started")
	ErrAlreadyStarted = errors.New("start after start")
)

type runState uint8

const (
	idle runState = iota
	running
	// stopped is sticky: a Start after it gets an already cancelled context.
	stopped
)

// StopWaiterSafe reports misuse as errors. Embed StopWaiter instead to panic.
type StopWaiterSafe struct {
	mutex   sync.Mutex // guards everything but threads
	state   runState
	started bool
	name    string
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	timeRef utilTime.Reference

	threads sync.WaitGroup
}

// SetTimeReference changes the clock CallIteratively waits on. Must be called
// before Start.
func (s *StopWaiterSafe) SetTimeReference(ref utilTime.Reference) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.timeRef = ref
}

func (s *StopWaiterSafe) Stopped() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.state == stopped
}

func (s *StopWaiterSafe) GetContext() (context.Context, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.ctx, nil
}

// Start derives the threads' context from ctx. owner only names the component
// in logs.
func (s *StopWaiterSafe) Start(ctx context.Context, owner any) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true
	s.name = fmt.Sprintf("%T", owner)
	s.ctx, s.cancel = context.WithCancel(ctx)
	if s.timeRef == nil {
		s.timeRef = utilTime.NewRealTimeReference()
	}
	if s.state == stopped {
		s.cancel()
	} else {
		s.state = running
	}
	return nil
}

// StopOnly cancels the threads without waiting for them.
func (s *StopWaiterSafe) StopOnly() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.state == running {
		s.cancel()
	}
	s.state = stopped
}

// StopAndWait may be called any number of times, including before Start. It
// also waits for threads that were stopped by StopOnly.
func (s *StopWaiterSafe) StopAndWait() error {
	return s.stopAndWaitImpl(stopDelayWarningTimeout)
}

func (s *StopWaiterSafe) stopAndWaitImpl(warningTimeout time.Duration) error {
	s.StopOnly()
	done, err := s.doneChan()
	if errors.Is(err, ErrNotStarted) {
		return nil
	}
	timer := time.NewTimer(warningTimeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		log.Warn("taking too long to stop", "name", s.name, "delay[s]", warningTimeout.Seconds())
	}
	<-done
	return nil
}

// doneChan is closed once the context is cancelled and every thread returned.
func (s *StopWaiterSafe) doneChan() (<-chan struct{}, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	if s.done == nil {
		ctx, done := s.ctx, make(chan struct{})
		go func() {
			<-ctx.Done()
			s.threads.Wait()
			close(done)
		}()
		s.done = done
	}
	return s.done, nil
}

// LaunchThread runs fn with the component's context. Nothing is launched once
// stopped.
func (s *StopWaiterSafe) LaunchThread(fn func(context.Context)) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if !s.started {
		return ErrNotStarted
	}
	if s.state == stopped {
		return nil
	}
	ctx := s.ctx
	s.threads.Add(1)
	go func() {
		defer s.threads.Done()
		fn(ctx)
	}()
	return nil
}

// CallIteratively calls fn in a thread until stopped, waiting the returned
// duration between calls. A zero duration calls again immediately.
func (s *StopWaiterSafe) CallIteratively(fn func(context.Context) time.Duration) error {
	s.mutex.Lock()
	timeRef := s.timeRef
	s.mutex.Unlock()
	return s.LaunchThread(func(ctx context.Context) {
		for ctx.Err() == nil {
			wait := fn(ctx)
			if wait <= 0 || ctx.Err() != nil {
				continue
			}
			select {
			case <-ctx.Done():
			case <-timeRef.After(wait):
			}
		}
	})
}

// StopWaiter panics where StopWaiterSafe would return an error.
type StopWaiter struct {
	StopWaiterSafe
}

func (s *StopWaiter) Start(ctx context.Context, owner any) {
	if err := s.StopWaiterSafe.Start(ctx, owner); err != nil {
		panic(err)
	}
}

func (s *StopWaiter) StopAndWait() {
	if err := s.StopWaiterSafe.StopAndWait(); err != nil {
		panic(err)
	}
}

func (s *StopWaiter) LaunchThread(fn func(context.Context)) {
	if err := s.StopWaiterSafe.LaunchThread(fn); err != nil {
		panic(err)
	}
}

func (s *StopWaiter) CallIteratively(fn func(context.Context) time.Duration) {
	if err := s.StopWaiterSafe.CallIteratively(fn); err != nil {
		panic(err)
	}
}

func (s *StopWaiter) GetContext() context.Context {
	ctx, err := s.StopWaiterSafe.GetContext()
	if err != nil {
		panic(err)
	}
	return ctx
}
