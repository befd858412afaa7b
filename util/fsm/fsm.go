// Copyright 2024, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/epoch-bridge/blob/master/LICENSE

// Package fsm is a small generic finite state machine. Events are matched to
// transitions by their String value, so event structs can carry data.
package fsm

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrEventNotFound     = errors.New("event not found in transition table")
)

// Event is anything that names itself.
type Event interface {
	fmt.Stringer
}

// State is anything comparable that names itself.
type State interface {
	comparable
	fmt.Stringer
}

// Transition moves the machine to To when an event of type Typ fires in any
// of the From states.
type Transition[E Event, S State] struct {
	Typ  E
	From []S
	To   S
}

// Current is the machine's state and the event that led to it.
type Current[E Event, S State] struct {
	State       S
	SourceEvent E
}

// Executed records one transition taken.
type Executed[E Event, S State] struct {
	From  S
	To    S
	Event E
}

type Opt[E Event, S State] func(*Fsm[E, S])

// WithTrackedTransitions keeps a history of every transition taken.
func WithTrackedTransitions[E Event, S State]() Opt[E, S] {
	return func(f *Fsm[E, S]) {
		f.track = true
	}
}

// Fsm is safe for concurrent use.
type Fsm[E Event, S State] struct {
	mu       sync.RWMutex
	curr     Current[E, S]
	table    map[string]*Transition[E, S]
	track    bool
	executed []Executed[E, S]
}

func New[E Event, S State](start S, transitions []*Transition[E, S], opts ...Opt[E, S]) (*Fsm[E, S], error) {
	table := make(map[string]*Transition[E, S], len(transitions))
	for _, t := range transitions {
		key := t.Typ.String()
		if _, ok := table[key]; ok {
			return nil, fmt.Errorf("duplicate transition for event %s", key)
		}
		if len(t.From) == 0 {
			return nil, fmt.Errorf("transition for event %s has no source states", key)
		}
		table[key] = t
	}
	f := &Fsm[E, S]{
		curr:  Current[E, S]{State: start},
		table: table,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

func (f *Fsm[E, S]) Current() Current[E, S] {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.curr
}

// CanDo reports whether event would be accepted in the current state.
func (f *Fsm[E, S]) CanDo(event E) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	t, ok := f.table[event.String()]
	return ok && contains(t.From, f.curr.State)
}

// Do applies event, failing if it is unknown or not allowed from the current
// state. A failed Do leaves the state unchanged.
func (f *Fsm[E, S]) Do(event E) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.table[event.String()]
	if !ok {
		return fmt.Errorf("%w: %s", ErrEventNotFound, event)
	}
	if !contains(t.From, f.curr.State) {
		return fmt.Errorf("%w: %s from %s", ErrInvalidTransition, event, f.curr.State)
	}
	if f.track {
		f.executed = append(f.executed, Executed[E, S]{From: f.curr.State, To: t.To, Event: event})
	}
	f.curr = Current[E, S]{State: t.To, SourceEvent: event}
	return nil
}

// History returns the tracked transitions, oldest first.
func (f *Fsm[E, S]) History() []Executed[E, S] {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]Executed[E, S](nil), f.executed...)
}

func contains[S comparable](states []S, s S) bool {
	for _, candidate := range states {
		if candidate == s {
			return true
		}
	}
	return false
}
