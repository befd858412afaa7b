// Copyright 2024, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/epoch-bridge/blob/master/LICENSE

package fsm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type ticketEvent interface {
	Event
	isTicketEvent() bool
}

type send struct {
	txHash string
}

func (send) String() string      { return "send" }
func (send) isTicketEvent() bool { return true }

type confirm struct{}

func (confirm) String() string      { return "confirm" }
func (confirm) isTicketEvent() bool { return true }

type retry struct{}

func (retry) String() string      { return "retry" }
func (retry) isTicketEvent() bool { return true }

type unknownEvent struct{}

func (unknownEvent) String() string      { return "unknown" }
func (unknownEvent) isTicketEvent() bool { return true }

type ticketState uint8

const (
	_ ticketState = iota
	ticketPending
	ticketSent
	ticketConfirmed
)

func (s ticketState) String() string {
	switch s {
	case ticketPending:
		return "pending"
	case ticketSent:
		return "sent"
	case ticketConfirmed:
		return "confirmed"
	default:
		return "invalid"
	}
}

func ticketTransitions() []*Transition[ticketEvent, ticketState] {
	return []*Transition[ticketEvent, ticketState]{
		{Typ: send{}, From: []ticketState{ticketPending}, To: ticketSent},
		{Typ: retry{}, From: []ticketState{ticketSent}, To: ticketPending},
		{Typ: confirm{}, From: []ticketState{ticketSent}, To: ticketConfirmed},
	}
}

func TestFsmTransitions(t *testing.T) {
	f, err := New[ticketEvent, ticketState](ticketPending, ticketTransitions())
	require.NoError(t, err)
	require.Equal(t, ticketPending, f.Current().State)

	t.Run("invalid transition keeps state", func(t *testing.T) {
		err := f.Do(confirm{})
		require.ErrorIs(t, err, ErrInvalidTransition)
		require.Equal(t, ticketPending, f.Current().State)
		require.False(t, f.CanDo(confirm{}))
	})
	t.Run("events carry data", func(t *testing.T) {
		require.True(t, f.CanDo(send{}))
		require.NoError(t, f.Do(send{txHash: "0xabc"}))
		curr := f.Current()
		require.Equal(t, ticketSent, curr.State)
		ev, ok := curr.SourceEvent.(send)
		require.True(t, ok)
		require.Equal(t, "0xabc", ev.txHash)
	})
	t.Run("cycle then terminal", func(t *testing.T) {
		require.NoError(t, f.Do(retry{}))
		require.NoError(t, f.Do(send{}))
		require.NoError(t, f.Do(confirm{}))
		require.Equal(t, ticketConfirmed, f.Current().State)
		require.ErrorIs(t, f.Do(retry{}), ErrInvalidTransition)
	})
	t.Run("unknown event", func(t *testing.T) {
		require.ErrorIs(t, f.Do(unknownEvent{}), ErrEventNotFound)
	})
}

func TestFsmTracksHistory(t *testing.T) {
	f, err := New(ticketPending, ticketTransitions(), WithTrackedTransitions[ticketEvent, ticketState]())
	require.NoError(t, err)
	require.NoError(t, f.Do(send{}))
	require.NoError(t, f.Do(retry{}))
	require.Error(t, f.Do(confirm{}))

	history := f.History()
	require.Len(t, history, 2)
	require.Equal(t, Executed[ticketEvent, ticketState]{From: ticketPending, To: ticketSent, Event: send{}}, history[0])
	require.Equal(t, ticketPending, history[1].To)
}

func TestFsmRejectsBadTable(t *testing.T) {
	dup := append(ticketTransitions(), &Transition[ticketEvent, ticketState]{Typ: send{}, From: []ticketState{ticketSent}, To: ticketSent})
	_, err := New(ticketPending, dup)
	require.Error(t, err)

	_, err = New(ticketPending, []*Transition[ticketEvent, ticketState]{{Typ: send{}, To: ticketSent}})
	require.Error(t, err)
}
