// Copyright 2024, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/epoch-bridge/blob/master/LICENSE

package claims

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/offchainlabs/epoch-bridge/protocol"
	"github.com/offchainlabs/epoch-bridge/util/fsm"
)

// State of an epoch's claim as seen from off-chain.
type State uint8

const (
	// Zero is never a valid state, to avoid mistakes with default values.
	_ State = iota
	NoClaim
	Claimed
	VerificationStarted
	ClaimerHonest
	ChallengerHonest
)

func (s State) String() string {
	switch s {
	case NoClaim:
		return "no_claim"
	case Claimed:
		return "claimed"
	case VerificationStarted:
		return "verification_started"
	case ClaimerHonest:
		return "claimer_honest"
	case ChallengerHonest:
		return "challenger_honest"
	default:
		return "invalid"
	}
}

func (s State) IsTerminal() bool {
	return s == ClaimerHonest || s == ChallengerHonest
}

type observation interface {
	fmt.Stringer
	isObservation() bool
}

type claimObserved struct{}
type verificationObserved struct{}
type claimerHonestObserved struct{}
type challengerHonestObserved struct{}

func (claimObserved) String() string            { return "claim_observed" }
func (verificationObserved) String() string     { return "verification_observed" }
func (claimerHonestObserved) String() string    { return "claimer_honest_observed" }
func (challengerHonestObserved) String() string { return "challenger_honest_observed" }

func (claimObserved) isObservation() bool            { return true }
func (verificationObserved) isObservation() bool     { return true }
func (claimerHonestObserved) isObservation() bool    { return true }
func (challengerHonestObserved) isObservation() bool { return true }

func newLifecycleFsm() (*fsm.Fsm[observation, State], error) {
	transitions := []*fsm.Transition[observation, State]{
		{
			Typ:  claimObserved{},
			From: []State{NoClaim, Claimed},
			To:   Claimed,
		},
		{
			Typ:  verificationObserved{},
			From: []State{Claimed, VerificationStarted},
			To:   VerificationStarted,
		},
		// Unchallenged claims resolve through verifySnapshot after verification
		// starts; challenged ones can also be settled by the dispute path.
		{
			Typ:  claimerHonestObserved{},
			From: []State{Claimed, VerificationStarted, ClaimerHonest},
			To:   ClaimerHonest,
		},
		{
			Typ:  challengerHonestObserved{},
			From: []State{Claimed, VerificationStarted, ChallengerHonest},
			To:   ChallengerHonest,
		},
	}
	return fsm.New[observation, State](NoClaim, transitions, fsm.WithTrackedTransitions[observation, State]())
}

// Lifecycle follows one epoch's claim. Challenged is orthogonal to the state
// and can only be raised while the claim is not yet resolved.
type Lifecycle struct {
	mu         sync.Mutex
	epoch      uint64
	fsm        *fsm.Fsm[observation, State]
	challenged bool
	// Set once the snapshot for a claim we challenged was sent over the
	// dispute path.
	disputeSent bool
	last        *protocol.Claim
}

func NewLifecycle(epoch uint64) (*Lifecycle, error) {
	f, err := newLifecycleFsm()
	if err != nil {
		return nil, err
	}
	return &Lifecycle{epoch: epoch, fsm: f}, nil
}

func (l *Lifecycle) State() State {
	return l.fsm.Current().State
}

func (l *Lifecycle) Challenged() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.challenged
}

func (l *Lifecycle) DisputeSent() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.disputeSent
}

func (l *Lifecycle) MarkDisputeSent() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.disputeSent = true
}

// LastClaim is the most recent claim struct known to match the on-chain hash.
func (l *Lifecycle) LastClaim() (protocol.Claim, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.last == nil {
		return protocol.Claim{}, false
	}
	return *l.last, true
}

// SetLastClaim records a claim struct the caller knows is current, such as
// one it just changed on-chain.
func (l *Lifecycle) SetLastClaim(claim protocol.Claim) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.last = &claim
}

func targetState(claim protocol.Claim) (State, observation) {
	switch {
	case claim.Honest == protocol.PartyClaimer:
		return ClaimerHonest, claimerHonestObserved{}
	case claim.Honest == protocol.PartyChallenger:
		return ChallengerHonest, challengerHonestObserved{}
	case claim.VerificationStarted():
		return VerificationStarted, verificationObserved{}
	default:
		return Claimed, claimObserved{}
	}
}

// Observe moves the lifecycle to match a claim read from chain. It returns
// true if the claim was resolved by this observation. An observation that
// would move the lifecycle backwards, or flip a resolved outcome, is
// rejected and leaves the lifecycle unchanged.
func (l *Lifecycle) Observe(claim protocol.Claim) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	before := l.fsm.Current().State
	target, event := targetState(claim)

	if claim.IsChallenged() && !l.challenged && before.IsTerminal() {
		return false, fmt.Errorf("epoch %d: %w: challenge observed after %s", l.epoch, fsm.ErrInvalidTransition, before)
	}
	if before != target {
		var path []observation
		if before == NoClaim && target != Claimed {
			path = append(path, claimObserved{})
		}
		path = append(path, event)
		for _, ev := range path {
			if !l.fsm.CanDo(ev) {
				return false, fmt.Errorf("epoch %d: %w: %s while %s", l.epoch, fsm.ErrInvalidTransition, ev, l.fsm.Current().State)
			}
		}
		for _, ev := range path {
			if err := l.fsm.Do(ev); err != nil {
				return false, err
			}
		}
	}
	if claim.IsChallenged() {
		l.challenged = true
	}
	l.last = &claim
	return !before.IsTerminal() && target.IsTerminal(), nil
}

// Tracker keeps lifecycles of recent epochs.
type Tracker struct {
	mu         sync.Mutex
	lifecycles *lru.Cache[uint64, *Lifecycle]
}

func NewTracker(size int) (*Tracker, error) {
	cache, err := lru.New[uint64, *Lifecycle](size)
	if err != nil {
		return nil, err
	}
	return &Tracker{lifecycles: cache}, nil
}

func (t *Tracker) Get(epoch uint64) (*Lifecycle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if l, ok := t.lifecycles.Get(epoch); ok {
		return l, nil
	}
	l, err := NewLifecycle(epoch)
	if err != nil {
		return nil, err
	}
	t.lifecycles.Add(epoch, l)
	return l, nil
}
