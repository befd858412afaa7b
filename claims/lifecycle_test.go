// Copyright 2024, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/epoch-bridge/blob/master/LICENSE

package claims

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/offchainlabs/epoch-bridge/protocol"
	"github.com/offchainlabs/epoch-bridge/util/fsm"
)

func baseClaim() protocol.Claim {
	return protocol.Claim{
		StateRoot:        common.HexToHash("0xaa"),
		Claimer:          common.HexToAddress("0x01"),
		TimestampClaimed: 100,
	}
}

func TestLifecycleHappyPath(t *testing.T) {
	lc, err := NewLifecycle(7)
	require.NoError(t, err)
	require.Equal(t, NoClaim, lc.State())

	claim := baseClaim()
	resolved, err := lc.Observe(claim)
	require.NoError(t, err)
	require.False(t, resolved)
	require.Equal(t, Claimed, lc.State())

	// Seeing the same claim twice is a no-op.
	_, err = lc.Observe(claim)
	require.NoError(t, err)
	require.Equal(t, Claimed, lc.State())

	claim.TimestampVerification = 200
	claim.BlockNumberVerification = 10
	_, err = lc.Observe(claim)
	require.NoError(t, err)
	require.Equal(t, VerificationStarted, lc.State())

	claim.Honest = protocol.PartyClaimer
	resolved, err = lc.Observe(claim)
	require.NoError(t, err)
	require.True(t, resolved)
	require.Equal(t, ClaimerHonest, lc.State())
	require.True(t, lc.State().IsTerminal())

	resolved, err = lc.Observe(claim)
	require.NoError(t, err)
	require.False(t, resolved)

	last, ok := lc.LastClaim()
	require.True(t, ok)
	require.Equal(t, claim, last)
	require.Len(t, lc.fsm.History(), 3)
}

func TestLifecycleFirstSeenLate(t *testing.T) {
	lc, err := NewLifecycle(1)
	require.NoError(t, err)
	claim := baseClaim()
	claim.TimestampVerification = 300
	_, err = lc.Observe(claim)
	require.NoError(t, err)
	require.Equal(t, VerificationStarted, lc.State())

	lc, err = NewLifecycle(2)
	require.NoError(t, err)
	claim = baseClaim()
	claim.Challenger = common.HexToAddress("0x02")
	claim.Honest = protocol.PartyChallenger
	resolved, err := lc.Observe(claim)
	require.NoError(t, err)
	require.True(t, resolved)
	require.True(t, lc.Challenged())
	require.Equal(t, ChallengerHonest, lc.State())
}

func TestLifecycleRejectsRegression(t *testing.T) {
	lc, err := NewLifecycle(3)
	require.NoError(t, err)
	claim := baseClaim()
	claim.TimestampVerification = 300
	_, err = lc.Observe(claim)
	require.NoError(t, err)

	_, err = lc.Observe(baseClaim())
	require.ErrorIs(t, err, fsm.ErrInvalidTransition)
	require.Equal(t, VerificationStarted, lc.State())
	last, ok := lc.LastClaim()
	require.True(t, ok)
	require.Equal(t, claim, last)
}

func TestLifecycleRejectsFlippedOutcome(t *testing.T) {
	lc, err := NewLifecycle(4)
	require.NoError(t, err)
	claim := baseClaim()
	claim.Honest = protocol.PartyClaimer
	_, err = lc.Observe(claim)
	require.NoError(t, err)

	claim.Honest = protocol.PartyChallenger
	_, err = lc.Observe(claim)
	require.ErrorIs(t, err, fsm.ErrInvalidTransition)
	require.Equal(t, ClaimerHonest, lc.State())
}

func TestLifecycleRejectsChallengeAfterResolution(t *testing.T) {
	lc, err := NewLifecycle(5)
	require.NoError(t, err)
	claim := baseClaim()
	claim.Honest = protocol.PartyClaimer
	_, err = lc.Observe(claim)
	require.NoError(t, err)

	claim.Challenger = common.HexToAddress("0x03")
	_, err = lc.Observe(claim)
	require.ErrorIs(t, err, fsm.ErrInvalidTransition)
	require.False(t, lc.Challenged())
}

func TestLifecycleDisputeFlag(t *testing.T) {
	lc, err := NewLifecycle(6)
	require.NoError(t, err)
	require.False(t, lc.DisputeSent())
	lc.MarkDisputeSent()
	require.True(t, lc.DisputeSent())
}

func TestTrackerReturnsSameLifecycle(t *testing.T) {
	tracker, err := NewTracker(2)
	require.NoError(t, err)
	a, err := tracker.Get(1)
	require.NoError(t, err)
	_, err = a.Observe(baseClaim())
	require.NoError(t, err)

	again, err := tracker.Get(1)
	require.NoError(t, err)
	require.Same(t, a, again)
	require.Equal(t, Claimed, again.State())

	_, err = tracker.Get(2)
	require.NoError(t, err)
	_, err = tracker.Get(3)
	require.NoError(t, err)
	evicted, err := tracker.Get(1)
	require.NoError(t, err)
	require.Equal(t, NoClaim, evicted.State())
}
