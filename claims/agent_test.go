// Copyright 2024, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/epoch-bridge/blob/master/LICENSE

package claims

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/offchainlabs/epoch-bridge/protocol"
)

func (e *env) feedMessages(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		e.index.AddMessage(common.HexToAddress("0x70"), common.HexToAddress("0x5e"), []byte{byte(i)})
	}
	e.inbox.Messages = e.index.Size()
	period := protocol.EpochPeriod(testPeriod)
	e.inbox.OnSave = func() (uint64, common.Hash) {
		snap, err := e.index.SaveSnapshot()
		require.NoError(t, err)
		return period.EpochAt(e.ref.Get()), snap.StateRoot
	}
}

func TestAgentFullClaimCycle(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, bridgerAddr)
	e.ref.Set(time.Unix(10*testPeriod+100, 0))
	e.feedMessages(t, 3)

	agent, err := NewAgent(e.outbox, e.inbox, e.index, bridgerAddr, e.ref, 4)
	require.NoError(t, err)

	require.NoError(t, agent.Act(ctx))
	require.Equal(t, 1, e.inbox.Saves)
	root := e.inbox.Snapshots[10]
	require.NotEqual(t, common.Hash{}, root)
	require.Empty(t, e.outbox.Writes())

	// Already saved this epoch.
	require.NoError(t, agent.Act(ctx))
	require.Equal(t, 1, e.inbox.Saves)

	// Next epoch: nothing new to save, epoch 10 is claimable.
	e.ref.Set(time.Unix(11*testPeriod+100, 0))
	require.NoError(t, agent.Act(ctx))
	require.Equal(t, 1, e.inbox.Saves)
	claims := e.outbox.WritesOf("claim")
	require.Len(t, claims, 1)
	require.Equal(t, uint64(10), claims[0].Epoch)
	require.Equal(t, root, claims[0].Claim.StateRoot)
	require.Equal(t, 0, claims[0].Value.Cmp(testDeposit))
	e.syncIndex(10)

	// Sequencer delay has not passed.
	e.ref.Add(599 * time.Second)
	require.NoError(t, agent.Act(ctx))
	require.Empty(t, e.outbox.WritesOf("startVerification"))

	e.ref.Add(time.Second)
	require.NoError(t, agent.Act(ctx))
	require.Len(t, e.outbox.WritesOf("startVerification"), 1)
	e.syncIndex(10)

	e.ref.Add(1799 * time.Second)
	require.NoError(t, agent.Act(ctx))
	require.Empty(t, e.outbox.WritesOf("verifySnapshot"))

	e.ref.Add(time.Second)
	require.NoError(t, agent.Act(ctx))
	require.Len(t, e.outbox.WritesOf("verifySnapshot"), 1)
	require.Equal(t, root, e.outbox.Root)
	require.Equal(t, uint64(10), e.outbox.VerifiedEpoch)

	// The index still has the pre-verification claim; the tracked one is used.
	require.NoError(t, agent.Act(ctx))
	require.Len(t, e.outbox.WritesOf("withdrawClaimDeposit"), 1)
	_, stored := e.outbox.StoredClaim(10)
	require.False(t, stored)

	// A cleared claim hash for a verified epoch is not claimed again.
	require.NoError(t, agent.Act(ctx))
	require.Len(t, e.outbox.WritesOf("claim"), 1)
	require.Len(t, e.outbox.WritesOf("withdrawClaimDeposit"), 1)
}

func TestAgentWaitsForVerificationBlocks(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, bridgerAddr)
	e.outbox.TimingParams.MinVerificationBlocks = 5
	e.outbox.Block = 100
	e.outbox.SetClaim(10, protocol.Claim{
		StateRoot:               common.HexToHash("0xaa"),
		Claimer:                 bridgerAddr,
		TimestampClaimed:        11 * testPeriod,
		TimestampVerification:   11*testPeriod + 600,
		BlockNumberVerification: 98,
	})
	e.syncIndex(10)
	e.ref.Set(time.Unix(11*testPeriod+600+1800, 0))

	agent, err := NewAgent(e.outbox, e.inbox, e.index, bridgerAddr, e.ref, 4)
	require.NoError(t, err)
	require.NoError(t, agent.Act(ctx))
	require.Empty(t, e.outbox.WritesOf("verifySnapshot"))

	e.outbox.Block = 103
	require.NoError(t, agent.Act(ctx))
	require.Len(t, e.outbox.WritesOf("verifySnapshot"), 1)
}

func TestAgentLeavesOthersClaims(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, bridgerAddr)
	e.inbox.Snapshots[10] = common.HexToHash("0xaa")
	e.outbox.SetClaim(10, protocol.Claim{
		StateRoot:        common.HexToHash("0xaa"),
		Claimer:          dishonestAddr,
		TimestampClaimed: 11 * testPeriod,
	})
	e.syncIndex(10)
	e.ref.Add(time.Hour)

	agent, err := NewAgent(e.outbox, e.inbox, e.index, bridgerAddr, e.ref, 4)
	require.NoError(t, err)
	require.NoError(t, agent.Act(ctx))
	require.Empty(t, e.outbox.Writes())
}

func TestAgentSkipsEmptySnapshot(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, bridgerAddr)
	agent, err := NewAgent(e.outbox, e.inbox, e.index, bridgerAddr, e.ref, 4)
	require.NoError(t, err)
	require.NoError(t, agent.Act(ctx))
	require.Zero(t, e.inbox.Saves)
	require.Empty(t, e.outbox.Writes())
}

func TestAgentStopsAfterDishonestResolution(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, bridgerAddr)
	e.outbox.SetClaim(9, protocol.Claim{
		StateRoot:        common.HexToHash("0xaa"),
		Claimer:          bridgerAddr,
		TimestampClaimed: 10 * testPeriod,
		Challenger:       challengerAddr,
		Honest:           protocol.PartyChallenger,
	})
	e.syncIndex(9)

	agent, err := NewAgent(e.outbox, e.inbox, e.index, bridgerAddr, e.ref, 4)
	require.NoError(t, err)
	require.NoError(t, agent.Act(ctx))
	require.Empty(t, e.outbox.Writes())
}
