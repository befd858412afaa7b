// Copyright 2024, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/epoch-bridge/blob/master/LICENSE

package proofs

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/offchainlabs/epoch-bridge/index"
	"github.com/offchainlabs/epoch-bridge/protocol"
	"github.com/offchainlabs/epoch-bridge/protocol/mocks"
	"github.com/offchainlabs/epoch-bridge/util/merkletree"
)

func seededMemory(t *testing.T, n int) (*index.Memory, protocol.Snapshot) {
	t.Helper()
	mem := index.NewMemory()
	for i := 0; i < n; i++ {
		mem.AddMessage(common.HexToAddress("0xcc"), common.HexToAddress("0xdd"), []byte{byte(i), 1})
	}
	snap, err := mem.SaveSnapshot()
	require.NoError(t, err)
	return mem, snap
}

func TestGetProofReproducesRoot(t *testing.T) {
	ctx := context.Background()
	mem, snap := seededMemory(t, 15)
	service, err := NewService(mem, 0)
	require.NoError(t, err)

	for nonce := uint64(0); nonce < snap.Count; nonce++ {
		msg, proof, ok := service.GetRelayData(ctx, nonce, snap.Count)
		require.True(t, ok)
		require.Equal(t, snap.StateRoot, merkletree.RootFromProof(msg.Leaf(), proof))
	}
}

func TestGetProofNotIncluded(t *testing.T) {
	mem, snap := seededMemory(t, 7)
	service, err := NewService(mem, 0)
	require.NoError(t, err)
	require.Empty(t, service.GetProof(context.Background(), 7, snap.Count))
	_, _, ok := service.GetRelayData(context.Background(), 7, snap.Count)
	require.False(t, ok)
}

func TestSingleLeafHasEmptyProof(t *testing.T) {
	mem, snap := seededMemory(t, 1)
	service, err := NewService(mem, 0)
	require.NoError(t, err)
	msg, proof, ok := service.GetRelayData(context.Background(), 0, snap.Count)
	require.True(t, ok)
	require.Empty(t, proof)
	require.Equal(t, snap.StateRoot, msg.Leaf())
}

func TestGetProofFailsSoftOnMissingNode(t *testing.T) {
	idx := &mocks.MockIndex{}
	idx.On("NodeHash", mock.Anything, merkletree.SingleKey(3)).Return(common.HexToHash("0x03"), nil)
	idx.On("NodeHash", mock.Anything, merkletree.RangeKey(0, 1)).Return(common.Hash{}, protocol.ErrNotFound)
	idx.On("NodeHash", mock.Anything, merkletree.RangeKey(4, 6)).Return(common.HexToHash("0x46"), nil)

	service, err := NewService(idx, 16)
	require.NoError(t, err)
	require.Empty(t, service.GetProof(context.Background(), 2, 7))
}

func TestGetMessagePayloadFailsSoft(t *testing.T) {
	idx := &mocks.MockIndex{}
	idx.On("MessagePayload", mock.Anything, uint64(4)).Return(nil, errors.New("connection refused"))
	service, err := NewService(idx, 16)
	require.NoError(t, err)
	require.Nil(t, service.GetMessagePayload(context.Background(), 4))
	idx.AssertExpectations(t)
}

func TestNodeHashesAreCached(t *testing.T) {
	idx := &mocks.MockIndex{}
	for _, key := range merkletree.ProofIndices(2, 7) {
		idx.On("NodeHash", mock.Anything, key).Return(common.BytesToHash([]byte(key.String())), nil).Once()
	}
	service, err := NewService(idx, 16)
	require.NoError(t, err)

	first := service.GetProof(context.Background(), 2, 7)
	second := service.GetProof(context.Background(), 2, 7)
	require.Len(t, first, 3)
	require.Equal(t, first, second)
	idx.AssertNumberOfCalls(t, "NodeHash", 3)
}
