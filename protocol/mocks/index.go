// Copyright 2024, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/epoch-bridge/blob/master/LICENSE

package mocks

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/mock"

	"github.com/offchainlabs/epoch-bridge/protocol"
	"github.com/offchainlabs/epoch-bridge/util/merkletree"
)

type MockIndex struct {
	mock.Mock
}

var _ protocol.Index = (*MockIndex)(nil)

func (m *MockIndex) MessagePayload(ctx context.Context, nonce uint64) (*protocol.Message, error) {
	args := m.Called(ctx, nonce)
	msg, _ := args.Get(0).(*protocol.Message)
	return msg, args.Error(1)
}

func (m *MockIndex) NodeHash(ctx context.Context, key merkletree.NodeKey) (common.Hash, error) {
	args := m.Called(ctx, key)
	h, ok := args.Get(0).(common.Hash)
	if !ok {
		panic("not ok")
	}
	return h, args.Error(1)
}

func (m *MockIndex) SnapshotCount(ctx context.Context, stateRoot common.Hash) (uint64, error) {
	args := m.Called(ctx, stateRoot)
	r, ok := args.Get(0).(uint64)
	if !ok {
		panic("not ok")
	}
	return r, args.Error(1)
}

func (m *MockIndex) Claims(ctx context.Context, fromEpoch, toEpoch uint64) ([]protocol.ClaimRecord, error) {
	args := m.Called(ctx, fromEpoch, toEpoch)
	r, _ := args.Get(0).([]protocol.ClaimRecord)
	return r, args.Error(1)
}
