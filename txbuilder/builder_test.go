// Copyright 2024, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/epoch-bridge/blob/master/LICENSE

package txbuilder

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/offchainlabs/epoch-bridge/protocol"
	"github.com/offchainlabs/epoch-bridge/protocol/mocks"
)

func call(n byte) protocol.Call {
	return protocol.Call{To: common.HexToAddress("0x1"), Value: common.Big0, Data: []byte{0, 0, 0, 0, 0, 0, 0, n}}
}

func TestBuilderCapsBatch(t *testing.T) {
	batcher := mocks.NewBatcher(nil)
	b, err := NewBuilder(batcher, 2)
	require.NoError(t, err)

	require.NoError(t, b.AddCall(call(1)))
	require.NoError(t, b.AddCall(call(2)))
	require.True(t, b.Full())
	require.ErrorIs(t, b.AddCall(call(3)), ErrBatchFull)

	_, err = b.Flush(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, b.BuildingCallCount())
	require.Len(t, batcher.Batches(), 1)
	require.Equal(t, []uint64{1, 2}, mocks.RelayedNonces(batcher.Batches()[0]))
}

func TestFlushEmptyIsNoop(t *testing.T) {
	batcher := mocks.NewBatcher(nil)
	b, err := NewBuilder(batcher, 5)
	require.NoError(t, err)
	receipt, err := b.Flush(context.Background())
	require.NoError(t, err)
	require.Nil(t, receipt)
	require.Empty(t, batcher.Batches())
}

func TestFlushIgnoresCancellation(t *testing.T) {
	batcher := mocks.NewBatcher(nil)
	b, err := NewBuilder(batcher, 5)
	require.NoError(t, err)
	require.NoError(t, b.AddCall(call(1)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = b.Flush(ctx)
	require.NoError(t, err)
	require.Len(t, batcher.Batches(), 1)
}

func TestFlushFailureClearsCalls(t *testing.T) {
	batcher := mocks.NewBatcher(nil)
	batcher.Fail = errors.New("nonce too low")
	b, err := NewBuilder(batcher, 5)
	require.NoError(t, err)
	require.NoError(t, b.AddCall(call(1)))
	_, err = b.Flush(context.Background())
	require.ErrorContains(t, err, "nonce too low")
	require.Equal(t, 0, b.BuildingCallCount())

	_, err = NewBuilder(batcher, 0)
	require.Error(t, err)
}
