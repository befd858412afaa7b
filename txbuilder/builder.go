// Copyright 2024, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/epoch-bridge/blob/master/LICENSE

package txbuilder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"

	"github.com/offchainlabs/epoch-bridge/protocol"
)

var ErrBatchFull = errors.New("batch is full")

var (
	batchesSentCounter = metrics.NewRegisteredCounter("txbuilder/batches", nil)
	batchCallsCounter  = metrics.NewRegisteredCounter("txbuilder/calls", nil)
	batchFailCounter   = metrics.NewRegisteredCounter("txbuilder/batches/failed", nil)
)

// Builder combines calls added to it into one batch, which is then sent
// through the transaction batcher. This lets many relays share one
// transaction and its fees.
type Builder struct {
	batcher protocol.Batcher
	calls   []protocol.Call
	maxSize int
}

func NewBuilder(batcher protocol.Batcher, maxSize int) (*Builder, error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("max batch size must be positive, got %d", maxSize)
	}
	return &Builder{
		batcher: batcher,
		maxSize: maxSize,
	}, nil
}

func (b *Builder) BuildingCallCount() int {
	return len(b.calls)
}

func (b *Builder) ClearCalls() {
	b.calls = nil
}

func (b *Builder) Calls() []protocol.Call {
	return b.calls
}

func (b *Builder) Full() bool {
	return len(b.calls) >= b.maxSize
}

func (b *Builder) AddCall(call protocol.Call) error {
	if b.Full() {
		return ErrBatchFull
	}
	b.calls = append(b.calls, call)
	return nil
}

// Flush sends the pending calls as one batch and clears them whatever the
// outcome. Once started the submission is not abandoned when ctx is
// cancelled, so a batch is never left half-sent on shutdown.
func (b *Builder) Flush(ctx context.Context) (*types.Receipt, error) {
	if len(b.calls) == 0 {
		return nil, nil
	}
	calls := b.calls
	b.ClearCalls()
	start := time.Now()
	receipt, err := b.batcher.BatchSend(context.WithoutCancel(ctx), calls)
	if err != nil {
		batchFailCounter.Inc(1)
		return nil, fmt.Errorf("sending batch of %d calls: %w", len(calls), err)
	}
	batchesSentCounter.Inc(1)
	batchCallsCounter.Inc(int64(len(calls)))
	log.Info("Sent call batch", "calls", len(calls), "tx", receipt.TxHash, "gasUsed", receipt.GasUsed, "elapsed", time.Since(start))
	return receipt, nil
}
