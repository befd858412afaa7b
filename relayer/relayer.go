// Copyright 2024, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/epoch-bridge/blob/master/LICENSE

// Package relayer delivers messages covered by the verified state root to the
// destination chain in batches.
package relayer

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	flag "github.com/spf13/pflag"

	"github.com/offchainlabs/epoch-bridge/proofs"
	"github.com/offchainlabs/epoch-bridge/protocol"
	"github.com/offchainlabs/epoch-bridge/txbuilder"
)

var (
	relayedCounter = metrics.NewRegisteredCounter("relayer/messages/relayed", nil)
	skippedCounter = metrics.NewRegisteredCounter("relayer/messages/skipped", nil)
)

type Config struct {
	Enable       bool `koanf:"enable"`
	MaxBatchSize int  `koanf:"max-batch-size"`
}

var DefaultConfig = Config{
	Enable:       true,
	MaxBatchSize: 10,
}

func ConfigAddOptions(prefix string, f *flag.FlagSet) {
	f.Bool(prefix+".enable", DefaultConfig.Enable, "relay verified messages to the destination chain")
	f.Int(prefix+".max-batch-size", DefaultConfig.MaxBatchSize, "maximum number of messages relayed in one batched transaction")
}

func (c *Config) Validate() error {
	if c.MaxBatchSize <= 0 {
		return fmt.Errorf("relay max-batch-size must be positive, got %d", c.MaxBatchSize)
	}
	return nil
}

// Relayer finds messages under the outbox's verified root that have not been
// relayed yet and sends them through the batcher.
type Relayer struct {
	outbox  protocol.Outbox
	index   protocol.Index
	proofs  *proofs.Service
	batcher protocol.Batcher
}

func NewRelayer(outbox protocol.Outbox, index protocol.Index, proofService *proofs.Service, batcher protocol.Batcher) *Relayer {
	return &Relayer{
		outbox:  outbox,
		index:   index,
		proofs:  proofService,
		batcher: batcher,
	}
}

// RelayableCount is the number of messages committed under the outbox's
// current state root, the upper bound on nonces that can be relayed.
func (r *Relayer) RelayableCount(ctx context.Context) (uint64, error) {
	root, err := r.outbox.StateRoot(ctx)
	if err != nil {
		return 0, err
	}
	if root == (common.Hash{}) {
		return 0, nil
	}
	count, err := r.index.SnapshotCount(ctx, root)
	if errors.Is(err, protocol.ErrNotFound) {
		log.Info("Verified state root not indexed yet", "stateRoot", root)
		return 0, nil
	}
	return count, err
}

// RelayBatch relays every unrelayed message from nonce up to the relayable
// count, at most maxBatchSize nonces per transaction. It returns the nonce it
// advanced to, which is safe to persist: every nonce below it has been
// relayed by this call or was already relayed. A message whose proof is not
// available yet stops the pass without error.
func (r *Relayer) RelayBatch(ctx context.Context, nonce uint64, maxBatchSize int) (uint64, error) {
	count, err := r.RelayableCount(ctx)
	if err != nil {
		return nonce, err
	}
	if count == 0 || nonce >= count {
		return nonce, nil
	}
	builder, err := txbuilder.NewBuilder(r.batcher, maxBatchSize)
	if err != nil {
		return nonce, err
	}
	log.Debug("Relaying messages", "from", nonce, "count", count)

	for nonce < count {
		if err := ctx.Err(); err != nil {
			return nonce, err
		}
		batchStart := nonce
		var stop error
		stopped := false
		for i := 0; i < maxBatchSize && nonce < count; i++ {
			relayed, err := r.outbox.IsMsgRelayed(ctx, nonce)
			if err != nil {
				stop, stopped = fmt.Errorf("checking relay status of nonce %d: %w", nonce, err), true
				break
			}
			if relayed {
				skippedCounter.Inc(1)
				nonce++
				continue
			}
			msg, proof, ok := r.proofs.GetRelayData(ctx, nonce, count)
			if !ok {
				log.Info("Message not ready to relay", "nonce", nonce, "count", count)
				stopped = true
				break
			}
			call, err := r.outbox.SendMessageCall(proof, nonce, msg.To, msg.Payload())
			if err != nil {
				stop, stopped = err, true
				break
			}
			if err := builder.AddCall(call); err != nil {
				return batchStart, err
			}
			nonce++
		}
		sent := builder.BuildingCallCount()
		if _, err := builder.Flush(ctx); err != nil {
			return batchStart, err
		}
		relayedCounter.Inc(int64(sent))
		if stopped {
			return nonce, stop
		}
	}
	return nonce, nil
}
