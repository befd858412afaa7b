// Copyright 2024, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/epoch-bridge/blob/master/LICENSE

package solimpl

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"

	"github.com/offchainlabs/epoch-bridge/protocol"
	"github.com/offchainlabs/epoch-bridge/solgen/go/epochbridgegen"
)

// Outbox is a wrapper around the destination-chain outbox contract that
// implements protocol.Outbox.
type Outbox struct {
	*contractHandle
	minVerificationBlocks uint64

	timingMu sync.Mutex
	timing   *protocol.OutboxTiming
}

var _ protocol.Outbox = (*Outbox)(nil)

// NewOutbox binds the outbox at address. A nil txOpts gives a read-only
// instance whose mutating methods fail with ErrReadOnly.
func NewOutbox(address common.Address, backend ChainBackend, txOpts *bind.TransactOpts, minVerificationBlocks uint64) (*Outbox, error) {
	handle, err := newContractHandle(address, epochbridgegen.OutboxMetaData, backend, txOpts)
	if err != nil {
		return nil, err
	}
	return &Outbox{contractHandle: handle, minVerificationBlocks: minVerificationBlocks}, nil
}

func (o *Outbox) Address() common.Address {
	return o.address
}

func (o *Outbox) StateRoot(ctx context.Context) (common.Hash, error) {
	return o.callHash(ctx, "stateRoot")
}

func (o *Outbox) LatestVerifiedEpoch(ctx context.Context) (uint64, error) {
	return o.callUint64(ctx, "latestVerifiedEpoch")
}

func (o *Outbox) ClaimHash(ctx context.Context, epoch uint64) (common.Hash, error) {
	return o.callHash(ctx, "claimHashes", epochArg(epoch))
}

func (o *Outbox) HashClaim(ctx context.Context, claim protocol.Claim) (common.Hash, error) {
	return o.callHash(ctx, "hashClaim", toBinding(claim))
}

func (o *Outbox) IsMsgRelayed(ctx context.Context, nonce uint64) (bool, error) {
	out, err := o.call(ctx, "isMsgRelayed", new(big.Int).SetUint64(nonce))
	if err != nil {
		return false, err
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

func (o *Outbox) Deposit(ctx context.Context) (*big.Int, error) {
	return o.callUint(ctx, "deposit")
}

// Timing reads the outbox's immutable parameters once and caches them.
func (o *Outbox) Timing(ctx context.Context) (protocol.OutboxTiming, error) {
	o.timingMu.Lock()
	defer o.timingMu.Unlock()
	if o.timing != nil {
		return *o.timing, nil
	}
	period, err := o.callUint64(ctx, "epochPeriod")
	if err != nil {
		return protocol.OutboxTiming{}, err
	}
	delay, err := o.callUint64(ctx, "sequencerDelayLimit")
	if err != nil {
		return protocol.OutboxTiming{}, err
	}
	challengePeriod, err := o.callUint64(ctx, "minChallengePeriod")
	if err != nil {
		return protocol.OutboxTiming{}, err
	}
	o.timing = &protocol.OutboxTiming{
		EpochPeriod:           period,
		SequencerDelayLimit:   delay,
		MinChallengePeriod:    challengePeriod,
		MinVerificationBlocks: o.minVerificationBlocks,
	}
	return *o.timing, nil
}

func (o *Outbox) BlockNumber(ctx context.Context) (uint64, error) {
	return o.backend.BlockNumber(ctx)
}

func (o *Outbox) Claim(ctx context.Context, epoch uint64, stateRoot common.Hash, deposit *big.Int) (*types.Receipt, error) {
	if stateRoot == (common.Hash{}) {
		return nil, errors.Errorf("refusing to claim zero state root for epoch %d", epoch)
	}
	return o.transact(ctx, deposit, "claim", epochArg(epoch), [32]byte(stateRoot))
}

func (o *Outbox) Challenge(ctx context.Context, epoch uint64, claim protocol.Claim, deposit *big.Int) (*types.Receipt, error) {
	return o.transact(ctx, deposit, "challenge", epochArg(epoch), toBinding(claim))
}

func (o *Outbox) StartVerification(ctx context.Context, epoch uint64, claim protocol.Claim) (*types.Receipt, error) {
	return o.transact(ctx, nil, "startVerification", epochArg(epoch), toBinding(claim))
}

func (o *Outbox) VerifySnapshot(ctx context.Context, epoch uint64, claim protocol.Claim) (*types.Receipt, error) {
	return o.transact(ctx, nil, "verifySnapshot", epochArg(epoch), toBinding(claim))
}

func (o *Outbox) WithdrawClaimDeposit(ctx context.Context, epoch uint64, claim protocol.Claim) (*types.Receipt, error) {
	return o.transact(ctx, nil, "withdrawClaimDeposit", epochArg(epoch), toBinding(claim))
}

func (o *Outbox) WithdrawChallengeDeposit(ctx context.Context, epoch uint64, claim protocol.Claim) (*types.Receipt, error) {
	return o.transact(ctx, nil, "withdrawChallengeDeposit", epochArg(epoch), toBinding(claim))
}

// SendMessageCall packs a sendMessage call for the batcher.
func (o *Outbox) SendMessageCall(proof []common.Hash, nonce uint64, to common.Address, data []byte) (protocol.Call, error) {
	proofArg := make([][32]byte, len(proof))
	for i, h := range proof {
		proofArg[i] = h
	}
	calldata, err := o.abi.Pack("sendMessage", proofArg, nonce, to, data)
	if err != nil {
		return protocol.Call{}, errors.Wrapf(err, "packing sendMessage for nonce %d", nonce)
	}
	return protocol.Call{To: o.address, Value: common.Big0, Data: calldata}, nil
}

func toBinding(c protocol.Claim) epochbridgegen.Claim {
	return epochbridgegen.Claim{
		StateRoot:               c.StateRoot,
		Claimer:                 c.Claimer,
		TimestampClaimed:        c.TimestampClaimed,
		TimestampVerification:   c.TimestampVerification,
		BlocknumberVerification: c.BlockNumberVerification,
		Honest:                  uint8(c.Honest),
		Challenger:              c.Challenger,
	}
}
