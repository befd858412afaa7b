// Copyright 2024, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/epoch-bridge/blob/master/LICENSE

// Package protocol defines the types and interfaces the watcher uses to talk
// to the bridge contracts on both chains and to the external index, without
// tying callers to a particular backend.
package protocol

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/offchainlabs/epoch-bridge/util/merkletree"
)

// OutboxTiming holds the outbox's immutable protocol parameters, in seconds
// except where noted.
type OutboxTiming struct {
	EpochPeriod         uint64
	SequencerDelayLimit uint64
	MinChallengePeriod  uint64
	// Minimum number of blocks that must pass between startVerification and
	// verifySnapshot. Zero on routes without a censorship test.
	MinVerificationBlocks uint64
}

// OutboxReader makes non-mutating calls against the destination chain.
type OutboxReader interface {
	StateRoot(ctx context.Context) (common.Hash, error)
	LatestVerifiedEpoch(ctx context.Context) (uint64, error)
	ClaimHash(ctx context.Context, epoch uint64) (common.Hash, error)
	HashClaim(ctx context.Context, claim Claim) (common.Hash, error)
	IsMsgRelayed(ctx context.Context, nonce uint64) (bool, error)
	Deposit(ctx context.Context) (*big.Int, error)
	Timing(ctx context.Context) (OutboxTiming, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// Outbox is the destination-chain contract that holds claims and relays
// messages. Mutating methods block until the transaction is mined and return
// an error describing the revert if it failed.
type Outbox interface {
	OutboxReader
	Address() common.Address
	Claim(ctx context.Context, epoch uint64, stateRoot common.Hash, deposit *big.Int) (*types.Receipt, error)
	Challenge(ctx context.Context, epoch uint64, claim Claim, deposit *big.Int) (*types.Receipt, error)
	StartVerification(ctx context.Context, epoch uint64, claim Claim) (*types.Receipt, error)
	VerifySnapshot(ctx context.Context, epoch uint64, claim Claim) (*types.Receipt, error)
	WithdrawClaimDeposit(ctx context.Context, epoch uint64, claim Claim) (*types.Receipt, error)
	WithdrawChallengeDeposit(ctx context.Context, epoch uint64, claim Claim) (*types.Receipt, error)
	// SendMessageCall packs a relay without sending it, for batching.
	SendMessageCall(proof []common.Hash, nonce uint64, to common.Address, data []byte) (Call, error)
}

// Inbox is the source-chain contract messages are emitted from.
type Inbox interface {
	Address() common.Address
	EpochPeriod(ctx context.Context) (uint64, error)
	Count(ctx context.Context) (uint64, error)
	Snapshot(ctx context.Context, epoch uint64) (common.Hash, error)
	SaveSnapshot(ctx context.Context) (*types.Receipt, error)
	// SendSnapshot starts the slow cross-chain resolution of a disputed claim.
	SendSnapshot(ctx context.Context, epoch uint64, claim Claim) (*types.Receipt, error)
}

// Batcher wraps many calls into a single transaction.
type Batcher interface {
	BatchSend(ctx context.Context, calls []Call) (*types.Receipt, error)
}

// Index is the read-only query surface of the external indexer. Lookups of
// things the indexer has not seen yet return ErrNotFound.
type Index interface {
	MessagePayload(ctx context.Context, nonce uint64) (*Message, error)
	NodeHash(ctx context.Context, key merkletree.NodeKey) (common.Hash, error)
	SnapshotCount(ctx context.Context, stateRoot common.Hash) (uint64, error)
	Claims(ctx context.Context, fromEpoch, toEpoch uint64) ([]ClaimRecord, error)
}

// Call is a pending contract call waiting to be batched.
type Call struct {
	To    common.Address
	Value *big.Int
	Data  []byte
}
