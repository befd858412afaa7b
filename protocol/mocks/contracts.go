// Copyright 2024, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/epoch-bridge/blob/master/LICENSE

// Package mocks has in-memory stand-ins for the bridge contracts that enforce
// the same claim rules as the outbox and record every write.
package mocks

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/offchainlabs/epoch-bridge/protocol"
	"github.com/offchainlabs/epoch-bridge/util/merkletree"
)

// Write is one recorded state-changing call.
type Write struct {
	Method string
	Epoch  uint64
	Claim  protocol.Claim
	Value  *big.Int
}

func revert(reason string) error {
	return fmt.Errorf("execution reverted: %s", reason)
}

func receipt() *types.Receipt {
	return &types.Receipt{Status: types.ReceiptStatusSuccessful}
}

// Outbox simulates the destination-chain outbox.
type Outbox struct {
	mu sync.Mutex

	Addr          common.Address
	Sender        common.Address
	Root          common.Hash
	VerifiedEpoch uint64
	DepositAmount *big.Int
	TimingParams  protocol.OutboxTiming
	Block         uint64
	Now           func() time.Time
	// Errors injected per method name, returned instead of executing.
	Fail map[string]error

	claims  map[uint64]protocol.Claim
	relayed map[uint64]bool
	writes  []Write
}

var _ protocol.Outbox = (*Outbox)(nil)

func NewOutbox(addr, sender common.Address, deposit *big.Int, timing protocol.OutboxTiming) *Outbox {
	return &Outbox{
		Addr:          addr,
		Sender:        sender,
		DepositAmount: deposit,
		TimingParams:  timing,
		Now:           time.Now,
		Fail:          make(map[string]error),
		claims:        make(map[uint64]protocol.Claim),
		relayed:       make(map[uint64]bool),
	}
}

func (o *Outbox) Address() common.Address { return o.Addr }

func (o *Outbox) StateRoot(context.Context) (common.Hash, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.Root, o.Fail["stateRoot"]
}

func (o *Outbox) LatestVerifiedEpoch(context.Context) (uint64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.VerifiedEpoch, nil
}

func (o *Outbox) ClaimHash(_ context.Context, epoch uint64) (common.Hash, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	c, ok := o.claims[epoch]
	if !ok {
		return common.Hash{}, nil
	}
	return protocol.HashClaim(c), nil
}

func (o *Outbox) HashClaim(_ context.Context, claim protocol.Claim) (common.Hash, error) {
	return protocol.HashClaim(claim), nil
}

func (o *Outbox) IsMsgRelayed(_ context.Context, nonce uint64) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.Fail["isMsgRelayed"]; err != nil {
		return false, err
	}
	return o.relayed[nonce], nil
}

func (o *Outbox) Deposit(context.Context) (*big.Int, error) {
	return new(big.Int).Set(o.DepositAmount), nil
}

func (o *Outbox) Timing(context.Context) (protocol.OutboxTiming, error) {
	return o.TimingParams, nil
}

func (o *Outbox) BlockNumber(context.Context) (uint64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.Block, nil
}

// StoredClaim returns the full claim behind the epoch's stored hash.
func (o *Outbox) StoredClaim(epoch uint64) (protocol.Claim, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	c, ok := o.claims[epoch]
	return c, ok
}

// SetClaim installs a claim directly, as if another bridger had made it.
func (o *Outbox) SetClaim(epoch uint64, claim protocol.Claim) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.claims[epoch] = claim
}

// Resolve marks the epoch's claim as decided in favour of party, as the
// dispute path would.
func (o *Outbox) Resolve(epoch uint64, party protocol.Party) {
	o.mu.Lock()
	defer o.mu.Unlock()
	c := o.claims[epoch]
	c.Honest = party
	o.claims[epoch] = c
	if party == protocol.PartyChallenger {
		return
	}
	if epoch >= o.VerifiedEpoch {
		o.VerifiedEpoch = epoch
		o.Root = c.StateRoot
	}
}

// MarkRelayed records nonce as delivered.
func (o *Outbox) MarkRelayed(nonce uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.relayed[nonce] = true
}

// Writes returns a copy of all recorded writes.
func (o *Outbox) Writes() []Write {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Write(nil), o.writes...)
}

// WritesOf returns the recorded writes of one method.
func (o *Outbox) WritesOf(method string) []Write {
	var out []Write
	for _, w := range o.Writes() {
		if w.Method == method {
			out = append(out, w)
		}
	}
	return out
}

func (o *Outbox) now() uint32 {
	return uint32(o.Now().Unix())
}

// checked runs fn against the stored claim after the checks every claim-taking
// entrypoint does. Must hold o.mu.
func (o *Outbox) checked(method string, epoch uint64, claim protocol.Claim, value *big.Int, fn func(*protocol.Claim) error) (*types.Receipt, error) {
	if err := o.Fail[method]; err != nil {
		return nil, err
	}
	stored, ok := o.claims[epoch]
	if !ok || protocol.HashClaim(stored) != protocol.HashClaim(claim) {
		return nil, revert("Invalid claim.")
	}
	if err := fn(&stored); err != nil {
		return nil, err
	}
	o.claims[epoch] = stored
	o.writes = append(o.writes, Write{Method: method, Epoch: epoch, Claim: claim, Value: value})
	return receipt(), nil
}

func (o *Outbox) Claim(_ context.Context, epoch uint64, stateRoot common.Hash, deposit *big.Int) (*types.Receipt, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.Fail["claim"]; err != nil {
		return nil, err
	}
	if _, ok := o.claims[epoch]; ok {
		return nil, revert("Claim already made.")
	}
	if stateRoot == (common.Hash{}) {
		return nil, revert("Invalid claim.")
	}
	if deposit == nil || deposit.Cmp(o.DepositAmount) != 0 {
		return nil, revert("Insufficient claim deposit.")
	}
	claim := protocol.Claim{StateRoot: stateRoot, Claimer: o.Sender, TimestampClaimed: o.now()}
	o.claims[epoch] = claim
	o.writes = append(o.writes, Write{Method: "claim", Epoch: epoch, Claim: claim, Value: deposit})
	return receipt(), nil
}

func (o *Outbox) Challenge(_ context.Context, epoch uint64, claim protocol.Claim, deposit *big.Int) (*types.Receipt, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.checked("challenge", epoch, claim, deposit, func(c *protocol.Claim) error {
		if c.IsChallenged() {
			return revert("Claim already challenged.")
		}
		if c.Honest.IsTerminal() {
			return revert("Challenge period passed.")
		}
		if deposit == nil || deposit.Cmp(o.DepositAmount) != 0 {
			return revert("Insufficient challenge deposit.")
		}
		c.Challenger = o.Sender
		return nil
	})
}

func (o *Outbox) StartVerification(_ context.Context, epoch uint64, claim protocol.Claim) (*types.Receipt, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.checked("startVerification", epoch, claim, nil, func(c *protocol.Claim) error {
		if c.VerificationStarted() {
			return revert("Verification already started.")
		}
		if uint64(o.now()) < uint64(c.TimestampClaimed)+o.TimingParams.SequencerDelayLimit {
			return revert("Sequencer delay not passed.")
		}
		c.TimestampVerification = o.now()
		c.BlockNumberVerification = uint32(o.Block)
		return nil
	})
}

func (o *Outbox) VerifySnapshot(_ context.Context, epoch uint64, claim protocol.Claim) (*types.Receipt, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.checked("verifySnapshot", epoch, claim, nil, func(c *protocol.Claim) error {
		if !c.VerificationStarted() || uint64(o.now()) < uint64(c.TimestampVerification)+o.TimingParams.MinChallengePeriod {
			return revert("Challenge period has not passed.")
		}
		if o.Block < uint64(c.BlockNumberVerification)+o.TimingParams.MinVerificationBlocks {
			return revert("Challenge period has not passed.")
		}
		if c.IsChallenged() {
			return revert("Claim is challenged.")
		}
		c.Honest = protocol.PartyClaimer
		if epoch > o.VerifiedEpoch {
			o.VerifiedEpoch = epoch
			o.Root = c.StateRoot
		}
		return nil
	})
}

func (o *Outbox) withdraw(method string, epoch uint64, claim protocol.Claim, party protocol.Party) (*types.Receipt, error) {
	r, err := o.checked(method, epoch, claim, nil, func(c *protocol.Claim) error {
		if c.Honest != party {
			return revert("Claim not resolved.")
		}
		return nil
	})
	if err == nil {
		delete(o.claims, epoch)
	}
	return r, err
}

func (o *Outbox) WithdrawClaimDeposit(_ context.Context, epoch uint64, claim protocol.Claim) (*types.Receipt, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.withdraw("withdrawClaimDeposit", epoch, claim, protocol.PartyClaimer)
}

func (o *Outbox) WithdrawChallengeDeposit(_ context.Context, epoch uint64, claim protocol.Claim) (*types.Receipt, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.withdraw("withdrawChallengeDeposit", epoch, claim, protocol.PartyChallenger)
}

// SendMessageCall rejects proofs that do not fold to Root, as sendMessage
// would revert on them. The call encodes nonce || to || message, which is
// also the leaf preimage; Batcher decodes the nonce from it.
func (o *Outbox) SendMessageCall(proof []common.Hash, nonce uint64, to common.Address, message []byte) (protocol.Call, error) {
	calldata := binary.BigEndian.AppendUint64(nil, nonce)
	calldata = append(calldata, to.Bytes()...)
	calldata = append(calldata, message...)
	o.mu.Lock()
	root := o.Root
	o.mu.Unlock()
	if merkletree.RootFromProof(merkletree.LeafHash(calldata), proof) != root {
		return protocol.Call{}, fmt.Errorf("invalid proof for nonce %d", nonce)
	}
	return protocol.Call{To: o.Addr, Value: common.Big0, Data: calldata}, nil
}

// Batcher records batches and applies relays to Outbox.
type Batcher struct {
	mu      sync.Mutex
	Outbox  *Outbox
	Fail    error
	batches [][]protocol.Call
}

var _ protocol.Batcher = (*Batcher)(nil)

func NewBatcher(outbox *Outbox) *Batcher {
	return &Batcher{Outbox: outbox}
}

func (b *Batcher) BatchSend(_ context.Context, calls []protocol.Call) (*types.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Fail != nil {
		return nil, b.Fail
	}
	b.batches = append(b.batches, append([]protocol.Call(nil), calls...))
	if b.Outbox != nil {
		for _, c := range calls {
			if c.To == b.Outbox.Addr && len(c.Data) >= 8 {
				b.Outbox.MarkRelayed(binary.BigEndian.Uint64(c.Data[:8]))
			}
		}
	}
	return receipt(), nil
}

// Batches returns a copy of all submitted batches.
func (b *Batcher) Batches() [][]protocol.Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]protocol.Call(nil), b.batches...)
}

// RelayedNonces decodes the nonces of a submitted batch.
func RelayedNonces(batch []protocol.Call) []uint64 {
	nonces := make([]uint64, 0, len(batch))
	for _, c := range batch {
		nonces = append(nonces, binary.BigEndian.Uint64(c.Data[:8]))
	}
	return nonces
}

// Inbox simulates the source-chain inbox.
type Inbox struct {
	mu        sync.Mutex
	Addr      common.Address
	Period    uint64
	Messages  uint64
	Snapshots map[uint64]common.Hash
	// OnSave computes the root saved for the current epoch.
	OnSave       func() (uint64, common.Hash)
	SentSnapshot []Write
	Saves        int
}

var _ protocol.Inbox = (*Inbox)(nil)

func NewInbox(addr common.Address, period uint64) *Inbox {
	return &Inbox{Addr: addr, Period: period, Snapshots: make(map[uint64]common.Hash)}
}

func (i *Inbox) Address() common.Address { return i.Addr }

func (i *Inbox) EpochPeriod(context.Context) (uint64, error) { return i.Period, nil }

func (i *Inbox) Count(context.Context) (uint64, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.Messages, nil
}

func (i *Inbox) Snapshot(_ context.Context, epoch uint64) (common.Hash, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.Snapshots[epoch], nil
}

func (i *Inbox) SaveSnapshot(context.Context) (*types.Receipt, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.Saves++
	if i.OnSave != nil {
		epoch, root := i.OnSave()
		i.Snapshots[epoch] = root
	}
	return receipt(), nil
}

func (i *Inbox) SendSnapshot(_ context.Context, epoch uint64, claim protocol.Claim) (*types.Receipt, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.SentSnapshot = append(i.SentSnapshot, Write{Method: "sendSnapshot", Epoch: epoch, Claim: claim})
	return receipt(), nil
}
