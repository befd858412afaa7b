// Copyright 2024, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/epoch-bridge/blob/master/LICENSE

package solimpl

import (
	"context"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"

	"github.com/offchainlabs/epoch-bridge/protocol"
	"github.com/offchainlabs/epoch-bridge/solgen/go/epochbridgegen"
)

// Inbox is a wrapper around the source-chain inbox contract that implements
// protocol.Inbox.
type Inbox struct {
	*contractHandle
}

var _ protocol.Inbox = (*Inbox)(nil)

func NewInbox(address common.Address, backend ChainBackend, txOpts *bind.TransactOpts) (*Inbox, error) {
	handle, err := newContractHandle(address, epochbridgegen.InboxMetaData, backend, txOpts)
	if err != nil {
		return nil, err
	}
	return &Inbox{contractHandle: handle}, nil
}

func (i *Inbox) Address() common.Address {
	return i.address
}

func (i *Inbox) EpochPeriod(ctx context.Context) (uint64, error) {
	return i.callUint64(ctx, "epochPeriod")
}

func (i *Inbox) Count(ctx context.Context) (uint64, error) {
	out, err := i.call(ctx, "count")
	if err != nil {
		return 0, err
	}
	return *abi.ConvertType(out[0], new(uint64)).(*uint64), nil
}

func (i *Inbox) Snapshot(ctx context.Context, epoch uint64) (common.Hash, error) {
	return i.callHash(ctx, "snapshots", epochArg(epoch))
}

func (i *Inbox) SaveSnapshot(ctx context.Context) (*types.Receipt, error) {
	return i.transact(ctx, nil, "saveSnapshot")
}

func (i *Inbox) SendSnapshot(ctx context.Context, epoch uint64, claim protocol.Claim) (*types.Receipt, error) {
	receipt, err := i.transact(ctx, nil, "sendSnapshot", epochArg(epoch), toBinding(claim))
	if err != nil {
		return receipt, err
	}
	if ticket, ok := i.TicketID(receipt); ok {
		log.Info("Snapshot sent over dispute path", "epoch", epoch, "ticket", ticket)
	}
	return receipt, nil
}

// TicketID extracts the cross-chain ticket from a sendSnapshot receipt.
func (i *Inbox) TicketID(receipt *types.Receipt) (common.Hash, bool) {
	event := i.abi.Events["SnapshotSent"]
	for _, l := range receipt.Logs {
		if l.Address != i.address || len(l.Topics) == 0 || l.Topics[0] != event.ID {
			continue
		}
		out, err := event.Inputs.NonIndexed().Unpack(l.Data)
		if err != nil || len(out) == 0 {
			continue
		}
		return common.Hash(*abi.ConvertType(out[0], new([32]byte)).(*[32]byte)), true
	}
	return common.Hash{}, false
}
