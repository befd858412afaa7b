// Copyright 2024, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/epoch-bridge/blob/master/LICENSE

package solimpl

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"

	"github.com/offchainlabs/epoch-bridge/protocol"
	"github.com/offchainlabs/epoch-bridge/solgen/go/epochbridgegen"
)

// Batcher sends many calls as one transaction through the transaction
// batcher contract.
type Batcher struct {
	*contractHandle
}

var _ protocol.Batcher = (*Batcher)(nil)

func NewBatcher(address common.Address, backend ChainBackend, txOpts *bind.TransactOpts) (*Batcher, error) {
	handle, err := newContractHandle(address, epochbridgegen.TransactionBatcherMetaData, backend, txOpts)
	if err != nil {
		return nil, err
	}
	return &Batcher{contractHandle: handle}, nil
}

func (b *Batcher) BatchSend(ctx context.Context, calls []protocol.Call) (*types.Receipt, error) {
	if len(calls) == 0 {
		return nil, errors.New("empty batch")
	}
	targets := make([]common.Address, len(calls))
	values := make([]*big.Int, len(calls))
	datas := make([][]byte, len(calls))
	total := new(big.Int)
	for i, c := range calls {
		targets[i] = c.To
		values[i] = c.Value
		if values[i] == nil {
			values[i] = common.Big0
		}
		datas[i] = c.Data
		total.Add(total, values[i])
	}
	return b.transact(ctx, total, "batchSend", targets, values, datas)
}
