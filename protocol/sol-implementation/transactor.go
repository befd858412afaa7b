// Copyright 2024, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/epoch-bridge/blob/master/LICENSE

// Package solimpl implements the protocol interfaces on top of the bridge
// contracts' ABI and a go-ethereum backend.
package solimpl

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/pkg/errors"
)

var ErrReadOnly = errors.New("no transaction signer configured")

// ChainBackend is the subset of an ethclient.Client the contracts need.
type ChainBackend interface {
	bind.ContractBackend
	bind.DeployBackend
	BlockNumber(ctx context.Context) (uint64, error)
	TransactionSender(ctx context.Context, tx *types.Transaction, block common.Hash, index uint) (common.Address, error)
}

// contractHandle bundles a bound contract with the backend and signer used to
// talk to it.
type contractHandle struct {
	address  common.Address
	abi      *abi.ABI
	contract *bind.BoundContract
	backend  ChainBackend
	txOpts   *bind.TransactOpts
}

func newContractHandle(address common.Address, meta *bind.MetaData, backend ChainBackend, txOpts *bind.TransactOpts) (*contractHandle, error) {
	parsed, err := meta.GetAbi()
	if err != nil {
		return nil, err
	}
	return &contractHandle{
		address:  address,
		abi:      parsed,
		contract: bind.NewBoundContract(address, *parsed, backend, backend, backend),
		backend:  backend,
		txOpts:   txOpts,
	}, nil
}

func (h *contractHandle) call(ctx context.Context, method string, params ...interface{}) ([]interface{}, error) {
	var out []interface{}
	if err := h.contract.Call(&bind.CallOpts{Context: ctx}, &out, method, params...); err != nil {
		return nil, errors.Wrapf(err, "calling %s on %v", method, h.address)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no return values from %s", method)
	}
	return out, nil
}

func (h *contractHandle) callHash(ctx context.Context, method string, params ...interface{}) (common.Hash, error) {
	out, err := h.call(ctx, method, params...)
	if err != nil {
		return common.Hash{}, err
	}
	return common.Hash(*abi.ConvertType(out[0], new([32]byte)).(*[32]byte)), nil
}

func (h *contractHandle) callUint(ctx context.Context, method string, params ...interface{}) (*big.Int, error) {
	out, err := h.call(ctx, method, params...)
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

func (h *contractHandle) callUint64(ctx context.Context, method string, params ...interface{}) (uint64, error) {
	val, err := h.callUint(ctx, method, params...)
	if err != nil {
		return 0, err
	}
	if !val.IsUint64() {
		return 0, fmt.Errorf("%s returned %v which does not fit in uint64", method, val)
	}
	return val.Uint64(), nil
}

// transact sends a transaction, waits for it to be mined and turns a failed
// receipt into an error carrying the revert reason.
func (h *contractHandle) transact(ctx context.Context, value *big.Int, method string, params ...interface{}) (*types.Receipt, error) {
	if h.txOpts == nil {
		return nil, errors.Wrap(ErrReadOnly, method)
	}
	opts := copyTxOpts(h.txOpts)
	opts.Context = ctx
	opts.Value = value
	tx, err := h.contract.Transact(opts, method, params...)
	if err != nil {
		return nil, errors.Wrapf(err, "sending %s", method)
	}
	receipt, err := bind.WaitMined(ctx, h.backend, tx)
	if err != nil {
		return nil, errors.Wrapf(err, "waiting for %s tx %v", method, tx.Hash())
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, errors.Wrapf(detailTxError(ctx, h.backend, tx, receipt), "%s reverted", method)
	}
	return receipt, nil
}

// detailTxError re-executes a failed transaction as a call at its block to
// recover the revert reason.
func detailTxError(ctx context.Context, backend ChainBackend, tx *types.Transaction, receipt *types.Receipt) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	from, err := backend.TransactionSender(ctx, tx, receipt.BlockHash, receipt.TransactionIndex)
	if err != nil {
		return fmt.Errorf("TransactionSender got: %w for tx %v", err, tx.Hash())
	}
	msg := ethereum.CallMsg{
		From:       from,
		To:         tx.To(),
		Gas:        tx.Gas(),
		GasFeeCap:  tx.GasFeeCap(),
		GasTipCap:  tx.GasTipCap(),
		Value:      tx.Value(),
		Data:       tx.Data(),
		AccessList: tx.AccessList(),
	}
	if _, err = backend.CallContract(ctx, msg, receipt.BlockNumber); err == nil {
		return fmt.Errorf("tx failed but call succeeded for tx hash %v", tx.Hash())
	}
	msg.Gas = 0
	if _, err = backend.CallContract(ctx, msg, receipt.BlockNumber); err == nil {
		return fmt.Errorf("%w for tx hash %v", vm.ErrOutOfGas, tx.Hash())
	}
	return fmt.Errorf("call got: %w for tx hash %v", err, tx.Hash())
}

func copyTxOpts(opts *bind.TransactOpts) *bind.TransactOpts {
	return &bind.TransactOpts{
		From:      opts.From,
		Nonce:     opts.Nonce,
		Signer:    opts.Signer,
		GasPrice:  opts.GasPrice,
		GasFeeCap: opts.GasFeeCap,
		GasTipCap: opts.GasTipCap,
		GasLimit:  opts.GasLimit,
		NoSend:    opts.NoSend,
	}
}

func epochArg(epoch uint64) *big.Int {
	return new(big.Int).SetUint64(epoch)
}
