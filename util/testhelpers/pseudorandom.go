// Copyright 2024, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/epoch-bridge/blob/master/LICENSE

package testhelpers

import (
	"encoding/binary"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// PseudoRandomDataSource repeats across runs for the same salt.
type PseudoRandomDataSource struct {
	salt  common.Hash
	index uint64
}

// T param is to make sure it's only used in testing
func NewPseudoRandomDataSource(_ *testing.T, salt uint64) *PseudoRandomDataSource {
	return &PseudoRandomDataSource{
		salt: crypto.Keccak256Hash([]byte{'s'}, binary.BigEndian.AppendUint64(nil, salt)),
	}
}

func (r *PseudoRandomDataSource) GetHash() common.Hash {
	r.index++
	return crypto.Keccak256Hash(r.salt[:], binary.BigEndian.AppendUint64(nil, r.index))
}

func (r *PseudoRandomDataSource) GetData(size int) []byte {
	var ret []byte
	for len(ret) < size {
		ret = append(ret, r.GetHash().Bytes()...)
	}
	return ret[:size]
}
