// Copyright 2024, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/epoch-bridge/blob/master/LICENSE

package merkletree

import (
	"encoding/binary"
	"math/bits"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/offchainlabs/epoch-bridge/util/testhelpers"
)

func pseudorandomLeaf(i uint64) common.Hash {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], i)
	return LeafHash(buf[:])
}

// rangeHash recomputes a range from scratch by splitting at the largest power
// of two below its width.
func rangeHash(leaves []common.Hash, low, high uint64) common.Hash {
	n := high - low + 1
	if n == 1 {
		return leaves[low]
	}
	split := uint64(1) << (bits.Len64(n-1) - 1)
	return Combine(rangeHash(leaves, low, low+split-1), rangeHash(leaves, low+split, high))
}

func TestProofIndicesKnownVectors(t *testing.T) {
	require.Empty(t, ProofIndices(7, 7))
	require.Equal(t, []string{"3", "0,1", "4,6"}, KeyStrings(ProofIndices(2, 7)))
	require.Equal(t, []string{"6", "4,5", "0,3", "8,14"}, KeyStrings(ProofIndices(7, 15)))
	require.Empty(t, ProofIndices(0, 1))
	require.Equal(t, []string{"0,3"}, KeyStrings(ProofIndices(4, 5)))
	require.Equal(t, []string{"4,5", "0,3"}, KeyStrings(ProofIndices(6, 7)))
}

func TestProofIndicesLastLeaf(t *testing.T) {
	for count := uint64(2); count < 70; count++ {
		keys := ProofIndices(count-1, count)
		require.NotEmpty(t, keys, "count %d", count)
		require.Empty(t, ProofIndices(count, count))
	}
}

func TestCombineIsOrderIndependent(t *testing.T) {
	a := testhelpers.RandomHash()
	b := testhelpers.RandomHash()
	require.Equal(t, Combine(a, b), Combine(b, a))

	lo, hi := a, b
	if lo.Big().Cmp(hi.Big()) > 0 {
		lo, hi = hi, lo
	}
	require.Equal(t, crypto.Keccak256Hash(lo.Bytes(), hi.Bytes()), Combine(a, b))
}

func TestLeafHashIsDoubleKeccak(t *testing.T) {
	msg := []byte("hello bridge")
	require.Equal(t, crypto.Keccak256Hash(crypto.Keccak256(msg)), LeafHash(msg))
}

func TestProofsReproduceSnapshotRoot(t *testing.T) {
	acc := NewAccumulator()
	var leaves []common.Hash
	for count := uint64(1); count <= 64; count++ {
		leaf := pseudorandomLeaf(count - 1)
		leaves = append(leaves, leaf)
		acc.Append(leaf)

		root, _, err := acc.Snapshot()
		require.NoError(t, err)
		require.Equal(t, rangeHash(leaves, 0, count-1), root, "count %d", count)

		for nonce := uint64(0); nonce < count; nonce++ {
			proof := acc.Proof(nonce, count)
			require.Len(t, proof, len(ProofIndices(nonce, count)))
			require.Equal(t, root, RootFromProof(leaves[nonce], proof), "nonce %d count %d", nonce, count)
		}
	}
}

func TestProofsForOlderSnapshots(t *testing.T) {
	data := testhelpers.NewPseudoRandomDataSource(t, 1)
	acc := NewAccumulator()
	var leaves []common.Hash
	roots := make(map[uint64]common.Hash)
	for count := uint64(1); count <= 20; count++ {
		leaf := LeafHash(data.GetData(int(count) * 7))
		leaves = append(leaves, leaf)
		acc.Append(leaf)
		if count%3 == 0 {
			root, _, err := acc.Snapshot()
			require.NoError(t, err)
			roots[count] = root
		}
	}
	for count, root := range roots {
		for nonce := uint64(0); nonce < count; nonce++ {
			require.Equal(t, root, RootFromProof(leaves[nonce], acc.Proof(nonce, count)))
		}
	}
}

func TestSnapshotOfEmptyAccumulator(t *testing.T) {
	_, _, err := NewAccumulator().Snapshot()
	require.ErrorIs(t, err, ErrEmptyTree)
}

func TestAppendEvents(t *testing.T) {
	acc := NewAccumulator()
	require.Len(t, acc.Append(pseudorandomLeaf(0)), 1)
	events := acc.Append(pseudorandomLeaf(1))
	require.Equal(t, []string{"1", "0,1"}, []string{events[0].Key.String(), events[1].Key.String()})
	acc.Append(pseudorandomLeaf(2))
	events = acc.Append(pseudorandomLeaf(3))
	require.Equal(t, "0,3", events[len(events)-1].Key.String())
}

func TestParseNodeKey(t *testing.T) {
	for _, s := range []string{"0", "17", "0,1", "8,14"} {
		key, err := ParseNodeKey(s)
		require.NoError(t, err)
		require.Equal(t, s, key.String())
	}
	_, err := ParseNodeKey("5,2")
	require.Error(t, err)
	_, err = ParseNodeKey("x")
	require.Error(t, err)
}
