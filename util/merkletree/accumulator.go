// Copyright 2024, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/epoch-bridge/blob/master/LICENSE

package merkletree

import (
	"bytes"
	"errors"
	"math/bits"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var ErrEmptyTree = errors.New("accumulator has no leaves")

// LeafHash commits to a raw message the same way the inbox contract does:
// keccak256(keccak256(message)).
func LeafHash(message []byte) common.Hash {
	inner := crypto.Keccak256(message)
	return crypto.Keccak256Hash(inner)
}

// Combine hashes two nodes after ordering them lexicographically, so the
// result does not depend on which side each node sits on.
func Combine(a, b common.Hash) common.Hash {
	if bytes.Compare(a.Bytes(), b.Bytes()) > 0 {
		a, b = b, a
	}
	return crypto.Keccak256Hash(a.Bytes(), b.Bytes())
}

// RootFromProof folds a bottom-to-top proof onto a leaf.
func RootFromProof(leaf common.Hash, proof []common.Hash) common.Hash {
	soFar := leaf
	for _, sibling := range proof {
		soFar = Combine(soFar, sibling)
	}
	return soFar
}

// Height returns the number of levels above the leaves in a tree of count
// leaves, i.e. ceil(log2(count)).
func Height(count uint64) uint64 {
	if count <= 1 {
		return 0
	}
	return uint64(bits.Len64(count - 1))
}

// NodeEvent is emitted for every node the accumulator materializes. It is
// what an indexer stores to later answer proof lookups.
type NodeEvent struct {
	Key  NodeKey
	Hash common.Hash
}

// Accumulator is an append-only tree that keeps one pending subtree root per
// level, merging equal-height subtrees on append. Every node it produces is
// recorded under its covered range.
// Not thread safe!
type Accumulator struct {
	partials []*common.Hash
	size     uint64
	nodes    map[NodeKey]common.Hash
}

func NewAccumulator() *Accumulator {
	return &Accumulator{
		nodes: make(map[NodeKey]common.Hash),
	}
}

func (acc *Accumulator) Size() uint64 {
	return acc.size
}

// Append adds a leaf hash and returns the nodes created by it, bottom first.
func (acc *Accumulator) Append(leaf common.Hash) []NodeEvent {
	index := acc.size
	acc.size++
	events := []NodeEvent{acc.record(SingleKey(index), leaf)}

	soFar := leaf
	level := 0
	for {
		if level == len(acc.partials) {
			acc.partials = append(acc.partials, nil)
		}
		if acc.partials[level] == nil {
			h := soFar
			acc.partials[level] = &h
			return events
		}
		soFar = Combine(*acc.partials[level], soFar)
		acc.partials[level] = nil
		level++
		width := uint64(1) << level
		low := index + 1 - width
		events = append(events, acc.record(RangeKey(low, index), soFar))
	}
}

// Snapshot folds the pending subtree roots lowest level first, which is the
// root committed on-chain for the current leaf count. Intermediate folds cover
// partial ranges ending at the last leaf and are recorded as nodes too.
func (acc *Accumulator) Snapshot() (common.Hash, []NodeEvent, error) {
	if acc.size == 0 {
		return common.Hash{}, nil, ErrEmptyTree
	}
	var events []NodeEvent
	var soFar *common.Hash
	for level, partial := range acc.partials {
		if partial == nil {
			continue
		}
		if soFar == nil {
			h := *partial
			soFar = &h
			continue
		}
		h := Combine(*partial, *soFar)
		soFar = &h
		low := acc.size &^ ((uint64(1) << (level + 1)) - 1)
		events = append(events, acc.record(RangeKey(low, acc.size-1), h))
	}
	return *soFar, events, nil
}

// Node returns a previously recorded node.
func (acc *Accumulator) Node(key NodeKey) (common.Hash, bool) {
	h, ok := acc.nodes[key]
	return h, ok
}

// Proof assembles the proof for leaf nonce against a snapshot of count leaves
// from the recorded nodes. Returns nil if nonce is not covered or a node has
// not been recorded yet.
func (acc *Accumulator) Proof(nonce, count uint64) []common.Hash {
	keys := ProofIndices(nonce, count)
	if len(keys) == 0 {
		return nil
	}
	proof := make([]common.Hash, 0, len(keys))
	for _, key := range keys {
		h, ok := acc.nodes[key]
		if !ok {
			return nil
		}
		proof = append(proof, h)
	}
	return proof
}

func (acc *Accumulator) record(key NodeKey, hash common.Hash) NodeEvent {
	acc.nodes[key] = hash
	return NodeEvent{Key: key, Hash: hash}
}
