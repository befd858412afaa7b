// Copyright 2024, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/epoch-bridge/blob/master/LICENSE

package merkletree

import (
	"fmt"
	"strconv"
	"strings"
)

// NodeKey identifies a node by the leaf range it covers. Keys do not encode
// left or right, which is what lets the tree grow without rehashing.
type NodeKey struct {
	Low  uint64
	High uint64
}

func SingleKey(index uint64) NodeKey {
	return NodeKey{Low: index, High: index}
}

func RangeKey(low, high uint64) NodeKey {
	return NodeKey{Low: low, High: high}
}

func (k NodeKey) IsLeaf() bool {
	return k.Low == k.High
}

// String renders "low" for single leaves and "low,high" for ranges, which is
// the form the index stores nodes under.
func (k NodeKey) String() string {
	if k.IsLeaf() {
		return strconv.FormatUint(k.Low, 10)
	}
	return fmt.Sprintf("%d,%d", k.Low, k.High)
}

func ParseNodeKey(s string) (NodeKey, error) {
	lowStr, highStr, isRange := strings.Cut(s, ",")
	low, err := strconv.ParseUint(lowStr, 10, 64)
	if err != nil {
		return NodeKey{}, fmt.Errorf("invalid node key %q: %w", s, err)
	}
	if !isRange {
		return SingleKey(low), nil
	}
	high, err := strconv.ParseUint(highStr, 10, 64)
	if err != nil {
		return NodeKey{}, fmt.Errorf("invalid node key %q: %w", s, err)
	}
	if high < low {
		return NodeKey{}, fmt.Errorf("invalid node key %q: high below low", s)
	}
	return RangeKey(low, high), nil
}

// ProofIndices returns, bottom to top, the keys of the siblings needed to
// rebuild the root of a count-leaf snapshot from leaf nonce. An empty result
// means nonce is not covered by the snapshot yet.
func ProofIndices(nonce, count uint64) []NodeKey {
	if nonce >= count {
		return nil
	}
	height := Height(count)
	keys := make([]NodeKey, 0, height)
	for h := uint64(0); h < height; h++ {
		low := ((nonce >> h) ^ 1) << h
		if low >= count {
			continue
		}
		high := low + (uint64(1) << h) - 1
		if high > count-1 {
			high = count - 1
		}
		keys = append(keys, RangeKey(low, high))
	}
	return keys
}

func KeyStrings(keys []NodeKey) []string {
	strs := make([]string, len(keys))
	for i, k := range keys {
		strs[i] = k.String()
	}
	return strs
}
