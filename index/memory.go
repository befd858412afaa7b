// Copyright 2024, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/epoch-bridge/blob/master/LICENSE

package index

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/offchainlabs/epoch-bridge/protocol"
	"github.com/offchainlabs/epoch-bridge/util/merkletree"
)

// Memory is an in-process index fed directly with inbox activity. It keeps
// the same entities as the external indexer, computed with the same
// accumulator the inbox runs.
type Memory struct {
	mu        sync.RWMutex
	acc       *merkletree.Accumulator
	nodes     map[merkletree.NodeKey]common.Hash
	messages  map[uint64]protocol.Message
	snapshots map[common.Hash]uint64
	claims    map[uint64]protocol.Claim
}

var _ protocol.Index = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		acc:       merkletree.NewAccumulator(),
		nodes:     make(map[merkletree.NodeKey]common.Hash),
		messages:  make(map[uint64]protocol.Message),
		snapshots: make(map[common.Hash]uint64),
		claims:    make(map[uint64]protocol.Claim),
	}
}

func (m *Memory) store(events []merkletree.NodeEvent) {
	for _, ev := range events {
		m.nodes[ev.Key] = ev.Hash
	}
}

// AddMessage appends a message as the next leaf and returns it with its nonce.
func (m *Memory) AddMessage(to, sender common.Address, data []byte) protocol.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg := protocol.Message{Nonce: m.acc.Size(), To: to, Sender: sender, Data: data}
	m.messages[msg.Nonce] = msg
	m.store(m.acc.Append(msg.Leaf()))
	return msg
}

// SaveSnapshot checkpoints the current tree, as the inbox's saveSnapshot does.
func (m *Memory) SaveSnapshot() (protocol.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	root, events, err := m.acc.Snapshot()
	if err != nil {
		return protocol.Snapshot{}, err
	}
	m.store(events)
	m.snapshots[root] = m.acc.Size()
	return protocol.Snapshot{StateRoot: root, Count: m.acc.Size()}, nil
}

// Size is the number of messages added so far.
func (m *Memory) Size() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.acc.Size()
}

// RecordClaim stores the latest observed version of an epoch's claim.
func (m *Memory) RecordClaim(epoch uint64, claim protocol.Claim) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.claims[epoch] = claim
}

func (m *Memory) MessagePayload(_ context.Context, nonce uint64) (*protocol.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msg, ok := m.messages[nonce]
	if !ok {
		return nil, fmt.Errorf("message %d: %w", nonce, ErrNotFound)
	}
	return &msg, nil
}

func (m *Memory) NodeHash(_ context.Context, key merkletree.NodeKey) (common.Hash, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.nodes[key]
	if !ok {
		return common.Hash{}, fmt.Errorf("node %s: %w", key, ErrNotFound)
	}
	return h, nil
}

func (m *Memory) SnapshotCount(_ context.Context, stateRoot common.Hash) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count, ok := m.snapshots[stateRoot]
	if !ok {
		return 0, fmt.Errorf("snapshot %v: %w", stateRoot, ErrNotFound)
	}
	return count, nil
}

func (m *Memory) Claims(_ context.Context, fromEpoch, toEpoch uint64) ([]protocol.ClaimRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var records []protocol.ClaimRecord
	for epoch, claim := range m.claims {
		if epoch >= fromEpoch && epoch <= toEpoch {
			records = append(records, protocol.ClaimRecord{Epoch: epoch, Claim: claim})
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Epoch < records[j].Epoch })
	return records, nil
}
