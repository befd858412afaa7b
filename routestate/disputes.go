// Copyright 2024, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/epoch-bridge/blob/master/LICENSE

package routestate

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/offchainlabs/epoch-bridge/protocol"
)

// DisputeStore records, per epoch, the hash of the challenged claim whose
// snapshot was sent over the dispute path. Epochs more than keep epochs older
// than the newest recorded one are dropped on every write.
type DisputeStore struct {
	mu   sync.Mutex
	path string
	keep uint64
	sent map[uint64]common.Hash
}

func NewDisputeStore(dir string, route protocol.Route, keep uint64) *DisputeStore {
	return &DisputeStore{
		path: filepath.Join(dir, route.String()+".disputes.json"),
		keep: keep,
	}
}

func (s *DisputeStore) Path() string {
	return s.path
}

// Must hold s.mu.
func (s *DisputeStore) load() error {
	if s.sent != nil {
		return nil
	}
	sent := make(map[uint64]common.Hash)
	data, err := os.ReadFile(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err == nil {
		if err := json.Unmarshal(data, &sent); err != nil {
			return fmt.Errorf("corrupt disputes file %s: %w", s.path, err)
		}
	}
	s.sent = sent
	return nil
}

// DisputeSent reports whether the snapshot was already sent for this exact
// claim.
func (s *DisputeStore) DisputeSent(epoch uint64, claimHash common.Hash) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return false, err
	}
	hash, ok := s.sent[epoch]
	return ok && hash == claimHash, nil
}

func (s *DisputeStore) MarkDisputeSent(epoch uint64, claimHash common.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return err
	}
	s.sent[epoch] = claimHash
	var newest uint64
	for e := range s.sent {
		newest = max(newest, e)
	}
	for e := range s.sent {
		if e+s.keep < newest {
			delete(s.sent, e)
		}
	}
	data, err := json.Marshal(s.sent)
	if err != nil {
		return err
	}
	return writeFileAtomic(s.path, data)
}
