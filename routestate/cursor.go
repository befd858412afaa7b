// Copyright 2024, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/epoch-bridge/blob/master/LICENSE

// Package routestate keeps the per-route state that survives restarts: the
// relay cursor, the disputes already sent and the lock that keeps a route to
// a single process.
package routestate

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/metrics"

	"github.com/offchainlabs/epoch-bridge/protocol"
	utilTime "github.com/offchainlabs/epoch-bridge/time"
)

var cursorNonceGauge = metrics.NewRegisteredGauge("routestate/cursor/nonce", nil)

// Cursor is the persisted relay watermark. Nonce is the next message to
// consider relaying, Timestamp the unix time it was written.
type Cursor struct {
	Timestamp int64  `json:"ts"`
	Nonce     uint64 `json:"nonce"`
}

// CursorStore persists one route's cursor as JSON, replacing the file
// atomically on every save.
type CursorStore struct {
	path    string
	timeRef utilTime.Reference
}

func NewCursorStore(dir string, route protocol.Route, timeRef utilTime.Reference) *CursorStore {
	if timeRef == nil {
		timeRef = utilTime.NewRealTimeReference()
	}
	return &CursorStore{
		path:    filepath.Join(dir, route.String()+".json"),
		timeRef: timeRef,
	}
}

func (s *CursorStore) Path() string {
	return s.path
}

// Load returns the saved cursor. found is false when nothing was saved yet.
func (s *CursorStore) Load() (cursor Cursor, found bool, err error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return Cursor{}, false, nil
	}
	if err != nil {
		return Cursor{}, false, err
	}
	if err := json.Unmarshal(data, &cursor); err != nil {
		return Cursor{}, false, fmt.Errorf("corrupt cursor file %s: %w", s.path, err)
	}
	return cursor, true, nil
}

// Save writes nonce through a temporary file in the same directory, so a
// crash leaves either the old or the new cursor on disk.
func (s *CursorStore) Save(nonce uint64) error {
	data, err := json.Marshal(Cursor{Timestamp: s.timeRef.Get().Unix(), Nonce: nonce})
	if err != nil {
		return err
	}
	if err := writeFileAtomic(s.path, data); err != nil {
		return err
	}
	cursorNonceGauge.Update(int64(nonce))
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
