// Copyright 2024, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/epoch-bridge/blob/master/LICENSE

package testhelpers

import (
	"context"
	"crypto/rand"
	"log/slog"
	"regexp"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
)

// Fail a test should an error occur
func RequireImpl(t *testing.T, err error, printables ...interface{}) {
	t.Helper()
	if err != nil {
		t.Fatal(printables, err)
	}
}

func RandomizeSlice(slice []byte) []byte {
	if _, err := rand.Read(slice); err != nil {
		panic(err)
	}
	return slice
}

func RandomHash() common.Hash {
	var hash common.Hash
	RandomizeSlice(hash[:])
	return hash
}

// LogHandler records every message logged through the default logger so
// tests can assert on them.
type LogHandler struct {
	mutex   sync.Mutex
	t       *testing.T
	level   slog.Level
	records []slog.Record
}

func (h *LogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *LogHandler) Handle(_ context.Context, record slog.Record) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.records = append(h.records, record)
	return nil
}

func (h *LogHandler) WithAttrs([]slog.Attr) slog.Handler { return h }

func (h *LogHandler) WithGroup(string) slog.Handler { return h }

func (h *LogHandler) WasLogged(pattern string) bool {
	re, err := regexp.Compile(pattern)
	RequireImpl(h.t, err)
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for _, record := range h.records {
		if re.MatchString(record.Message) {
			return true
		}
	}
	return false
}

// InitTestLog installs a recording handler as the default logger until the
// test ends.
func InitTestLog(t *testing.T, level slog.Level) *LogHandler {
	handler := &LogHandler{t: t, level: level}
	previous := log.Root()
	log.SetDefault(log.NewLogger(handler))
	t.Cleanup(func() { log.SetDefault(previous) })
	return handler
}
