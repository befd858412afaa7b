// Copyright 2024, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/epoch-bridge/blob/master/LICENSE

package protocol

import (
	"errors"
	"strings"
)

var (
	// ErrNotFound means the index has not caught up with what was asked for.
	ErrNotFound = errors.New("not found in index")
	// ErrStaleClaim means the claim struct we hold no longer hashes to what
	// the outbox has stored for its epoch.
	ErrStaleClaim = errors.New("claim does not match on-chain claim hash")
)

// Revert reasons that are expected when racing other bridgers, challengers and
// relayers. Hitting one of these is not a reason to stop the process.
var expectedReverts = []string{
	"claim already made",
	"invalid claim",
	"claim already challenged",
	"challenge period has not passed",
	"challenge period passed",
	"message already relayed",
	"verification already started",
	"claim is challenged",
	"claim not resolved",
	"sequencer delay not passed",
	"epoch not finalized",
	"invalid epoch",
}

// IsExpectedRevert reports whether err is a revert caused by losing a race
// with another actor or acting on slightly stale state.
func IsExpectedRevert(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrStaleClaim) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, reason := range expectedReverts {
		if strings.Contains(msg, reason) {
			return true
		}
	}
	return false
}
