// Copyright 2024, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/epoch-bridge/blob/master/LICENSE

package protocol

import (
	"fmt"
	"time"
)

// EpochPeriod is the length of an epoch in seconds. Epochs are derived from
// wall-clock time as floor(unix / period).
type EpochPeriod uint64

func (p EpochPeriod) Validate() error {
	if p == 0 {
		return fmt.Errorf("epoch period must be positive")
	}
	return nil
}

func (p EpochPeriod) Duration() time.Duration {
	return time.Duration(p) * time.Second
}

func (p EpochPeriod) EpochAt(t time.Time) uint64 {
	unix := t.Unix()
	if unix < 0 {
		return 0
	}
	return uint64(unix) / uint64(p)
}

// Start is the first second of epoch.
func (p EpochPeriod) Start(epoch uint64) time.Time {
	return time.Unix(int64(epoch*uint64(p)), 0)
}

// NextBoundary is the start of the epoch following the one t falls in.
func (p EpochPeriod) NextBoundary(t time.Time) time.Time {
	return p.Start(p.EpochAt(t) + 1)
}

// UntilNextBoundary is how long to wait from t until margin past the next
// epoch boundary.
func (p EpochPeriod) UntilNextBoundary(t time.Time, margin time.Duration) time.Duration {
	wait := p.NextBoundary(t).Add(margin).Sub(t)
	if wait < 0 {
		return 0
	}
	return wait
}

// ClaimableEpoch is the most recent closed epoch, the one a claim can be made
// for at time t.
func (p EpochPeriod) ClaimableEpoch(t time.Time) (uint64, bool) {
	current := p.EpochAt(t)
	if current == 0 {
		return 0, false
	}
	return current - 1, true
}
