// Copyright 2024, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/epoch-bridge/blob/master/LICENSE

// Package claims follows the per-epoch claim protocol on the outbox. The
// Monitor challenges claims that disagree with the source chain's snapshots,
// and the Agent makes claims and drives its own claims to resolution.
package claims

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	flag "github.com/spf13/pflag"

	"github.com/offchainlabs/epoch-bridge/protocol"
	utilTime "github.com/offchainlabs/epoch-bridge/time"
)

var srvlog = log.New("service", "claims")

type RoleConfig struct {
	Enable bool `koanf:"enable"`
	// Epochs to look back for claims still in flight. Raised to at least the
	// span of a full unchallenged verification.
	LookbackEpochs uint64 `koanf:"lookback-epochs"`
}

var DefaultClaimerConfig = RoleConfig{
	Enable:         false,
	LookbackEpochs: 24,
}

var DefaultChallengerConfig = RoleConfig{
	Enable:         true,
	LookbackEpochs: 24,
}

func RoleConfigAddOptions(prefix string, f *flag.FlagSet, defaults RoleConfig, role string) {
	f.Bool(prefix+".enable", defaults.Enable, "act as "+role)
	f.Uint64(prefix+".lookback-epochs", defaults.LookbackEpochs, "number of past epochs to scan for claims as "+role)
}

const trackedEpochs = 512

// base holds what the Monitor and Agent share: chain access, the lifecycle
// tracker and the scan window.
type base struct {
	outbox   protocol.Outbox
	index    protocol.Index
	tracker  *Tracker
	timeRef  utilTime.Reference
	self     common.Address
	lookback uint64
}

func newBase(outbox protocol.Outbox, index protocol.Index, self common.Address, timeRef utilTime.Reference, lookback uint64) (*base, error) {
	tracker, err := NewTracker(trackedEpochs)
	if err != nil {
		return nil, err
	}
	if timeRef == nil {
		timeRef = utilTime.NewRealTimeReference()
	}
	return &base{
		outbox:   outbox,
		index:    index,
		tracker:  tracker,
		timeRef:  timeRef,
		self:     self,
		lookback: lookback,
	}, nil
}

// window is the range of epochs whose claims may still need action.
func (b *base) window(timing protocol.OutboxTiming, current uint64) (uint64, uint64) {
	lookback := b.lookback
	if timing.EpochPeriod > 0 {
		span := timing.SequencerDelayLimit + timing.MinChallengePeriod
		minimum := (span+timing.EpochPeriod-1)/timing.EpochPeriod + 2
		if lookback < minimum {
			lookback = minimum
		}
	}
	if current < lookback {
		return 0, current
	}
	return current - lookback, current
}

// currentClaim finds, among the candidates and the last claim tracked for the
// epoch, the claim struct that hashes to what the outbox stores. found is
// false if the epoch has no claim or none of the candidates are current.
func (b *base) currentClaim(ctx context.Context, epoch uint64, candidates ...protocol.Claim) (protocol.Claim, bool, error) {
	stored, err := b.outbox.ClaimHash(ctx, epoch)
	if err != nil {
		return protocol.Claim{}, false, err
	}
	if stored == (common.Hash{}) {
		return protocol.Claim{}, false, nil
	}
	lc, err := b.tracker.Get(epoch)
	if err != nil {
		return protocol.Claim{}, false, err
	}
	if last, ok := lc.LastClaim(); ok {
		candidates = append(candidates, last)
	}
	for _, c := range candidates {
		if protocol.HashClaim(c) == stored {
			return c, true, nil
		}
	}
	srvlog.Debug("No known claim struct matches stored hash", "epoch", epoch, "stored", stored, "candidates", len(candidates))
	return protocol.Claim{}, false, nil
}

// observe feeds a current claim into the epoch's lifecycle and re-reads the
// verified head when it sees the claim resolved.
func (b *base) observe(ctx context.Context, epoch uint64, claim protocol.Claim) *Lifecycle {
	lc, err := b.tracker.Get(epoch)
	if err != nil {
		srvlog.Error("Could not track claim", "epoch", epoch, "err", err)
		return nil
	}
	resolved, err := lc.Observe(claim)
	if err != nil {
		srvlog.Error("Impossible claim transition observed", "epoch", epoch, "claim", claim.StateRoot, "err", err)
		return lc
	}
	if resolved {
		srvlog.Info("Claim resolved", "epoch", epoch, "stateRoot", claim.StateRoot, "honest", claim.Honest)
		b.logHead(ctx)
	}
	return lc
}

// logHead reads the outbox's verified head. It is never inferred from the
// claims resolved, since an older epoch resolving out of order does not move
// it.
func (b *base) logHead(ctx context.Context) {
	root, err := b.outbox.StateRoot(ctx)
	if err != nil {
		srvlog.Warn("Could not read verified state root", "err", err)
		return
	}
	epoch, err := b.outbox.LatestVerifiedEpoch(ctx)
	if err != nil {
		srvlog.Warn("Could not read latest verified epoch", "err", err)
		return
	}
	srvlog.Info("Verified head", "epoch", epoch, "stateRoot", root)
}

func (b *base) indexedClaims(ctx context.Context, from, to uint64) (map[uint64]protocol.Claim, error) {
	records, err := b.index.Claims(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("querying claims for epochs %d-%d: %w", from, to, err)
	}
	claims := make(map[uint64]protocol.Claim, len(records))
	for _, r := range records {
		claims[r.Epoch] = r.Claim
	}
	return claims, nil
}

// CheckClaimHashing compares the local claim hashing with the outbox's, since
// every claim-taking call depends on them agreeing.
func CheckClaimHashing(ctx context.Context, outbox protocol.OutboxReader) error {
	sample := protocol.Claim{
		StateRoot:               common.HexToHash("0x01"),
		Claimer:                 common.HexToAddress("0x02"),
		TimestampClaimed:        3,
		TimestampVerification:   4,
		BlockNumberVerification: 5,
		Honest:                  protocol.PartyClaimer,
		Challenger:              common.HexToAddress("0x06"),
	}
	remote, err := outbox.HashClaim(ctx, sample)
	if err != nil {
		return err
	}
	if local := protocol.HashClaim(sample); local != remote {
		return fmt.Errorf("outbox hashes claims differently: local %v, outbox %v", local, remote)
	}
	return nil
}

func handleTxError(action string, epoch uint64, err error) error {
	if protocol.IsExpectedRevert(err) {
		srvlog.Warn("Lost race with another actor", "action", action, "epoch", epoch, "err", err)
		return nil
	}
	return fmt.Errorf("%s for epoch %d: %w", action, epoch, err)
}
