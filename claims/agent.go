// Copyright 2024, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/epoch-bridge/blob/master/LICENSE

package claims

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/metrics"

	"github.com/offchainlabs/epoch-bridge/protocol"
	utilTime "github.com/offchainlabs/epoch-bridge/time"
)

var (
	snapshotsSavedCounter  = metrics.NewRegisteredCounter("claims/agent/snapshots", nil)
	claimsMadeCounter      = metrics.NewRegisteredCounter("claims/agent/claimed", nil)
	verificationsCounter   = metrics.NewRegisteredCounter("claims/agent/verifications", nil)
	verifiedCounter        = metrics.NewRegisteredCounter("claims/agent/verified", nil)
	claimsWithdrawnCounter = metrics.NewRegisteredCounter("claims/agent/withdrawn", nil)
)

// Agent acts as a bridger: it saves snapshots on the inbox, claims them on
// the outbox and drives its own claims through verification to withdrawal.
type Agent struct {
	*base
	inbox protocol.Inbox
}

func NewAgent(
	outbox protocol.Outbox,
	inbox protocol.Inbox,
	index protocol.Index,
	self common.Address,
	timeRef utilTime.Reference,
	lookback uint64,
) (*Agent, error) {
	b, err := newBase(outbox, index, self, timeRef, lookback)
	if err != nil {
		return nil, err
	}
	return &Agent{base: b, inbox: inbox}, nil
}

// Act runs one round of the bridger's duties. Errors in one duty do not stop
// the others.
func (a *Agent) Act(ctx context.Context) error {
	timing, err := a.outbox.Timing(ctx)
	if err != nil {
		return err
	}
	period := protocol.EpochPeriod(timing.EpochPeriod)
	if err := period.Validate(); err != nil {
		return err
	}
	now := a.timeRef.Get()
	var errs []error
	if err := a.saveSnapshot(ctx, period.EpochAt(now)); err != nil {
		errs = append(errs, err)
	}
	if epoch, ok := period.ClaimableEpoch(now); ok {
		if err := a.claim(ctx, epoch); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.progressClaims(ctx, timing, period.EpochAt(now)); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *Agent) snapshotCount(ctx context.Context, root common.Hash) (uint64, error) {
	if root == (common.Hash{}) {
		return 0, nil
	}
	count, err := a.index.SnapshotCount(ctx, root)
	if errors.Is(err, protocol.ErrNotFound) {
		return 0, nil
	}
	return count, err
}

// saveSnapshot checkpoints the inbox during the current epoch if messages
// arrived that no earlier snapshot covers.
func (a *Agent) saveSnapshot(ctx context.Context, current uint64) error {
	saved, err := a.inbox.Snapshot(ctx, current)
	if err != nil {
		return err
	}
	if saved != (common.Hash{}) {
		return nil
	}
	count, err := a.inbox.Count(ctx)
	if err != nil {
		return err
	}
	covered := uint64(0)
	if current > 0 {
		prev, err := a.inbox.Snapshot(ctx, current-1)
		if err != nil {
			return err
		}
		if covered, err = a.snapshotCount(ctx, prev); err != nil {
			return err
		}
	}
	verified, err := a.outbox.StateRoot(ctx)
	if err != nil {
		return err
	}
	verifiedCount, err := a.snapshotCount(ctx, verified)
	if err != nil {
		return err
	}
	if verifiedCount > covered {
		covered = verifiedCount
	}
	if count <= covered {
		return nil
	}
	if _, err := a.inbox.SaveSnapshot(ctx); err != nil {
		return handleTxError("saveSnapshot", current, err)
	}
	snapshotsSavedCounter.Inc(1)
	srvlog.Info("Saved snapshot", "epoch", current, "messages", count, "previouslyCovered", covered)
	return nil
}

// claim submits the inbox's snapshot for epoch if nobody has claimed it yet.
func (a *Agent) claim(ctx context.Context, epoch uint64) error {
	root, err := a.inbox.Snapshot(ctx, epoch)
	if err != nil {
		return err
	}
	if root == (common.Hash{}) {
		srvlog.Debug("No snapshot to claim", "epoch", epoch)
		return nil
	}
	existing, err := a.outbox.ClaimHash(ctx, epoch)
	if err != nil {
		return err
	}
	if existing != (common.Hash{}) {
		return nil
	}
	// A withdrawn claim clears its hash, which must not read as unclaimed.
	verified, err := a.outbox.LatestVerifiedEpoch(ctx)
	if err != nil {
		return err
	}
	if verified >= epoch && verified > 0 {
		return nil
	}
	deposit, err := a.outbox.Deposit(ctx)
	if err != nil {
		return err
	}
	if _, err := a.outbox.Claim(ctx, epoch, root, deposit); err != nil {
		return handleTxError("claim", epoch, err)
	}
	claimsMadeCounter.Inc(1)
	srvlog.Info("Claimed epoch", "epoch", epoch, "stateRoot", root, "deposit", deposit)
	return nil
}

func (a *Agent) progressClaims(ctx context.Context, timing protocol.OutboxTiming, current uint64) error {
	from, to := a.window(timing, current)
	indexed, err := a.indexedClaims(ctx, from, to)
	if err != nil {
		return err
	}
	var errs []error
	for epoch := from; epoch <= to; epoch++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var candidates []protocol.Claim
		if c, ok := indexed[epoch]; ok {
			if c.Claimer != a.self {
				continue
			}
			candidates = append(candidates, c)
		}
		claim, found, err := a.currentClaim(ctx, epoch, candidates...)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !found || claim.Claimer != a.self {
			continue
		}
		if err := a.progress(ctx, timing, epoch, claim); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *Agent) progress(ctx context.Context, timing protocol.OutboxTiming, epoch uint64, claim protocol.Claim) error {
	lc := a.observe(ctx, epoch, claim)
	now := uint64(a.timeRef.Get().Unix())
	switch {
	case claim.Honest == protocol.PartyClaimer:
		if _, err := a.outbox.WithdrawClaimDeposit(ctx, epoch, claim); err != nil {
			return handleTxError("withdrawClaimDeposit", epoch, err)
		}
		claimsWithdrawnCounter.Inc(1)
		srvlog.Info("Withdrew claim deposit", "epoch", epoch)
		return nil
	case claim.Honest == protocol.PartyChallenger:
		srvlog.Warn("Own claim was found dishonest", "epoch", epoch, "stateRoot", claim.StateRoot, "challenger", claim.Challenger)
		return nil
	case !claim.VerificationStarted():
		if now < uint64(claim.TimestampClaimed)+timing.SequencerDelayLimit {
			return nil
		}
		if _, err := a.outbox.StartVerification(ctx, epoch, claim); err != nil {
			return handleTxError("startVerification", epoch, err)
		}
		verificationsCounter.Inc(1)
		srvlog.Info("Started verification", "epoch", epoch)
		return nil
	case claim.IsChallenged():
		srvlog.Debug("Own claim challenged, waiting for dispute resolution", "epoch", epoch, "challenger", claim.Challenger)
		return nil
	}

	if now < uint64(claim.TimestampVerification)+timing.MinChallengePeriod {
		return nil
	}
	if timing.MinVerificationBlocks > 0 {
		block, err := a.outbox.BlockNumber(ctx)
		if err != nil {
			return err
		}
		if block < uint64(claim.BlockNumberVerification)+timing.MinVerificationBlocks {
			return nil
		}
	}
	if _, err := a.outbox.VerifySnapshot(ctx, epoch, claim); err != nil {
		return handleTxError("verifySnapshot", epoch, err)
	}
	verifiedCounter.Inc(1)
	srvlog.Info("Verified snapshot", "epoch", epoch, "stateRoot", claim.StateRoot)

	verified := claim
	verified.Honest = protocol.PartyClaimer
	if lc != nil {
		if _, err := lc.Observe(verified); err != nil {
			return fmt.Errorf("recording verification of epoch %d: %w", epoch, err)
		}
	}
	a.logHead(ctx)
	return nil
}
