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
	challengedCounter          = metrics.NewRegisteredCounter("claims/monitor/challenged", nil)
	challengeWithdrawnCounter  = metrics.NewRegisteredCounter("claims/monitor/withdrawn", nil)
	dishonestClaimsSeenCounter = metrics.NewRegisteredCounter("claims/monitor/dishonest", nil)
)

// DisputeLog remembers which challenged claims already had their snapshot
// sent over the dispute path, across restarts.
type DisputeLog interface {
	DisputeSent(epoch uint64, claimHash common.Hash) (bool, error)
	MarkDisputeSent(epoch uint64, claimHash common.Hash) error
}

// Monitor watches claims on the outbox and challenges any whose state root
// differs from the snapshot the inbox saved for that epoch.
type Monitor struct {
	*base
	inbox    protocol.Inbox
	disputes DisputeLog
}

func NewMonitor(
	outbox protocol.Outbox,
	inbox protocol.Inbox,
	index protocol.Index,
	disputes DisputeLog,
	self common.Address,
	timeRef utilTime.Reference,
	lookback uint64,
) (*Monitor, error) {
	if disputes == nil {
		return nil, errors.New("monitor needs a dispute log")
	}
	b, err := newBase(outbox, index, self, timeRef, lookback)
	if err != nil {
		return nil, err
	}
	return &Monitor{base: b, inbox: inbox, disputes: disputes}, nil
}

// Check scans recent claims once. Errors on one epoch do not stop the others.
func (m *Monitor) Check(ctx context.Context) error {
	timing, err := m.outbox.Timing(ctx)
	if err != nil {
		return err
	}
	period := protocol.EpochPeriod(timing.EpochPeriod)
	if err := period.Validate(); err != nil {
		return err
	}
	from, to := m.window(timing, period.EpochAt(m.timeRef.Get()))
	indexed, err := m.indexedClaims(ctx, from, to)
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
			candidates = append(candidates, c)
		}
		claim, found, err := m.currentClaim(ctx, epoch, candidates...)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !found {
			continue
		}
		if err := m.checkEpoch(ctx, epoch, claim); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Monitor) checkEpoch(ctx context.Context, epoch uint64, claim protocol.Claim) error {
	lc := m.observe(ctx, epoch, claim)
	switch {
	case claim.Honest == protocol.PartyChallenger:
		if claim.Challenger != m.self {
			return nil
		}
		_, err := m.outbox.WithdrawChallengeDeposit(ctx, epoch, claim)
		if err != nil {
			return handleTxError("withdrawChallengeDeposit", epoch, err)
		}
		challengeWithdrawnCounter.Inc(1)
		srvlog.Info("Withdrew challenge deposit", "epoch", epoch)
		return nil
	case claim.Honest.IsTerminal():
		return nil
	case claim.IsChallenged():
		if claim.Challenger != m.self || lc == nil {
			return nil
		}
		return m.sendDispute(ctx, epoch, claim, lc)
	}

	canonical, err := m.inbox.Snapshot(ctx, epoch)
	if err != nil {
		return fmt.Errorf("reading snapshot for epoch %d: %w", epoch, err)
	}
	if canonical == claim.StateRoot {
		return nil
	}
	dishonestClaimsSeenCounter.Inc(1)
	srvlog.Warn("Claim disagrees with source snapshot", "epoch", epoch, "claimed", claim.StateRoot, "snapshot", canonical, "claimer", claim.Claimer)
	return m.challenge(ctx, epoch, claim)
}

func (m *Monitor) challenge(ctx context.Context, epoch uint64, claim protocol.Claim) error {
	// Another challenger may have acted since the claim was read.
	stored, err := m.outbox.ClaimHash(ctx, epoch)
	if err != nil {
		return err
	}
	if stored != protocol.HashClaim(claim) {
		return handleTxError("challenge", epoch, protocol.ErrStaleClaim)
	}
	deposit, err := m.outbox.Deposit(ctx)
	if err != nil {
		return err
	}
	if _, err := m.outbox.Challenge(ctx, epoch, claim, deposit); err != nil {
		return handleTxError("challenge", epoch, err)
	}
	challengedCounter.Inc(1)
	srvlog.Info("Challenged claim", "epoch", epoch, "stateRoot", claim.StateRoot, "deposit", deposit)

	challenged := claim
	challenged.Challenger = m.self
	lc, err := m.tracker.Get(epoch)
	if err != nil {
		return err
	}
	if _, err := lc.Observe(challenged); err != nil {
		srvlog.Error("Could not record own challenge", "epoch", epoch, "err", err)
	}
	return m.sendDispute(ctx, epoch, challenged, lc)
}

// sendDispute has the inbox send its snapshot for epoch over the slow
// cross-chain path, which settles the challenge. It is sent once per claim,
// including across restarts.
func (m *Monitor) sendDispute(ctx context.Context, epoch uint64, claim protocol.Claim, lc *Lifecycle) error {
	if lc.DisputeSent() {
		return nil
	}
	claimHash := protocol.HashClaim(claim)
	sent, err := m.disputes.DisputeSent(epoch, claimHash)
	if err != nil {
		return fmt.Errorf("reading dispute log for epoch %d: %w", epoch, err)
	}
	if sent {
		lc.MarkDisputeSent()
		return nil
	}
	if _, err := m.inbox.SendSnapshot(ctx, epoch, claim); err != nil {
		return fmt.Errorf("sending snapshot for challenged epoch %d: %w", epoch, err)
	}
	lc.MarkDisputeSent()
	srvlog.Info("Sent snapshot over dispute path", "epoch", epoch)
	if err := m.disputes.MarkDisputeSent(epoch, claimHash); err != nil {
		srvlog.Error("Could not record sent dispute, it may be sent again after a restart", "epoch", epoch, "err", err)
	}
	return nil
}
