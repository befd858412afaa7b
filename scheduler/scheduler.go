// Copyright 2024, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/epoch-bridge/blob/master/LICENSE

// Package scheduler runs one route's duties once per epoch: check claims, act
// as bridger, relay verified messages, then persist the cursor and sleep until
// just past the next epoch boundary.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	flag "github.com/spf13/pflag"

	"github.com/offchainlabs/epoch-bridge/protocol"
	"github.com/offchainlabs/epoch-bridge/routestate"
	utilTime "github.com/offchainlabs/epoch-bridge/time"
	"github.com/offchainlabs/epoch-bridge/util/stopwaiter"
)

var (
	passesCounter       = metrics.NewRegisteredCounter("scheduler/passes", nil)
	failedPassesCounter = metrics.NewRegisteredCounter("scheduler/passes/failed", nil)
)

type Config struct {
	EpochMargin      time.Duration `koanf:"epoch-margin"`
	RetryInterval    time.Duration `koanf:"retry-interval"`
	HeartbeatURL     string        `koanf:"heartbeat-url"`
	HeartbeatTimeout time.Duration `koanf:"heartbeat-timeout"`
}

var DefaultConfig = Config{
	EpochMargin:      30 * time.Second,
	RetryInterval:    time.Minute,
	HeartbeatURL:     "",
	HeartbeatTimeout: 10 * time.Second,
}

func ConfigAddOptions(f *flag.FlagSet) {
	f.Duration("epoch-margin", DefaultConfig.EpochMargin, "how long after an epoch boundary to start each pass")
	f.Duration("retry-interval", DefaultConfig.RetryInterval, "how long to wait before retrying a pass that could not read the epoch period")
	f.String("heartbeat-url", DefaultConfig.HeartbeatURL, "URL to GET after every successful pass (empty disables)")
	f.Duration("heartbeat-timeout", DefaultConfig.HeartbeatTimeout, "timeout of the heartbeat request")
}

func (c *Config) Validate() error {
	if c.EpochMargin < 0 {
		return fmt.Errorf("epoch-margin must not be negative, got %v", c.EpochMargin)
	}
	if c.RetryInterval <= 0 {
		return fmt.Errorf("retry-interval must be positive, got %v", c.RetryInterval)
	}
	return nil
}

type ClaimChecker interface {
	Check(ctx context.Context) error
}

type ClaimActor interface {
	Act(ctx context.Context) error
}

type MessageRelayer interface {
	RelayBatch(ctx context.Context, nonce uint64, maxBatchSize int) (uint64, error)
}

// Duties are what one pass runs. Nil members are skipped.
type Duties struct {
	Monitor      ClaimChecker
	Agent        ClaimActor
	Relayer      MessageRelayer
	MaxBatchSize int
}

type Scheduler struct {
	stopwaiter.StopWaiter
	config  Config
	outbox  protocol.OutboxReader
	duties  Duties
	cursor  *routestate.CursorStore
	lock    routestate.Locker
	beat    *Heartbeat
	timeRef utilTime.Reference

	nonce atomic.Uint64
	fatal chan error
}

func New(
	config Config,
	outbox protocol.OutboxReader,
	duties Duties,
	cursor *routestate.CursorStore,
	lock routestate.Locker,
	timeRef utilTime.Reference,
) (*Scheduler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if timeRef == nil {
		timeRef = utilTime.NewRealTimeReference()
	}
	s := &Scheduler{
		config:  config,
		outbox:  outbox,
		duties:  duties,
		cursor:  cursor,
		lock:    lock,
		beat:    NewHeartbeat(config.HeartbeatURL, config.HeartbeatTimeout),
		timeRef: timeRef,
		fatal:   make(chan error, 1),
	}
	s.SetTimeReference(timeRef)
	return s, nil
}

// Nonce is the relay cursor as of the last pass.
func (s *Scheduler) Nonce() uint64 {
	return s.nonce.Load()
}

// Fatal receives the error that made the scheduler stop on its own, such as
// losing the route lock.
func (s *Scheduler) Fatal() <-chan error {
	return s.fatal
}

// Start takes the route lock, loads the cursor and begins the loop. It fails
// with routestate.ErrLockHeld if another process runs the route.
func (s *Scheduler) Start(ctxIn context.Context) error {
	if err := s.lock.Acquire(ctxIn); err != nil {
		return err
	}
	cursor, found, err := s.cursor.Load()
	if err != nil {
		s.releaseLock()
		return err
	}
	if found {
		log.Info("Resuming from saved cursor", "nonce", cursor.Nonce, "savedAt", time.Unix(cursor.Timestamp, 0))
	}
	s.nonce.Store(cursor.Nonce)
	s.StopWaiter.Start(ctxIn, s)
	if interval := s.lock.RefreshInterval(); interval > 0 {
		s.CallIteratively(func(ctx context.Context) time.Duration {
			return s.keepLock(ctx, interval)
		})
	}
	s.CallIteratively(s.iterate)
	return nil
}

// StopAndWait lets an in-flight pass finish its current step, then releases
// the route lock.
func (s *Scheduler) StopAndWait() {
	s.StopWaiter.StopAndWait()
	s.releaseLock()
}

func (s *Scheduler) releaseLock() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.lock.Release(ctx); err != nil {
		log.Error("Failed to release route lock", "err", err)
	}
}

// lockLost stops the scheduler and reports err on Fatal.
func (s *Scheduler) lockLost(err error) {
	log.Error("Route lock lost, stopping", "err", err)
	select {
	case s.fatal <- err:
	default:
	}
	s.StopOnly()
}

// keepLock refreshes an expiring lock while passes sleep between epochs.
func (s *Scheduler) keepLock(ctx context.Context, interval time.Duration) time.Duration {
	err := s.lock.Refresh(ctx)
	if errors.Is(err, routestate.ErrLockLost) {
		s.lockLost(err)
		return 0
	}
	if err != nil && ctx.Err() == nil {
		log.Warn("Failed to refresh route lock", "err", err)
	}
	return interval
}

func (s *Scheduler) iterate(ctx context.Context) time.Duration {
	if err := s.RunPass(ctx); err != nil {
		if errors.Is(err, routestate.ErrLockLost) {
			s.lockLost(err)
			return 0
		}
		if ctx.Err() == nil {
			log.Warn("Pass did not complete", "err", err)
		}
	}
	timing, err := s.outbox.Timing(ctx)
	if err != nil {
		log.Warn("Could not read epoch period, retrying", "err", err)
		return s.config.RetryInterval
	}
	period := protocol.EpochPeriod(timing.EpochPeriod)
	if period.Validate() != nil {
		return s.config.RetryInterval
	}
	now := s.timeRef.Get()
	wait := period.UntilNextBoundary(now, s.config.EpochMargin)
	log.Debug("Sleeping until next epoch", "epoch", period.EpochAt(now)+1, "wait", wait)
	return wait
}

// RunPass runs every duty once. Duty failures are logged and do not stop the
// others; the cursor is saved and the heartbeat sent only when all succeed.
func (s *Scheduler) RunPass(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.lock.Refresh(ctx); err != nil {
		return err
	}
	passesCounter.Inc(1)
	var errs []error
	if s.duties.Monitor != nil {
		if err := s.duties.Monitor.Check(ctx); err != nil {
			log.Warn("Claim check failed", "err", err)
			errs = append(errs, err)
		}
	}
	if s.duties.Agent != nil {
		if err := s.duties.Agent.Act(ctx); err != nil {
			log.Warn("Bridger duties failed", "err", err)
			errs = append(errs, err)
		}
	}
	start := s.nonce.Load()
	next := start
	if s.duties.Relayer != nil {
		var err error
		next, err = s.duties.Relayer.RelayBatch(ctx, start, s.duties.MaxBatchSize)
		if err != nil {
			log.Warn("Relaying failed", "from", start, "reached", next, "err", err)
			errs = append(errs, err)
		}
		if next > start {
			s.nonce.Store(next)
		}
	}
	if next > start || len(errs) == 0 {
		if err := s.cursor.Save(s.nonce.Load()); err != nil {
			log.Error("Failed to save cursor", "path", s.cursor.Path(), "err", err)
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		failedPassesCounter.Inc(1)
		return errors.Join(errs...)
	}
	log.Info("Pass complete", "nonce", s.nonce.Load())
	if s.beat != nil {
		if err := s.beat.Ping(ctx); err != nil {
			log.Warn("Heartbeat failed", "err", err)
		}
	}
	return nil
}
