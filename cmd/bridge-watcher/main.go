// Copyright 2024, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/epoch-bridge/blob/master/LICENSE

// bridge-watcher runs the off-chain duties of one bridge route: it challenges
// bad claims, optionally makes and verifies its own, and relays messages
// under the verified state root.
package main

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	"github.com/redis/go-redis/v9"

	"github.com/offchainlabs/epoch-bridge/claims"
	"github.com/offchainlabs/epoch-bridge/cmd/genericconf"
	"github.com/offchainlabs/epoch-bridge/cmd/util"
	"github.com/offchainlabs/epoch-bridge/cmd/util/confighelpers"
	"github.com/offchainlabs/epoch-bridge/index"
	solimpl "github.com/offchainlabs/epoch-bridge/protocol/sol-implementation"
	"github.com/offchainlabs/epoch-bridge/proofs"
	"github.com/offchainlabs/epoch-bridge/relayer"
	"github.com/offchainlabs/epoch-bridge/routestate"
	"github.com/offchainlabs/epoch-bridge/scheduler"
	utilTime "github.com/offchainlabs/epoch-bridge/time"
	"github.com/offchainlabs/epoch-bridge/util/redisutil"
)

// Disputes are remembered for longer than any lookback window.
const trackedDisputeEpochs = 1024

func main() {
	os.Exit(mainImpl())
}

func printSampleUsage(progname string) {
	fmt.Printf("\n")
	fmt.Printf("Sample usage:                  %s --help \n", progname)
	fmt.Printf("\n")
}

// Returns the exit code.
func mainImpl() int {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	config, err := ParseWatcherConfig(os.Args[1:])
	if errors.Is(err, confighelpers.ErrVersion) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing config: %v\n", err)
		printSampleUsage(os.Args[0])
		return 1
	}
	if config.Conf.Dump {
		if err := confighelpers.DumpConfig(config.Redacted()); err != nil {
			fmt.Fprintf(os.Stderr, "Error dumping config: %v\n", err)
			return 1
		}
		return 0
	}

	if err := genericconf.InitLog(config.LogType, config.LogLevel, &config.FileLogging, genericconf.DefaultPathResolver(config.StateDir)); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logging: %v\n", err)
		return 1
	}
	defer func() {
		if err := genericconf.CloseLog(); err != nil {
			fmt.Fprintf(os.Stderr, "Error closing log: %v\n", err)
		}
	}()

	if err := config.Validate(); err != nil {
		log.Error("Invalid config", "err", err)
		return 1
	}
	if err := util.StartMetrics(&util.MetricsOpts{Metrics: config.Metrics, MetricsServer: config.MetricsServer}); err != nil {
		log.Error("Error starting metrics", "err", err)
		return 1
	}

	conns := &connections{}
	defer conns.Close()
	sched, err := setup(ctx, config, conns)
	if err != nil {
		log.Error("Failed to start bridge watcher", "route", config.Route(), "err", err)
		return 1
	}
	log.Info("Bridge watcher started", "route", config.Route(), "nonce", sched.Nonce())

	exitCode := 0
	select {
	case <-ctx.Done():
		log.Info("Shutting down bridge watcher")
	case err := <-sched.Fatal():
		log.Error("Bridge watcher stopped", "err", err)
		exitCode = 1
	}
	sched.StopAndWait()
	return exitCode
}

func dialChain(ctx context.Context, name, url string, expected uint64, timeout time.Duration) (*ethclient.Client, *big.Int, error) {
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	client, err := ethclient.DialContext(dialCtx, url)
	if err != nil {
		return nil, nil, fmt.Errorf("dialing %s chain: %w", name, err)
	}
	chainID, err := client.ChainID(dialCtx)
	if err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("reading %s chain id: %w", name, err)
	}
	if expected != 0 && chainID.Uint64() != expected {
		client.Close()
		return nil, nil, fmt.Errorf("%s chain id is %v, expected %d", name, chainID, expected)
	}
	return client, chainID, nil
}

// connections are the clients setup opened. Close may be called after a
// partial setup.
type connections struct {
	source      *ethclient.Client
	destination *ethclient.Client
	redis       redis.UniversalClient
}

func (c *connections) Close() {
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			log.Warn("Error closing redis client", "err", err)
		}
	}
	if c.destination != nil {
		c.destination.Close()
	}
	if c.source != nil {
		c.source.Close()
	}
}

// setup builds and starts the scheduler. Clients are recorded in conns as
// they are opened, so the caller closes them even when setup fails.
func setup(ctx context.Context, config *WatcherConfig, conns *connections) (*scheduler.Scheduler, error) {
	source, sourceID, err := dialChain(ctx, "source", config.Source.URL, config.Source.ChainID, config.Destination.DialTimeout)
	if err != nil {
		return nil, err
	}
	conns.source = source
	destination, destID, err := dialChain(ctx, "destination", config.Destination.URL, config.Destination.ChainID, config.Destination.DialTimeout)
	if err != nil {
		return nil, err
	}
	conns.destination = destination

	var sourceOpts, destOpts *bind.TransactOpts
	if sourceOpts, err = config.Wallet.TransactOpts(sourceID); err != nil {
		return nil, fmt.Errorf("loading wallet: %w", err)
	}
	if destOpts, err = config.Wallet.TransactOpts(destID); err != nil {
		return nil, fmt.Errorf("loading wallet: %w", err)
	}
	self := destOpts.From
	log.Info("Loaded wallet", "address", self)

	outboxAddr := common.HexToAddress(config.Destination.Outbox)
	inboxAddr := common.HexToAddress(config.Source.Inbox)
	outbox, err := solimpl.NewOutbox(outboxAddr, destination, destOpts, config.Destination.MinVerificationBlocks)
	if err != nil {
		return nil, err
	}
	inbox, err := solimpl.NewInbox(inboxAddr, source, sourceOpts)
	if err != nil {
		return nil, err
	}
	if err := claims.CheckClaimHashing(ctx, outbox); err != nil {
		return nil, err
	}

	idx, err := index.NewGraphQLClient(&config.Index, inboxAddr, outboxAddr)
	if err != nil {
		return nil, err
	}

	timeRef := utilTime.NewRealTimeReference()
	var duties scheduler.Duties
	if config.Challenger.Enable {
		disputes := routestate.NewDisputeStore(config.StateDir, config.Route(), trackedDisputeEpochs)
		monitor, err := claims.NewMonitor(outbox, inbox, idx, disputes, self, timeRef, config.Challenger.LookbackEpochs)
		if err != nil {
			return nil, err
		}
		duties.Monitor = monitor
	}
	if config.Claimer.Enable {
		agent, err := claims.NewAgent(outbox, inbox, idx, self, timeRef, config.Claimer.LookbackEpochs)
		if err != nil {
			return nil, err
		}
		duties.Agent = agent
	}
	if config.Relay.Enable {
		proofService, err := proofs.NewService(idx, config.ProofCacheSize)
		if err != nil {
			return nil, err
		}
		batcher, err := solimpl.NewBatcher(common.HexToAddress(config.Destination.Batcher), destination, destOpts)
		if err != nil {
			return nil, err
		}
		duties.Relayer = relayer.NewRelayer(outbox, idx, proofService, batcher)
		duties.MaxBatchSize = config.Relay.MaxBatchSize
	}

	route := config.Route()
	if err := os.MkdirAll(config.StateDir, 0o755); err != nil {
		return nil, err
	}
	redisClient, err := redisutil.RedisClientFromURL(config.Lock.RedisURL)
	if err != nil {
		return nil, err
	}
	conns.redis = redisClient
	var lock routestate.Locker
	if redisClient != nil {
		if lock, err = routestate.NewRedisLock(redisClient, route, config.Lock.Lease); err != nil {
			return nil, err
		}
	} else {
		lock = routestate.NewFileLock(config.StateDir, route)
	}

	cursor := routestate.NewCursorStore(config.StateDir, route, timeRef)
	sched, err := scheduler.New(config.Scheduler, outbox, duties, cursor, lock, timeRef)
	if err != nil {
		return nil, err
	}
	if err := sched.Start(ctx); err != nil {
		if errors.Is(err, routestate.ErrLockHeld) {
			return nil, fmt.Errorf("route %s is already being run by another process: %w", route, err)
		}
		return nil, err
	}
	return sched, nil
}
