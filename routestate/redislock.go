// Copyright 2024, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/epoch-bridge/blob/master/LICENSE

package routestate

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/redis/go-redis/v9"
	flag "github.com/spf13/pflag"

	"github.com/offchainlabs/epoch-bridge/protocol"
)

type LockConfig struct {
	// Empty selects the pid file lock in the state directory.
	RedisURL string        `koanf:"redis-url"`
	Lease    time.Duration `koanf:"lease"`
}

var DefaultLockConfig = LockConfig{
	RedisURL: "",
	Lease:    5 * time.Minute,
}

func LockConfigAddOptions(prefix string, f *flag.FlagSet) {
	f.String(prefix+".redis-url", DefaultLockConfig.RedisURL, "redis url for a leased route lock shared between hosts (empty uses a local pid file)")
	f.Duration(prefix+".lease", DefaultLockConfig.Lease, "how long the redis lock lives without being refreshed")
}

func (c *LockConfig) Validate() error {
	if c.RedisURL != "" && c.Lease < minLease {
		return fmt.Errorf("lock lease %v is shorter than %v", c.Lease, minLease)
	}
	return nil
}

const (
	lockKeyPrefix = "epoch-bridge.lock."
	minLease      = 3 * time.Second
)

// Both scripts only touch the key while it still holds our token.
var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
	refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// RedisLock is a leased lock that excludes processes on any host sharing the
// redis. The holder must Refresh it every RefreshInterval.
type RedisLock struct {
	mu     sync.Mutex
	client redis.UniversalClient
	key    string
	token  string
	lease  time.Duration
	held   bool
}

var _ Locker = (*RedisLock)(nil)

func NewRedisLock(client redis.UniversalClient, route protocol.Route, lease time.Duration) (*RedisLock, error) {
	var nonce [8]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, err
	}
	host, _ := os.Hostname()
	return &RedisLock{
		client: client,
		key:    lockKeyPrefix + route.String(),
		token:  fmt.Sprintf("%s:%d:%s", host, os.Getpid(), hex.EncodeToString(nonce[:])),
		lease:  lease,
	}, nil
}

func (l *RedisLock) Key() string {
	return l.key
}

// RefreshInterval leaves room for two failed refreshes before the lease runs
// out.
func (l *RedisLock) RefreshInterval() time.Duration {
	return l.lease / 3
}

func (l *RedisLock) Acquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return fmt.Errorf("%w: %s is already held by this process", ErrLockHeld, l.key)
	}
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.lease).Result()
	if err != nil {
		return err
	}
	if !ok {
		owner, err := l.client.Get(ctx, l.key).Result()
		if errors.Is(err, redis.Nil) {
			owner = "expired"
		} else if err != nil {
			owner = "unknown"
		}
		return fmt.Errorf("%w: %s (owner %s)", ErrLockHeld, l.key, owner)
	}
	l.held = true
	log.Info("Acquired route lock", "key", l.key, "token", l.token, "lease", l.lease)
	return nil
}

func (l *RedisLock) Refresh(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.held {
		return fmt.Errorf("%w: %s was never acquired", ErrLockLost, l.key)
	}
	res, err := refreshScript.Run(ctx, l.client, []string{l.key}, l.token, l.lease.Milliseconds()).Int64()
	if err != nil {
		return err
	}
	if res == 0 {
		l.held = false
		return fmt.Errorf("%w: %s", ErrLockLost, l.key)
	}
	return nil
}

func (l *RedisLock) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.held {
		return nil
	}
	l.held = false
	res, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Int64()
	if err != nil {
		return err
	}
	if res == 0 {
		log.Warn("Route lock had already expired", "key", l.key)
		return nil
	}
	log.Info("Released route lock", "key", l.key)
	return nil
}
