// Copyright 2024, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/epoch-bridge/blob/master/LICENSE

package routestate

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/offchainlabs/epoch-bridge/protocol"
	utilTime "github.com/offchainlabs/epoch-bridge/time"
	"github.com/offchainlabs/epoch-bridge/util/redisutil"
)

var testRoute = protocol.Route{Network: "devnet", ChainID: 421614}

func TestCursorRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")
	ref := utilTime.NewArtificialTimeReference()
	ref.Set(time.Unix(1_700_000_000, 0))
	store := NewCursorStore(dir, testRoute, ref)
	require.Equal(t, filepath.Join(dir, "devnet_421614.json"), store.Path())

	_, found, err := store.Load()
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, store.Save(42))

	// A new store stands in for a restarted process.
	restarted := NewCursorStore(dir, testRoute, nil)
	cursor, found, err := restarted.Load()
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(42), cursor.Nonce)
	require.Equal(t, int64(1_700_000_000), cursor.Timestamp)

	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	require.JSONEq(t, `{"ts":1700000000,"nonce":42}`, string(data))

	require.NoError(t, store.Save(43))
	cursor, _, err = store.Load()
	require.NoError(t, err)
	require.Equal(t, uint64(43), cursor.Nonce)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary files left behind")
}

func TestCursorCorrupt(t *testing.T) {
	dir := t.TempDir()
	store := NewCursorStore(dir, testRoute, nil)
	require.NoError(t, os.WriteFile(store.Path(), []byte("{nonce"), 0o644))
	_, _, err := store.Load()
	require.Error(t, err)
}

func TestFileLockExcludes(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "state")
	lock := NewFileLock(dir, testRoute)
	require.Equal(t, filepath.Join(dir, "devnet_421614.pid"), lock.Path())

	require.NoError(t, lock.Acquire(ctx))
	data, err := os.ReadFile(lock.Path())
	require.NoError(t, err)
	require.Equal(t, strconv.Itoa(os.Getpid()), string(data))
	require.NoError(t, lock.Refresh(ctx))

	other := NewFileLock(dir, testRoute)
	require.ErrorIs(t, other.Acquire(ctx), ErrLockHeld)
	require.ErrorIs(t, lock.Acquire(ctx), ErrLockHeld)
	// The failed attempts left the holder's file alone.
	data, err = os.ReadFile(lock.Path())
	require.NoError(t, err)
	require.Equal(t, strconv.Itoa(os.Getpid()), string(data))

	require.NoError(t, lock.Release(ctx))
	require.NoError(t, lock.Release(ctx))
	require.NoFileExists(t, lock.Path())

	require.NoError(t, other.Acquire(ctx))
	require.NoError(t, other.Release(ctx))
}

func TestFileLockReleaseAfterRemoval(t *testing.T) {
	ctx := context.Background()
	lock := NewFileLock(t.TempDir(), testRoute)
	require.NoError(t, lock.Acquire(ctx))
	require.NoError(t, os.Remove(lock.Path()))
	require.ErrorIs(t, lock.Refresh(ctx), ErrLockLost)
	require.NoError(t, lock.Release(ctx))
}

func TestFileLockLeavesReplacedFile(t *testing.T) {
	ctx := context.Background()
	lock := NewFileLock(t.TempDir(), testRoute)
	require.NoError(t, lock.Acquire(ctx))
	require.NoError(t, os.WriteFile(lock.Path(), []byte("1"), 0o644))
	require.ErrorIs(t, lock.Refresh(ctx), ErrLockLost)
	require.NoError(t, lock.Release(ctx))
	require.FileExists(t, lock.Path())
}

func TestRedisLock(t *testing.T) {
	ctx := context.Background()
	redisUrl, server := redisutil.CreateTestRedis(t)
	if server == nil {
		t.Skip("needs miniredis to move time")
	}
	client, err := redisutil.RedisClientFromURL(redisUrl)
	require.NoError(t, err)
	defer client.Close()

	lock, err := NewRedisLock(client, testRoute, time.Minute)
	require.NoError(t, err)
	other, err := NewRedisLock(client, testRoute, time.Minute)
	require.NoError(t, err)

	require.NoError(t, lock.Acquire(ctx))
	require.ErrorIs(t, other.Acquire(ctx), ErrLockHeld)
	require.NoError(t, lock.Refresh(ctx))

	// Release by a non-holder is a no-op and keeps the holder's key.
	require.NoError(t, other.Release(ctx))
	require.True(t, server.Exists(lock.Key()))

	require.NoError(t, lock.Release(ctx))
	require.NoError(t, lock.Release(ctx))
	require.False(t, server.Exists(lock.Key()))

	require.NoError(t, other.Acquire(ctx))
	server.FastForward(2 * time.Minute)
	require.ErrorIs(t, other.Refresh(ctx), ErrLockLost)
	require.NoError(t, lock.Acquire(ctx))
	// The expired holder must not delete the new holder's key.
	require.NoError(t, other.Release(ctx))
	require.True(t, server.Exists(lock.Key()))
}

func TestLockConfigValidate(t *testing.T) {
	cfg := DefaultLockConfig
	require.NoError(t, cfg.Validate())
	cfg.RedisURL = "redis://localhost:6379/0"
	cfg.Lease = time.Second
	require.Error(t, cfg.Validate())
	cfg.Lease = minLease
	require.NoError(t, cfg.Validate())
}

func TestLockRefreshInterval(t *testing.T) {
	require.Zero(t, NewFileLock(t.TempDir(), testRoute).RefreshInterval())
	lock, err := NewRedisLock(nil, testRoute, DefaultLockConfig.Lease)
	require.NoError(t, err)
	require.Equal(t, DefaultLockConfig.Lease/3, lock.RefreshInterval())
}

func TestDisputeStoreSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	claimHash := common.HexToHash("0xc1a1")
	store := NewDisputeStore(dir, testRoute, 10)
	sent, err := store.DisputeSent(5, claimHash)
	require.NoError(t, err)
	require.False(t, sent)
	require.NoError(t, store.MarkDisputeSent(5, claimHash))

	reopened := NewDisputeStore(dir, testRoute, 10)
	sent, err = reopened.DisputeSent(5, claimHash)
	require.NoError(t, err)
	require.True(t, sent)
	// A different claim for the same epoch was not disputed.
	sent, err = reopened.DisputeSent(5, common.HexToHash("0xbeef"))
	require.NoError(t, err)
	require.False(t, sent)

	require.NoError(t, reopened.MarkDisputeSent(16, claimHash))
	sent, err = NewDisputeStore(dir, testRoute, 10).DisputeSent(5, claimHash)
	require.NoError(t, err)
	require.False(t, sent, "epochs past the kept window are pruned")
}

func TestDisputeStoreRejectsCorruptFile(t *testing.T) {
	store := NewDisputeStore(t.TempDir(), testRoute, 10)
	require.NoError(t, os.WriteFile(store.Path(), []byte("{"), 0o644))
	_, err := store.DisputeSent(1, common.Hash{})
	require.ErrorContains(t, err, "corrupt disputes file")
}
