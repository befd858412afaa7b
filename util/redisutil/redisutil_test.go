// Copyright 2024, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/epoch-bridge/blob/master/LICENSE

package redisutil

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRedisClientFromURL(t *testing.T) {
	client, err := RedisClientFromURL("")
	require.NoError(t, err)
	require.Nil(t, client)

	redisUrl, _ := CreateTestRedis(t)
	client, err = RedisClientFromURL(redisUrl)
	require.NoError(t, err)
	defer client.Close()
	require.NoError(t, client.Ping(context.Background()).Err())

	_, err = RedisClientFromURL("redis://[::1")
	require.Error(t, err)
}

func TestParseFailoverRedisUrl(t *testing.T) {
	u, err := url.Parse("redis+sentinel://user:pass@h1:26379,h2/mymaster/3")
	require.NoError(t, err)
	opts, err := parseFailoverRedisUrl(u)
	require.NoError(t, err)
	require.Equal(t, []string{"h1:26379", "h2:6379"}, opts.SentinelAddrs)
	require.Equal(t, "mymaster", opts.MasterName)
	require.Equal(t, 3, opts.DB)
	require.Equal(t, "user", opts.SentinelUsername)
	require.Equal(t, "pass", opts.SentinelPassword)

	u, err = url.Parse("redis+sentinel://h1")
	require.NoError(t, err)
	_, err = parseFailoverRedisUrl(u)
	require.Error(t, err)
}
