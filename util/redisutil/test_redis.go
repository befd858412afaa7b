// Copyright 2024, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/epoch-bridge/blob/master/LICENSE

package redisutil

import (
	"fmt"
	"os"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/offchainlabs/epoch-bridge/util/testhelpers"
)

// CreateTestRedis returns the external redis url in TEST_REDIS if set. Otherwise
// it starts a miniredis for the duration of the test and returns its url, with
// the server so tests can move its clock.
func CreateTestRedis(t *testing.T) (string, *miniredis.Miniredis) {
	if redisUrl := os.Getenv("TEST_REDIS"); redisUrl != "" {
		return redisUrl, nil
	}
	redisServer, err := miniredis.Run()
	testhelpers.RequireImpl(t, err)
	t.Cleanup(redisServer.Close)
	return fmt.Sprintf("redis://%s/0", redisServer.Addr()), redisServer
}
