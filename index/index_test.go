// Copyright 2024, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/epoch-bridge/blob/master/LICENSE

package index

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/offchainlabs/epoch-bridge/protocol"
	"github.com/offchainlabs/epoch-bridge/util/merkletree"
)

var (
	testInbox  = common.HexToAddress("0x00000000000000000000000000000000000000AA")
	testOutbox = common.HexToAddress("0x00000000000000000000000000000000000000BB")
)

func newTestServer(t *testing.T, handle func(req graphQLRequest) string) *GraphQLClient {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		var req graphQLRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(handle(req)))
	}))
	t.Cleanup(server.Close)
	client, err := NewGraphQLClient(&Config{URL: server.URL, Timeout: time.Second}, testInbox, testOutbox)
	require.NoError(t, err)
	return client
}

func TestNodeIDIsRouteScoped(t *testing.T) {
	var gotID interface{}
	client := newTestServer(t, func(req graphQLRequest) string {
		gotID = req.Variables["id"]
		return `{"data":{"node":{"hash":"0x0000000000000000000000000000000000000000000000000000000000000007"}}}`
	})
	h, err := client.NodeHash(context.Background(), merkletree.RangeKey(4, 6))
	require.NoError(t, err)
	require.Equal(t, common.HexToHash("0x07"), h)
	require.Equal(t, "0x00000000000000000000000000000000000000aa-4,6", gotID)
}

func TestMissingEntitiesAreNotFound(t *testing.T) {
	client := newTestServer(t, func(req graphQLRequest) string {
		switch {
		case strings.Contains(req.Query, "node("):
			return `{"data":{"node":null}}`
		case strings.Contains(req.Query, "snapshots("):
			return `{"data":{"snapshots":[]}}`
		default:
			return `{"data":{"messageSents":[]}}`
		}
	})
	ctx := context.Background()
	_, err := client.NodeHash(ctx, merkletree.SingleKey(3))
	require.ErrorIs(t, err, ErrNotFound)
	_, err = client.SnapshotCount(ctx, common.HexToHash("0x01"))
	require.ErrorIs(t, err, ErrNotFound)
	_, err = client.MessagePayload(ctx, 5)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMessagePayloadAndSnapshotCount(t *testing.T) {
	client := newTestServer(t, func(req graphQLRequest) string {
		if strings.Contains(req.Query, "snapshots(") {
			require.Equal(t, "0x00000000000000000000000000000000000000aa", req.Variables["inbox"])
			return `{"data":{"snapshots":[{"numberMessages":"15"}]}}`
		}
		require.Equal(t, "5", req.Variables["nonce"])
		return `{"data":{"messageSents":[{"nonce":"5","to":"0x00000000000000000000000000000000000000cc","msgSender":"0x00000000000000000000000000000000000000dd","data":"0xdead"}]}}`
	})
	ctx := context.Background()
	count, err := client.SnapshotCount(ctx, common.HexToHash("0x01"))
	require.NoError(t, err)
	require.Equal(t, uint64(15), count)

	msg, err := client.MessagePayload(ctx, 5)
	require.NoError(t, err)
	require.Equal(t, uint64(5), msg.Nonce)
	require.Equal(t, common.HexToAddress("0xcc"), msg.To)
	require.Equal(t, common.HexToAddress("0xdd"), msg.Sender)
	require.Equal(t, []byte{0xde, 0xad}, []byte(msg.Data))
}

func TestClaimsQuery(t *testing.T) {
	client := newTestServer(t, func(req graphQLRequest) string {
		require.Equal(t, "3", req.Variables["from"])
		require.Equal(t, "9", req.Variables["to"])
		return `{"data":{"claims":[
			{"epoch":"4","stateRoot":"0x0000000000000000000000000000000000000000000000000000000000000001","claimer":"0x00000000000000000000000000000000000000c1","timestampClaimed":"100","timestampVerification":"0","blocknumberVerification":"0","honest":"None","challenger":null},
			{"epoch":"5","stateRoot":"0x0000000000000000000000000000000000000000000000000000000000000002","claimer":"0x00000000000000000000000000000000000000c1","timestampClaimed":"200","timestampVerification":"300","blocknumberVerification":"17","honest":"Challenger","challenger":"0x00000000000000000000000000000000000000c2"}
		]}}`
	})
	records, err := client.Claims(context.Background(), 3, 9)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, uint64(4), records[0].Epoch)
	require.False(t, records[0].Claim.IsChallenged())
	require.Equal(t, protocol.PartyChallenger, records[1].Claim.Honest)
	require.Equal(t, uint32(17), records[1].Claim.BlockNumberVerification)
	require.Equal(t, common.HexToAddress("0xc2"), records[1].Claim.Challenger)
}

func TestQueryErrors(t *testing.T) {
	client := newTestServer(t, func(graphQLRequest) string {
		return `{"errors":[{"message":"indexing behind"}]}`
	})
	_, err := client.NodeHash(context.Background(), merkletree.SingleKey(0))
	require.ErrorContains(t, err, "indexing behind")
	require.NotErrorIs(t, err, ErrNotFound)

	_, err = NewGraphQLClient(&Config{URL: "localhost:8000", Timeout: time.Second}, testInbox, testOutbox)
	require.Error(t, err)
}

func TestMemoryServesValidProofs(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	for i := 0; i < 11; i++ {
		mem.AddMessage(common.HexToAddress("0xcc"), common.HexToAddress("0xdd"), []byte{byte(i)})
	}
	snap, err := mem.SaveSnapshot()
	require.NoError(t, err)
	require.Equal(t, uint64(11), snap.Count)

	count, err := mem.SnapshotCount(ctx, snap.StateRoot)
	require.NoError(t, err)
	require.Equal(t, uint64(11), count)

	for nonce := uint64(0); nonce < count; nonce++ {
		msg, err := mem.MessagePayload(ctx, nonce)
		require.NoError(t, err)
		var proof []common.Hash
		for _, key := range merkletree.ProofIndices(nonce, count) {
			h, err := mem.NodeHash(ctx, key)
			require.NoError(t, err)
			proof = append(proof, h)
		}
		require.Equal(t, snap.StateRoot, merkletree.RootFromProof(msg.Leaf(), proof), "nonce %d", nonce)
	}

	_, err = mem.MessagePayload(ctx, 11)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryClaimsRange(t *testing.T) {
	mem := NewMemory()
	mem.RecordClaim(7, protocol.Claim{StateRoot: common.HexToHash("0x07")})
	mem.RecordClaim(3, protocol.Claim{StateRoot: common.HexToHash("0x03")})
	mem.RecordClaim(12, protocol.Claim{StateRoot: common.HexToHash("0x0c")})
	records, err := mem.Claims(context.Background(), 3, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, uint64(3), records[0].Epoch)
	require.Equal(t, uint64(7), records[1].Epoch)
}
