// Copyright 2024, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/epoch-bridge/blob/master/LICENSE

// Package index queries the external indexer that stores emitted messages,
// tree nodes, snapshots and claims.
package index

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/metrics"
	flag "github.com/spf13/pflag"

	"github.com/offchainlabs/epoch-bridge/protocol"
	"github.com/offchainlabs/epoch-bridge/util/merkletree"
)

var ErrNotFound = protocol.ErrNotFound

var (
	queryCounter      = metrics.NewRegisteredCounter("index/queries", nil)
	queryErrorCounter = metrics.NewRegisteredCounter("index/queries/errors", nil)
)

type Config struct {
	URL     string        `koanf:"url"`
	Timeout time.Duration `koanf:"timeout"`
}

var DefaultConfig = Config{
	URL:     "",
	Timeout: 10 * time.Second,
}

func ConfigAddOptions(prefix string, f *flag.FlagSet) {
	f.String(prefix+".url", DefaultConfig.URL, "URL of the indexer's GraphQL endpoint")
	f.Duration(prefix+".timeout", DefaultConfig.Timeout, "timeout of a single indexer query")
}

func (c *Config) Validate() error {
	if !(strings.HasPrefix(c.URL, "http://") || strings.HasPrefix(c.URL, "https://")) {
		return fmt.Errorf("index url must start with 'http://' or 'https://'; got '%s'", c.URL)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("index timeout must be positive")
	}
	return nil
}

// GraphQLClient implements protocol.Index against a GraphQL indexer. Entities
// are scoped to the route's inbox and outbox so that one indexer can serve many
// routes.
type GraphQLClient struct {
	url    string
	inbox  string
	outbox string
	client *http.Client
}

var _ protocol.Index = (*GraphQLClient)(nil)

func (c *GraphQLClient) String() string {
	return fmt.Sprintf("GraphQL index client for %s", c.url)
}

func NewGraphQLClient(config *Config, inbox, outbox common.Address) (*GraphQLClient, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &GraphQLClient{
		url:    config.URL,
		inbox:  strings.ToLower(inbox.Hex()),
		outbox: strings.ToLower(outbox.Hex()),
		client: &http.Client{Timeout: config.Timeout},
	}, nil
}

// NodeID is the indexer's identifier for a tree node: the route's inbox
// address followed by the node's range key.
func NodeID(inbox string, key merkletree.NodeKey) string {
	return inbox + "-" + key.String()
}

type graphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (c *GraphQLClient) query(ctx context.Context, query string, vars map[string]interface{}, out interface{}) error {
	queryCounter.Inc(1)
	err := c.doQuery(ctx, query, vars, out)
	if err != nil {
		queryErrorCounter.Inc(1)
	}
	return err
}

func (c *GraphQLClient) doQuery(ctx context.Context, query string, vars map[string]interface{}, out interface{}) error {
	body, err := json.Marshal(graphQLRequest{Query: query, Variables: vars})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP error with status %d returned by index: %s", res.StatusCode, http.StatusText(res.StatusCode))
	}
	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	var response graphQLResponse
	if err := json.Unmarshal(raw, &response); err != nil {
		return err
	}
	if len(response.Errors) > 0 {
		return fmt.Errorf("index query failed: %s", response.Errors[0].Message)
	}
	return json.Unmarshal(response.Data, out)
}

const messageQuery = `query Message($inbox: String!, $nonce: BigInt!) {
  messageSents(first: 1, where: {inbox: $inbox, nonce: $nonce}) { nonce to msgSender data }
}`

func (c *GraphQLClient) MessagePayload(ctx context.Context, nonce uint64) (*protocol.Message, error) {
	var res struct {
		MessageSents []struct {
			Nonce     string         `json:"nonce"`
			To        common.Address `json:"to"`
			MsgSender common.Address `json:"msgSender"`
			Data      hexutil.Bytes  `json:"data"`
		} `json:"messageSents"`
	}
	vars := map[string]interface{}{"inbox": c.inbox, "nonce": strconv.FormatUint(nonce, 10)}
	if err := c.query(ctx, messageQuery, vars, &res); err != nil {
		return nil, err
	}
	if len(res.MessageSents) == 0 {
		return nil, fmt.Errorf("message %d: %w", nonce, ErrNotFound)
	}
	m := res.MessageSents[0]
	return &protocol.Message{Nonce: nonce, To: m.To, Sender: m.MsgSender, Data: m.Data}, nil
}

const nodeQuery = `query Node($id: ID!) { node(id: $id) { hash } }`

func (c *GraphQLClient) NodeHash(ctx context.Context, key merkletree.NodeKey) (common.Hash, error) {
	var res struct {
		Node *struct {
			Hash common.Hash `json:"hash"`
		} `json:"node"`
	}
	if err := c.query(ctx, nodeQuery, map[string]interface{}{"id": NodeID(c.inbox, key)}, &res); err != nil {
		return common.Hash{}, err
	}
	if res.Node == nil {
		return common.Hash{}, fmt.Errorf("node %s: %w", key, ErrNotFound)
	}
	return res.Node.Hash, nil
}

const snapshotQuery = `query Snapshot($inbox: String!, $root: Bytes!) {
  snapshots(first: 1, where: {inbox: $inbox, stateRoot: $root}) { numberMessages }
}`

func (c *GraphQLClient) SnapshotCount(ctx context.Context, stateRoot common.Hash) (uint64, error) {
	var res struct {
		Snapshots []struct {
			NumberMessages string `json:"numberMessages"`
		} `json:"snapshots"`
	}
	vars := map[string]interface{}{"inbox": c.inbox, "root": stateRoot.Hex()}
	if err := c.query(ctx, snapshotQuery, vars, &res); err != nil {
		return 0, err
	}
	if len(res.Snapshots) == 0 {
		return 0, fmt.Errorf("snapshot %v: %w", stateRoot, ErrNotFound)
	}
	return strconv.ParseUint(res.Snapshots[0].NumberMessages, 10, 64)
}

const claimsQuery = `query Claims($outbox: String!, $from: BigInt!, $to: BigInt!) {
  claims(where: {outbox: $outbox, epoch_gte: $from, epoch_lte: $to}, orderBy: epoch, orderDirection: asc) {
    epoch stateRoot claimer timestampClaimed timestampVerification blocknumberVerification honest challenger
  }
}`

type claimEntity struct {
	Epoch                   string          `json:"epoch"`
	StateRoot               common.Hash     `json:"stateRoot"`
	Claimer                 common.Address  `json:"claimer"`
	TimestampClaimed        string          `json:"timestampClaimed"`
	TimestampVerification   string          `json:"timestampVerification"`
	BlocknumberVerification string          `json:"blocknumberVerification"`
	Honest                  string          `json:"honest"`
	Challenger              *common.Address `json:"challenger"`
}

func parseUint32(s string) (uint32, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(s, 10, 32)
	return uint32(v), err
}

func parseParty(s string) (protocol.Party, error) {
	switch strings.ToLower(s) {
	case "", "none", "0":
		return protocol.PartyNone, nil
	case "claimer", "1":
		return protocol.PartyClaimer, nil
	case "challenger", "2":
		return protocol.PartyChallenger, nil
	default:
		return protocol.PartyNone, fmt.Errorf("unknown honest party %q", s)
	}
}

func (e *claimEntity) record() (protocol.ClaimRecord, error) {
	epoch, err := strconv.ParseUint(e.Epoch, 10, 64)
	if err != nil {
		return protocol.ClaimRecord{}, fmt.Errorf("bad claim epoch %q: %w", e.Epoch, err)
	}
	claim := protocol.Claim{StateRoot: e.StateRoot, Claimer: e.Claimer}
	if claim.TimestampClaimed, err = parseUint32(e.TimestampClaimed); err != nil {
		return protocol.ClaimRecord{}, err
	}
	if claim.TimestampVerification, err = parseUint32(e.TimestampVerification); err != nil {
		return protocol.ClaimRecord{}, err
	}
	if claim.BlockNumberVerification, err = parseUint32(e.BlocknumberVerification); err != nil {
		return protocol.ClaimRecord{}, err
	}
	if claim.Honest, err = parseParty(e.Honest); err != nil {
		return protocol.ClaimRecord{}, err
	}
	if e.Challenger != nil {
		claim.Challenger = *e.Challenger
	}
	return protocol.ClaimRecord{Epoch: epoch, Claim: claim}, nil
}

func (c *GraphQLClient) Claims(ctx context.Context, fromEpoch, toEpoch uint64) ([]protocol.ClaimRecord, error) {
	var res struct {
		Claims []claimEntity `json:"claims"`
	}
	vars := map[string]interface{}{
		"outbox": c.outbox,
		"from":   strconv.FormatUint(fromEpoch, 10),
		"to":     strconv.FormatUint(toEpoch, 10),
	}
	if err := c.query(ctx, claimsQuery, vars, &res); err != nil {
		return nil, err
	}
	records := make([]protocol.ClaimRecord, 0, len(res.Claims))
	for i := range res.Claims {
		r, err := res.Claims[i].record()
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, nil
}
