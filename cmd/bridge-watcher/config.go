// Copyright 2024, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/epoch-bridge/blob/master/LICENSE

package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	flag "github.com/spf13/pflag"

	"github.com/offchainlabs/epoch-bridge/claims"
	"github.com/offchainlabs/epoch-bridge/cmd/genericconf"
	"github.com/offchainlabs/epoch-bridge/cmd/util/confighelpers"
	"github.com/offchainlabs/epoch-bridge/index"
	"github.com/offchainlabs/epoch-bridge/protocol"
	"github.com/offchainlabs/epoch-bridge/relayer"
	"github.com/offchainlabs/epoch-bridge/routestate"
	"github.com/offchainlabs/epoch-bridge/scheduler"
)

type SourceConfig struct {
	URL     string `koanf:"url"`
	ChainID uint64 `koanf:"chain-id"`
	Inbox   string `koanf:"inbox"`
}

var SourceConfigDefault = SourceConfig{}

func SourceConfigAddOptions(prefix string, f *flag.FlagSet) {
	f.String(prefix+".url", SourceConfigDefault.URL, "RPC URL of the chain messages are sent from")
	f.Uint64(prefix+".chain-id", SourceConfigDefault.ChainID, "expected chain id of the source chain (0 skips the check)")
	f.String(prefix+".inbox", SourceConfigDefault.Inbox, "address of the inbox contract")
}

type DestinationConfig struct {
	URL                   string        `koanf:"url"`
	ChainID               uint64        `koanf:"chain-id"`
	Outbox                string        `koanf:"outbox"`
	Batcher               string        `koanf:"batcher"`
	MinVerificationBlocks uint64        `koanf:"min-verification-blocks"`
	DialTimeout           time.Duration `koanf:"dial-timeout"`
}

var DestinationConfigDefault = DestinationConfig{
	MinVerificationBlocks: 0,
	DialTimeout:           30 * time.Second,
}

func DestinationConfigAddOptions(prefix string, f *flag.FlagSet) {
	f.String(prefix+".url", DestinationConfigDefault.URL, "RPC URL of the chain messages are relayed to")
	f.Uint64(prefix+".chain-id", DestinationConfigDefault.ChainID, "chain id of the destination chain; names the route's state files")
	f.String(prefix+".outbox", DestinationConfigDefault.Outbox, "address of the outbox contract")
	f.String(prefix+".batcher", DestinationConfigDefault.Batcher, "address of the transaction batcher contract")
	f.Uint64(prefix+".min-verification-blocks", DestinationConfigDefault.MinVerificationBlocks, "blocks that must pass between starting verification and verifying a snapshot")
	f.Duration(prefix+".dial-timeout", DestinationConfigDefault.DialTimeout, "timeout for connecting to either chain")
}

type WatcherConfig struct {
	Conf           genericconf.ConfConfig          `koanf:"conf"`
	LogLevel       string                          `koanf:"log-level"`
	LogType        string                          `koanf:"log-type"`
	FileLogging    genericconf.FileLoggingConfig   `koanf:"file-logging"`
	Network        string                          `koanf:"network"`
	StateDir       string                          `koanf:"state-dir"`
	Source         SourceConfig                    `koanf:"source"`
	Destination    DestinationConfig               `koanf:"destination"`
	Wallet         genericconf.WalletConfig        `koanf:"wallet"`
	Index          index.Config                    `koanf:"index"`
	ProofCacheSize int                             `koanf:"proof-cache-size"`
	Relay          relayer.Config                  `koanf:"relay"`
	Claimer        claims.RoleConfig               `koanf:"claimer"`
	Challenger     claims.RoleConfig               `koanf:"challenger"`
	Scheduler      scheduler.Config                `koanf:",squash"`
	Lock           routestate.LockConfig           `koanf:"lock"`
	Metrics        bool                            `koanf:"metrics"`
	MetricsServer  genericconf.MetricsServerConfig `koanf:"metrics-server"`
}

var WatcherConfigDefault = WatcherConfig{
	Conf:           genericconf.ConfConfigDefault,
	LogLevel:       "info",
	LogType:        "plaintext",
	FileLogging:    genericconf.DefaultFileLoggingConfig,
	Network:        "",
	StateDir:       "state",
	Source:         SourceConfigDefault,
	Destination:    DestinationConfigDefault,
	Wallet:         genericconf.WalletConfigDefault,
	Index:          index.DefaultConfig,
	ProofCacheSize: 4096,
	Relay:          relayer.DefaultConfig,
	Claimer:        claims.DefaultClaimerConfig,
	Challenger:     claims.DefaultChallengerConfig,
	Scheduler:      scheduler.DefaultConfig,
	Lock:           routestate.DefaultLockConfig,
	Metrics:        false,
	MetricsServer:  genericconf.MetricsServerConfigDefault,
}

func WatcherConfigAddOptions(f *flag.FlagSet) {
	genericconf.ConfConfigAddOptions("conf", f)
	f.String("log-level", WatcherConfigDefault.LogLevel, "log level, valid values are CRIT, ERROR, WARN, INFO, DEBUG, TRACE")
	f.String("log-type", WatcherConfigDefault.LogType, "log type (plaintext or json)")
	genericconf.FileLoggingConfigAddOptions("file-logging", f)
	f.String("network", WatcherConfigDefault.Network, "name of the bridge route, used with the destination chain id to name state files")
	f.String("state-dir", WatcherConfigDefault.StateDir, "directory holding the cursor and lock files")
	SourceConfigAddOptions("source", f)
	DestinationConfigAddOptions("destination", f)
	genericconf.WalletConfigAddOptions("wallet", f)
	index.ConfigAddOptions("index", f)
	f.Int("proof-cache-size", WatcherConfigDefault.ProofCacheSize, "number of tree node hashes to keep in memory")
	relayer.ConfigAddOptions("relay", f)
	claims.RoleConfigAddOptions("claimer", f, claims.DefaultClaimerConfig, "bridger (save snapshots, claim and verify them)")
	claims.RoleConfigAddOptions("challenger", f, claims.DefaultChallengerConfig, "challenger (dispute claims that disagree with the inbox)")
	scheduler.ConfigAddOptions(f)
	routestate.LockConfigAddOptions("lock", f)
	f.Bool("metrics", WatcherConfigDefault.Metrics, "enable metrics")
	genericconf.MetricsServerAddOptions("metrics-server", f)
}

func (c *WatcherConfig) Route() protocol.Route {
	return protocol.Route{Network: c.Network, ChainID: c.Destination.ChainID}
}

// Writes reports whether any enabled role sends transactions.
func (c *WatcherConfig) Writes() bool {
	return c.Relay.Enable || c.Claimer.Enable || c.Challenger.Enable
}

func validAddress(name, value string) error {
	if !common.IsHexAddress(value) || common.HexToAddress(value) == (common.Address{}) {
		return fmt.Errorf("%s must be a non-zero hex address; got %q", name, value)
	}
	return nil
}

func (c *WatcherConfig) Validate() error {
	if c.Network == "" {
		return errors.New("--network is required")
	}
	if c.Destination.ChainID == 0 {
		return errors.New("--destination.chain-id is required")
	}
	if c.Source.URL == "" || c.Destination.URL == "" {
		return errors.New("--source.url and --destination.url are required")
	}
	if err := validAddress("--source.inbox", c.Source.Inbox); err != nil {
		return err
	}
	if err := validAddress("--destination.outbox", c.Destination.Outbox); err != nil {
		return err
	}
	if c.Relay.Enable {
		if err := validAddress("--destination.batcher", c.Destination.Batcher); err != nil {
			return err
		}
	}
	if !c.Writes() {
		return errors.New("no role enabled; enable at least one of relay, claimer or challenger")
	}
	if !c.Wallet.Configured() {
		return errors.New("--wallet.private-key or --wallet.pathname is required to send transactions")
	}
	if c.ProofCacheSize <= 0 {
		return fmt.Errorf("--proof-cache-size must be positive; got %d", c.ProofCacheSize)
	}
	if err := c.Index.Validate(); err != nil {
		return err
	}
	if err := c.Relay.Validate(); err != nil {
		return err
	}
	if err := c.Scheduler.Validate(); err != nil {
		return err
	}
	return c.Lock.Validate()
}

// Redacted is a copy safe to print.
func (c WatcherConfig) Redacted() WatcherConfig {
	c.Wallet = c.Wallet.Redacted()
	return c
}

func ParseWatcherConfig(args []string) (*WatcherConfig, error) {
	f := flag.NewFlagSet("bridge-watcher", flag.ContinueOnError)
	WatcherConfigAddOptions(f)
	k, err := confighelpers.BeginCommonParse(f, args)
	if err != nil {
		return nil, err
	}
	var config WatcherConfig
	if err := confighelpers.EndCommonParse(k, &config); err != nil {
		return nil, err
	}
	return &config, nil
}
