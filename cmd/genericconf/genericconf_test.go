// Copyright 2024, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/epoch-bridge/blob/master/LICENSE

package genericconf

import (
	"bytes"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"
)

func TestToSlogLevel(t *testing.T) {
	for input, want := range map[string]any{
		"trace": log.LevelTrace,
		"INFO":  log.LevelInfo,
		"crit":  log.LevelCrit,
		"3":     log.LevelInfo,
	} {
		got, err := ToSlogLevel(input)
		require.NoError(t, err, input)
		require.Equal(t, want, got, input)
	}
	_, err := ToSlogLevel("loud")
	require.Error(t, err)
	_, err = ToSlogLevel("9")
	require.Error(t, err)
}

func TestHandlerFromLogType(t *testing.T) {
	var buf bytes.Buffer
	handler, err := HandlerFromLogType("json", &buf)
	require.NoError(t, err)
	log.NewLogger(handler).Info("hello", "epoch", 3)
	require.Contains(t, buf.String(), `"epoch":3`)

	_, err = HandlerFromLogType("yaml", &buf)
	require.Error(t, err)
}

func TestInitLogWritesFile(t *testing.T) {
	previous := log.Root()
	defer log.SetDefault(previous)
	dir := t.TempDir()
	cfg := DefaultFileLoggingConfig
	cfg.Enable = true
	cfg.File = "watcher.log"
	require.NoError(t, InitLog("plaintext", "info", &cfg, DefaultPathResolver(dir)))
	log.Info("written to file", "nonce", 12)
	require.NoError(t, CloseLog())

	data, err := os.ReadFile(filepath.Join(dir, "watcher.log"))
	require.NoError(t, err)
	require.Contains(t, string(data), "written to file")

	require.Error(t, InitLog("plaintext", "nope", &DefaultFileLoggingConfig, DefaultPathResolver(dir)))
}

func TestWalletFromPrivateKey(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	w := WalletConfigDefault
	require.False(t, w.Configured())
	w.PrivateKey = hexutil.Encode(crypto.FromECDSA(key))
	require.True(t, w.Configured())

	opts, err := w.TransactOpts(big.NewInt(1))
	require.NoError(t, err)
	require.Equal(t, crypto.PubkeyToAddress(key.PublicKey), opts.From)
	require.Equal(t, "<redacted>", w.Redacted().PrivateKey)

	w.PrivateKey = "0xzz"
	_, err = w.TransactOpts(big.NewInt(1))
	require.Error(t, err)
}

func TestWalletFromKeystore(t *testing.T) {
	dir := t.TempDir()
	ks := keystore.NewKeyStore(dir, keystore.LightScryptN, keystore.LightScryptP)
	account, err := ks.NewAccount("secret")
	require.NoError(t, err)

	w := WalletConfigDefault
	w.Pathname = dir
	w.Password = "secret"
	opts, err := w.TransactOpts(big.NewInt(5))
	require.NoError(t, err)
	require.Equal(t, account.Address, opts.From)

	w.Password = "wrong"
	_, err = w.TransactOpts(big.NewInt(5))
	require.Error(t, err)
}
