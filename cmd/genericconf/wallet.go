// Copyright 2024, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/epoch-bridge/blob/master/LICENSE

package genericconf

import (
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	flag "github.com/spf13/pflag"
)

const PASSWORD_NOT_SET = "PASSWORD_NOT_SET"

type WalletConfig struct {
	PrivateKey string `koanf:"private-key"`
	Pathname   string `koanf:"pathname"`
	Password   string `koanf:"password"`
	Account    string `koanf:"account"`
}

var WalletConfigDefault = WalletConfig{
	PrivateKey: "",
	Pathname:   "",
	Password:   PASSWORD_NOT_SET,
	Account:    "",
}

func WalletConfigAddOptions(prefix string, f *flag.FlagSet) {
	f.String(prefix+".private-key", WalletConfigDefault.PrivateKey, "hex private key to sign transactions with")
	f.String(prefix+".pathname", WalletConfigDefault.Pathname, "keystore directory, used when no private key is given")
	f.String(prefix+".password", WalletConfigDefault.Password, "keystore passphrase")
	f.String(prefix+".account", WalletConfigDefault.Account, "keystore account to use (default is first account in keystore)")
}

func (w *WalletConfig) Configured() bool {
	return w.PrivateKey != "" || w.Pathname != ""
}

// Redacted is a copy safe to print.
func (w WalletConfig) Redacted() WalletConfig {
	if w.PrivateKey != "" {
		w.PrivateKey = "<redacted>"
	}
	if w.Password != PASSWORD_NOT_SET {
		w.Password = "<redacted>"
	}
	return w
}

// TransactOpts opens the configured key for signing on chainID.
func (w *WalletConfig) TransactOpts(chainID *big.Int) (*bind.TransactOpts, error) {
	if w.PrivateKey != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(w.PrivateKey, "0x"))
		if err != nil {
			return nil, errors.New("invalid wallet private key")
		}
		return bind.NewKeyedTransactorWithChainID(key, chainID)
	}
	if w.Pathname == "" {
		return nil, errors.New("no wallet private key or keystore configured")
	}
	ks := keystore.NewKeyStore(w.Pathname, keystore.StandardScryptN, keystore.StandardScryptP)
	var account accounts.Account
	if w.Account == "" {
		if len(ks.Accounts()) == 0 {
			return nil, errors.New("keystore empty")
		}
		account = ks.Accounts()[0]
	} else {
		var err error
		account, err = ks.Find(accounts.Account{Address: common.HexToAddress(w.Account)})
		if err != nil {
			return nil, err
		}
	}
	passphrase := ""
	if w.Password != PASSWORD_NOT_SET {
		passphrase = w.Password
	}
	if err := ks.Unlock(account, passphrase); err != nil {
		return nil, err
	}
	return bind.NewKeyStoreTransactorWithChainID(ks, account, chainID)
}
