// Copyright 2024, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/epoch-bridge/blob/master/LICENSE

package confighelpers

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/providers/structs"
	flag "github.com/spf13/pflag"
)

// ErrVersion is returned by BeginCommonParse when --version was given.
var ErrVersion = errors.New("version requested")

// BeginCommonParse layers, lowest priority first: flag defaults, --conf.file
// JSON files, --conf.string, environment variables under --conf.env-prefix,
// then flags given on the command line.
func BeginCommonParse(f *flag.FlagSet, args []string) (*koanf.Koanf, error) {
	f.Bool("version", false, "print version and exit")
	if err := f.Parse(args); err != nil {
		return nil, err
	}
	if f.NArg() != 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", f.Args())
	}
	if version, _ := f.GetBool("version"); version {
		return nil, ErrVersion
	}

	k := koanf.New(".")
	files, err := f.GetStringSlice("conf.file")
	if err != nil {
		return nil, err
	}
	for _, path := range files {
		if err := k.Load(file.Provider(path), json.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config file %s: %w", path, err)
		}
	}
	if confString, _ := f.GetString("conf.string"); confString != "" {
		if err := k.Load(rawbytes.Provider([]byte(confString)), json.Parser()); err != nil {
			return nil, fmt.Errorf("error loading --conf.string: %w", err)
		}
	}
	if envPrefix, _ := f.GetString("conf.env-prefix"); envPrefix != "" {
		if err := loadEnv(k, f, envPrefix); err != nil {
			return nil, err
		}
	}
	// Unchanged flags only fill in keys nothing above has set.
	if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
		return nil, fmt.Errorf("error loading command line: %w", err)
	}
	return k, nil
}

// loadEnv maps PREFIX_RELAY_MAX__BATCH__SIZE to relay.max-batch-size. Only
// variables naming a known flag are loaded.
func loadEnv(k *koanf.Koanf, f *flag.FlagSet, envPrefix string) error {
	prefix := strings.ToUpper(envPrefix) + "_"
	return k.Load(env.ProviderWithValue(prefix, ".", func(key string, value string) (string, interface{}) {
		name := strings.ToLower(strings.TrimPrefix(key, prefix))
		name = strings.ReplaceAll(name, "__", "-")
		name = strings.ReplaceAll(name, "_", ".")
		flagDef := f.Lookup(name)
		if flagDef == nil {
			return "", nil
		}
		if strings.HasSuffix(flagDef.Value.Type(), "Slice") {
			return name, strings.Split(value, ",")
		}
		return name, value
	}), nil)
}

// EndCommonParse decodes the layered configuration into config.
func EndCommonParse(k *koanf.Koanf, config interface{}) error {
	return k.UnmarshalWithConf("", config, koanf.UnmarshalConf{Tag: "koanf"})
}

// DumpConfig prints config as JSON. Callers redact secrets before passing it.
func DumpConfig(config interface{}) error {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(config, "koanf"), nil); err != nil {
		return fmt.Errorf("error loading config to dump: %w", err)
	}
	data, err := k.Marshal(json.Parser())
	if err != nil {
		return fmt.Errorf("unable to marshal config: %w", err)
	}
	_, err = fmt.Fprintln(os.Stdout, string(data))
	return err
}
