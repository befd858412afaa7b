// Copyright 2024, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/epoch-bridge/blob/master/LICENSE

package genericconf

import (
	"time"

	flag "github.com/spf13/pflag"
)

// ConfConfig names the configuration sources layered under command line flags.
type ConfConfig struct {
	Dump      bool     `koanf:"dump"`
	EnvPrefix string   `koanf:"env-prefix"`
	File      []string `koanf:"file"`
	String    string   `koanf:"string"`
}

func ConfConfigAddOptions(prefix string, f *flag.FlagSet) {
	f.Bool(prefix+".dump", ConfConfigDefault.Dump, "print the merged configuration as JSON and exit")
	f.String(prefix+".env-prefix", ConfConfigDefault.EnvPrefix, "load configuration from environment variables starting with this prefix")
	f.StringSlice(prefix+".file", ConfConfigDefault.File, "JSON configuration file, later files override earlier ones")
	f.String(prefix+".string", ConfConfigDefault.String, "inline JSON configuration, applied after conf.file")
}

var ConfConfigDefault = ConfConfig{
	Dump:      false,
	EnvPrefix: "",
	File:      nil,
	String:    "",
}

// FileLoggingConfig configures the lumberjack rotated log file.
type FileLoggingConfig struct {
	Enable     bool   `koanf:"enable"`
	File       string `koanf:"file"`
	MaxSize    int    `koanf:"max-size"`
	MaxAge     int    `koanf:"max-age"`
	MaxBackups int    `koanf:"max-backups"`
	LocalTime  bool   `koanf:"local-time"`
	Compress   bool   `koanf:"compress"`
	BufSize    int    `koanf:"buf-size"`
}

var DefaultFileLoggingConfig = FileLoggingConfig{
	Enable:     false,
	File:       "bridge-watcher.log",
	MaxSize:    5,
	MaxAge:     0,
	MaxBackups: 20,
	LocalTime:  false,
	Compress:   true,
	BufSize:    512,
}

func FileLoggingConfigAddOptions(prefix string, f *flag.FlagSet) {
	f.Bool(prefix+".enable", DefaultFileLoggingConfig.Enable, "also write logs to a rotated file under the state directory")
	f.String(prefix+".file", DefaultFileLoggingConfig.File, "log file name, relative to the state directory unless absolute")
	f.Int(prefix+".max-size", DefaultFileLoggingConfig.MaxSize, "rotate once the file reaches this many megabytes (0 disables rotation)")
	f.Int(prefix+".max-age", DefaultFileLoggingConfig.MaxAge, "days to keep rotated files (0 keeps them regardless of age)")
	f.Int(prefix+".max-backups", DefaultFileLoggingConfig.MaxBackups, "rotated files to keep (0 keeps all)")
	f.Bool(prefix+".local-time", DefaultFileLoggingConfig.LocalTime, "stamp rotated file names with local time instead of UTC")
	f.Bool(prefix+".compress", DefaultFileLoggingConfig.Compress, "gzip rotated files")
	f.Int(prefix+".buf-size", DefaultFileLoggingConfig.BufSize, "records queued for the file writer before new ones are dropped")
}

type MetricsServerConfig struct {
	Addr           string        `koanf:"addr"`
	Port           int           `koanf:"port"`
	UpdateInterval time.Duration `koanf:"update-interval"`
}

var MetricsServerConfigDefault = MetricsServerConfig{
	Addr:           "127.0.0.1",
	Port:           6070,
	UpdateInterval: 3 * time.Second,
}

func MetricsServerAddOptions(prefix string, f *flag.FlagSet) {
	f.String(prefix+".addr", MetricsServerConfigDefault.Addr, "address the metrics endpoint listens on")
	f.Int(prefix+".port", MetricsServerConfigDefault.Port, "port the metrics endpoint listens on")
	f.Duration(prefix+".update-interval", MetricsServerConfigDefault.UpdateInterval, "how often process metrics are sampled")
}
