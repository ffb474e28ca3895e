// Package config resolves tool settings from flags, XDAO_* environment
// variables and an optional config file, in that order of precedence.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"xdao.co/proofs/identity"
)

const EnvPrefix = "XDAO"

// Config holds the settings shared by the command line tools.
type Config struct {
	Algorithm identity.Algorithm
	// AlgorithmSet reports whether Algorithm came from a flag, the
	// environment or the config file rather than the default.
	AlgorithmSet bool
	Workers      int
	LogLevel     string
	LogFormat    string
	StoreConfig  string
	StoreBackend string
	Out          string
}

// flagKeys maps config keys to the flag names that may override them.
var flagKeys = map[string]string{
	"algorithm":     "algorithm",
	"workers":       "workers",
	"log.level":     "log-level",
	"log.format":    "log-format",
	"store.config":  "cas-config",
	"store.backend": "backend",
	"out":           "out",
}

// Load reads path (if non-empty; any format viper understands), the
// environment (XDAO_ALGORITHM, XDAO_LOG_LEVEL, ...) and, when fs is
// non-nil, any of its flags named in flagKeys.
func Load(path string, fs *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetDefault("workers", 4)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("store.backend", "")
	v.SetDefault("store.config", "")
	v.SetDefault("out", "build/out")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: %w", err)
		}
	}

	if fs != nil {
		for key, name := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("config: %w", err)
				}
			}
		}
	}

	alg, algSet := identity.Default, v.GetString("algorithm") != ""
	if algSet {
		var err error
		if alg, err = identity.ParseAlgorithm(v.GetString("algorithm")); err != nil {
			return Config{}, fmt.Errorf("config: %w", err)
		}
	}
	cfg := Config{
		Algorithm:    alg,
		AlgorithmSet: algSet,
		Workers:      v.GetInt("workers"),
		LogLevel:     v.GetString("log.level"),
		LogFormat:    v.GetString("log.format"),
		StoreConfig:  v.GetString("store.config"),
		StoreBackend: v.GetString("store.backend"),
		Out:          v.GetString("out"),
	}
	if cfg.Workers < 1 {
		return Config{}, fmt.Errorf("config: workers must be positive, got %d", cfg.Workers)
	}
	return cfg, nil
}
