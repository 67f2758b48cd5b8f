// Package config loads the server's single YAML configuration file, the
// same shape as rcproxy's config.LoadConfig: read, unmarshal, validate.
package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"mulex/internal/logging"
)

// Config is the top-level server configuration.
type Config struct {
	RPCPort       int    `yaml:"rpc_port"`
	EventPort     int    `yaml:"event_port"`
	FxferPort     int    `yaml:"fxfer_port"`
	HandshakePort int    `yaml:"handshake_port"`
	WebPort       int    `yaml:"web_port"`

	LogPath      string `yaml:"log_path"`
	LogLevel     string `yaml:"log_level"`
	LogExpireDay int    `yaml:"log_expire_day"`

	Rdb RdbConfig `yaml:"rdb"`

	PermissionWhitelistPath string `yaml:"permission_whitelist_path"`
}

type RdbConfig struct {
	ArenaSize    int64  `yaml:"arena_size"`
	SnapshotPath string `yaml:"snapshot_path"`
}

// Default returns the spec's §6 default ports with conservative sizing.
func Default() *Config {
	return &Config{
		RPCPort:       5701,
		EventPort:     5702,
		FxferPort:     5704,
		HandshakePort: 5700,
		WebPort:       0,
		LogPath:       "log",
		LogLevel:      logging.LevelInfo,
		LogExpireDay:  7,
		Rdb: RdbConfig{
			ArenaSize:    1 << 20,
			SnapshotPath: "mxrdb.snapshot",
		},
	}
}

// LoadConfig reads fileName, falling back to Default() values for anything
// the file omits, and validates the result.
func LoadConfig(fileName string) (*Config, error) {
	cfg := Default()

	file, err := os.ReadFile(fileName)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read file from %s", fileName)
	}
	if err = yaml.Unmarshal(file, cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal config from %s", fileName)
	}
	if err = cfg.validate(); err != nil {
		return nil, errors.Wrapf(err, "config validate failed")
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if _, ok := logging.LevelMapperRev[c.LogLevel]; !ok {
		return errors.Errorf("unknown log level %s", c.LogLevel)
	}
	if c.Rdb.ArenaSize <= 0 {
		return errors.Errorf("rdb.arena_size must be positive")
	}
	if c.RPCPort <= 0 || c.EventPort <= 0 {
		return errors.Errorf("rpc_port and event_port must be positive")
	}
	return nil
}
