// Package config loads server configuration from a YAML file and
// environment variables (NEXUSD_*), layered over built-in defaults with
// viper per the teacher's configuration idiom. Only the config file path
// comes from the command line; no other setting is bound to a flag.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the fully-resolved server configuration.
type Config struct {
	BBSAddr      string `mapstructure:"bbs_addr"`
	TransferAddr string `mapstructure:"transfer_addr"`
	OpsAddr      string `mapstructure:"ops_addr"`

	TLSCertFile string `mapstructure:"tls_cert_file"`
	TLSKeyFile  string `mapstructure:"tls_key_file"`

	DatabasePath string `mapstructure:"database_path"`
	DataRoot     string `mapstructure:"data_root"`
	FileIndexPath string `mapstructure:"file_index_path"`

	LogLevel string `mapstructure:"log_level"`

	ReindexInterval time.Duration `mapstructure:"reindex_interval"`

	GuestEnabled bool `mapstructure:"guest_enabled"`

	StrictValidationDisconnect bool `mapstructure:"strict_validation_disconnect"`
}

// Defaults populates v with the server's default configuration values.
func Defaults(v *viper.Viper) {
	v.SetDefault("bbs_addr", ":7500")
	v.SetDefault("transfer_addr", ":7501")
	v.SetDefault("ops_addr", ":9090")
	v.SetDefault("tls_cert_file", "nexusd.crt")
	v.SetDefault("tls_key_file", "nexusd.key")
	v.SetDefault("database_path", "nexusd.db")
	v.SetDefault("data_root", "./data")
	v.SetDefault("file_index_path", "./data/files.idx")
	v.SetDefault("log_level", "info")
	v.SetDefault("reindex_interval", 5*time.Minute)
	v.SetDefault("guest_enabled", false)
	v.SetDefault("strict_validation_disconnect", false)
}

// Load reads configFile (if non-empty), environment variables prefixed
// NEXUSD_, and returns the merged Config.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	Defaults(v)

	v.SetEnvPrefix("nexusd")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, err
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
