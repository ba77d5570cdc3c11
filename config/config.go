/*
Package config loads goscan settings.

Values come from, in increasing priority: built in defaults, a YAML config file ($HOME/.goscan.yaml unless a path
is given), a .env file in the working directory, and GOSCAN_ prefixed environment variables.
*/
package config

import (
	"os"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/Redundancy/go-scan/chunks"
)

const (
	EnvPrefix      = "GOSCAN"
	DefaultName    = ".goscan"
	DefaultEnvFile = ".env"
)

type Config struct {
	SearchChunkSize   int  `mapstructure:"search_chunk_size"`
	DigestChunkSize   int  `mapstructure:"digest_chunk_size"`
	PreferAccelerated bool `mapstructure:"prefer_accelerated"`

	// Number of chunks fetched ahead of a scan; 0 disables read-ahead
	ReadAhead   int           `mapstructure:"read_ahead"`
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`

	NATSURL     string `mapstructure:"nats_url"`
	NATSSubject string `mapstructure:"nats_subject"`

	LogLevel string `mapstructure:"log_level"`
	LogJSON  bool   `mapstructure:"log_json"`

	// OTLP gRPC collector; empty disables telemetry export
	OTelEndpoint string `mapstructure:"otel_endpoint"`

	// File the settings were read from, if any
	File string `mapstructure:"-"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("search_chunk_size", chunks.DefaultSearchChunkSize)
	v.SetDefault("digest_chunk_size", chunks.DefaultDigestChunkSize)
	v.SetDefault("prefer_accelerated", true)
	v.SetDefault("read_ahead", 0)
	v.SetDefault("http_timeout", 30*time.Second)
	v.SetDefault("nats_url", "nats://127.0.0.1:4222")
	v.SetDefault("nats_subject", "goscan")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
	v.SetDefault("otel_endpoint", "")
}

// Load reads the settings. An explicit path must exist; the default file in the home directory need not.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "reading config file %v", path)
		}
	} else if home, err := homedir.Dir(); err == nil {
		v.AddConfigPath(home)
		v.SetConfigName(DefaultName)
		v.SetConfigType("yaml")

		if err := v.ReadInConfig(); err != nil {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
				return nil, errors.Wrap(err, "reading config file")
			}
		}
	}

	if err := godotenv.Load(DefaultEnvFile); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "loading %v", DefaultEnvFile)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decoding config")
	}
	cfg.File = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings that would make every request fail
func (c *Config) Validate() error {
	if c.SearchChunkSize <= 0 || c.SearchChunkSize > chunks.MaxChunkSize {
		return errors.Wrapf(chunks.ErrInvalidChunkSize, "search_chunk_size %d", c.SearchChunkSize)
	}
	if c.DigestChunkSize <= 0 || c.DigestChunkSize > chunks.MaxChunkSize {
		return errors.Wrapf(chunks.ErrInvalidChunkSize, "digest_chunk_size %d", c.DigestChunkSize)
	}
	if c.ReadAhead < 0 {
		return errors.Errorf("read_ahead must not be negative, got %d", c.ReadAhead)
	}
	if hclog.LevelFromString(c.LogLevel) == hclog.NoLevel {
		return errors.Errorf("unknown log_level %q", c.LogLevel)
	}
	return nil
}

// Logger builds the root logger the settings describe, writing to stderr
func (c *Config) Logger(name string) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:       name,
		Level:      hclog.LevelFromString(c.LogLevel),
		JSONFormat: c.LogJSON,
		Output:     os.Stderr,
	})
}
