package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	FailurePolicyMark  = "mark"
	FailurePolicyRetry = "retry"
)

type (
	Config struct {
		Server   ServerConfig   `yaml:"server"`
		Mongo    MongoConfig    `yaml:"mongo"`
		Redis    RedisConfig    `yaml:"redis"`
		Storage  StorageConfig  `yaml:"storage"`
		Registry RegistryConfig `yaml:"registry"`
		Matching MatchingConfig `yaml:"matching"`
		Session  SessionConfig  `yaml:"session"`
		Circuit  CircuitConfig  `yaml:"circuit"`
		Log      LogConfig      `yaml:"log"`
	}

	ServerConfig struct {
		Addr         string        `yaml:"addr"`
		ReadTimeout  time.Duration `yaml:"read_timeout"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
	}

	MongoConfig struct {
		URI      string `yaml:"uri"`
		Database string `yaml:"database"`
	}

	RedisConfig struct {
		Addr     string        `yaml:"addr"`
		Password string        `yaml:"password"`
		DB       int           `yaml:"db"`
		TokenTTL time.Duration `yaml:"token_ttl"`
	}

	StorageConfig struct {
		DataDir string `yaml:"data_dir"`
		// ShareSecret is a hex encoded master key; per-user share encryption
		// keys are derived from it.
		ShareSecret  string `yaml:"share_secret"`
		MaxShareSize int    `yaml:"max_share_size"`
	}

	RegistryConfig struct {
		MaxHandleLength int `yaml:"max_handle_length"`
	}

	MatchingConfig struct {
		Workers       int    `yaml:"workers"`
		FailurePolicy string `yaml:"failure_policy"`
	}

	SessionConfig struct {
		Host string `yaml:"host"`
		// BasePort and PortSpan bound the ports handed to protocol parties.
		// BasePort 0 lets the OS pick ephemeral ports.
		BasePort         int           `yaml:"base_port"`
		PortSpan         int           `yaml:"port_span"`
		HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
		// CertDir holds cert{0,1,2}.der and key{0,1,2}.der. Empty means
		// certificates are generated per session.
		CertDir string `yaml:"cert_dir"`
	}

	CircuitConfig struct {
		ArtifactPath string `yaml:"artifact_path"`
		CRSPath      string `yaml:"crs_path"`
		Recursive    bool   `yaml:"recursive"`
	}

	LogConfig struct {
		Level       string `yaml:"level"`
		Development bool   `yaml:"development"`
	}
)

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         "0.0.0.0:8000",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Minute,
		},
		Mongo: MongoConfig{
			URI:      "mongodb://localhost:27017",
			Database: "mpc_match",
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			TokenTTL: 24 * time.Hour,
		},
		Storage: StorageConfig{
			DataDir:      "data",
			MaxShareSize: 1024,
		},
		Registry: RegistryConfig{
			MaxHandleLength: 30,
		},
		Matching: MatchingConfig{
			Workers:       5,
			FailurePolicy: FailurePolicyMark,
		},
		Session: SessionConfig{
			Host:             "127.0.0.1",
			BasePort:         10000,
			PortSpan:         3000,
			HandshakeTimeout: 60 * time.Second,
		},
		Circuit: CircuitConfig{
			Recursive: true,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads a YAML file over the defaults. An empty path returns the
// defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	var errs []error

	if c.Matching.Workers < 1 {
		errs = append(errs, errors.New("matching.workers must be at least 1"))
	}
	if c.Matching.FailurePolicy != FailurePolicyMark && c.Matching.FailurePolicy != FailurePolicyRetry {
		errs = append(errs, fmt.Errorf("matching.failure_policy must be %q or %q", FailurePolicyMark, FailurePolicyRetry))
	}
	if c.Storage.MaxShareSize < 1 {
		errs = append(errs, errors.New("storage.max_share_size must be positive"))
	}
	if c.Storage.ShareSecret != "" {
		if _, err := hex.DecodeString(c.Storage.ShareSecret); err != nil {
			errs = append(errs, fmt.Errorf("storage.share_secret: %w", err))
		}
	}
	if c.Registry.MaxHandleLength < 1 {
		errs = append(errs, errors.New("registry.max_handle_length must be positive"))
	}
	if c.Session.HandshakeTimeout <= 0 {
		errs = append(errs, errors.New("session.handshake_timeout must be positive"))
	}
	if c.Session.BasePort < 0 || c.Session.BasePort > 65535 {
		errs = append(errs, errors.New("session.base_port out of range"))
	}
	if c.Session.BasePort > 0 {
		if c.Session.PortSpan < 3 {
			errs = append(errs, errors.New("session.port_span must hold at least one session"))
		}
		if c.Session.BasePort+c.Session.PortSpan > 65536 {
			errs = append(errs, errors.New("session port range exceeds 65535"))
		}
	}

	return errors.Join(errs...)
}

// ShareKey returns the decoded master share key, or nil when shares are
// stored unencrypted.
func (c *StorageConfig) ShareKey() []byte {
	if c.ShareSecret == "" {
		return nil
	}
	key, _ := hex.DecodeString(c.ShareSecret)
	return key
}
