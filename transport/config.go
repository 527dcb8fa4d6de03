package transport

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/opd-ai/rtpdemux"
)

var (
	// ErrNoListenAddress indicates the config is missing a listen address.
	ErrNoListenAddress = errors.New("listen address cannot be empty")

	// ErrInvalidCacheSize indicates a non-positive processed-SSRC limit.
	ErrInvalidCacheSize = errors.New("max processed SSRCs must be positive")
)

// Config configures a Receiver.
type Config struct {
	// ListenAddress is the UDP address RTP and RTCP datagrams arrive on.
	ListenAddress string `yaml:"listenAddress"`

	// StreamIDExtensionID is the negotiated header extension identifier
	// carrying the stream identifier tag. Zero disables tag extraction;
	// packets then route by SSRC only.
	StreamIDExtensionID uint8 `yaml:"streamIDExtensionID"`

	// MaxProcessedSSRCs bounds the demultiplexer's resolution cache.
	MaxProcessedSSRCs int `yaml:"maxProcessedSSRCs"`
}

// DefaultConfig returns a config with the library defaults filled in.
func DefaultConfig() Config {
	return Config{
		ListenAddress:     ":0",
		MaxProcessedSSRCs: rtpdemux.DefaultMaxProcessedSSRCs,
	}
}

// LoadConfig reads a YAML config file, applying defaults for omitted
// fields and validating the result.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the config for values a Receiver cannot start with.
func (c *Config) Validate() error {
	if c.ListenAddress == "" {
		return ErrNoListenAddress
	}
	if c.MaxProcessedSSRCs <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidCacheSize, c.MaxProcessedSSRCs)
	}
	return nil
}
