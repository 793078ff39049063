// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config holds the runtime configuration of the block server.
//
// Configuration is resolved with the priority environment > file > defaults. Files
// are YAML; durations are written as Go duration strings (for example "500ms").
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/blinklabs-io/remoteblock/protocol"
	"github.com/jinzhu/copier"
	"gopkg.in/yaml.v3"
)

const (
	DefaultListenAddress    = ":5000"
	DefaultMaxInputs        = 16
	DefaultMaxOutputs       = 16
	DefaultModelNameLength  = 10
	DefaultChannelTimeout   = 60 * time.Second
	DefaultWriteTimeout     = 5 * time.Second
	DefaultReadBufferSize   = 4096
	DefaultBlockTimeout     = 180 * time.Second
	DefaultIOTimeout        = 60 * time.Second
	DefaultEvalPeriod       = 5 * time.Second
	DefaultImmediateDelay   = 100 * time.Millisecond
	DefaultErrorRetryDelay  = 2 * time.Second
	DefaultDispatchInhibit  = 500 * time.Millisecond
	DefaultDispatchInterval = 20 * time.Second
	DefaultTickInterval     = 100 * time.Millisecond

	// EnvPrefix is prepended to every environment override
	EnvPrefix = "REMOTEBLOCK_"
)

var ErrInvalidConfig = errors.New("invalid config")

// Config is the top-level configuration
type Config struct {
	Listen  ListenConfig  `yaml:"listen"`
	Channel ChannelConfig `yaml:"channel"`
	Block   BlockConfig   `yaml:"block"`
	Server  ServerConfig  `yaml:"server"`
	Monitor MonitorConfig `yaml:"monitor"`
	Logging LoggingConfig `yaml:"logging"`
}

// ListenConfig controls the TCP listener
type ListenConfig struct {
	Address string `yaml:"address"`
	// MaxChannels limits concurrent connections. Zero means unlimited
	MaxChannels int `yaml:"max_channels"`
}

// ChannelConfig controls per-connection behavior
type ChannelConfig struct {
	// Timeout closes a connection that has sent no valid message for this long
	Timeout time.Duration `yaml:"timeout"`
	// PingInterval enables periodic ping requests when nonzero
	PingInterval   time.Duration `yaml:"ping_interval"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	ReadBufferSize int           `yaml:"read_buffer_size"`
}

// BlockConfig controls block sizing and timing
type BlockConfig struct {
	MaxInputs       int           `yaml:"max_inputs"`
	MaxOutputs      int           `yaml:"max_outputs"`
	ModelNameLength int           `yaml:"model_name_length"`
	Timeout         time.Duration `yaml:"timeout"`
	IOTimeout       time.Duration `yaml:"io_timeout"`
	EvalPeriod      time.Duration `yaml:"eval_period"`
	ImmediateDelay  time.Duration `yaml:"immediate_delay"`
	ErrorRetryDelay time.Duration `yaml:"error_retry_delay"`
	// DispatchInhibit is the minimum spacing between two block-outputs messages
	DispatchInhibit time.Duration `yaml:"dispatch_inhibit"`
	// DispatchInterval forces a block-outputs message even without changes
	DispatchInterval time.Duration `yaml:"dispatch_interval"`
}

// ServerConfig controls the scheduling loop
type ServerConfig struct {
	TickInterval time.Duration `yaml:"tick_interval"`
}

// MonitorConfig controls the HTTP monitor. An empty address disables it
type MonitorConfig struct {
	Address string `yaml:"address"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when nothing is overridden
func Default() Config {
	return Config{
		Listen: ListenConfig{
			Address: DefaultListenAddress,
		},
		Channel: ChannelConfig{
			Timeout:        DefaultChannelTimeout,
			WriteTimeout:   DefaultWriteTimeout,
			ReadBufferSize: DefaultReadBufferSize,
		},
		Block: DefaultBlockConfig(),
		Server: ServerConfig{
			TickInterval: DefaultTickInterval,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefaultBlockConfig returns the default block timing and sizing
func DefaultBlockConfig() BlockConfig {
	return BlockConfig{
		MaxInputs:        DefaultMaxInputs,
		MaxOutputs:       DefaultMaxOutputs,
		ModelNameLength:  DefaultModelNameLength,
		Timeout:          DefaultBlockTimeout,
		IOTimeout:        DefaultIOTimeout,
		EvalPeriod:       DefaultEvalPeriod,
		ImmediateDelay:   DefaultImmediateDelay,
		ErrorRetryDelay:  DefaultErrorRetryDelay,
		DispatchInhibit:  DefaultDispatchInhibit,
		DispatchInterval: DefaultDispatchInterval,
	}
}

// Load resolves the configuration from defaults, the optional file at path and the
// environment, then validates it
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return cfg, fmt.Errorf("open config file: %w", err)
		}
		defer f.Close()
		if err := cfg.decode(f); err != nil {
			return cfg, fmt.Errorf("load config file %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadReader is like Load but reads YAML from r and ignores the environment
func LoadReader(r io.Reader) (Config, error) {
	cfg := Default()
	if err := cfg.decode(r); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		if errors.Is(err, io.EOF) {
			// Empty file
			return nil
		}
		return err
	}
	return nil
}

type lookupEnvFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupEnvFunc) error {
	strVars := map[string]*string{
		"LISTEN_ADDRESS":  &c.Listen.Address,
		"MONITOR_ADDRESS": &c.Monitor.Address,
		"LOG_LEVEL":       &c.Logging.Level,
		"LOG_FORMAT":      &c.Logging.Format,
	}
	for name, dest := range strVars {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dest = v
		}
	}
	intVars := map[string]*int{
		"MAX_CHANNELS": &c.Listen.MaxChannels,
		"MAX_INPUTS":   &c.Block.MaxInputs,
		"MAX_OUTPUTS":  &c.Block.MaxOutputs,
	}
	for name, dest := range intVars {
		if v, ok := lookup(EnvPrefix + name); ok {
			i, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%w: %s%s: %w", ErrInvalidConfig, EnvPrefix, name, err)
			}
			*dest = i
		}
	}
	durationVars := map[string]*time.Duration{
		"CHANNEL_TIMEOUT":   &c.Channel.Timeout,
		"PING_INTERVAL":     &c.Channel.PingInterval,
		"BLOCK_TIMEOUT":     &c.Block.Timeout,
		"IO_TIMEOUT":        &c.Block.IOTimeout,
		"EVAL_PERIOD":       &c.Block.EvalPeriod,
		"DISPATCH_INHIBIT":  &c.Block.DispatchInhibit,
		"DISPATCH_INTERVAL": &c.Block.DispatchInterval,
		"TICK_INTERVAL":     &c.Server.TickInterval,
	}
	for name, dest := range durationVars {
		if v, ok := lookup(EnvPrefix + name); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%w: %s%s: %w", ErrInvalidConfig, EnvPrefix, name, err)
			}
			*dest = d
		}
	}
	return nil
}

// Validate checks the configuration for values the server cannot run with
func (c *Config) Validate() error {
	var errs []error
	if c.Listen.Address == "" {
		errs = append(errs, errors.New("listen.address must not be empty"))
	}
	if c.Listen.MaxChannels < 0 {
		errs = append(errs, errors.New("listen.max_channels must not be negative"))
	}
	if c.Channel.Timeout <= 0 {
		errs = append(errs, errors.New("channel.timeout must be positive"))
	}
	if c.Channel.PingInterval < 0 {
		errs = append(errs, errors.New("channel.ping_interval must not be negative"))
	}
	if c.Channel.ReadBufferSize <= 0 {
		errs = append(errs, errors.New("channel.read_buffer_size must be positive"))
	}
	if err := c.Block.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Server.TickInterval <= 0 {
		errs = append(errs, errors.New("server.tick_interval must be positive"))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q is not one of text, json", c.Logging.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Validate checks the block section on its own
func (b *BlockConfig) Validate() error {
	var errs []error
	if b.MaxInputs < 0 || b.MaxInputs > 255 {
		errs = append(errs, errors.New("block.max_inputs must be within 0..255"))
	}
	if b.MaxOutputs < 0 || b.MaxOutputs > 255 {
		errs = append(errs, errors.New("block.max_outputs must be within 0..255"))
	}
	if b.ModelNameLength <= 0 || b.ModelNameLength > protocol.ModelNameLength {
		errs = append(errs, fmt.Errorf("block.model_name_length must be within 1..%d", protocol.ModelNameLength))
	}
	for name, d := range map[string]time.Duration{
		"timeout":           b.Timeout,
		"io_timeout":        b.IOTimeout,
		"eval_period":       b.EvalPeriod,
		"immediate_delay":   b.ImmediateDelay,
		"error_retry_delay": b.ErrorRetryDelay,
		"dispatch_interval": b.DispatchInterval,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("block.%s must be positive", name))
		}
	}
	if b.DispatchInhibit < 0 {
		errs = append(errs, errors.New("block.dispatch_inhibit must not be negative"))
	}
	return errors.Join(errs...)
}

// Clone returns a deep copy of the configuration
func (c *Config) Clone() (Config, error) {
	var ret Config
	if err := copier.CopyWithOption(&ret, c, copier.Option{DeepCopy: true}); err != nil {
		return ret, err
	}
	return ret, nil
}
