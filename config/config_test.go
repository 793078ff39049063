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

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ":5000", cfg.Listen.Address)
	assert.Equal(t, 16, cfg.Block.MaxInputs)
	assert.Equal(t, 16, cfg.Block.MaxOutputs)
	assert.Equal(t, 10, cfg.Block.ModelNameLength)
	assert.Equal(t, 60*time.Second, cfg.Channel.Timeout)
	assert.Equal(t, 180*time.Second, cfg.Block.Timeout)
	assert.Equal(t, 60*time.Second, cfg.Block.IOTimeout)
	assert.Equal(t, 5*time.Second, cfg.Block.EvalPeriod)
	assert.Equal(t, 500*time.Millisecond, cfg.Block.DispatchInhibit)
	assert.Equal(t, 20*time.Second, cfg.Block.DispatchInterval)
	assert.Equal(t, 100*time.Millisecond, cfg.Server.TickInterval)
}

func TestLoadReaderOverridesDefaults(t *testing.T) {
	cfg, err := LoadReader(strings.NewReader(`
listen:
  address: "127.0.0.1:6000"
  max_channels: 8
block:
  eval_period: 1s
  dispatch_inhibit: 250ms
logging:
  level: debug
  format: json
`))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:6000", cfg.Listen.Address)
	assert.Equal(t, 8, cfg.Listen.MaxChannels)
	assert.Equal(t, time.Second, cfg.Block.EvalPeriod)
	assert.Equal(t, 250*time.Millisecond, cfg.Block.DispatchInhibit)
	// Untouched values keep their defaults
	assert.Equal(t, 20*time.Second, cfg.Block.DispatchInterval)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadReaderRejectsUnknownFields(t *testing.T) {
	_, err := LoadReader(strings.NewReader("listen:\n  port: 5000\n"))
	assert.Error(t, err)
}

func TestLoadReaderEmpty(t *testing.T) {
	cfg, err := LoadReader(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestValidate(t *testing.T) {
	testDefs := []struct {
		name   string
		modify func(*Config)
	}{
		{name: "empty address", modify: func(c *Config) { c.Listen.Address = "" }},
		{name: "negative channels", modify: func(c *Config) { c.Listen.MaxChannels = -1 }},
		{name: "zero channel timeout", modify: func(c *Config) { c.Channel.Timeout = 0 }},
		{name: "too many inputs", modify: func(c *Config) { c.Block.MaxInputs = 256 }},
		{name: "zero model name length", modify: func(c *Config) { c.Block.ModelNameLength = 0 }},
		{name: "model name longer than wire field", modify: func(c *Config) { c.Block.ModelNameLength = 11 }},
		{name: "zero eval period", modify: func(c *Config) { c.Block.EvalPeriod = 0 }},
		{name: "zero tick", modify: func(c *Config) { c.Server.TickInterval = 0 }},
		{name: "log format", modify: func(c *Config) { c.Logging.Format = "xml" }},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			cfg := Default()
			testDef.modify(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"REMOTEBLOCK_LISTEN_ADDRESS": ":7000",
		"REMOTEBLOCK_MAX_CHANNELS":   "3",
		"REMOTEBLOCK_EVAL_PERIOD":    "2s",
		"REMOTEBLOCK_LOG_LEVEL":      "warn",
	}
	cfg := Default()
	err := cfg.applyEnv(func(name string) (string, bool) {
		v, ok := env[name]
		return v, ok
	})
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Listen.Address)
	assert.Equal(t, 3, cfg.Listen.MaxChannels)
	assert.Equal(t, 2*time.Second, cfg.Block.EvalPeriod)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestApplyEnvBadValue(t *testing.T) {
	cfg := Default()
	err := cfg.applyEnv(func(name string) (string, bool) {
		if name == "REMOTEBLOCK_TICK_INTERVAL" {
			return "soon", true
		}
		return "", false
	})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "remoteblock.yaml")
	require.NoError(t, os.WriteFile(path, []byte("monitor:\n  address: \":9100\"\n"), 0o600))
	t.Setenv("REMOTEBLOCK_LISTEN_ADDRESS", ":5001")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9100", cfg.Monitor.Address)
	assert.Equal(t, ":5001", cfg.Listen.Address)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestClone(t *testing.T) {
	cfg := Default()
	clone, err := cfg.Clone()
	require.NoError(t, err)
	assert.Equal(t, cfg, clone)
	clone.Listen.Address = ":1"
	assert.Equal(t, DefaultListenAddress, cfg.Listen.Address)
}
