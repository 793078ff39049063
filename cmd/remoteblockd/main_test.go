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

package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/blinklabs-io/remoteblock/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInputs(t *testing.T) {
	inputs, err := parseInputs("1.5, ,3", 4)
	require.NoError(t, err)
	assert.Equal(
		t,
		[]protocol.InputValue{
			{Value: 1.5, Unit: 4, Connected: true},
			{},
			{Value: 3, Unit: 4, Connected: true},
		},
		inputs,
	)
	inputs, err = parseInputs("", 0)
	require.NoError(t, err)
	assert.Empty(t, inputs)
	_, err = parseInputs("1,x", 0)
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&buf, "WARN", "json")
	require.NoError(t, err)
	logger.Info("hidden")
	logger.Warn("shown", "lid", 3)
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"lid":3`)

	_, err = newLogger(io.Discard, "loud", "text")
	assert.Error(t, err)
	_, err = newLogger(io.Discard, "info", "xml")
	assert.Error(t, err)
	logger, err = newLogger(io.Discard, "debug", "")
	require.NoError(t, err)
	assert.True(t, logger.Enabled(context.Background(), slog.LevelDebug))
}

func TestModelsCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"models"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "copy\nhysteresis\nsum\n", out.String())
}

func TestServeConfigOverrides(t *testing.T) {
	t.Setenv("REMOTEBLOCK_LISTEN_ADDRESS", "127.0.0.1:6000")
	f := &serveFlags{}
	cmd := newServeCommand()
	require.NoError(t, cmd.Flags().Parse([]string{"--monitor", ":9100", "--log-level", "debug"}))
	// Bind the parsed values the same way RunE sees them
	f.monitor, _ = cmd.Flags().GetString("monitor")
	f.logLevel, _ = cmd.Flags().GetString("log-level")
	cfg, err := loadServeConfig(cmd, f)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:6000", cfg.Listen.Address)
	assert.Equal(t, ":9100", cfg.Monitor.Address)
	assert.Equal(t, "debug", cfg.Logging.Level)
}
