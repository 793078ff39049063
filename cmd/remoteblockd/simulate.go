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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/blinklabs-io/remoteblock/protocol"
	"github.com/blinklabs-io/remoteblock/unit"
	"github.com/spf13/cobra"
)

type simulateFlags struct {
	address        string
	model          string
	localId        uint16
	remoteInstance uint16
	inputs         string
	unit           uint8
	outputs        uint8
	interval       time.Duration
	count          int
	logLevel       string
}

func newSimulateCommand() *cobra.Command {
	f := &simulateFlags{}
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Emulate a remote unit: declare a block, stream inputs and log outputs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			logger, err := newLogger(cmd.ErrOrStderr(), f.logLevel, "text")
			if err != nil {
				return err
			}
			return runSimulate(ctx, logger, f)
		},
	}
	cmd.Flags().StringVar(&f.address, "address", "127.0.0.1:5000", "block server address in host:port format")
	cmd.Flags().StringVar(&f.model, "model", "copy", "block model to declare")
	cmd.Flags().Uint16Var(&f.localId, "lid", 1, "local id of the block")
	cmd.Flags().Uint16Var(&f.remoteInstance, "rinstance", 1, "remote instance of the block")
	cmd.Flags().StringVar(&f.inputs, "inputs", "", "comma separated input values, empty entries are disconnected")
	cmd.Flags().Uint8Var(&f.unit, "unit", 0, "unit code sent with every input")
	cmd.Flags().Uint8Var(&f.outputs, "outputs", 1, "number of outputs to declare")
	cmd.Flags().DurationVar(&f.interval, "interval", time.Second, "input send interval")
	cmd.Flags().IntVar(&f.count, "count", 0, "number of input messages to send, 0 runs until interrupted")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	return cmd
}

// parseInputs turns "1.5,,3" into input values, with empty entries disconnected
func parseInputs(value string, unitCode uint8) ([]protocol.InputValue, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	parts := strings.Split(value, ",")
	ret := make([]protocol.InputValue, 0, len(parts))
	for i, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			ret = append(ret, protocol.InputValue{})
			continue
		}
		v, err := strconv.ParseFloat(part, 32)
		if err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		ret = append(ret, protocol.InputValue{
			Value:     float32(v),
			Unit:      unitCode,
			Connected: true,
		})
	}
	return ret, nil
}

func runSimulate(ctx context.Context, logger *slog.Logger, f *simulateFlags) error {
	inputs, err := parseInputs(f.inputs, f.unit)
	if err != nil {
		return err
	}
	if len(inputs) > 255 {
		return errors.New("too many inputs")
	}
	client, err := unit.Dial(ctx, f.address, unit.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("connect to %s: %w", f.address, err)
	}
	defer client.Close()
	declare := func() error {
		// #nosec G115
		return client.Declare(f.localId, f.remoteInstance, f.model, uint8(len(inputs)), f.outputs)
	}
	if err := declare(); err != nil {
		return err
	}
	logger.Info(
		"declared block",
		"model", f.model,
		"lid", f.localId,
		"inputs", len(inputs),
		"outputs", f.outputs,
	)
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	sent := 0
	send := func() error {
		if len(inputs) == 0 {
			return nil
		}
		sent++
		return client.SendInputs(f.localId, f.remoteInstance, inputs)
	}
	if err := send(); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-client.ErrorChan():
			return fmt.Errorf("connection lost: %w", err)
		case msg, ok := <-client.Messages():
			if !ok {
				return errors.New("connection closed by server")
			}
			if err := logMessage(logger, msg, declare); err != nil {
				return err
			}
		case <-ticker.C:
			if f.count > 0 && sent >= f.count {
				return nil
			}
			if err := send(); err != nil {
				return err
			}
		}
	}
}

func logMessage(logger *slog.Logger, msg protocol.Message, declare func() error) error {
	switch m := msg.(type) {
	case *protocol.MsgSync:
		// The server lost its state and asks for the block again
		logger.Info("received sync")
		return declare()
	case *protocol.MsgBlockOutputs:
		values := make([]string, 0, len(m.Outputs))
		for _, out := range m.Outputs {
			if out.Unit == 0xFF {
				values = append(values, "null")
				continue
			}
			values = append(values, fmt.Sprintf("%g/%d", out.Value, out.Unit))
		}
		logger.Info(
			"block outputs",
			"lid", m.LocalId,
			"error", m.IsError,
			"default_output", m.DefaultOutputIndex,
			"outputs", strings.Join(values, ","),
		)
	case *protocol.MsgBlockDefaultOutputs:
		logger.Debug("block default outputs", "lid", m.LocalId, "count", len(m.Defaults))
	default:
		logger.Debug("received message", "type", protocol.MessageTypeName(msg.Type()))
	}
	return nil
}
