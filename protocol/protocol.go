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

// Package protocol implements the remote block message catalogue on top of the framing
// layer. The same Codec serves the server side and a simulated remote unit; each side
// registers handlers for the messages it expects.
package protocol

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/blinklabs-io/remoteblock/framing"
)

const (
	// ProtocolName is used in errors and logs
	ProtocolName = "remote-block"
	// Category is the frame category carrying block server messages
	Category uint8 = 0xA0
)

// Callback function types
type (
	MessageFunc             func(Message) error
	PingFunc                func() error
	PongFunc                func() error
	SyncFunc                func() error
	DeclareBlockFunc        func(*MsgDeclareBlock) error
	BlockInputsFunc         func(*MsgBlockInputs) error
	BlockOutputsFunc        func(*MsgBlockOutputs) error
	BlockDefaultOutputsFunc func(*MsgBlockDefaultOutputs) error
)

// Config holds the message handlers of a Codec. A nil handler ignores its message
type Config struct {
	Logger                  *slog.Logger
	MessageFunc             MessageFunc
	PingFunc                PingFunc
	PongFunc                PongFunc
	SyncFunc                SyncFunc
	DeclareBlockFunc        DeclareBlockFunc
	BlockInputsFunc         BlockInputsFunc
	BlockOutputsFunc        BlockOutputsFunc
	BlockDefaultOutputsFunc BlockDefaultOutputsFunc
}

// ConfigOptionFunc represents a function that modifies the codec config
type ConfigOptionFunc func(*Config)

// NewConfig returns a new codec config object with the provided options
func NewConfig(options ...ConfigOptionFunc) Config {
	c := Config{}
	for _, option := range options {
		option(&c)
	}
	return c
}

// WithLogger specifies the logger used for ignored messages
func WithLogger(logger *slog.Logger) ConfigOptionFunc {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithMessageFunc specifies a callback invoked for every decoded message before its
// type specific handler
func WithMessageFunc(messageFunc MessageFunc) ConfigOptionFunc {
	return func(c *Config) {
		c.MessageFunc = messageFunc
	}
}

// WithPingFunc specifies the ping callback function
func WithPingFunc(pingFunc PingFunc) ConfigOptionFunc {
	return func(c *Config) {
		c.PingFunc = pingFunc
	}
}

// WithPongFunc specifies the pong callback function
func WithPongFunc(pongFunc PongFunc) ConfigOptionFunc {
	return func(c *Config) {
		c.PongFunc = pongFunc
	}
}

// WithSyncFunc specifies the sync callback function
func WithSyncFunc(syncFunc SyncFunc) ConfigOptionFunc {
	return func(c *Config) {
		c.SyncFunc = syncFunc
	}
}

// WithDeclareBlockFunc specifies the declare-block callback function
func WithDeclareBlockFunc(declareBlockFunc DeclareBlockFunc) ConfigOptionFunc {
	return func(c *Config) {
		c.DeclareBlockFunc = declareBlockFunc
	}
}

// WithBlockInputsFunc specifies the block-inputs callback function
func WithBlockInputsFunc(blockInputsFunc BlockInputsFunc) ConfigOptionFunc {
	return func(c *Config) {
		c.BlockInputsFunc = blockInputsFunc
	}
}

// WithBlockOutputsFunc specifies the block-outputs callback function
func WithBlockOutputsFunc(blockOutputsFunc BlockOutputsFunc) ConfigOptionFunc {
	return func(c *Config) {
		c.BlockOutputsFunc = blockOutputsFunc
	}
}

// WithBlockDefaultOutputsFunc specifies the block-default-outputs callback function
func WithBlockDefaultOutputsFunc(blockDefaultOutputsFunc BlockDefaultOutputsFunc) ConfigOptionFunc {
	return func(c *Config) {
		c.BlockDefaultOutputsFunc = blockDefaultOutputsFunc
	}
}

// Codec turns received bytes into handler calls and messages into frames
//
// A Codec is not safe for concurrent use.
type Codec struct {
	config  Config
	decoder *framing.Decoder
	logger  *slog.Logger
}

func NewCodec(cfg Config) *Codec {
	c := &Codec{
		config:  cfg,
		decoder: framing.NewDecoder(),
		logger:  cfg.Logger,
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Feed decodes data and dispatches every complete message, in order. Any returned
// error is fatal for the connection; framing and decode failures are returned as a
// *ProtocolError
func (c *Codec) Feed(data []byte) error {
	err := c.decoder.Feed(data, c.handleFrame)
	if isFramingError(err) {
		return NewProtocolError(0, err)
	}
	return err
}

func isFramingError(err error) bool {
	return errors.Is(err, framing.ErrBadStartByte) ||
		errors.Is(err, framing.ErrPayloadTooLarge) ||
		errors.Is(err, framing.ErrChecksum)
}

// Buffered returns the number of received bytes waiting for the rest of their frame
func (c *Codec) Buffered() int {
	return c.decoder.Buffered()
}

func (c *Codec) handleFrame(frame *framing.Frame) error {
	if frame.Category != Category {
		c.logger.Debug(
			"ignoring frame with unknown category",
			"category", fmt.Sprintf("0x%02x", frame.Category),
			"subtype", frame.Subtype,
		)
		return nil
	}
	msg, err := NewMsgFromPayload(frame.Subtype, frame.Payload)
	if err != nil {
		return NewProtocolError(frame.Subtype, err)
	}
	if msg == nil {
		c.logger.Debug(
			"ignoring unknown message type",
			"subtype", frame.Subtype,
		)
		return nil
	}
	if c.config.MessageFunc != nil {
		if err := c.config.MessageFunc(msg); err != nil {
			return err
		}
	}
	return c.handleMessage(msg)
}

func (c *Codec) handleMessage(msg Message) error {
	switch m := msg.(type) {
	case *MsgPing:
		if c.config.PingFunc != nil {
			return c.config.PingFunc()
		}
	case *MsgPong:
		if c.config.PongFunc != nil {
			return c.config.PongFunc()
		}
	case *MsgSync:
		if c.config.SyncFunc != nil {
			return c.config.SyncFunc()
		}
	case *MsgDeclareBlock:
		if c.config.DeclareBlockFunc != nil {
			return c.config.DeclareBlockFunc(m)
		}
	case *MsgBlockInputs:
		if c.config.BlockInputsFunc != nil {
			return c.config.BlockInputsFunc(m)
		}
	case *MsgBlockOutputs:
		if c.config.BlockOutputsFunc != nil {
			return c.config.BlockOutputsFunc(m)
		}
	case *MsgBlockDefaultOutputs:
		if c.config.BlockDefaultOutputsFunc != nil {
			return c.config.BlockDefaultOutputsFunc(m)
		}
	}
	return nil
}

// Encode returns the complete frame for msg
func Encode(msg Message) ([]byte, error) {
	w := framing.NewWriter()
	msg.encode(w)
	data, err := framing.NewFrame(Category, msg.Type(), w.Bytes()).Bytes()
	if err != nil {
		return nil, fmt.Errorf(
			"%s: encode %s: %w",
			ProtocolName,
			MessageTypeName(msg.Type()),
			err,
		)
	}
	return data, nil
}
