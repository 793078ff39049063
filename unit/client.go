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

// Package unit implements the remote unit side of the block protocol. It is used to
// simulate remote units against a block server.
package unit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/blinklabs-io/remoteblock/protocol"
)

const (
	defaultMessageBuffer = 256
	defaultReadBuffer    = 4096
)

var ErrClientClosed = errors.New("client is closed")

// Client is a connection from a remote unit to a block server
type Client struct {
	conn          net.Conn
	logger        *slog.Logger
	codec         *protocol.Codec
	autoPong      bool
	writeTimeout  time.Duration
	msgChan       chan protocol.Message
	errorChan     chan error
	doneChan      chan struct{}
	waitGroup     sync.WaitGroup
	onceClose     sync.Once
	writeMutex    sync.Mutex
	messageBuffer int
}

// ClientOptionFunc is a type that represents functions that modify the Client config
type ClientOptionFunc func(*Client)

// WithConnection specifies an existing connection to use
func WithConnection(conn net.Conn) ClientOptionFunc {
	return func(c *Client) {
		c.conn = conn
	}
}

// WithLogger specifies the logger. The default is slog.Default()
func WithLogger(logger *slog.Logger) ClientOptionFunc {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithAutoPong specifies whether received pings are answered automatically. This is
// enabled by default
func WithAutoPong(autoPong bool) ClientOptionFunc {
	return func(c *Client) {
		c.autoPong = autoPong
	}
}

// WithWriteTimeout specifies the deadline applied to each write. Zero disables it
func WithWriteTimeout(timeout time.Duration) ClientOptionFunc {
	return func(c *Client) {
		c.writeTimeout = timeout
	}
}

// WithMessageBuffer specifies how many received messages are buffered before the
// receive goroutine waits for the reader
func WithMessageBuffer(size int) ClientOptionFunc {
	return func(c *Client) {
		c.messageBuffer = size
	}
}

// NewClient returns a Client on an existing connection. WithConnection is required
func NewClient(options ...ClientOptionFunc) (*Client, error) {
	c := &Client{
		autoPong:      true,
		writeTimeout:  5 * time.Second,
		doneChan:      make(chan struct{}),
		errorChan:     make(chan error, 1),
		messageBuffer: defaultMessageBuffer,
	}
	for _, option := range options {
		option(c)
	}
	if c.conn == nil {
		return nil, errors.New("no connection provided")
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("component", "unit")
	c.msgChan = make(chan protocol.Message, c.messageBuffer)
	c.codec = protocol.NewCodec(
		protocol.NewConfig(
			protocol.WithLogger(c.logger),
			protocol.WithMessageFunc(c.handleMessage),
		),
	)
	c.waitGroup.Add(1)
	go c.recvLoop()
	return c, nil
}

// Dial connects to a block server
func Dial(ctx context.Context, address string, options ...ClientOptionFunc) (*Client, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	options = append(options, WithConnection(conn))
	c, err := NewClient(options...)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

// Messages returns the channel of received messages. It is closed when the client stops
// receiving
func (c *Client) Messages() <-chan protocol.Message {
	return c.msgChan
}

// ErrorChan returns the channel receiving the error that stopped the receive goroutine
func (c *Client) ErrorChan() <-chan error {
	return c.errorChan
}

func (c *Client) recvLoop() {
	defer c.waitGroup.Done()
	defer close(c.msgChan)
	buf := make([]byte, defaultReadBuffer)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			if feedErr := c.codec.Feed(buf[:n]); feedErr != nil {
				c.sendError(feedErr)
				return
			}
		}
		if err != nil {
			select {
			case <-c.doneChan:
			default:
				c.sendError(err)
			}
			return
		}
	}
}

func (c *Client) sendError(err error) {
	select {
	case c.errorChan <- err:
	default:
	}
}

func (c *Client) handleMessage(msg protocol.Message) error {
	if _, ok := msg.(*protocol.MsgPing); ok && c.autoPong {
		if err := c.Send(protocol.NewMsgPong()); err != nil {
			return err
		}
	}
	select {
	case c.msgChan <- msg:
	case <-c.doneChan:
		return ErrClientClosed
	}
	return nil
}

// Send writes messages to the server in order
func (c *Client) Send(msgs ...protocol.Message) error {
	select {
	case <-c.doneChan:
		return ErrClientClosed
	default:
	}
	var data []byte
	for _, msg := range msgs {
		tmp, err := protocol.Encode(msg)
		if err != nil {
			return err
		}
		data = append(data, tmp...)
	}
	c.writeMutex.Lock()
	defer c.writeMutex.Unlock()
	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	if _, err := c.conn.Write(data); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// Declare declares a block to the server
func (c *Client) Declare(localId uint16, remoteInstance uint16, model string, inputCount uint8, outputCount uint8) error {
	return c.Send(
		protocol.NewMsgDeclareBlock(localId, remoteInstance, model, inputCount, outputCount),
	)
}

// SendInputs sends the input values of a declared block
func (c *Client) SendInputs(localId uint16, remoteInstance uint16, inputs []protocol.InputValue) error {
	return c.Send(protocol.NewMsgBlockInputs(localId, remoteInstance, inputs))
}

// Receive returns the next received message
func (c *Client) Receive(ctx context.Context) (protocol.Message, error) {
	select {
	case msg, ok := <-c.msgChan:
		if !ok {
			return nil, c.closedError()
		}
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// WaitFor discards received messages until one of msgType arrives
func (c *Client) WaitFor(ctx context.Context, msgType uint8) (protocol.Message, error) {
	for {
		msg, err := c.Receive(ctx)
		if err != nil {
			return nil, err
		}
		if msg.Type() == msgType {
			return msg, nil
		}
	}
}

func (c *Client) closedError() error {
	select {
	case err := <-c.errorChan:
		return err
	default:
		return ErrClientClosed
	}
}

// Close disconnects from the server. It is safe to call more than once
func (c *Client) Close() error {
	var err error
	c.onceClose.Do(func() {
		close(c.doneChan)
		err = c.conn.Close()
		c.waitGroup.Wait()
	})
	return err
}
