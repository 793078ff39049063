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

package remoteblock

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blinklabs-io/remoteblock/block"
	"github.com/blinklabs-io/remoteblock/config"
	"github.com/blinklabs-io/remoteblock/metrics"
	"github.com/blinklabs-io/remoteblock/protocol"
	"github.com/google/uuid"
)

// Number of received chunks buffered between the read goroutine and the scheduling loop
const recvChanSize = 64

// channelSettings holds everything a Channel needs from its Server
type channelSettings struct {
	channel  config.ChannelConfig
	block    config.BlockConfig
	registry *block.Registry
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// Channel is one connected remote unit and the blocks it declared
//
// Apart from Close and the read-only accessors, a Channel is driven exclusively from
// the scheduling loop.
type Channel struct {
	id          uuid.UUID
	name        string
	conn        net.Conn
	settings    *channelSettings
	logger      *slog.Logger
	codec       *protocol.Codec
	table       *block.Table
	watchdog    block.Watchdog
	connectedAt time.Time
	lastPing    time.Time
	recvChan    chan []byte
	readErrChan chan error
	doneChan    chan struct{}
	waitGroup   sync.WaitGroup
	onceClose   sync.Once
	closed      atomic.Bool
	closeReason string
}

func newChannel(conn net.Conn, settings *channelSettings) (*Channel, error) {
	now := settings.now()
	c := &Channel{
		id:          uuid.New(),
		name:        channelName(conn),
		conn:        conn,
		settings:    settings,
		watchdog:    block.NewWatchdog(settings.channel.Timeout, now),
		connectedAt: now,
		lastPing:    now,
		recvChan:    make(chan []byte, recvChanSize),
		readErrChan: make(chan error, 1),
		doneChan:    make(chan struct{}),
	}
	c.logger = settings.logger.With(
		"component", "channel",
		"channel", c.name,
		"channel_id", c.id.String(),
	)
	c.table = block.NewTable(
		c.name,
		settings.registry,
		c,
		block.WithConfig(settings.block),
		block.WithClock(settings.now),
		block.WithLogger(settings.logger.With("channel", c.name)),
		block.WithMetrics(settings.metrics),
	)
	c.codec = protocol.NewCodec(
		protocol.NewConfig(
			protocol.WithLogger(c.logger),
			protocol.WithMessageFunc(c.handleMessage),
			protocol.WithPingFunc(c.handlePing),
			protocol.WithPongFunc(c.handlePong),
			protocol.WithDeclareBlockFunc(c.handleDeclareBlock),
			protocol.WithBlockInputsFunc(c.handleBlockInputs),
		),
	)
	settings.metrics.ChannelOpened()
	c.waitGroup.Add(1)
	go c.readLoop()
	c.logger.Info("remote unit connected", "remote_addr", conn.RemoteAddr().String())
	// Ask the unit to declare its blocks
	if err := c.SendMessage(protocol.NewMsgSync()); err != nil {
		return nil, err
	}
	return c, nil
}

// channelName returns the remote IP address, or the full remote address if it has no port
func channelName(conn net.Conn) string {
	addr := conn.RemoteAddr().String()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

func (c *Channel) Id() uuid.UUID {
	return c.id
}

// Name returns the remote IP address of the unit
func (c *Channel) Name() string {
	return c.name
}

func (c *Channel) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Table returns the blocks declared over this channel
func (c *Channel) Table() *block.Table {
	return c.table
}

func (c *Channel) IsClosed() bool {
	return c.closed.Load()
}

// CloseReason returns why the channel was closed, or an empty string while it is open
func (c *Channel) CloseReason() string {
	if !c.IsClosed() {
		return ""
	}
	return c.closeReason
}

// readLoop moves received bytes to the scheduling loop. It never touches channel state
func (c *Channel) readLoop() {
	defer c.waitGroup.Done()
	buf := make([]byte, c.settings.channel.ReadBufferSize)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			select {
			case c.recvChan <- data:
			case <-c.doneChan:
				return
			}
		}
		if err != nil {
			select {
			case c.readErrChan <- err:
			default:
			}
			return
		}
	}
}

// Tick processes received data, checks the connection watchdog and runs the blocks
func (c *Channel) Tick() {
	if c.IsClosed() {
		return
	}
	if !c.drain() {
		return
	}
	select {
	case err := <-c.readErrChan:
		// Data read before the error is still handled
		if !c.drain() {
			return
		}
		if errors.Is(err, io.EOF) {
			c.logger.Info("remote unit disconnected")
		} else if !c.IsClosed() {
			c.logger.Warn("read failed", "error", err)
		}
		c.close(metrics.CloseReasonTransport)
		return
	default:
	}
	now := c.settings.now()
	if c.watchdog.Expired(now) {
		c.logger.Warn(
			"connection watchdog expired",
			"timeout", c.settings.channel.Timeout.String(),
		)
		c.close(metrics.CloseReasonTimeout)
		return
	}
	if interval := c.settings.channel.PingInterval; interval > 0 && now.Sub(c.lastPing) >= interval {
		c.lastPing = now
		if err := c.SendMessage(protocol.NewMsgPing()); err != nil {
			return
		}
	}
	c.table.Tick()
}

// drain feeds every buffered chunk to the codec. It returns false if the channel was
// closed in the process
func (c *Channel) drain() bool {
	for {
		select {
		case data := <-c.recvChan:
			if err := c.codec.Feed(data); err != nil {
				c.fail(err)
				return false
			}
			if c.IsClosed() {
				return false
			}
		default:
			return true
		}
	}
}

func (c *Channel) fail(err error) {
	reason := metrics.CloseReasonTransport
	if protocol.IsProtocolError(err) {
		reason = metrics.CloseReasonProtocol
		c.settings.metrics.ProtocolError()
	}
	c.logger.Error("closing channel", "error", err)
	c.close(reason)
}

// SendMessage encodes and writes msg to the remote unit. A write failure closes the
// channel
func (c *Channel) SendMessage(msg protocol.Message) error {
	if c.IsClosed() {
		return ErrChannelClosed
	}
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	if timeout := c.settings.channel.WriteTimeout; timeout > 0 {
		// Write deadlines are wall clock, independent of the scheduling clock
		if err := c.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			c.logger.Debug("failed to set write deadline", "error", err)
		}
	}
	if _, err := c.conn.Write(data); err != nil {
		c.logger.Warn(
			"write failed",
			"message", protocol.MessageTypeName(msg.Type()),
			"error", err,
		)
		c.close(metrics.CloseReasonTransport)
		return err
	}
	c.settings.metrics.MessageSent(protocol.MessageTypeName(msg.Type()))
	return nil
}

// Close disconnects the remote unit and disposes of its blocks. It is safe to call more
// than once
func (c *Channel) Close() error {
	return c.close(metrics.CloseReasonShutdown)
}

func (c *Channel) close(reason string) error {
	var err error
	c.onceClose.Do(func() {
		c.closeReason = reason
		c.closed.Store(true)
		// Close doneChan to signify that we're shutting down
		close(c.doneChan)
		// Closing the connection unblocks the read goroutine
		err = c.conn.Close()
		c.waitGroup.Wait()
		c.table.Close()
		c.settings.metrics.ChannelClosed(reason)
		c.logger.Info("channel closed", "reason", reason)
	})
	return err
}

func (c *Channel) handleMessage(msg protocol.Message) error {
	c.watchdog.Reset(c.settings.now())
	msgType := protocol.MessageTypeName(msg.Type())
	c.settings.metrics.MessageReceived(msgType)
	c.logger.Debug("received message", "message", msgType)
	return nil
}

func (c *Channel) handlePing() error {
	return c.SendMessage(protocol.NewMsgPong())
}

func (c *Channel) handlePong() error {
	return nil
}

func (c *Channel) handleDeclareBlock(msg *protocol.MsgDeclareBlock) error {
	blk, err := c.table.Declare(
		msg.Model,
		msg.LocalId,
		msg.RemoteInstance,
		int(msg.InputCount),
		int(msg.OutputCount),
	)
	if err != nil {
		if errors.Is(err, block.ErrUnknownModel) {
			c.logger.Error(
				"remote unit declared an unknown model",
				"lid", msg.LocalId,
				"model", msg.Model,
			)
			return nil
		}
		return err
	}
	blk.Logger().Info(
		"block declared",
		"remote_instance", msg.RemoteInstance,
		"inputs", blk.InputCount(),
		"outputs", blk.OutputCount(),
	)
	return nil
}

func (c *Channel) handleBlockInputs(msg *protocol.MsgBlockInputs) error {
	blk := c.table.Block(msg.LocalId)
	if blk == nil {
		c.logger.Debug("ignoring inputs for unknown block", "lid", msg.LocalId)
		return nil
	}
	if blk.RemoteInstance() != msg.RemoteInstance {
		c.logger.Warn(
			"remote instance mismatch",
			"lid", msg.LocalId,
			"expected", blk.RemoteInstance(),
			"received", msg.RemoteInstance,
		)
		return protocol.NewProtocolError(
			protocol.MessageTypeBlockInputs,
			protocol.ErrRemoteInstanceMismatch,
		)
	}
	for i, input := range msg.Inputs {
		p := blk.Input(i)
		if p == nil {
			break
		}
		if input.Connected {
			p.SetValue(float64(input.Value), input.Unit)
		} else {
			p.SetNull()
		}
	}
	return nil
}

// SendBlockOutputs sends the current outputs of a block to the remote unit
func (c *Channel) SendBlockOutputs(b *block.Block) error {
	outputs := make([]protocol.OutputValue, 0, b.OutputCount())
	for _, p := range b.Outputs() {
		p.CheckLiveness()
		v, ok := p.Raw()
		if ok && !p.Valid() {
			// Stale outputs carry their default, if any
			v, ok = p.DefaultValue()
		}
		if ok {
			outputs = append(outputs, protocol.OutputValue{Value: float32(v), Unit: p.Unit()})
		} else {
			outputs = append(outputs, protocol.OutputValue{Value: 0, Unit: block.UnitNone})
		}
	}
	return c.SendMessage(
		protocol.NewMsgBlockOutputs(
			b.LocalId(),
			b.RemoteInstance(),
			b.IsError(),
			b.IndexOfDefaultOutput(),
			outputs,
		),
	)
}

// SendBlockDefaultOutputs sends the default output values of a block to the remote unit
func (c *Channel) SendBlockDefaultOutputs(b *block.Block) error {
	defaults := make([]protocol.DefaultOutputValue, 0, b.OutputCount())
	for _, p := range b.Outputs() {
		v, ok := p.DefaultValue()
		defaults = append(defaults, protocol.DefaultOutputValue{HasDefault: ok, Value: float32(v)})
	}
	return c.SendMessage(
		protocol.NewMsgBlockDefaultOutputs(b.LocalId(), b.RemoteInstance(), defaults),
	)
}

// Status returns a snapshot of the channel and its blocks
func (c *Channel) Status() ChannelStatus {
	return ChannelStatus{
		Id:          c.id.String(),
		Name:        c.name,
		RemoteAddr:  c.conn.RemoteAddr().String(),
		ConnectedAt: c.connectedAt,
		Blocks:      c.table.Status(),
	}
}
