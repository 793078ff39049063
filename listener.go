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
	"log/slog"
	"net"
	"sync"
)

// Listener accepts remote units and owns the set of open channels
type Listener struct {
	listener      net.Listener
	settings      *channelSettings
	maxChannels   int
	logger        *slog.Logger
	connChan      chan net.Conn
	doneChan      chan struct{}
	waitGroup     sync.WaitGroup
	onceClose     sync.Once
	channels      []*Channel
	channelsMutex sync.Mutex
}

func newListener(listener net.Listener, maxChannels int, settings *channelSettings) *Listener {
	l := &Listener{
		listener:    listener,
		settings:    settings,
		maxChannels: maxChannels,
		logger:      settings.logger.With("component", "listener"),
		// At most one accepted connection waits for the scheduling loop
		connChan: make(chan net.Conn, 1),
		doneChan: make(chan struct{}),
	}
	l.waitGroup.Add(1)
	go l.acceptLoop()
	return l
}

// Addr returns the address being listened on
func (l *Listener) Addr() net.Addr {
	return l.listener.Addr()
}

func (l *Listener) acceptLoop() {
	defer l.waitGroup.Done()
	for {
		conn, err := l.listener.Accept()
		if err != nil {
			select {
			case <-l.doneChan:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			l.logger.Error("accept failed", "error", err)
			return
		}
		select {
		case l.connChan <- conn:
		case <-l.doneChan:
			conn.Close()
			return
		}
	}
}

// Tick accepts at most one pending connection, ticks every channel and drops the
// channels that have been closed
func (l *Listener) Tick() {
	select {
	case conn := <-l.connChan:
		l.addChannel(conn)
	default:
	}
	for _, c := range l.Channels() {
		c.Tick()
		if c.IsClosed() {
			l.removeChannel(c)
		}
	}
}

func (l *Listener) addChannel(conn net.Conn) {
	if l.maxChannels > 0 && l.Len() >= l.maxChannels {
		l.logger.Warn(
			"refusing connection, too many channels",
			"remote_addr", conn.RemoteAddr().String(),
			"max_channels", l.maxChannels,
		)
		l.settings.metrics.ChannelRefused()
		conn.Close()
		return
	}
	c, err := newChannel(conn, l.settings)
	if err != nil {
		l.logger.Warn(
			"failed to set up channel",
			"remote_addr", conn.RemoteAddr().String(),
			"error", err,
		)
		return
	}
	l.channelsMutex.Lock()
	l.channels = append(l.channels, c)
	l.channelsMutex.Unlock()
}

func (l *Listener) removeChannel(c *Channel) {
	l.channelsMutex.Lock()
	defer l.channelsMutex.Unlock()
	for i, tmp := range l.channels {
		if tmp == c {
			l.channels = append(l.channels[:i], l.channels[i+1:]...)
			return
		}
	}
}

// Channels returns the open channels in connection order
func (l *Listener) Channels() []*Channel {
	l.channelsMutex.Lock()
	defer l.channelsMutex.Unlock()
	ret := make([]*Channel, len(l.channels))
	copy(ret, l.channels)
	return ret
}

func (l *Listener) Len() int {
	l.channelsMutex.Lock()
	defer l.channelsMutex.Unlock()
	return len(l.channels)
}

// Close stops accepting and closes every channel. It is safe to call more than once
func (l *Listener) Close() error {
	var err error
	l.onceClose.Do(func() {
		close(l.doneChan)
		err = l.listener.Close()
		l.waitGroup.Wait()
		// Drop a connection that was accepted but never picked up
		select {
		case conn := <-l.connChan:
			conn.Close()
		default:
		}
		for _, c := range l.Channels() {
			c.Close()
			l.removeChannel(c)
		}
	})
	return err
}

// Status returns a snapshot of every open channel
func (l *Listener) Status() []ChannelStatus {
	channels := l.Channels()
	ret := make([]ChannelStatus, 0, len(channels))
	for _, c := range channels {
		ret = append(ret, c.Status())
	}
	return ret
}
