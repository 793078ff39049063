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
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/blinklabs-io/remoteblock/block"
	"github.com/blinklabs-io/remoteblock/config"
	"github.com/blinklabs-io/remoteblock/metrics"
)

// Server runs the scheduling loop that drives every channel and block
type Server struct {
	config        config.Config
	registry      *block.Registry
	netListener   net.Listener
	logger        *slog.Logger
	baseLogger    *slog.Logger
	metrics       *metrics.Metrics
	now           func() time.Time
	listener      *Listener
	startedAt     time.Time
	wakeChan      chan struct{}
	doneChan      chan struct{}
	loopDoneChan  chan struct{}
	statusReqChan chan chan Status
	stateMutex    sync.Mutex
	started       bool
	stopped       bool
}

// NewServer returns a new Server object with the specified options. The server does
// not listen until Start is called
func NewServer(options ...ServerOptionFunc) *Server {
	s := &Server{
		config:        config.Default(),
		now:           time.Now,
		wakeChan:      make(chan struct{}, 1),
		doneChan:      make(chan struct{}),
		loopDoneChan:  make(chan struct{}),
		statusReqChan: make(chan chan Status),
	}
	for _, option := range options {
		option(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.baseLogger = s.logger
	s.logger = s.logger.With("component", "server")
	if s.registry == nil {
		s.registry = block.NewRegistry(
			block.WithMaxModelNameLength(s.config.Block.ModelNameLength),
		)
	}
	return s
}

// Registry returns the block models available to remote units
func (s *Server) Registry() *block.Registry {
	return s.registry
}

// Addr returns the listening address, or nil before Start
func (s *Server) Addr() net.Addr {
	s.stateMutex.Lock()
	defer s.stateMutex.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Start begins listening and launches the scheduling loop
func (s *Server) Start() error {
	s.stateMutex.Lock()
	defer s.stateMutex.Unlock()
	if s.stopped {
		return ErrServerStopped
	}
	if s.started {
		return nil
	}
	if err := s.config.Validate(); err != nil {
		return err
	}
	netListener := s.netListener
	if netListener == nil {
		var err error
		netListener, err = net.Listen("tcp", s.config.Listen.Address)
		if err != nil {
			return fmt.Errorf("listen on %s: %w", s.config.Listen.Address, err)
		}
	}
	settings := &channelSettings{
		channel:  s.config.Channel,
		block:    s.config.Block,
		registry: s.registry,
		logger:   s.baseLogger,
		metrics:  s.metrics,
		now:      s.now,
	}
	s.listener = newListener(netListener, s.config.Listen.MaxChannels, settings)
	s.startedAt = s.now()
	s.started = true
	go s.loop()
	s.logger.Info(
		"block server started",
		"address", netListener.Addr().String(),
		"models", s.registry.Models(),
	)
	return nil
}

// Stop ends the scheduling loop, stops listening and closes every channel. It is safe
// to call more than once
func (s *Server) Stop() error {
	s.stateMutex.Lock()
	if s.stopped {
		s.stateMutex.Unlock()
		return nil
	}
	s.stopped = true
	started := s.started
	s.stateMutex.Unlock()
	close(s.doneChan)
	if !started {
		return nil
	}
	<-s.loopDoneChan
	err := s.listener.Close()
	s.logger.Info("block server stopped")
	return err
}

// Serve starts the server and runs it until ctx is done
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
	case <-s.doneChan:
	}
	return s.Stop()
}

// Wake interrupts the loop sleep so the next tick runs immediately
func (s *Server) Wake() {
	select {
	case s.wakeChan <- struct{}{}:
	default:
	}
}

// Status returns a snapshot assembled by the scheduling loop between ticks
func (s *Server) Status(ctx context.Context) (Status, error) {
	s.stateMutex.Lock()
	running := s.started && !s.stopped
	s.stateMutex.Unlock()
	if !running {
		return Status{}, ErrServerNotRunning
	}
	respChan := make(chan Status, 1)
	select {
	case s.statusReqChan <- respChan:
	case <-s.doneChan:
		return Status{}, ErrServerStopped
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
	select {
	case status := <-respChan:
		return status, nil
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
}

func (s *Server) loop() {
	defer close(s.loopDoneChan)
	timer := time.NewTimer(s.config.Server.TickInterval)
	defer timer.Stop()
	for {
		s.tick()
		timer.Reset(s.config.Server.TickInterval)
		// Status requests are answered without starting a new tick
		waiting := true
		for waiting {
			select {
			case <-s.doneChan:
				return
			case <-s.wakeChan:
				waiting = false
			case respChan := <-s.statusReqChan:
				respChan <- s.status()
			case <-timer.C:
				waiting = false
			}
		}
	}
}

// tick runs one pass over every channel. A panic is logged and the loop continues
func (s *Server) tick() {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("recovered from panic in scheduling loop", "error", r)
		}
		s.metrics.ObserveTick(time.Since(start))
	}()
	s.listener.Tick()
}

func (s *Server) status() Status {
	return Status{
		Address:   s.listener.Addr().String(),
		StartedAt: s.startedAt,
		Models:    s.registry.Models(),
		Channels:  s.listener.Status(),
	}
}
