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
	"log/slog"
	"net"
	"time"

	"github.com/blinklabs-io/remoteblock/block"
	"github.com/blinklabs-io/remoteblock/config"
	"github.com/blinklabs-io/remoteblock/metrics"
)

// ServerOptionFunc is a type that represents functions that modify the Server config
type ServerOptionFunc func(*Server)

// WithConfig specifies the server configuration. The default is config.Default()
func WithConfig(cfg config.Config) ServerOptionFunc {
	return func(s *Server) {
		s.config = cfg
	}
}

// WithRegistry specifies the block models available to remote units
func WithRegistry(registry *block.Registry) ServerOptionFunc {
	return func(s *Server) {
		s.registry = registry
	}
}

// WithListener specifies an existing listener to accept remote units on. If none is
// provided, Start listens on the configured address
func WithListener(listener net.Listener) ServerOptionFunc {
	return func(s *Server) {
		s.netListener = listener
	}
}

// WithLogger specifies the logger. The default is slog.Default()
func WithLogger(logger *slog.Logger) ServerOptionFunc {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics specifies the metrics to record to. Nothing is recorded by default
func WithMetrics(m *metrics.Metrics) ServerOptionFunc {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithClock specifies the time source for all protocol and block timers. The default
// is time.Now
func WithClock(now func() time.Time) ServerOptionFunc {
	return func(s *Server) {
		s.now = now
	}
}
