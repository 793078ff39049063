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

// Package monitor serves the HTTP monitoring endpoints of a block server: Prometheus
// metrics, a health check and a status snapshot in JSON or CBOR.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/blinklabs-io/remoteblock"
	"github.com/blinklabs-io/remoteblock/cbor"
	"github.com/blinklabs-io/remoteblock/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	defaultStatusTimeout   = 2 * time.Second
	defaultShutdownTimeout = 5 * time.Second
	readHeaderTimeout      = 10 * time.Second
)

var ErrMonitorStarted = errors.New("monitor already started")

// StatusProvider returns a snapshot of the block server
type StatusProvider interface {
	Status(ctx context.Context) (remoteblock.Status, error)
}

type Server struct {
	address       string
	provider      StatusProvider
	metrics       *metrics.Metrics
	logger        *slog.Logger
	statusTimeout time.Duration
	mutex         sync.Mutex
	server        *http.Server
	listener      net.Listener
}

// ServerOptionFunc is a type that represents functions that modify the monitor config
type ServerOptionFunc func(*Server)

func WithAddress(address string) ServerOptionFunc {
	return func(s *Server) {
		s.address = address
	}
}

func WithStatusProvider(provider StatusProvider) ServerOptionFunc {
	return func(s *Server) {
		s.provider = provider
	}
}

// WithMetrics specifies the metrics exposed on /metrics. Without them the endpoint
// is not registered
func WithMetrics(m *metrics.Metrics) ServerOptionFunc {
	return func(s *Server) {
		s.metrics = m
	}
}

func WithLogger(logger *slog.Logger) ServerOptionFunc {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithStatusTimeout bounds how long /status waits for the scheduling loop
func WithStatusTimeout(timeout time.Duration) ServerOptionFunc {
	return func(s *Server) {
		s.statusTimeout = timeout
	}
}

func NewServer(options ...ServerOptionFunc) *Server {
	s := &Server{
		statusTimeout: defaultStatusTimeout,
	}
	for _, option := range options {
		option(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "monitor")
	return s
}

// Handler returns the HTTP handler serving every endpoint
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	if registry := s.metrics.Registry(); registry != nil {
		mux.Handle(
			"/metrics",
			promhttp.HandlerFor(
				registry,
				promhttp.HandlerOpts{
					EnableOpenMetrics: true,
				},
			),
		)
	}
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.provider == nil {
		http.Error(w, "status not available", http.StatusServiceUnavailable)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.statusTimeout)
	defer cancel()
	status, err := s.provider.Status(ctx)
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, remoteblock.ErrServerNotRunning) ||
			errors.Is(err, remoteblock.ErrServerStopped) ||
			errors.Is(err, context.DeadlineExceeded) {
			code = http.StatusServiceUnavailable
		}
		http.Error(w, err.Error(), code)
		return
	}
	if wantsCbor(r) {
		data, err := cbor.Encode(status)
		if err != nil {
			s.logger.Error("failed to encode status", "error", err)
			http.Error(w, "failed to encode status", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", cbor.ContentType)
		_, _ = w.Write(data)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(status); err != nil {
		s.logger.Debug("failed to write status", "error", err)
	}
}

func wantsCbor(r *http.Request) bool {
	if format := r.URL.Query().Get("format"); format != "" {
		return strings.EqualFold(format, "cbor")
	}
	for _, accept := range strings.Split(r.Header.Get("Accept"), ",") {
		mediaType, _, _ := strings.Cut(strings.TrimSpace(accept), ";")
		if strings.EqualFold(strings.TrimSpace(mediaType), cbor.ContentType) {
			return true
		}
	}
	return false
}

// Addr returns the listening address, or nil before the monitor is started
func (s *Server) Addr() net.Addr {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ListenAndServe serves the endpoints on the configured address until ctx is done,
// then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.address, err)
	}
	return s.Serve(ctx, listener)
}

// Serve is like ListenAndServe on an existing listener
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.mutex.Lock()
	if s.server != nil {
		s.mutex.Unlock()
		listener.Close()
		return ErrMonitorStarted
	}
	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	s.server = server
	s.listener = listener
	s.mutex.Unlock()
	s.logger.Info("monitor listening", "address", listener.Addr().String())
	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Serve(listener)
	}()
	select {
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shut down monitor: %w", err)
	}
	if err := <-errChan; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
