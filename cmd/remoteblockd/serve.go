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
	"os"
	"os/signal"
	"syscall"

	"github.com/blinklabs-io/remoteblock"
	"github.com/blinklabs-io/remoteblock/block"
	"github.com/blinklabs-io/remoteblock/config"
	"github.com/blinklabs-io/remoteblock/metrics"
	"github.com/blinklabs-io/remoteblock/models"
	"github.com/blinklabs-io/remoteblock/monitor"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type serveFlags struct {
	configFile string
	listen     string
	monitor    string
	logLevel   string
	logFormat  string
}

func newServeCommand() *cobra.Command {
	f := &serveFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept remote units and run their blocks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cmd, f)
		},
	}
	cmd.Flags().StringVar(&f.configFile, "config", "", "path to YAML config file")
	cmd.Flags().StringVar(&f.listen, "listen", "", "TCP address to listen on, overrides the config")
	cmd.Flags().StringVar(&f.monitor, "monitor", "", "HTTP monitor address, overrides the config")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&f.logFormat, "log-format", "", "log format (text, json)")
	return cmd
}

// loadServeConfig applies command line overrides on top of the loaded config
func loadServeConfig(cmd *cobra.Command, f *serveFlags) (config.Config, error) {
	cfg, err := config.Load(f.configFile)
	if err != nil {
		return cfg, err
	}
	if cmd.Flags().Changed("listen") {
		cfg.Listen.Address = f.listen
	}
	if cmd.Flags().Changed("monitor") {
		cfg.Monitor.Address = f.monitor
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Logging.Level = f.logLevel
	}
	if cmd.Flags().Changed("log-format") {
		cfg.Logging.Format = f.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func runServe(ctx context.Context, cmd *cobra.Command, f *serveFlags) error {
	cfg, err := loadServeConfig(cmd, f)
	if err != nil {
		return err
	}
	logger, err := newLogger(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}
	registry := block.NewRegistry(
		block.WithMaxModelNameLength(cfg.Block.ModelNameLength),
	)
	if err := models.RegisterAll(registry); err != nil {
		return err
	}
	m := metrics.New()
	server := remoteblock.NewServer(
		remoteblock.WithConfig(cfg),
		remoteblock.WithRegistry(registry),
		remoteblock.WithLogger(logger),
		remoteblock.WithMetrics(m),
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Serve(gCtx)
	})
	if cfg.Monitor.Address != "" {
		mon := monitor.NewServer(
			monitor.WithAddress(cfg.Monitor.Address),
			monitor.WithStatusProvider(server),
			monitor.WithMetrics(m),
			monitor.WithLogger(logger),
		)
		g.Go(func() error {
			return mon.ListenAndServe(gCtx)
		})
	}
	return g.Wait()
}
