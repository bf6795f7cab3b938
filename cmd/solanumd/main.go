/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc"
	"github.com/spf13/cobra"

	dircd "github.com/solanum-go/ircd"
	"github.com/solanum-go/ircd/internal/config"
	"github.com/solanum-go/ircd/internal/metrics"
)

func main() {
	var cfgPath string
	var listenAddr string

	root := &cobra.Command{
		Use:   "solanumd",
		Short: "solanum-go is a TS6-family IRC server daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cfgPath, listenAddr)
		},
	}
	root.Flags().StringVarP(&cfgPath, "config", "c", "", "path to the server config file")
	root.Flags().StringVarP(&listenAddr, "listen", "l", ":6667", "plaintext client listener address")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfgPath, listenAddr string) error {
	logger := logrus.New()

	cfg, err := loadConfig(cfgPath, logger)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	mainCtx, shutdown := context.WithCancel(context.Background())
	defer shutdown()

	store := config.NewStore(cfg)
	metricsReg := metrics.New(nil)
	srv := dircd.NewServer(store, metricsReg)

	if cfgPath != "" {
		stop, err := config.WatchFile(cfgPath, store, func(old, next *config.Config, err error) {
			if err != nil {
				logger.WithError(err).Warn("rehash failed, keeping previous config")
				return
			}
			logger.Info("rehashed configuration")
		})
		if err != nil {
			logger.WithError(err).Warn("could not start config watcher")
		} else {
			defer stop()
		}
	}

	wg := conc.NewWaitGroup()
	defer wg.Wait()

	wg.Go(func() {
		if err := srv.ListenAndServe(listenAddr); err != nil && !errors.Is(err, dircd.ErrServerClosed) {
			logger.WithError(err).Fatal("failed to start server")
		}
	})

	log := logger.WithField("component", "main")
	killSignals := make(chan os.Signal, 1)
	signal.Notify(killSignals, syscall.SIGINT, syscall.SIGTERM)

	sig := <-killSignals
	log.Infof("initializing server shutdown, received signal: %s", sig)
	shutdown()

	select {
	case sig = <-killSignals:
		log.Fatalf("forcefully shutting down server, received signal: %s", sig)
	case <-time.After(30 * time.Second):
		log.Warn("shutdown grace period elapsed")
	}
	return nil
}

func loadConfig(path string, logger *logrus.Logger) (*config.Config, error) {
	if path == "" {
		return config.New(
			config.WithHostname("irc.localhost.net"),
			config.WithNetwork("solanum-go"),
			config.WithSID("001"),
			config.WithLogger(logger),
			config.WithLogLevel(logrus.InfoLevel),
			config.WithDefaultLogFormatter(),
		)
	}

	cfg, err := config.FromFile(path)
	if err != nil {
		return nil, err
	}
	cfg.Logger = logger
	return cfg, nil
}
