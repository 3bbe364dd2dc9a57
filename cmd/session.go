// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Thermoquad/lilliput-bridge/pkg/bridge"
	"github.com/Thermoquad/lilliput-bridge/pkg/config"
	"github.com/Thermoquad/lilliput-bridge/pkg/host"
	"github.com/rs/zerolog/log"
)

// session is one monitor instance hosted in-process: a Registry acting as the
// host and a bridge Instance driving the monitor.
type session struct {
	registry *host.Registry
	instance *bridge.Instance

	cancel context.CancelFunc
	done   chan error
}

// startSession creates the instance and starts its event loop. The monitor is
// not contacted until init.
func startSession(ctx context.Context, label string) *session {
	registry := host.NewRegistry(label)
	instance := bridge.NewInstance(registry,
		bridge.WithLogger(log.With().Str("component", "supervisor").Str("instance", label).Logger()),
	)

	ctx, cancel := context.WithCancel(ctx)
	s := &session{
		registry: registry,
		instance: instance,
		cancel:   cancel,
		done:     make(chan error, 1),
	}
	go func() {
		s.done <- instance.Run(ctx)
	}()
	return s
}

// init registers the definitions and connects with cfg. A rejected
// configuration is logged and returned; the session stays usable and reports
// BadConfig until a later reload fixes it.
func (s *session) init(cfg *config.Config) error {
	err := s.instance.Init(cfg)
	var cfgErr *config.Error
	if errors.As(err, &cfgErr) {
		log.Error().Str("field", cfgErr.Field).Msg(cfgErr.Reason)
	}
	return err
}

// close destroys the instance and stops its event loop
func (s *session) close() {
	if err := s.instance.Destroy(); err != nil && !errors.Is(err, bridge.ErrStopped) {
		log.Warn().Err(err).Msg("Destroy failed")
	}
	s.cancel()
	<-s.done
}

// watchReload re-reads the configuration on SIGHUP until ctx ends
func (s *session) watchReload(ctx context.Context) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGHUP)

	go func() {
		defer signal.Stop(sigs)
		for {
			select {
			case <-ctx.Done():
				return
			case <-sigs:
				cfg, err := loadConfig()
				if err != nil {
					log.Error().Err(err).Msg("Reload failed")
					continue
				}
				log.Info().Str("target", connectionInfo(cfg)).Msg("Configuration reloaded")
				if err := s.instance.ConfigUpdated(cfg); err != nil {
					log.Error().Err(err).Msg("Reload rejected")
				}
			}
		}
	}()
}

// waitStatus blocks until the host status is want, the status becomes
// BadConfig or the timeout expires.
func (s *session) waitStatus(ctx context.Context, want host.Status, timeout time.Duration) error {
	changes, stop := s.registry.Subscribe()
	defer stop()

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		status, message := s.registry.Status()
		switch status {
		case want:
			return nil
		case host.StatusBadConfig:
			return fmt.Errorf("bad config: %s", message)
		}

		select {
		case <-changes:
		case <-deadline.C:
			if message != "" {
				return fmt.Errorf("timed out waiting for %s (status %s: %s)", want, status, message)
			}
			return fmt.Errorf("timed out waiting for %s (status %s)", want, status)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// signalContext returns a context cancelled on SIGINT or SIGTERM
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
