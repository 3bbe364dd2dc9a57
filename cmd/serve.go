// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	serveAddr     string
	serveUsername string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the monitor's controls over WebSocket",
	Long: `Host the monitor on a WebSocket server.

Endpoints:
  /ws       WebSocket control surface (JSON messages)
  /health   Connection status (200 when connected, 503 otherwise)
  /metrics  Prometheus metrics

Clients receive the action, feedback and preset definitions on connect and a
state message (status, variables, active presets) after every change. They
send {"type":"press","id":"source_hdmi"}, {"type":"action","id":"audio",
"options":{...}} or {"type":"command","command":"volume 40"}.

With --username every endpoint requires HTTP Basic auth. The password is read
from the LILLIPUT_PASSWORD environment variable, or prompted interactively if
not set.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "listen", ":8080", "HTTP listen address")
	serveCmd.Flags().StringVar(&serveUsername, "username", "", "Require HTTP Basic auth with this username")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	password := ""
	if serveUsername != "" {
		password, err = GetPassword()
		if err != nil {
			return err
		}
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	s := startSession(ctx, cfg.Label)
	defer s.close()
	s.watchReload(ctx)

	// A rejected config is reported to clients as BadConfig
	_ = s.init(cfg)

	ws := newWSServer(s.registry, s.instance.Ready, serveUsername, password)
	go ws.run(ctx)

	server := &http.Server{
		Addr:              serveAddr,
		Handler:           ws.handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", serveAddr).Str("target", connectionInfo(cfg)).Msg("Serving")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Shutdown failed")
	}
	return nil
}
