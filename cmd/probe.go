// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/Thermoquad/lilliput-bridge/pkg/bridge"
	"github.com/Thermoquad/lilliput-bridge/pkg/config"
	"github.com/Thermoquad/lilliput-bridge/pkg/lilliput"
	"github.com/Thermoquad/lilliput-bridge/pkg/sharedudp"
	"github.com/spf13/cobra"
)

var (
	probeTimeout int
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Test the connection by waiting for a valid status response",
	Long: `Send "status?" to the monitor and wait for a valid response frame until
timeout.

In broadcast mode the status listen port is bound as well, so the reply is
accepted from either path. Invalid bytes and frames failing the CRC check are
skipped.

Exit codes:
  0 - Response received before timeout
  1 - Timeout reached without receiving a valid response
  2 - Configuration or connection error`,
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().IntVar(&probeTimeout, "timeout", 10, "Timeout in seconds to wait for a response")
}

func runProbe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(2)
	}

	fmt.Printf("lilliput-bridge - Probe\n")
	fmt.Printf("Connection: %s\n", connectionInfo(cfg))
	fmt.Printf("Timeout: %d seconds\n", probeTimeout)
	fmt.Printf("Waiting for valid status response...\n\n")

	respChan := make(chan lilliput.Response, 1)
	errChan := make(chan error, 1)
	var invalidFrames atomic.Int32

	handler := func(ev lilliput.Event) {
		switch e := ev.(type) {
		case lilliput.Response:
			if e.Err != nil {
				invalidFrames.Add(1)
				return
			}
			select {
			case respChan <- e:
			default:
			}
		case lilliput.ConnectionStatus:
			if e.Status == lilliput.StatusError {
				select {
				case errChan <- fmt.Errorf("%s", e.Detail):
				default:
				}
			}
		}
	}
	dev := bridge.NewDeviceTransport(cfg, handler).(*lilliput.Device)

	if err := dev.Process(lilliput.TokenConnect); err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer dev.Close()

	if cfg.ListensForBroadcasts() && cfg.TransportMode() == lilliput.ModeUDP {
		sub, err := listenForStatus(cfg, dev)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
			os.Exit(2)
		}
		defer sub.Close()
	}

	if err := dev.Process("status?"); err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}

	select {
	case resp := <-respChan:
		if skipped := invalidFrames.Load(); skipped > 0 {
			fmt.Printf("(skipped %d invalid frames)\n", skipped)
		}
		fmt.Printf("SUCCESS: Received valid response\n")
		fmt.Printf("  Request: %s\n", resp.Req)
		fmt.Printf("  Status: %s\n", resp.Status)
		fmt.Print(lilliput.FormatValue(resp.Value))
		os.Exit(0)

	case err := <-errChan:
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		os.Exit(2)

	case <-time.After(time.Duration(probeTimeout) * time.Second):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No valid response received within %d seconds\n", probeTimeout)
		os.Exit(1)
	}

	return nil
}

// listenForStatus feeds status broadcasts from the configured monitor into dev
func listenForStatus(cfg *config.Config, dev *lilliput.Device) (*sharedudp.Subscription, error) {
	want := net.ParseIP(cfg.Host)
	return sharedudp.NewPool().Listen(cfg.ListenPort,
		func(data []byte, from *net.UDPAddr) {
			if want != nil && !from.IP.Equal(want) {
				return
			}
			dev.Decode(data)
		},
		nil,
	)
}
