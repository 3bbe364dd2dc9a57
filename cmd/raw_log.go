// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/Thermoquad/lilliput-bridge/pkg/lilliput"
	"github.com/Thermoquad/lilliput-bridge/pkg/sharedudp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var rawLogAllSources bool

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display raw frame log in human-readable format",
	Long: `Continuously decode and display Lilliput protocol frames as they arrive.

In UDP mode the status listen port is bound and every datagram is decoded.
Datagrams from hosts other than --host are skipped unless --all is given.
In serial mode the control port is opened and read directly.

Each frame is printed with a timestamp and its decoded request or response.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().BoolVar(&rawLogAllSources, "all", false, "Show datagrams from every source")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	fmt.Printf("lilliput-bridge - Raw Frame Log\n")
	fmt.Printf("Connection: %s\n", connectionInfo(cfg))
	fmt.Printf("Press Ctrl+C to exit\n\n")

	if cfg.TransportMode() == lilliput.ModeSerial {
		conn, err := OpenSerialConnection(cfg.SerialPort, cfg.Baud)
		if err != nil {
			return err
		}
		defer conn.Close()
		return logSerialFrames(conn)
	}

	if cfg.ListenPort == 0 {
		return fmt.Errorf("--listen-port must be specified")
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	var mu sync.Mutex
	decoder := lilliput.NewDecoder()
	pool := sharedudp.NewPool()
	sub, err := pool.Listen(cfg.ListenPort,
		func(data []byte, from *net.UDPAddr) {
			if !rawLogAllSources && cfg.Host != "" && !from.IP.Equal(net.ParseIP(cfg.Host)) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			printFrames(decoder, data)
		},
		func(err error) {
			log.Error().Err(err).Msg("Read error")
		},
	)
	if err != nil {
		return err
	}
	defer sub.Close()

	<-ctx.Done()
	return nil
}

func logSerialFrames(conn io.Reader) error {
	decoder := lilliput.NewDecoder()
	buf := make([]byte, 256)

	for {
		n, err := conn.Read(buf)
		if err != nil {
			if err == io.EOF {
				log.Info().Msg("Connection closed")
				return nil
			}
			return fmt.Errorf("read error: %w", err)
		}
		printFrames(decoder, buf[:n])
	}
}

func printFrames(decoder *lilliput.Decoder, data []byte) {
	for _, b := range data {
		frame, err := decoder.DecodeByte(b)
		if err != nil {
			fmt.Printf("[ERROR] %v\n", err)
			continue
		}
		if frame != nil {
			fmt.Print(lilliput.FormatFrame(frame))
		}
	}
}
