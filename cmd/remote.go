// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/Thermoquad/lilliput-bridge/pkg/host"
	"github.com/spf13/cobra"
)

var (
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool
	remoteTimeout int
	remoteWatch   bool
)

var remoteCmd = &cobra.Command{
	Use:   "remote [press <preset> | command <text> | sync]",
	Short: "Control a bridge started with serve",
	Long: `Connect to a bridge started with "serve" and press a preset, send a
command or print the current state.

With --watch every state change is printed until interrupted.

For authentication, the password is read from the LILLIPUT_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell
history.

Exit codes:
  0 - Request succeeded
  1 - Request failed or timed out
  2 - Connection error`,
	Args: cobra.ArbitraryArgs,
	RunE: runRemote,
}

func init() {
	rootCmd.AddCommand(remoteCmd)
	remoteCmd.Flags().StringVarP(&wsURL, "url", "u", "ws://localhost:8080/ws", "WebSocket URL (ws:// or wss://)")
	remoteCmd.Flags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	remoteCmd.Flags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")
	remoteCmd.Flags().IntVar(&remoteTimeout, "timeout", 5, "Timeout in seconds for the request")
	remoteCmd.Flags().BoolVarP(&remoteWatch, "watch", "w", false, "Print every state change")
}

// remoteRequest builds the client message for the command line arguments
func remoteRequest(args []string) (clientMessage, error) {
	if len(args) == 0 {
		return clientMessage{Type: msgSync}, nil
	}
	switch args[0] {
	case msgSync:
		return clientMessage{Type: msgSync}, nil
	case msgPress:
		if len(args) != 2 {
			return clientMessage{}, fmt.Errorf("press takes one preset id")
		}
		return clientMessage{Type: msgPress, ID: args[1]}, nil
	case msgCommand:
		text := strings.Join(args[1:], " ")
		if text == "" {
			return clientMessage{}, fmt.Errorf("command text is missing")
		}
		return clientMessage{Type: msgCommand, Command: text}, nil
	default:
		return clientMessage{}, fmt.Errorf("unknown request %q", args[0])
	}
}

func runRemote(cmd *cobra.Command, args []string) error {
	req, err := remoteRequest(args)
	if err != nil {
		return err
	}

	password := ""
	if wsUsername != "" {
		password, err = GetPassword()
		if err != nil {
			return err
		}
	}

	conn, err := OpenWebSocketConnection(wsURL, wsUsername, password, wsNoSSLVerify)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	msgChan := make(chan serverMessage, 16)
	errChan := make(chan error, 1)
	go func() {
		for {
			msg, err := conn.ReadMessage()
			if err != nil {
				errChan <- err
				return
			}
			msgChan <- msg
		}
	}()

	startTime := time.Now()
	if err := conn.WriteMessage(req); err != nil {
		fmt.Fprintf(os.Stderr, "SEND FAILED: %v\n", err)
		os.Exit(2)
	}

	timeout := time.After(time.Duration(remoteTimeout) * time.Second)
	for {
		select {
		case msg := <-msgChan:
			switch msg.Type {
			case msgHello:
				fmt.Printf("Connected as %s\n", msg.Client)
			case msgState:
				printState(msg)
				if req.Type == msgSync && !remoteWatch {
					return nil
				}
			case msgResult:
				rtt := time.Since(startTime).Round(time.Millisecond)
				if !msg.OK {
					fmt.Fprintf(os.Stderr, "%s FAILED: %s (rtt=%v)\n", msg.Request, msg.Error, rtt)
					os.Exit(1)
				}
				fmt.Printf("%s OK (rtt=%v)\n", msg.Request, rtt)
				if !remoteWatch {
					return nil
				}
			}

		case err := <-errChan:
			fmt.Fprintf(os.Stderr, "READ FAILED: %v\n", err)
			os.Exit(2)

		case <-timeout:
			if remoteWatch {
				// Watching has no deadline
				timeout = nil
				continue
			}
			fmt.Fprintf(os.Stderr, "TIMEOUT (no response in %ds)\n", remoteTimeout)
			os.Exit(1)
		}
	}
}

func printState(msg serverMessage) {
	fmt.Printf("[%s] status=%s", time.Now().Format("15:04:05.000"), msg.Status)
	if msg.Message != "" {
		fmt.Printf(" (%s)", msg.Message)
	}
	fmt.Println()

	keys := make([]string, 0, len(msg.Variables))
	for k := range msg.Variables {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  %-20s %s\n", k, host.FormatVariable(msg.Variables[k]))
	}

	var active []string
	for id, on := range msg.Active {
		if on {
			active = append(active, id)
		}
	}
	sort.Strings(active)
	if len(active) > 0 {
		fmt.Printf("  active presets: %s\n", strings.Join(active, ", "))
	}
}
