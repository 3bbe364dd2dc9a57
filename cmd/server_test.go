// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Thermoquad/lilliput-bridge/pkg/host"
	"github.com/gorilla/websocket"
)

func startTestServer(t *testing.T, ws *wsServer) *httptest.Server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go ws.run(ctx)

	srv := httptest.NewServer(ws.handler())
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return srv
}

func dialTestServer(t *testing.T, srv *httptest.Server, header http.Header) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads server messages until one of type want arrives
func readUntil(t *testing.T, conn *websocket.Conn, want string) serverMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var msg serverMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("ReadJSON waiting for %s: %v", want, err)
		}
		if msg.Type == want {
			return msg
		}
	}
}

// ============================================================
// Connection Tests
// ============================================================

func TestWSServer_Greeting(t *testing.T) {
	registry, _ := newTestRegistry(t)
	registry.UpdateStatus(host.StatusOk, "")
	ready := &readyFlag{}
	srv := startTestServer(t, newWSServer(registry, ready.get, "", ""))

	conn := dialTestServer(t, srv, nil)

	hello := readUntil(t, conn, msgHello)
	if hello.Client == "" {
		t.Error("hello carries no client id")
	}

	defs := readUntil(t, conn, msgDefinitions)
	if len(defs.Actions) != 2 || len(defs.Presets) != 1 || len(defs.Feedbacks) != 1 {
		t.Errorf("definitions: %d actions, %d presets, %d feedbacks", len(defs.Actions), len(defs.Presets), len(defs.Feedbacks))
	}

	state := readUntil(t, conn, msgState)
	if state.Status != host.StatusOk {
		t.Errorf("state status = %q, want ok", state.Status)
	}
}

func TestWSServer_BroadcastsChanges(t *testing.T) {
	registry, _ := newTestRegistry(t)
	ws := newWSServer(registry, func() bool { return true }, "", "")
	srv := startTestServer(t, ws)

	conn := dialTestServer(t, srv, nil)
	readUntil(t, conn, msgState)
	eventually(t, "client registration", func() bool { return ws.clientCount() == 1 })

	registry.SetVariableValues(map[string]interface{}{"volume": 50})
	registry.CheckFeedbacks()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var msg serverMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("ReadJSON: %v", err)
		}
		if msg.Type != msgState || !msg.Active["audio_50"] {
			continue
		}
		if got := msg.Variables["volume"]; got != float64(50) {
			t.Errorf("volume = %v, want 50", got)
		}
		return
	}
}

// ============================================================
// Request Tests
// ============================================================

func TestWSServer_Requests(t *testing.T) {
	tests := []struct {
		name       string
		req        clientMessage
		ready      bool
		wantOK     bool
		wantError  string
		wantAction string
		wantOption string
		wantValue  interface{}
	}{
		{
			name:       "press preset",
			req:        clientMessage{Type: msgPress, ID: "audio_50"},
			ready:      true,
			wantOK:     true,
			wantAction: "audio",
			wantOption: "volume",
			wantValue:  50,
		},
		{
			name:       "action with options",
			req:        clientMessage{Type: msgAction, ID: "audio", Options: host.Options{"volume": 30}},
			ready:      true,
			wantOK:     true,
			wantAction: "audio",
			wantOption: "meter",
			wantValue:  "None",
		},
		{
			name:       "custom command",
			req:        clientMessage{Type: msgCommand, Command: "volume 40"},
			ready:      true,
			wantOK:     true,
			wantAction: "customCommand",
			wantOption: "command",
			wantValue:  "volume 40",
		},
		{
			name:      "not connected",
			req:       clientMessage{Type: msgPress, ID: "audio_50"},
			ready:     false,
			wantError: "monitor not connected",
		},
		{
			name:      "unknown preset",
			req:       clientMessage{Type: msgPress, ID: "missing"},
			ready:     true,
			wantError: "unknown preset",
		},
		{
			name:      "unknown type",
			req:       clientMessage{Type: "reboot"},
			ready:     true,
			wantError: `unknown message type "reboot"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry, rec := newTestRegistry(t)
			ready := &readyFlag{}
			ready.set(tt.ready)
			ws := newWSServer(registry, ready.get, "", "")

			result := ws.handleMessage(context.Background(), tt.req)
			if result.Type != msgResult || result.Request != tt.req.Type {
				t.Fatalf("result = %+v", result)
			}
			if result.OK != tt.wantOK {
				t.Errorf("OK = %v, want %v (error %q)", result.OK, tt.wantOK, result.Error)
			}
			if tt.wantError != "" && !strings.Contains(result.Error, tt.wantError) {
				t.Errorf("Error = %q, want %q", result.Error, tt.wantError)
			}

			calls := rec.snapshot()
			if tt.wantAction == "" {
				if len(calls) != 0 {
					t.Errorf("ran %d actions, want none", len(calls))
				}
				return
			}
			if len(calls) != 1 || calls[0].action != tt.wantAction {
				t.Fatalf("calls = %+v, want one %s", calls, tt.wantAction)
			}
			if got := calls[0].options[tt.wantOption]; got != tt.wantValue {
				t.Errorf("option %s = %v, want %v", tt.wantOption, got, tt.wantValue)
			}
		})
	}
}

func TestWSServer_SyncReturnsState(t *testing.T) {
	registry, _ := newTestRegistry(t)
	registry.UpdateStatus(host.StatusConnecting, "")
	ws := newWSServer(registry, func() bool { return false }, "", "")

	msg := ws.handleMessage(context.Background(), clientMessage{Type: msgSync})
	if msg.Type != msgState || msg.Status != host.StatusConnecting {
		t.Errorf("sync = %+v, want connecting state", msg)
	}
}

func TestWSServer_RoundTrip(t *testing.T) {
	registry, rec := newTestRegistry(t)
	srv := startTestServer(t, newWSServer(registry, func() bool { return true }, "", ""))
	conn := dialTestServer(t, srv, nil)

	if err := conn.WriteJSON(clientMessage{Type: msgCommand, Command: "source hdmi"}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	result := readUntil(t, conn, msgResult)
	if !result.OK {
		t.Fatalf("result error: %s", result.Error)
	}
	if calls := rec.snapshot(); len(calls) != 1 || calls[0].options.String("command") != "source hdmi" {
		t.Errorf("calls = %+v", calls)
	}
}

// ============================================================
// HTTP Tests
// ============================================================

func TestWSServer_BasicAuth(t *testing.T) {
	registry, _ := newTestRegistry(t)
	srv := startTestServer(t, newWSServer(registry, func() bool { return true }, "admin", "secret"))

	tests := []struct {
		name        string
		credentials string
		want        int
	}{
		{"no credentials", "", http.StatusUnauthorized},
		{"wrong password", "admin:wrong", http.StatusUnauthorized},
		{"wrong username", "root:secret", http.StatusUnauthorized},
		{"valid", "admin:secret", http.StatusServiceUnavailable}, // health: not connected
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, srv.URL+"/health", nil)
			if tt.credentials != "" {
				req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(tt.credentials)))
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("GET /health: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}

	header := http.Header{}
	header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("admin:secret")))
	conn := dialTestServer(t, srv, header)
	readUntil(t, conn, msgHello)
}

func TestWSServer_Health(t *testing.T) {
	registry, _ := newTestRegistry(t)
	registry.UpdateStatus(host.StatusOk, "")
	srv := startTestServer(t, newWSServer(registry, func() bool { return true }, "", ""))

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" || body["ready"] != true {
		t.Errorf("body = %v", body)
	}
}

func TestWSServer_Metrics(t *testing.T) {
	registry, _ := newTestRegistry(t)
	srv := startTestServer(t, newWSServer(registry, func() bool { return true }, "", ""))

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}
