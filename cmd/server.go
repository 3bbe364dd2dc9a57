// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Thermoquad/lilliput-bridge/pkg/host"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Message types exchanged with WebSocket clients
const (
	msgHello       = "hello"
	msgDefinitions = "definitions"
	msgState       = "state"
	msgResult      = "result"

	msgPress   = "press"
	msgAction  = "action"
	msgCommand = "command"
	msgSync    = "sync"
)

const (
	clientSendBuffer = 64
	pingInterval     = 30 * time.Second
	writeTimeout     = 10 * time.Second
)

// clientMessage is a request from a WebSocket client
type clientMessage struct {
	Type    string       `json:"type"`
	ID      string       `json:"id,omitempty"`
	Options host.Options `json:"options,omitempty"`
	Command string       `json:"command,omitempty"`
}

// serverMessage is sent to WebSocket clients
type serverMessage struct {
	Type   string `json:"type"`
	Client string `json:"client,omitempty"`

	// state
	Status    host.Status            `json:"status,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Variables map[string]interface{} `json:"variables,omitempty"`
	Active    map[string]bool        `json:"active,omitempty"`

	// definitions
	Actions   []host.ActionDefinition   `json:"actions,omitempty"`
	Feedbacks []host.FeedbackDefinition `json:"feedbacks,omitempty"`
	Presets   []host.PresetDefinition   `json:"presets,omitempty"`

	// result
	Request string `json:"request,omitempty"`
	OK      bool   `json:"ok,omitempty"`
	Error   string `json:"error,omitempty"`
}

// wsServer exposes a Registry to WebSocket clients. Every client receives the
// definitions and state on connect and again whenever they change.
type wsServer struct {
	registry *host.Registry
	ready    func() bool
	username string
	password string
	logger   zerolog.Logger

	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[string]*wsClient
}

type wsClient struct {
	id     string
	conn   *websocket.Conn
	sendCh chan serverMessage
	done   chan struct{}
	once   sync.Once
}

func newWSServer(registry *host.Registry, ready func() bool, username, password string) *wsServer {
	return &wsServer{
		registry: registry,
		ready:    ready,
		username: username,
		password: password,
		logger:   log.With().Str("component", "websocket").Logger(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[string]*wsClient),
	}
}

// handler returns the HTTP routes: /ws, /health and /metrics
func (s *wsServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	return s.authMiddleware(mux)
}

// run forwards registry changes to every client until ctx ends
func (s *wsServer) run(ctx context.Context) {
	changes, stop := s.registry.Subscribe()
	defer stop()

	for {
		select {
		case <-ctx.Done():
			s.closeAll()
			return
		case change := <-changes:
			if change.Kind == host.ChangeDefinitions {
				s.broadcast(s.definitionsMessage())
			}
			s.broadcast(s.stateMessage())
		}
	}
}

func (s *wsServer) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.username == "" && s.password == "" {
			next.ServeHTTP(w, r)
			return
		}

		username, password, ok := r.BasicAuth()
		usernameMatch := subtle.ConstantTimeCompare([]byte(username), []byte(s.username)) == 1
		passwordMatch := subtle.ConstantTimeCompare([]byte(password), []byte(s.password)) == 1
		if !ok || !usernameMatch || !passwordMatch {
			w.Header().Set("WWW-Authenticate", `Basic realm="lilliput-bridge"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *wsServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, message := s.registry.Status()
	code := http.StatusOK
	if status != host.StatusOk {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  status,
		"message": message,
		"ready":   s.ready(),
	})
}

func (s *wsServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := &wsClient{
		id:     uuid.New().String(),
		conn:   conn,
		sendCh: make(chan serverMessage, clientSendBuffer),
		done:   make(chan struct{}),
	}

	s.mu.Lock()
	s.clients[client.id] = client
	s.mu.Unlock()

	s.logger.Info().Str("client", client.id).Str("remote", r.RemoteAddr).Msg("Client connected")

	go client.writePump(s.logger)

	client.send(serverMessage{Type: msgHello, Client: client.id})
	client.send(s.definitionsMessage())
	client.send(s.stateMessage())

	s.readPump(r.Context(), client)

	s.mu.Lock()
	delete(s.clients, client.id)
	s.mu.Unlock()
	client.close()

	s.logger.Info().Str("client", client.id).Msg("Client disconnected")
}

// readPump handles client requests until the connection closes
func (s *wsServer) readPump(ctx context.Context, client *wsClient) {
	for {
		var msg clientMessage
		if err := client.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn().Err(err).Str("client", client.id).Msg("WebSocket read error")
			}
			return
		}
		client.send(s.handleMessage(ctx, msg))
	}
}

// handleMessage runs one client request and returns its result
func (s *wsServer) handleMessage(ctx context.Context, msg clientMessage) serverMessage {
	result := serverMessage{Type: msgResult, Request: msg.Type}

	var err error
	switch msg.Type {
	case msgPress:
		err = s.requireReady()
		if err == nil {
			err = s.registry.PressPreset(ctx, msg.ID)
		}
	case msgAction:
		err = s.requireReady()
		if err == nil {
			err = s.registry.ExecuteAction(ctx, msg.ID, msg.Options)
		}
	case msgCommand:
		err = s.requireReady()
		if err == nil {
			err = s.registry.ExecuteAction(ctx, "customCommand", host.Options{"command": msg.Command})
		}
	case msgSync:
		return s.stateMessage()
	default:
		err = fmt.Errorf("unknown message type %q", msg.Type)
	}

	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.OK = true
	return result
}

func (s *wsServer) requireReady() error {
	if !s.ready() {
		return errors.New("monitor not connected")
	}
	return nil
}

func (s *wsServer) definitionsMessage() serverMessage {
	return serverMessage{
		Type:      msgDefinitions,
		Actions:   s.registry.Actions(),
		Feedbacks: s.registry.Feedbacks(),
		Presets:   s.registry.Presets(),
	}
}

func (s *wsServer) stateMessage() serverMessage {
	status, message := s.registry.Status()
	presets := s.registry.Presets()
	active := make(map[string]bool, len(presets))
	for _, p := range presets {
		active[p.ID] = s.registry.PresetActive(p.ID)
	}
	return serverMessage{
		Type:      msgState,
		Status:    status,
		Message:   message,
		Variables: s.registry.Variables(),
		Active:    active,
	}
}

func (s *wsServer) broadcast(msg serverMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.clients {
		c.send(msg)
	}
}

func (s *wsServer) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.clients {
		c.close()
		delete(s.clients, id)
	}
}

func (s *wsServer) clientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// send queues msg, dropping it when the client is not keeping up
func (c *wsClient) send(msg serverMessage) {
	select {
	case c.sendCh <- msg:
	case <-c.done:
	default:
	}
}

func (c *wsClient) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// writePump sends queued messages and keepalive pings
func (c *wsClient) writePump(logger zerolog.Logger) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case msg := <-c.sendCh:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteJSON(msg); err != nil {
				logger.Debug().Err(err).Str("client", c.id).Msg("WebSocket write error")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}
