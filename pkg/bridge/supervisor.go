// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"context"
	"encoding/hex"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Thermoquad/lilliput-bridge/pkg/config"
	"github.com/Thermoquad/lilliput-bridge/pkg/host"
	"github.com/Thermoquad/lilliput-bridge/pkg/lilliput"
	"github.com/Thermoquad/lilliput-bridge/pkg/metrics"
	"github.com/Thermoquad/lilliput-bridge/pkg/sharedudp"
)

// ErrStopped is returned by lifecycle calls once the event loop has exited.
var ErrStopped = errors.New("bridge: supervisor stopped")

// statusQuery asks the monitor for every status value
const statusQuery = "status?"

var allStatuses = []string{
	string(host.StatusOk),
	string(host.StatusConnecting),
	string(host.StatusDisconnected),
	string(host.StatusUnknownError),
	string(host.StatusConnectionFailure),
	string(host.StatusBadConfig),
}

// TransportFactory creates the transport for a configuration. handler must
// receive every event of the new transport.
type TransportFactory func(cfg *config.Config, handler lilliput.Handler) Transport

// ListenFunc subscribes to the shared status listener on port.
type ListenFunc func(port int, onMessage sharedudp.MessageHandler, onError sharedudp.ErrorHandler) (io.Closer, error)

// AfterFunc runs f once after d and returns a function that cancels it.
type AfterFunc func(d time.Duration, f func()) (stop func() bool)

// NewDeviceTransport is the TransportFactory for real monitors
func NewDeviceTransport(cfg *config.Config, handler lilliput.Handler) Transport {
	opts := []lilliput.Option{lilliput.WithHandler(handler)}
	if cfg.TransportMode() == lilliput.ModeSerial {
		opts = append(opts, lilliput.WithSerial(cfg.SerialPort, cfg.Baud))
	}
	return lilliput.NewDevice(cfg.Host, cfg.Port, opts...)
}

// PoolListener returns a ListenFunc backed by a shared socket pool
func PoolListener(pool *sharedudp.Pool) ListenFunc {
	return func(port int, onMessage sharedudp.MessageHandler, onError sharedudp.ErrorHandler) (io.Closer, error) {
		sub, err := pool.Listen(port, onMessage, onError)
		if err != nil {
			return nil, err
		}
		return sub, nil
	}
}

func timeAfter(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// SupervisorOption configures a Supervisor.
type SupervisorOption func(*Supervisor)

// WithTransportFactory replaces how transports are created
func WithTransportFactory(f TransportFactory) SupervisorOption {
	return func(s *Supervisor) {
		s.newTransport = f
	}
}

// WithListener replaces how the shared status listener is bound
func WithListener(f ListenFunc) SupervisorOption {
	return func(s *Supervisor) {
		s.listen = f
	}
}

// WithAfterFunc replaces the timer used for reconnect backoff and polling
func WithAfterFunc(f AfterFunc) SupervisorOption {
	return func(s *Supervisor) {
		s.after = f
	}
}

// WithLogger sets the logger
func WithLogger(l zerolog.Logger) SupervisorOption {
	return func(s *Supervisor) {
		s.logger = l
	}
}

// Supervisor owns the transport and shared listener of one module instance.
//
// All state changes run on a single event loop (Run): transport events,
// datagrams, timers and lifecycle calls are queued as closures and executed in
// order, so the loop-owned fields below need no locking.
type Supervisor struct {
	host       host.Host
	mirror     *Mirror
	dispatcher *Dispatcher
	logger     zerolog.Logger

	newTransport TransportFactory
	listen       ListenFunc
	after        AfterFunc

	mu      sync.Mutex
	pending []func()
	stopped bool
	wake    chan struct{}
	done    chan struct{}

	// Loop-owned
	cfg           *config.Config
	transport     Transport
	listener      io.Closer
	backoff       time.Duration
	stopReconnect func() bool
	stopPoll      func() bool
	destroyed     bool
}

// NewSupervisor creates a Supervisor. Run must be started before Init.
func NewSupervisor(h host.Host, mirror *Mirror, options ...SupervisorOption) *Supervisor {
	s := &Supervisor{
		host:         h,
		mirror:       mirror,
		dispatcher:   NewDispatcher(lilliput.ModeUDP),
		logger:       log.With().Str("component", "supervisor").Logger(),
		newTransport: NewDeviceTransport,
		listen:       PoolListener(sharedudp.NewPool()),
		after:        timeAfter,
		wake:         make(chan struct{}, 1),
		done:         make(chan struct{}),
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Run executes queued work until ctx ends. The transport and listener are
// released on exit.
func (s *Supervisor) Run(ctx context.Context) error {
	defer func() {
		s.mu.Lock()
		s.stopped = true
		s.pending = nil
		s.mu.Unlock()
		close(s.done)
	}()
	for {
		select {
		case <-ctx.Done():
			s.teardown()
			s.destroyed = true
			return ctx.Err()
		case <-s.wake:
			s.mu.Lock()
			batch := s.pending
			s.pending = nil
			s.mu.Unlock()
			for _, f := range batch {
				f()
			}
		}
	}
}

// post appends f to the queue without blocking. Work runs in the order it was
// posted. It is safe to call from the loop itself.
func (s *Supervisor) post(f func()) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.pending = append(s.pending, f)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// do runs f on the loop and waits for it
func (s *Supervisor) do(f func()) error {
	finished := make(chan struct{})
	work := func() {
		defer close(finished)
		f()
	}
	select {
	case <-s.done:
		return ErrStopped
	default:
	}
	s.post(work)
	select {
	case <-finished:
		return nil
	case <-s.done:
		return ErrStopped
	}
}

// Init tears down any previous transport and listener, validates cfg and
// starts a new connection. A configuration error is reported as BadConfig and
// returned.
func (s *Supervisor) Init(cfg *config.Config) error {
	var initErr error
	if err := s.do(func() { initErr = s.init(cfg) }); err != nil {
		return err
	}
	return initErr
}

// Destroy releases the transport and listener. Later events are ignored.
func (s *Supervisor) Destroy() error {
	return s.do(func() {
		s.teardown()
		s.destroyed = true
	})
}

// Dispatch queues a command for the transport. Commands issued while the
// transport is not ready are dropped.
func (s *Supervisor) Dispatch(text string) {
	s.post(func() {
		if s.destroyed {
			return
		}
		s.dispatcher.Dispatch(text)
	})
}

// Ready reports whether commands would currently reach the transport
func (s *Supervisor) Ready() bool {
	var ready bool
	if err := s.do(func() { ready = s.dispatcher.Ready() }); err != nil {
		return false
	}
	return ready
}

func (s *Supervisor) init(cfg *config.Config) error {
	s.teardown()
	s.destroyed = false
	s.cfg = cfg

	if err := cfg.Validate(); err != nil {
		s.setStatus(host.StatusBadConfig, err.Error())
		return err
	}

	s.setStatus(host.StatusConnecting, "")

	s.dispatcher.SetMode(cfg.TransportMode())
	s.backoff = cfg.ReconnectMin.Duration

	t := s.newTransport(cfg, s.onEvent)
	s.transport = t
	s.dispatcher.SetTransport(t, cfg.Host)

	if err := t.Process(lilliput.TokenConnect); err != nil {
		// The transport reports the failure through its events as well
		s.logger.Error().Err(err).Str("host", cfg.Host).Msg("Connect failed")
	}

	if cfg.ListensForBroadcasts() {
		s.logger.Debug().Int("port", cfg.ListenPort).Msg("Binding to UDP port")
		l, err := s.listen(cfg.ListenPort, s.onDatagram, s.onListenerError)
		if err != nil {
			s.logger.Error().Err(err).Int("port", cfg.ListenPort).Msg("Error binding UDP port")
		} else {
			s.listener = l
		}
	}

	// Populate the mirror without waiting for the monitor to push updates
	if err := t.Process(statusQuery); err != nil {
		s.logger.Debug().Err(err).Msg("Initial status query not sent")
	}

	if cfg.PollInterval.Duration > 0 {
		s.schedulePoll(t.ID(), cfg.PollInterval.Duration)
	}
	return nil
}

// teardown closes the transport and listener. Each step checks its reference
// first, so it is safe to call repeatedly.
func (s *Supervisor) teardown() {
	if s.stopReconnect != nil {
		s.stopReconnect()
		s.stopReconnect = nil
	}
	if s.stopPoll != nil {
		s.stopPoll()
		s.stopPoll = nil
	}

	if s.transport != nil {
		t := s.transport
		s.transport = nil
		s.dispatcher.SetTransport(nil, "")
		if err := t.Process(lilliput.TokenClose); err != nil {
			s.logger.Warn().Err(err).Msg("Error closing transport")
		}
	}

	if s.listener != nil {
		l := s.listener
		s.listener = nil
		if err := l.Close(); err != nil {
			s.logger.Error().Err(err).Msg("Error closing UDP port")
		}
	}
}

// current reports whether an event belongs to the live transport
func (s *Supervisor) current(session string) bool {
	return !s.destroyed && s.transport != nil && s.transport.ID() == session
}

func (s *Supervisor) setStatus(status host.Status, message string) {
	metrics.SetStatus(string(status), allStatuses)
	s.host.UpdateStatus(status, message)
}

// onEvent is the transport handler. It runs on transport goroutines and only
// queues work.
func (s *Supervisor) onEvent(ev lilliput.Event) {
	s.post(func() { s.handleEvent(ev) })
}

func (s *Supervisor) handleEvent(ev lilliput.Event) {
	if !s.current(ev.SessionID()) {
		s.logger.Debug().Str("session", ev.SessionID()).Msg("Ignoring event from a closed transport")
		return
	}

	switch e := ev.(type) {
	case lilliput.ConnectionStatus:
		s.handleConnectionStatus(e)
	case lilliput.Response:
		s.handleResponse(e)
	case lilliput.CommandSent:
		s.logger.Debug().Str("command", e.Command).Int("bytes", e.Bytes).Msg("Tx")
	}
}

func (s *Supervisor) handleConnectionStatus(e lilliput.ConnectionStatus) {
	s.logger.Debug().Str("status", e.Status).Str("detail", e.Detail).Msg("Conn Status")

	switch e.Status {
	case "":
		s.setStatus(host.StatusUnknownError, "Unknown failure connecting")
	case lilliput.StatusConnected:
		s.backoff = s.cfg.ReconnectMin.Duration
		s.setStatus(host.StatusOk, "")
	case lilliput.StatusClosed:
		s.setStatus(host.StatusDisconnected, "")
		s.scheduleReconnect(e.Session)
	case lilliput.StatusError:
		s.logger.Error().Str("detail", e.Detail).Msg("Transport error")
		s.setStatus(host.StatusUnknownError, e.Detail)
	default:
		s.setStatus(host.StatusConnectionFailure, "Failed to connect - "+e.Status)
	}
}

// scheduleReconnect issues one #connect after the current backoff, which then
// doubles up to ReconnectMax.
func (s *Supervisor) scheduleReconnect(session string) {
	if s.stopReconnect != nil {
		return
	}

	// A zero minimum keeps reconnecting immediately
	delay := s.backoff
	next := s.backoff * 2
	if limit := s.cfg.ReconnectMax.Duration; limit > 0 && next > limit {
		next = limit
	}
	s.backoff = next

	s.logger.Debug().Dur("delay", delay).Msg("Reconnecting")
	s.stopReconnect = s.after(delay, func() {
		s.post(func() {
			if !s.current(session) {
				return
			}
			s.stopReconnect = nil
			metrics.ReconnectsTotal.Inc()
			if err := s.transport.Process(lilliput.TokenConnect); err != nil {
				s.logger.Warn().Err(err).Msg("Reconnect failed")
			}
		})
	})
}

func (s *Supervisor) schedulePoll(session string, interval time.Duration) {
	s.stopPoll = s.after(interval, func() {
		s.post(func() {
			if !s.current(session) {
				return
			}
			s.stopPoll = nil
			s.dispatcher.Dispatch(statusQuery)
			s.schedulePoll(session, interval)
		})
	})
}

// handleResponse merges successful responses into the mirror. nak and busy
// replies leave the mirror untouched but still count as liveness, so health
// stays Ok; an unknown status or undecodable payload reports UnknownError.
func (s *Supervisor) handleResponse(resp lilliput.Response) {
	if resp.Err != nil {
		s.logger.Warn().Err(resp.Err).Msg("Malformed response")
		metrics.ResponsesTotal.WithLabelValues("error").Inc()
		s.setStatus(host.StatusUnknownError, "Malformed response: "+resp.Err.Error())
		return
	}

	s.logger.Debug().Str("req", resp.Req).Str("status", resp.Status).Interface("value", resp.Value).Msg("Rx")

	switch resp.Status {
	case "", lilliput.ResponseOK:
	case lilliput.ResponseNak, lilliput.ResponseBusy:
		// The monitor answered, so the link is alive
		s.logger.Warn().Str("req", resp.Req).Str("status", resp.Status).Msg("Command not accepted")
		metrics.ResponsesTotal.WithLabelValues("error").Inc()
		s.setStatus(host.StatusOk, "")
		return
	default:
		s.logger.Warn().Str("req", resp.Req).Str("status", resp.Status).Msg("Unexpected response status")
		metrics.ResponsesTotal.WithLabelValues("error").Inc()
		s.setStatus(host.StatusUnknownError, "Unexpected response status "+resp.Status)
		return
	}

	// Any successful response confirms the link
	s.setStatus(host.StatusOk, "")

	if !s.mirror.ApplyResponse(resp) {
		s.logger.Warn().Str("req", resp.Req).Msg("Response without state key")
		metrics.ResponsesTotal.WithLabelValues("error").Inc()
		return
	}
	metrics.ResponsesTotal.WithLabelValues("ok").Inc()
	metrics.StateKeys.Set(float64(s.mirror.Len()))

	state := s.mirror.Snapshot()
	s.logger.Debug().Interface("state", state).Msg("Overall data")
	s.host.SetVariableValues(state)
	s.host.CheckFeedbacks()
}

// onDatagram runs on the listener goroutine
func (s *Supervisor) onDatagram(data []byte, from *net.UDPAddr) {
	s.post(func() { s.handleDatagram(data, from) })
}

func (s *Supervisor) handleDatagram(data []byte, from *net.UDPAddr) {
	if s.destroyed || s.transport == nil || s.cfg == nil {
		return
	}

	if !sameHost(from, s.cfg.Host) {
		// Some other monitor sharing the listen port
		s.logger.Info().Str("source", from.String()).Msg("Ignoring UDP message from unknown source")
		metrics.DatagramsTotal.WithLabelValues("ignored").Inc()
		return
	}

	s.logger.Debug().Str("data", hex.EncodeToString(data)).Msg("Got UDP message")
	metrics.DatagramsTotal.WithLabelValues("accepted").Inc()
	s.transport.Decode(data)
}

func (s *Supervisor) onListenerError(err error) {
	s.post(func() {
		if s.destroyed {
			return
		}
		s.logger.Error().Err(err).Msg("Network error")
		s.setStatus(host.StatusConnectionFailure, "Network error: "+err.Error())
	})
}

func sameHost(from *net.UDPAddr, configured string) bool {
	if from == nil {
		return false
	}
	if ip := net.ParseIP(configured); ip != nil {
		return from.IP.Equal(ip)
	}
	return from.IP.String() == configured
}
