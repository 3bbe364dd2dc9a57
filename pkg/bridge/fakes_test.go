// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/Thermoquad/lilliput-bridge/pkg/config"
	"github.com/Thermoquad/lilliput-bridge/pkg/host"
	"github.com/Thermoquad/lilliput-bridge/pkg/lilliput"
	"github.com/Thermoquad/lilliput-bridge/pkg/sharedudp"
)

// ============================================================
// Fake transport
// ============================================================

type fakeTransport struct {
	id      string
	mode    lilliput.Mode
	handler lilliput.Handler

	mu        sync.Mutex
	ready     bool
	closed    bool
	processed []string
	decoded   [][]byte
}

func (f *fakeTransport) ID() string          { return f.id }
func (f *fakeTransport) Mode() lilliput.Mode { return f.mode }

func (f *fakeTransport) IsReady() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready
}

// Process records text. #connect opens the socket; #close shuts it and
// reports closed like a real device.
func (f *fakeTransport) Process(text string) error {
	f.mu.Lock()
	f.processed = append(f.processed, text)
	wasReady := f.ready
	switch text {
	case lilliput.TokenConnect:
		f.ready = true
	case lilliput.TokenClose:
		f.ready = false
		f.closed = true
	}
	f.mu.Unlock()

	if text == lilliput.TokenClose && wasReady {
		f.emit(lilliput.ConnectionStatus{Session: f.id, Status: lilliput.StatusClosed, Detail: "closed by request"})
	}
	return nil
}

func (f *fakeTransport) Decode(raw []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.decoded = append(f.decoded, raw)
}

func (f *fakeTransport) emit(ev lilliput.Event) {
	if f.handler != nil {
		f.handler(ev)
	}
}

func (f *fakeTransport) Processed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.processed...)
}

func (f *fakeTransport) Count(text string) int {
	n := 0
	for _, p := range f.Processed() {
		if p == text {
			n++
		}
	}
	return n
}

func (f *fakeTransport) Decoded() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.decoded)
}

func (f *fakeTransport) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeFactory struct {
	mu         sync.Mutex
	transports []*fakeTransport
}

func (ff *fakeFactory) New(cfg *config.Config, handler lilliput.Handler) Transport {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	ft := &fakeTransport{
		id:      fmt.Sprintf("session-%d", len(ff.transports)+1),
		mode:    cfg.TransportMode(),
		handler: handler,
	}
	ff.transports = append(ff.transports, ft)
	return ft
}

func (ff *fakeFactory) Created() int {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return len(ff.transports)
}

func (ff *fakeFactory) Last() *fakeTransport {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	if len(ff.transports) == 0 {
		return nil
	}
	return ff.transports[len(ff.transports)-1]
}

func (ff *fakeFactory) Live() int {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	n := 0
	for _, ft := range ff.transports {
		if !ft.Closed() {
			n++
		}
	}
	return n
}

// ============================================================
// Fake listener
// ============================================================

type fakeListeners struct {
	mu        sync.Mutex
	open      int
	fail      error
	onMessage sharedudp.MessageHandler
	onError   sharedudp.ErrorHandler
}

type closerFunc func() error

func (c closerFunc) Close() error { return c() }

func (fl *fakeListeners) Listen(port int, onMessage sharedudp.MessageHandler, onError sharedudp.ErrorHandler) (io.Closer, error) {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	if fl.fail != nil {
		return nil, fl.fail
	}
	fl.open++
	fl.onMessage = onMessage
	fl.onError = onError

	var once sync.Once
	return closerFunc(func() error {
		once.Do(func() {
			fl.mu.Lock()
			fl.open--
			fl.mu.Unlock()
		})
		return nil
	}), nil
}

func (fl *fakeListeners) Open() int {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	return fl.open
}

func (fl *fakeListeners) deliver(data []byte, ip string) {
	fl.mu.Lock()
	h := fl.onMessage
	fl.mu.Unlock()
	h(data, &net.UDPAddr{IP: net.ParseIP(ip), Port: lilliput.DefaultPort})
}

func (fl *fakeListeners) fault(err error) {
	fl.mu.Lock()
	h := fl.onError
	fl.mu.Unlock()
	h(err)
}

// ============================================================
// Fake clock
// ============================================================

type fakeTimer struct {
	delay   time.Duration
	f       func()
	stopped bool
}

type fakeClock struct {
	mu      sync.Mutex
	pending []*fakeTimer
	delays  []time.Duration
}

func (c *fakeClock) After(d time.Duration, f func()) func() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	timer := &fakeTimer{delay: d, f: f}
	c.pending = append(c.pending, timer)
	c.delays = append(c.delays, d)
	return func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		was := !timer.stopped
		timer.stopped = true
		return was
	}
}

// Fire runs every pending timer once
func (c *fakeClock) Fire() {
	c.mu.Lock()
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, timer := range pending {
		c.mu.Lock()
		stopped := timer.stopped
		timer.stopped = true
		c.mu.Unlock()
		if !stopped {
			timer.f()
		}
	}
}

func (c *fakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, timer := range c.pending {
		if !timer.stopped {
			n++
		}
	}
	return n
}

func (c *fakeClock) Delays() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.delays...)
}

// ============================================================
// Recording host
// ============================================================

type statusUpdate struct {
	status  host.Status
	message string
}

type recordingHost struct {
	*host.Registry

	mu      sync.Mutex
	updates []statusUpdate
}

func newRecordingHost() *recordingHost {
	return &recordingHost{Registry: host.NewRegistry("lilliput")}
}

func (h *recordingHost) UpdateStatus(status host.Status, message string) {
	h.mu.Lock()
	h.updates = append(h.updates, statusUpdate{status, message})
	h.mu.Unlock()
	h.Registry.UpdateStatus(status, message)
}

func (h *recordingHost) Last() statusUpdate {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.updates) == 0 {
		return statusUpdate{}
	}
	return h.updates[len(h.updates)-1]
}

func (h *recordingHost) Updates() []statusUpdate {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]statusUpdate(nil), h.updates...)
}

// ============================================================
// Harness
// ============================================================

type harness struct {
	sup       *Supervisor
	mirror    *Mirror
	host      *recordingHost
	factory   *fakeFactory
	listeners *fakeListeners
	clock     *fakeClock
}

func newHarness(t *testing.T, extra ...SupervisorOption) *harness {
	t.Helper()
	h := &harness{
		mirror:    NewMirror(),
		host:      newRecordingHost(),
		factory:   &fakeFactory{},
		listeners: &fakeListeners{},
		clock:     &fakeClock{},
	}
	opts := []SupervisorOption{
		WithTransportFactory(h.factory.New),
		WithListener(h.listeners.Listen),
		WithAfterFunc(h.clock.After),
	}
	h.sup = NewSupervisor(h.host, h.mirror, append(opts, extra...)...)

	ctx, cancel := context.WithCancel(context.Background())
	go h.sup.Run(ctx)
	t.Cleanup(cancel)
	return h
}

// settle waits until work queued so far, and work it queued in turn, has run
func (h *harness) settle(t *testing.T) {
	t.Helper()
	for i := 0; i < 3; i++ {
		if err := h.sup.do(func() {}); err != nil {
			t.Fatalf("supervisor stopped: %v", err)
		}
	}
}

func validConfig() *config.Config {
	cfg := config.Default()
	cfg.Host = "10.0.0.5"
	return cfg
}
