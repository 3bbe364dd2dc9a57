// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package sharedudp shares one bound UDP socket per port between several
// subscribers. Monitors broadcast their status to a fixed listen port, so every
// module instance in the process listens on the same socket and filters by
// sender.
package sharedudp

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

// ErrClosed is returned when using a closed Subscription.
var ErrClosed = errors.New("sharedudp: subscription closed")

// MessageHandler receives a datagram and its sender. data is owned by the
// handler.
type MessageHandler func(data []byte, from *net.UDPAddr)

// ErrorHandler receives socket errors. It may be nil.
type ErrorHandler func(err error)

// Pool owns the shared sockets. The zero value is not usable; use NewPool.
type Pool struct {
	mu        sync.Mutex
	listeners map[int]*listener
	nextID    int
}

type listener struct {
	pool *Pool
	port int
	conn *net.UDPConn
	subs map[int]*Subscription
}

// Subscription is one consumer of a shared socket.
type Subscription struct {
	id        int
	l         *listener
	onMessage MessageHandler
	onError   ErrorHandler
	closeOnce sync.Once
}

// NewPool creates an empty pool
func NewPool() *Pool {
	return &Pool{listeners: make(map[int]*listener)}
}

// Listen subscribes to datagrams arriving on port, binding the socket on first
// use. Port 0 binds a fresh ephemeral socket that later calls can share through
// Subscription.Port.
func (p *Pool) Listen(port int, onMessage MessageHandler, onError ErrorHandler) (*Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	l, ok := p.listeners[port]
	if !ok || port == 0 {
		conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: port})
		if err != nil {
			return nil, fmt.Errorf("bind udp port %d: %w", port, err)
		}
		bound := conn.LocalAddr().(*net.UDPAddr).Port
		l = &listener{pool: p, port: bound, conn: conn, subs: make(map[int]*Subscription)}
		p.listeners[bound] = l
		go l.readLoop()
	}

	p.nextID++
	sub := &Subscription{id: p.nextID, l: l, onMessage: onMessage, onError: onError}
	l.subs[sub.id] = sub
	return sub, nil
}

// Sockets returns the number of bound sockets
func (p *Pool) Sockets() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.listeners)
}

// Subscribers returns the number of subscriptions on port
func (p *Pool) Subscribers(port int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok := p.listeners[port]; ok {
		return len(l.subs)
	}
	return 0
}

// Port returns the bound port of the shared socket
func (s *Subscription) Port() int {
	return s.l.port
}

// Close removes the subscription. The socket is closed with its last
// subscriber. Closing twice is a no-op.
func (s *Subscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		p := s.l.pool
		p.mu.Lock()
		delete(s.l.subs, s.id)
		last := len(s.l.subs) == 0
		if last && p.listeners[s.l.port] == s.l {
			delete(p.listeners, s.l.port)
		}
		p.mu.Unlock()

		if last {
			err = s.l.conn.Close()
		}
	})
	return err
}

func (l *listener) snapshot() []*Subscription {
	l.pool.mu.Lock()
	defer l.pool.mu.Unlock()
	subs := make([]*Subscription, 0, len(l.subs))
	for _, s := range l.subs {
		subs = append(subs, s)
	}
	return subs
}

func (l *listener) readLoop() {
	buf := make([]byte, 2048)
	for {
		n, from, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			for _, s := range l.snapshot() {
				if s.onError != nil {
					s.onError(err)
				}
			}
			// Brief pause before retry on transient errors
			time.Sleep(10 * time.Millisecond)
			continue
		}

		for _, s := range l.snapshot() {
			if s.onMessage == nil {
				continue
			}
			data := make([]byte, n)
			copy(data, buf[:n])
			s.onMessage(data, from)
		}
	}
}
