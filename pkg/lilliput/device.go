// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lilliput

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.bug.st/serial"
)

var (
	// ErrOffline is returned when an offline device is asked to do I/O.
	ErrOffline = errors.New("lilliput: device is offline")

	// ErrNotConnected is returned when a command is processed before #connect.
	ErrNotConnected = errors.New("lilliput: not connected")

	// ErrUnknownCommand is returned for commands missing from the catalog.
	ErrUnknownCommand = errors.New("lilliput: unknown command")
)

// Device is a transport to one monitor. It owns the socket (UDP) or port
// (serial), frames outgoing commands and reports connection changes and
// decoded responses to its Handler.
//
// Device is safe for concurrent use.
type Device struct {
	id      string
	host    string
	port    int
	opts    deviceOptions
	catalog *Catalog

	mu   sync.Mutex
	conn io.ReadWriteCloser

	writeMu sync.Mutex

	decodeMu sync.Mutex
	decoder  *Decoder
}

// NewDevice creates a Device for the monitor at host:port. No I/O happens until
// Process(TokenConnect).
//
//	dev := lilliput.NewDevice("10.0.0.5", lilliput.DefaultPort,
//	    lilliput.WithHandler(func(ev lilliput.Event) { ... }),
//	)
//	dev.Process(lilliput.TokenConnect)
//	dev.Process("status?")
func NewDevice(host string, port int, options ...Option) *Device {
	opts := defaultDeviceOptions()
	for _, opt := range options {
		opt(&opts)
	}

	catalog := opts.catalog
	if catalog == nil {
		catalog = DefaultCatalog()
	}

	return &Device{
		id:      uuid.New().String(),
		host:    host,
		port:    port,
		opts:    opts,
		catalog: catalog,
		decoder: NewDecoder(),
	}
}

// ID returns the device session id carried by every event
func (d *Device) ID() string {
	return d.id
}

// Host returns the monitor address
func (d *Device) Host() string {
	return d.host
}

// Port returns the monitor control port
func (d *Device) Port() int {
	return d.port
}

// Mode returns the transport mode
func (d *Device) Mode() Mode {
	return d.opts.mode
}

// Catalog returns the command catalog used to validate commands
func (d *Device) Catalog() *Catalog {
	return d.catalog
}

// IsReady reports whether a socket handle is open.
func (d *Device) IsReady() bool {
	if d.opts.offline {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conn != nil
}

// Process handles a control token (#connect, #close) or sends a device command.
func (d *Device) Process(text string) error {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "#") {
		switch text {
		case TokenConnect:
			return d.connect()
		case TokenClose:
			return d.close()
		default:
			return fmt.Errorf("lilliput: unknown control token %q", text)
		}
	}
	return d.send(text)
}

// Close is shorthand for Process(TokenClose).
func (d *Device) Close() error {
	return d.close()
}

// Decode feeds bytes received outside the device's own socket (for example on
// a shared status listener) into the frame decoder.
func (d *Device) Decode(raw []byte) {
	d.decodeMu.Lock()
	var events []Event
	for _, b := range raw {
		frame, err := d.decoder.DecodeByte(b)
		if err != nil {
			events = append(events, Response{Session: d.id, Err: err})
			continue
		}
		if frame == nil {
			continue
		}
		resp, err := UnmarshalResponse(frame.Payload())
		if err != nil {
			resp = Response{Err: err}
		}
		resp.Session = d.id
		events = append(events, resp)
	}
	d.decodeMu.Unlock()

	for _, ev := range events {
		d.emit(ev)
	}
}

func (d *Device) target() string {
	if d.opts.mode == ModeSerial {
		return d.opts.serialPort
	}
	return net.JoinHostPort(d.host, strconv.Itoa(d.port))
}

func (d *Device) connect() error {
	if d.opts.offline {
		return ErrOffline
	}

	conn, err := d.dial()
	if err != nil {
		d.emit(ConnectionStatus{Session: d.id, Status: StatusError, Detail: err.Error()})
		d.emit(ConnectionStatus{Session: d.id, Status: StatusClosed, Detail: "connect failed"})
		return fmt.Errorf("connect %s: %w", d.target(), err)
	}

	d.mu.Lock()
	old := d.conn
	d.conn = conn
	d.mu.Unlock()

	// The old reader sees it is no longer current and exits quietly
	if old != nil {
		old.Close()
	}

	d.decodeMu.Lock()
	d.decoder.Reset()
	d.decodeMu.Unlock()

	go d.readLoop(conn)

	d.emit(ConnectionStatus{Session: d.id, Status: StatusConnected, Detail: d.target()})
	return nil
}

func (d *Device) dial() (io.ReadWriteCloser, error) {
	switch d.opts.mode {
	case ModeSerial:
		mode := &serial.Mode{
			BaudRate: d.opts.baudRate,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		}
		port, err := serial.Open(d.opts.serialPort, mode)
		if err != nil {
			return nil, fmt.Errorf("failed to open serial port %s: %w", d.opts.serialPort, err)
		}
		return port, nil
	default:
		return net.DialTimeout("udp4", d.target(), d.opts.dialTimeout)
	}
}

func (d *Device) close() error {
	d.mu.Lock()
	conn := d.conn
	d.conn = nil
	d.mu.Unlock()

	if conn == nil {
		return nil
	}

	err := conn.Close()
	d.emit(ConnectionStatus{Session: d.id, Status: StatusClosed, Detail: "closed by request"})
	if err != nil {
		return fmt.Errorf("close %s: %w", d.target(), err)
	}
	return nil
}

func (d *Device) readLoop(conn io.ReadWriteCloser) {
	size := 2048
	if d.opts.mode == ModeSerial {
		size = 256
	}
	buf := make([]byte, size)

	for {
		n, err := conn.Read(buf)
		if n > 0 {
			d.Decode(buf[:n])
		}
		if err == nil {
			continue
		}

		d.mu.Lock()
		current := d.conn == conn
		if current {
			d.conn = nil
		}
		d.mu.Unlock()

		// Closed on purpose (#close or a newer #connect)
		if !current {
			return
		}

		conn.Close()
		d.emit(ConnectionStatus{Session: d.id, Status: StatusError, Detail: err.Error()})
		d.emit(ConnectionStatus{Session: d.id, Status: StatusClosed, Detail: "read failed"})
		return
	}
}

func (d *Device) send(text string) error {
	req, err := ParseCommand(text)
	if err != nil {
		return err
	}
	if _, ok := d.catalog.Lookup(req.Name); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, req.Name)
	}

	payload, err := MarshalRequest(req)
	if err != nil {
		return err
	}
	frame, err := EncodeFrame(payload)
	if err != nil {
		return err
	}

	if d.opts.offline {
		return ErrOffline
	}
	d.mu.Lock()
	conn := d.conn
	d.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	d.writeMu.Lock()
	_, err = conn.Write(frame)
	d.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("write %q: %w", req.String(), err)
	}

	d.emit(CommandSent{Session: d.id, Command: req.String(), Bytes: len(frame), Time: time.Now()})
	return nil
}

func (d *Device) emit(ev Event) {
	if d.opts.handler != nil {
		d.opts.handler(ev)
	}
}
