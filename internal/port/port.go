// Package port wraps a serial device as a line-oriented channel with
// bounded reads, so a single loop can poll several channels without ever
// blocking indefinitely.
package port

import (
	"errors"
	"fmt"
	"time"

	serial "go.bug.st/serial"
)

// ErrTimeout reports that no complete line arrived within the read timeout.
var ErrTimeout = errors.New("port: read timeout")

type Config struct {
	Device string
	Baud   int
	// ReadTimeout bounds a single read. Default 1s.
	ReadTimeout time.Duration
}

var openSerialFn = func(device string, mode *serial.Mode) (serial.Port, error) {
	return serial.Open(device, mode)
}

// Port is an open serial channel. Not safe for concurrent readers; the
// single-loop ownership model makes that a non-issue here.
type Port struct {
	p       serial.Port
	pending []byte
	chunk   []byte
}

func Open(cfg Config) (*Port, error) {
	if cfg.Baud <= 0 {
		return nil, fmt.Errorf("port: invalid baud %d", cfg.Baud)
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = time.Second
	}
	mode := &serial.Mode{
		BaudRate: cfg.Baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	p, err := openSerialFn(cfg.Device, mode)
	if err != nil {
		return nil, fmt.Errorf("port: open %s: %w", cfg.Device, err)
	}
	if err := p.SetReadTimeout(cfg.ReadTimeout); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("port: set read timeout on %s: %w", cfg.Device, err)
	}
	return &Port{p: p, chunk: make([]byte, 256)}, nil
}

// Read returns raw bytes. A timed-out read yields (0, nil), matching the
// underlying library, so pollers just move on.
func (pt *Port) Read(p []byte) (int, error) {
	return pt.p.Read(p)
}

// ReadLine returns the next complete line without its terminator, or
// ErrTimeout when none arrived within one read timeout. Partial input is
// kept for the next call, and blank lines are skipped.
func (pt *Port) ReadLine() (string, error) {
	for {
		if line, ok := takeLine(&pt.pending); ok {
			return line, nil
		}
		n, err := pt.p.Read(pt.chunk)
		if err != nil {
			return "", err
		}
		if n == 0 {
			return "", ErrTimeout
		}
		pt.pending = append(pt.pending, pt.chunk[:n]...)
	}
}

// WriteLine sends one line, appending the terminator.
func (pt *Port) WriteLine(line string) error {
	_, err := pt.p.Write(append([]byte(line), '\n'))
	return err
}

func (pt *Port) Close() error {
	return pt.p.Close()
}

// takeLine pops the first complete non-empty line from buf.
func takeLine(buf *[]byte) (string, bool) {
	for {
		idx := -1
		for i, b := range *buf {
			if b == '\n' || b == '\r' {
				idx = i
				break
			}
		}
		if idx == -1 {
			return "", false
		}
		line := string((*buf)[:idx])
		*buf = (*buf)[idx+1:]
		if line != "" {
			return line, true
		}
		// Empty segment between CR and LF; keep looking.
	}
}
