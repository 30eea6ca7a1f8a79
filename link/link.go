// SPDX-FileCopyrightText: 2026 The icewire authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package link

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.bug.st/serial"
)

const (
	// DefaultBaudRate is the line speed the target firmware configures.
	DefaultBaudRate = 115200

	// DefaultReadTimeout is how long a single read waits for data before
	// it is retried.
	DefaultReadTimeout = 10 * time.Second

	// promptTrigger is sent to make the target print a fresh prompt.
	promptTrigger = "@"
)

// Port is the byte stream the link drives. It is implemented by
// [serial.Port] as well as by anything wrapping one end of a duplex pipe.
type Port interface {
	io.ReadWriteCloser
}

// Config describes the serial line to open.
type Config struct {
	// Device is the path of the serial device, e.g. /dev/ttyUSB0.
	Device string

	// BaudRate is the line speed. Defaults to [DefaultBaudRate].
	BaudRate int

	// ReadTimeout is the patience of a single read. Reads that time out
	// are retried indefinitely, so this only bounds how fast a closed
	// link is noticed. Defaults to [DefaultReadTimeout].
	ReadTimeout time.Duration
}

// Link is a verified byte channel to the target's debug shell.
type Link struct {
	port      Port
	handshake bool
}

// New wraps an already configured [Port].
func New(port Port) *Link {
	return &Link{port: port}
}

// Open opens the serial device with exclusive access, configures it to
// 8N1 raw mode and discards any data buffered on either side.
func Open(cfg Config) (*Link, error) {
	if cfg.Device == "" {
		return nil, ErrNoDevice
	}

	if cfg.BaudRate < 0 {
		return nil, ErrBaudRateInvalid
	}

	if cfg.BaudRate == 0 {
		cfg.BaudRate = DefaultBaudRate
	}

	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}

	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(cfg.Device, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Device, err)
	}

	err = port.SetReadTimeout(cfg.ReadTimeout)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("set read timeout: %w", err)
	}

	// Drop whatever the target printed before we attached.
	err = port.ResetInputBuffer()
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("flush input: %w", err)
	}

	err = port.ResetOutputBuffer()
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("flush output: %w", err)
	}

	slog.Debug("Serial port opened",
		slog.String("device", cfg.Device),
		slog.Int("baud", cfg.BaudRate))

	return New(port), nil
}

// ReadFull reads until p is filled, like [io.ReadFull]. Reads that
// return no data are retried, the target dictates the pace. It fails
// only if the underlying port fails, which includes the port being
// closed, and then reports how many bytes arrived before the failure.
func (l *Link) ReadFull(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		r, err := l.port.Read(p[n:])
		n += r

		if err != nil {
			return n, fmt.Errorf("read: %w", err)
		}
	}

	return n, nil
}

// Write sends p one byte at a time. After each byte the target's echo is
// read back and compared. A mismatch is logged but does not fail the
// write, the command layer catches real corruption via reply lengths.
func (l *Link) Write(p []byte) error {
	for i := range p {
		_, err := l.port.Write(p[i : i+1])
		if err != nil {
			return fmt.Errorf("write: %w", err)
		}

		var echo [1]byte

		_, err = l.ReadFull(echo[:])
		if err != nil {
			return fmt.Errorf("read echo: %w", err)
		}

		// During the handshake the target may still be printing boot
		// messages, so mismatches are expected and not worth a warning.
		if echo[0] != p[i] && !l.handshake {
			slog.Warn("Readback mismatch",
				slog.String("wrote", fmt.Sprintf("%#02x", p[i])),
				slog.String("read", fmt.Sprintf("%#02x", echo[0])))
		}
	}

	return nil
}

// WaitPrompt consumes input until the target's "\n> " prompt is seen.
// It blocks for as long as the target stays silent.
func (l *Link) WaitPrompt() error {
	var buf [3]byte

	_, err := l.ReadFull(buf[:])
	if err != nil {
		return fmt.Errorf("wait prompt: %w", err)
	}

	for buf[0] != '\n' || buf[1] != '>' || buf[2] != ' ' {
		buf[0], buf[1] = buf[1], buf[2]

		_, err = l.ReadFull(buf[2:])
		if err != nil {
			return fmt.Errorf("wait prompt: %w", err)
		}
	}

	return nil
}

// Handshake triggers a prompt and waits for the target shell to answer.
// It leaves a second prompt on the wire because every command starts by
// waiting for one.
func (l *Link) Handshake() error {
	l.handshake = true
	defer func() { l.handshake = false }()

	err := l.Write([]byte(promptTrigger))
	if err != nil {
		return fmt.Errorf("handshake: %w", err)
	}

	err = l.WaitPrompt()
	if err != nil {
		return fmt.Errorf("handshake: %w", err)
	}

	err = l.Write([]byte(promptTrigger))
	if err != nil {
		return fmt.Errorf("handshake: %w", err)
	}

	return nil
}

// Close closes the underlying port. It unblocks reads pending in other
// goroutines and is the only way to abort a stuck operation.
func (l *Link) Close() error {
	return l.port.Close()
}
