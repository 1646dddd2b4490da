package comms

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.bug.st/serial"
)

const (
	DefaultSerialDevice = "/dev/ttyS1"
	DefaultBaudRate     = 500000

	maxAccelCommand = 10
	maxBrakeCommand = 20
)

// SerialConfig selects the UART device
type SerialConfig struct {
	Device   string `yaml:"device"`
	BaudRate int    `yaml:"baud_rate"`
}

// UARTLink reads newline-terminated integer commands. 0 is idle, 1..10
// accelerates with that magnitude and 11..20 brakes with magnitude n-10.
type UARTLink struct {
	baseLink
	port io.ReadCloser
	done chan struct{}
}

// OpenUARTLink opens the serial device described by cfg
func OpenUARTLink(logger Logger, cfg SerialConfig) (*UARTLink, error) {
	if cfg.Device == "" {
		cfg.Device = DefaultSerialDevice
	}
	if cfg.BaudRate == 0 {
		cfg.BaudRate = DefaultBaudRate
	}

	port, err := serial.Open(cfg.Device, &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Device, err)
	}

	logger.Info("Opened serial port %s at %d baud", cfg.Device, cfg.BaudRate)
	return NewUARTLink(logger, port), nil
}

// NewUARTLink wraps an already open port
func NewUARTLink(logger Logger, port io.ReadCloser) *UARTLink {
	return &UARTLink{
		baseLink: baseLink{logger: logger},
		port:     port,
		done:     make(chan struct{}),
	}
}

func (u *UARTLink) Start(ctx context.Context) error {
	u.startBase(ctx)
	go u.readLoop()
	return nil
}

func (u *UARTLink) readLoop() {
	defer close(u.done)

	scanner := bufio.NewScanner(u.port)
	for scanner.Scan() {
		if err := u.HandleLine(scanner.Text()); err != nil {
			u.logger.Error("Invalid UART command: %v", err)
		}
	}

	if err := scanner.Err(); err != nil && u.ctx.Err() == nil {
		u.logger.Error("Serial read error: %v", err)
	}
	u.logger.Info("UART reader stopped")
}

// HandleLine parses and applies one command line. Blank lines are ignored.
func (u *UARTLink) HandleLine(line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	n, err := strconv.Atoi(line)
	if err != nil {
		return fmt.Errorf("not an integer: %q", line)
	}

	accel, brake, err := ParseUARTCommand(n)
	if err != nil {
		return err
	}

	u.logger.Debug("UART command %d: accel=%d brake=%d", n, accel, brake)

	u.mu.Lock()
	u.setCommands(accel, brake)
	u.mu.Unlock()
	return nil
}

// ParseUARTCommand maps an integer command onto accel and brake magnitudes
func ParseUARTCommand(n int) (accel, brake uint8, err error) {
	switch {
	case n == 0:
		return 0, 0, nil
	case n > 0 && n <= maxAccelCommand:
		return uint8(n), 0, nil
	case n > maxAccelCommand && n <= maxBrakeCommand:
		return 0, uint8(n - maxAccelCommand), nil
	}
	return 0, 0, fmt.Errorf("command %d out of range 0..%d", n, maxBrakeCommand)
}

// Close closes the port, which ends the reader
func (u *UARTLink) Close() error {
	u.stopBase()
	if err := u.port.Close(); err != nil {
		return fmt.Errorf("failed to close serial port: %w", err)
	}
	return nil
}
