package sensors

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// Channel is an input of the external ADC.
type Channel uint8

const (
	ChMotorCurrent   Channel = 0
	ChBatteryCurrent Channel = 1
	ChBatteryVoltage Channel = 2
	ChMotorTemp      Channel = 4
)

// Registers holds the latest raw count of every channel in use.
type Registers struct {
	MotorCurrent   uint16
	BatteryCurrent uint16
	BatteryVoltage uint16
	MotorTemp      uint16
}

// ADC reads one channel of a multiplexed converter.
type ADC interface {
	Read(ch Channel) (uint16, error)
}

type transceiver interface {
	Tx(w, r []byte) error
}

// MCP3208 is a 12-bit, 8-channel SPI converter.
type MCP3208 struct {
	conn transceiver
	port spi.PortCloser
}

// OpenMCP3208 initializes the host drivers and connects to the converter on
// the named SPI port. An empty name selects the first port.
func OpenMCP3208(portName string, speed physic.Frequency) (*MCP3208, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	port, err := spireg.Open(portName)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI port %q: %w", portName, err)
	}

	conn, err := port.Connect(speed, spi.Mode0, 8)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to connect SPI port %q: %w", portName, err)
	}

	return &MCP3208{conn: conn, port: port}, nil
}

// Read performs a single-ended conversion of ch.
func (a *MCP3208) Read(ch Channel) (uint16, error) {
	tx := [3]byte{0x06 | byte(ch>>2)&0x01, byte(ch&0x03) << 6, 0x00}
	var rx [3]byte
	if err := a.conn.Tx(tx[:], rx[:]); err != nil {
		return 0, fmt.Errorf("failed to read ADC channel %d: %w", ch, err)
	}
	return uint16(rx[1]&0x0F)<<8 | uint16(rx[2]), nil
}

func (a *MCP3208) Close() error {
	if a.port == nil {
		return nil
	}
	return a.port.Close()
}

// StaticADC returns fixed counts. It stands in for the converter when the
// service runs without hardware.
type StaticADC struct {
	mu     sync.Mutex
	counts map[Channel]uint16
}

func NewStaticADC(counts map[Channel]uint16) *StaticADC {
	c := make(map[Channel]uint16, len(counts))
	for k, v := range counts {
		c[k] = v
	}
	return &StaticADC{counts: c}
}

func (a *StaticADC) Set(ch Channel, raw uint16) {
	a.mu.Lock()
	a.counts[ch] = raw
	a.mu.Unlock()
}

func (a *StaticADC) Read(ch Channel) (uint16, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.counts[ch], nil
}
