package sensors

import (
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// WindowSize is the number of speed windows averaged.
const WindowSize = 3

// SpeedBuffer is a moving average over the last WindowSize speed windows.
type SpeedBuffer struct {
	data  [WindowSize]float64
	head  uint8
	count uint8
	sum   float64
}

func (buf *SpeedBuffer) Reset() {
	*buf = SpeedBuffer{}
}

func (buf *SpeedBuffer) MovingAverage(v float64) float64 {
	var last float64
	if buf.count >= WindowSize {
		last = buf.data[buf.head]
	} else {
		buf.count++
	}

	buf.data[buf.head] = v
	buf.sum = buf.sum - last + v
	buf.head = (buf.head + 1) % WindowSize

	return buf.sum / float64(buf.count)
}

// PulseCounter turns edges from a speed pickup into a rate.
type PulseCounter struct {
	pulses     atomic.Uint32
	unitsPerHz float64
	buf        SpeedBuffer
	line       *gpiocdev.Line
	lastSample time.Time
}

// NewPulseCounter returns a counter that converts pulse frequency to speed
// units with unitsPerHz. It is fed through Pulse.
func NewPulseCounter(unitsPerHz float64) *PulseCounter {
	return &PulseCounter{unitsPerHz: unitsPerHz}
}

// OpenPulseCounter requests a GPIO line and counts its rising edges.
func OpenPulseCounter(chip string, offset int, unitsPerHz float64) (*PulseCounter, error) {
	pc := NewPulseCounter(unitsPerHz)
	line, err := gpiocdev.RequestLine(chip, offset,
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithRisingEdge,
		gpiocdev.WithConsumer("drive-service"),
		gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
			if evt.Type == gpiocdev.LineEventRisingEdge {
				pc.Pulse()
			}
		}))
	if err != nil {
		return nil, fmt.Errorf("failed to request speed line %s:%d: %w", chip, offset, err)
	}
	pc.line = line
	return pc, nil
}

// Pulse records one edge.
func (pc *PulseCounter) Pulse() {
	pc.pulses.Add(1)
}

// Sample converts the edges seen since the last sample into a smoothed
// speed. The first call only starts the window.
func (pc *PulseCounter) Sample(now time.Time) uint16 {
	n := pc.pulses.Swap(0)
	if pc.lastSample.IsZero() {
		pc.lastSample = now
		return 0
	}
	elapsed := now.Sub(pc.lastSample).Seconds()
	pc.lastSample = now
	if elapsed <= 0 {
		return 0
	}

	if n == 0 {
		pc.buf.Reset()
		return 0
	}

	avg := pc.buf.MovingAverage(float64(n) / elapsed * pc.unitsPerHz)
	return uint16(math.Min(math.Round(avg), math.MaxUint16))
}

func (pc *PulseCounter) Close() error {
	if pc.line == nil {
		return nil
	}
	return pc.line.Close()
}
