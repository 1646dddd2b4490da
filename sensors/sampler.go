package sensors

import (
	"context"
	"sync"
	"time"

	"drive-service/drive"
)

// Logger is the subset of the service logger used here.
type Logger interface {
	Debug(format string, v ...interface{})
	Error(format string, v ...interface{})
}

// Buffer hands the latest snapshot from the sampler to the supervisory
// tick. Store and Load copy the whole value under the lock.
type Buffer struct {
	mu      sync.Mutex
	value   drive.Sensors
	updated time.Time
}

func (b *Buffer) Store(v drive.Sensors, at time.Time) {
	b.mu.Lock()
	b.value = v
	b.updated = at
	b.mu.Unlock()
}

func (b *Buffer) Load() (drive.Sensors, time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.value, b.updated
}

// SpeedSource yields a speed every sampling window.
type SpeedSource interface {
	Sample(now time.Time) uint16
}

const (
	DefaultSamplePeriod = time.Millisecond
	DefaultSpeedWindow  = time.Second
)

// one conversion per period, channel 3 slot left idle
var sampleOrder = [...]int{0, 1, 2, -1, 4}

// Sampler converts one ADC channel per period in round-robin order and
// republishes the conditioned snapshot after every conversion.
type Sampler struct {
	log    Logger
	adc    ADC
	cond   *Conditioner
	buf    *Buffer
	wheel  SpeedSource
	motor  SpeedSource
	period time.Duration
	window time.Duration

	regs       Registers
	slot       int
	lastSpeed  time.Time
	carSpeed   uint16
	motorSpeed uint16
	readErrors int
}

// SamplerConfig wires a sampler. Wheel and Motor may be nil.
type SamplerConfig struct {
	Logger      Logger
	ADC         ADC
	Calibration Calibration
	Buffer      *Buffer
	Wheel       SpeedSource
	Motor       SpeedSource
	Period      time.Duration
	SpeedWindow time.Duration
}

func NewSampler(cfg SamplerConfig) *Sampler {
	if cfg.Period <= 0 {
		cfg.Period = DefaultSamplePeriod
	}
	if cfg.SpeedWindow <= 0 {
		cfg.SpeedWindow = DefaultSpeedWindow
	}
	return &Sampler{
		log:    cfg.Logger,
		adc:    cfg.ADC,
		cond:   NewConditioner(cfg.Calibration),
		buf:    cfg.Buffer,
		wheel:  cfg.Wheel,
		motor:  cfg.Motor,
		period: cfg.Period,
		window: cfg.SpeedWindow,
	}
}

// Step performs one sampling period.
func (s *Sampler) Step(now time.Time) {
	if ch := sampleOrder[s.slot]; ch >= 0 {
		raw, err := s.adc.Read(Channel(ch))
		if err != nil {
			s.readErrors++
			if s.readErrors == 1 || s.readErrors%1000 == 0 {
				s.log.Error("ADC read failed (%d errors): %v", s.readErrors, err)
			}
		} else {
			s.store(Channel(ch), raw)
		}
	}
	s.slot = (s.slot + 1) % len(sampleOrder)

	s.cond.Update(s.regs, s.period)

	if s.lastSpeed.IsZero() || now.Sub(s.lastSpeed) >= s.window {
		s.lastSpeed = now
		if s.wheel != nil {
			s.carSpeed = s.wheel.Sample(now)
		}
		if s.motor != nil {
			s.motorSpeed = s.motor.Sample(now)
		}
	}

	s.buf.Store(drive.Sensors{
		MotorCurrent:   s.cond.MotorCurrent(),
		BatteryCurrent: s.cond.BatteryCurrent(),
		BatteryVoltage: s.cond.BatteryVoltage(),
		MotorTemp:      s.cond.MotorTemp(),
		Energy:         s.cond.Energy(),
		CarSpeed:       s.carSpeed,
		MotorSpeed:     s.motorSpeed,
	}, now)
}

func (s *Sampler) store(ch Channel, raw uint16) {
	switch ch {
	case ChMotorCurrent:
		s.regs.MotorCurrent = raw
	case ChBatteryCurrent:
		s.regs.BatteryCurrent = raw
	case ChBatteryVoltage:
		s.regs.BatteryVoltage = raw
	case ChMotorTemp:
		s.regs.MotorTemp = raw
	}
}

// Run samples until ctx is cancelled.
func (s *Sampler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	s.log.Debug("Sampler started, period %v", s.period)
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.Step(now)
		}
	}
}
