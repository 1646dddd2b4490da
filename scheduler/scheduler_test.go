package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"drive-service/controller"
	"drive-service/drive"
)

type testLogger struct {
	mu     sync.Mutex
	infos  []string
	warns  []string
	errors []string
}

func (l *testLogger) Debug(format string, v ...interface{}) {}

func (l *testLogger) Info(format string, v ...interface{}) {
	l.mu.Lock()
	l.infos = append(l.infos, fmt.Sprintf(format, v...))
	l.mu.Unlock()
}

func (l *testLogger) Warn(format string, v ...interface{}) {
	l.mu.Lock()
	l.warns = append(l.warns, fmt.Sprintf(format, v...))
	l.mu.Unlock()
}

func (l *testLogger) Error(format string, v ...interface{}) {
	l.mu.Lock()
	l.errors = append(l.errors, fmt.Sprintf(format, v...))
	l.mu.Unlock()
}

type fakeSensors struct {
	v  drive.Sensors
	at time.Time
}

func (f *fakeSensors) Load() (drive.Sensors, time.Time) { return f.v, f.at }

type fakeCommands struct {
	cmd drive.Commands
}

func (f *fakeCommands) Snapshot() drive.Commands { return f.cmd }

type fakeGear struct {
	gear drive.Gear
	err  error
}

func (f *fakeGear) ReadGear() (drive.Gear, error) { return f.gear, f.err }

type fakeOutputs struct {
	mu      sync.Mutex
	calls   []string
	duty    uint8
	drivers bool
	gear    drive.Gear
	err     error
}

func (o *fakeOutputs) record(call string) {
	o.calls = append(o.calls, call)
}

func (o *fakeOutputs) SetDuty(duty uint8) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.record("duty")
	o.duty = duty
	return o.err
}

func (o *fakeOutputs) EnableDrivers(enable bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.record(fmt.Sprintf("drivers=%v", enable))
	o.drivers = enable
	return o.err
}

func (o *fakeOutputs) RequestGear(gear drive.Gear) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.record("gear")
	o.gear = gear
	return o.err
}

func (o *fakeOutputs) Close() error { return nil }

func (o *fakeOutputs) reset() {
	o.mu.Lock()
	o.calls = nil
	o.mu.Unlock()
}

type harness struct {
	sched    *Scheduler
	state    *drive.ModuleState
	log      *testLogger
	sensors  *fakeSensors
	commands *fakeCommands
	gear     *fakeGear
	outputs  *fakeOutputs
}

func newHarness(pt drive.Powertrain, queue int) *harness {
	h := &harness{
		state:    drive.NewModuleState(pt),
		log:      &testLogger{},
		sensors:  &fakeSensors{v: drive.Sensors{BatteryVoltage: 48, MotorTemp: 30, CarSpeed: 20}},
		commands: &fakeCommands{cmd: drive.Commands{LinkSeen: true}},
		gear:     &fakeGear{},
		outputs:  &fakeOutputs{},
	}
	h.sched = New(Config{
		Logger:      h.log,
		Machine:     drive.NewMachine(controller.NewCurrent(controller.DefaultConfig), nil),
		State:       h.state,
		Sensors:     h.sensors,
		Commands:    h.commands,
		Gear:        h.gear,
		Outputs:     h.outputs,
		StatusQueue: queue,
	})
	return h
}

// tick runs one step with a sensor snapshot taken at the same instant.
func (h *harness) tick() Status {
	now := time.Unix(1700000000, 0).Add(time.Duration(h.sched.ticks) * DefaultPeriod)
	h.sensors.at = now
	h.sched.Tick(now)
	select {
	case st := <-h.sched.Status():
		return st
	default:
		return Status{}
	}
}

func TestTick_OffToIdle(t *testing.T) {
	h := newHarness(drive.BeltDrive, 0)

	st := h.tick()
	if st.MotorStatus != drive.StatusIdle || st.Previous != drive.StatusOff || !st.Changed() {
		t.Fatalf("expected Off -> Idle, got %s -> %s", st.Previous, st.MotorStatus)
	}
	if st.Tick != 1 {
		t.Errorf("expected tick 1, got %d", st.Tick)
	}
	if h.outputs.drivers || h.outputs.duty != drive.NeutralDuty || h.outputs.gear != drive.Neutral {
		t.Errorf("unexpected idle outputs: drivers=%v duty=%d gear=%s",
			h.outputs.drivers, h.outputs.duty, h.outputs.gear)
	}
	if len(h.log.infos) == 0 || h.log.infos[len(h.log.infos)-1] != "Motor state off -> idle" {
		t.Errorf("expected transition logged, got %v", h.log.infos)
	}
}

func TestTick_StaleSensorsHoldOff(t *testing.T) {
	h := newHarness(drive.BeltDrive, 0)

	for i := 0; i < 3; i++ {
		h.sched.Tick(time.Now())
	}
	if h.state.MotorStatus != drive.StatusOff {
		t.Errorf("expected off with no sensor data, got %s", h.state.MotorStatus)
	}
	if len(h.log.warns) != 1 {
		t.Errorf("expected a single stale warning, got %v", h.log.warns)
	}

	h.tick()
	if h.state.MotorStatus != drive.StatusIdle {
		t.Errorf("expected idle once sensors are fresh, got %s", h.state.MotorStatus)
	}
}

func TestTick_EnableOrdering(t *testing.T) {
	h := newHarness(drive.BeltDrive, 0)
	h.tick()

	h.outputs.reset()
	h.commands.cmd.Accel = 5
	st := h.tick()
	if st.MotorStatus != drive.StatusAccel {
		t.Fatalf("expected accel, got %s", st.MotorStatus)
	}
	want := []string{"duty", "drivers=true", "gear"}
	if fmt.Sprint(h.outputs.calls) != fmt.Sprint(want) {
		t.Errorf("expected %v, got %v", want, h.outputs.calls)
	}

	h.outputs.reset()
	h.commands.cmd.LinkSeen = false
	for i := 0; i < int(drive.WatchdogCANReload)+1 && h.state.MotorStatus != drive.StatusOff; i++ {
		h.tick()
	}
	if h.state.MotorStatus != drive.StatusOff {
		t.Fatalf("expected off after link loss, got %s", h.state.MotorStatus)
	}
	calls := h.outputs.calls
	last := calls[len(calls)-3:]
	want = []string{"drivers=false", "duty", "gear"}
	if fmt.Sprint(last) != fmt.Sprint(want) {
		t.Errorf("expected %v, got %v", want, last)
	}
	if h.outputs.drivers || h.outputs.duty != drive.NeutralDuty {
		t.Errorf("expected de-energized outputs, drivers=%v duty=%d", h.outputs.drivers, h.outputs.duty)
	}
}

func TestRequestReset_ClearsLatch(t *testing.T) {
	h := newHarness(drive.BeltDrive, 0)
	h.sensors.v.MotorCurrent = 20

	for i := 0; i < int(drive.FaultStrikeLimit); i++ {
		h.tick()
	}
	if h.state.MotorStatus != drive.StatusFault {
		t.Fatalf("expected fault after three strikes, got %s", h.state.MotorStatus)
	}

	h.sensors.v.MotorCurrent = 0
	h.tick()
	if h.state.MotorStatus != drive.StatusFault {
		t.Fatalf("expected latch to hold without reset, got %s", h.state.MotorStatus)
	}

	h.sched.RequestReset()
	st := h.tick()
	if st.MotorStatus != drive.StatusIdle {
		t.Errorf("expected idle after reset, got %s", st.MotorStatus)
	}
	if st.Faults.Latched || st.Faults.ClearAttempts != 0 {
		t.Errorf("expected cleared supervisor, got %+v", st.Faults)
	}

	h.tick()
	if h.state.MotorStatus != drive.StatusIdle {
		t.Errorf("reset request must be consumed once, got %s", h.state.MotorStatus)
	}
}

func TestTick_GearReadError(t *testing.T) {
	h := newHarness(drive.GearedDrive, 0)
	h.gear.gear = drive.Gear1
	h.gear.err = errors.New("line busy")

	for i := 0; i < 5; i++ {
		h.tick()
	}
	if h.state.GearStatus != drive.Neutral {
		t.Errorf("expected neutral on read error, got %s", h.state.GearStatus)
	}
	if len(h.log.errors) != 1 {
		t.Errorf("expected one logged gear error, got %v", h.log.errors)
	}
}

func TestTick_OutputErrorsDoNotStop(t *testing.T) {
	h := newHarness(drive.BeltDrive, 0)
	h.outputs.err = errors.New("pwm gone")

	st := h.tick()
	if st.Tick != 1 || st.MotorStatus != drive.StatusIdle {
		t.Fatalf("expected tick to complete, got %+v", st)
	}
	h.tick()
	if h.state.MotorStatus != drive.StatusIdle {
		t.Errorf("expected loop to continue, got %s", h.state.MotorStatus)
	}
	if len(h.log.errors) != 1 {
		t.Errorf("expected throttled output errors, got %d", len(h.log.errors))
	}
}

func TestTick_DropsWhenQueueFull(t *testing.T) {
	h := newHarness(drive.BeltDrive, 2)
	now := time.Now()
	h.sensors.at = now
	for i := 0; i < 5; i++ {
		h.sched.Tick(now)
	}
	if got := h.sched.Dropped(); got != 3 {
		t.Errorf("expected 3 dropped, got %d", got)
	}
}

func TestRun_ShutdownDeEnergizes(t *testing.T) {
	h := newHarness(drive.BeltDrive, 0)
	h.sched.period = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.sched.Run(ctx)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("run did not return after cancel")
	}

	for range h.sched.Status() {
	}

	h.outputs.mu.Lock()
	defer h.outputs.mu.Unlock()
	if h.outputs.drivers || h.outputs.duty != drive.NeutralDuty || h.outputs.gear != drive.Neutral {
		t.Errorf("expected safe outputs after shutdown: drivers=%v duty=%d gear=%s",
			h.outputs.drivers, h.outputs.duty, h.outputs.gear)
	}
}
