package drive

import "testing"

func TestFaultSupervisor_Envelope(t *testing.T) {
	tests := []struct {
		name    string
		powered bool
		current float64
		voltage float64
		strike  bool
	}{
		{"nominal", true, 5, 48, false},
		{"overcurrent", true, 15, 48, true},
		{"reverse overcurrent", true, -15, 48, true},
		{"just under current limit", true, 14.9, 48, false},
		{"overvoltage", true, 0, 55.1, true},
		{"at voltage limit", true, 0, 55, false},
		{"unpowered overcurrent", false, 30, 10, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f FaultSupervisor
			st := f.Evaluate(tt.powered, tt.current, tt.voltage)
			if got := st.Strikes == 1; got != tt.strike {
				t.Errorf("expected strike=%v, got strikes=%d", tt.strike, st.Strikes)
			}
		})
	}
}

func TestFaultSupervisor_NonConsecutiveStrikesReset(t *testing.T) {
	var f FaultSupervisor
	f.Evaluate(true, 16, 48)
	f.Evaluate(true, 16, 48)
	st := f.Evaluate(true, 0, 48)
	if st.Strikes != 0 {
		t.Fatalf("expected strikes reset, got %d", st.Strikes)
	}
	f.Evaluate(true, 16, 48)
	st = f.Evaluate(true, 16, 48)
	if st.Latched {
		t.Fatal("latched without three consecutive strikes")
	}
	st = f.Evaluate(true, 16, 48)
	if !st.Latched {
		t.Fatal("expected latch on third consecutive strike")
	}
	if st.ClearAttempts != 1 {
		t.Errorf("expected 1 clear attempt, got %d", st.ClearAttempts)
	}
	if st.Timeout != FaultTimeoutTicks-1 {
		t.Errorf("expected timeout %d, got %d", FaultTimeoutTicks-1, st.Timeout)
	}
}

func TestFaultSupervisor_TimeoutClears(t *testing.T) {
	var f FaultSupervisor
	for i := 0; i < FaultStrikeLimit; i++ {
		f.Evaluate(true, 0, 60)
	}
	for i := 1; i < FaultTimeoutTicks; i++ {
		if st := f.Evaluate(true, 0, 48); !st.Latched {
			t.Fatalf("cleared after %d ticks", i)
		}
	}
	if st := f.Evaluate(true, 0, 48); st.Latched {
		t.Fatal("expected latch cleared after timeout")
	}
}

func TestFaultSupervisor_PersistentConditionRelatches(t *testing.T) {
	var f FaultSupervisor
	for i := 0; i < FaultStrikeLimit+FaultTimeoutTicks; i++ {
		f.Evaluate(true, 20, 48)
	}
	st := f.Status()
	if st.Latched {
		t.Fatal("expected a single clear tick at timeout expiry")
	}
	for i := 0; i < FaultStrikeLimit; i++ {
		st = f.Evaluate(true, 20, 48)
	}
	if !st.Latched || st.ClearAttempts != 2 {
		t.Errorf("expected second latch, got latched=%v attempts=%d", st.Latched, st.ClearAttempts)
	}
}

func TestFaultSupervisor_Reset(t *testing.T) {
	var f FaultSupervisor
	for n := 0; n <= FaultClearLimit; n++ {
		for i := 0; i < FaultStrikeLimit; i++ {
			f.Evaluate(true, 16, 48)
		}
		for i := 0; i < FaultTimeoutTicks; i++ {
			f.Evaluate(true, 0, 48)
		}
	}
	if st := f.Status(); !st.Permanent {
		t.Fatalf("expected permanent latch, got %+v", st)
	}
	f.Reset()
	if st := f.Status(); st != (FaultStatus{}) {
		t.Errorf("expected cleared status, got %+v", st)
	}
}

func TestActiveFaults(t *testing.T) {
	s := NewModuleState(BeltDrive)
	s.BatteryVoltage = 48
	s.MotorTemp = MaxTemp
	s.WatchdogCAN = 0

	faults := ActiveFaults(s, FaultStatus{Latched: true})
	for _, f := range []Fault{FaultSensorRange, FaultOverTemperature, FaultLinkLost} {
		if !faults[f] {
			t.Errorf("expected fault %d active", f)
		}
	}
	if faults[FaultPermanentLatch] || faults[FaultUnderVoltage] {
		t.Error("unexpected permanent or supply fault")
	}
	for f := FaultSensorRange; f <= LastFault; f++ {
		if _, ok := GetFaultConfig(f); !ok {
			t.Errorf("missing config for fault %d", f)
		}
	}
}
