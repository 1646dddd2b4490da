package drive

import "testing"

func TestParsePowertrain(t *testing.T) {
	tests := []struct {
		in   string
		want Powertrain
		ok   bool
	}{
		{"belt", BeltDrive, true},
		{"geared", GearedDrive, true},
		{"gear", GearedDrive, true},
		{"chain", BeltDrive, false},
	}
	for _, tt := range tests {
		got, ok := ParsePowertrain(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("%q: expected %s/%v, got %s/%v", tt.in, tt.want, tt.ok, got, ok)
		}
	}
}

func TestParseMsgMode(t *testing.T) {
	if m, ok := ParseMsgMode("uart"); !ok || m != MsgModeUART {
		t.Errorf("expected uart, got %s/%v", m, ok)
	}
	if m, ok := ParseMsgMode("can"); !ok || m != MsgModeCAN {
		t.Errorf("expected can, got %s/%v", m, ok)
	}
	if _, ok := ParseMsgMode("lin"); ok {
		t.Error("expected lin to be rejected")
	}
}

func TestMotorStatus_Valid(t *testing.T) {
	for s := StatusOff; s <= StatusFault; s++ {
		if !s.Valid() || s.String() == "unknown" {
			t.Errorf("expected %d to be a named state", s)
		}
	}
	if MotorStatus(42).Valid() || MotorStatus(42).String() != "unknown" {
		t.Error("expected 42 to be undefined")
	}
}
