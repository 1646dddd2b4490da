package telemetry

import (
	"encoding/json"
	"fmt"

	"drive-service/scheduler"
)

// Payload is the JSON document published per report.
type Payload struct {
	Status         string  `json:"status"`
	CtrlType       string  `json:"ctrl_type"`
	Powertrain     string  `json:"powertrain"`
	GearStatus     string  `json:"gear_status"`
	GearRequired   string  `json:"gear_required"`
	MotorCurrent   float64 `json:"motor_current"`
	BatteryCurrent float64 `json:"battery_current"`
	BatteryVoltage float64 `json:"battery_voltage"`
	MotorTemp      uint8   `json:"motor_temp"`
	Energy         float64 `json:"energy"`
	CarSpeed       uint16  `json:"car_speed"`
	MotorSpeed     uint16  `json:"motor_speed"`
	AccelCmd       uint8   `json:"accel_cmd"`
	BrakeCmd       uint8   `json:"brake_cmd"`
	DutyCycle      uint8   `json:"duty_cycle"`
	DriverEnable   bool    `json:"driver_enable"`
	ThrottleCmd    int16   `json:"throttle_cmd"`
	Fault          Fault   `json:"fault"`
	Tick           uint64  `json:"tick"`
	Timestamp      int64   `json:"timestamp"` // unix milliseconds
}

type Fault struct {
	Strikes       uint8  `json:"strikes"`
	Latched       bool   `json:"latched"`
	Timeout       uint16 `json:"timeout"`
	ClearAttempts uint8  `json:"clear_attempts"`
	Permanent     bool   `json:"permanent"`
}

func NewPayload(st scheduler.Status) Payload {
	return Payload{
		Status:         st.MotorStatus.String(),
		CtrlType:       st.CtrlType.String(),
		Powertrain:     st.Powertrain.String(),
		GearStatus:     st.GearStatus.String(),
		GearRequired:   st.GearRequired.String(),
		MotorCurrent:   st.MotorCurrent,
		BatteryCurrent: st.BatteryCurrent,
		BatteryVoltage: st.BatteryVoltage,
		MotorTemp:      st.MotorTemp,
		Energy:         st.Energy,
		CarSpeed:       st.CarSpeed,
		MotorSpeed:     st.MotorSpeed,
		AccelCmd:       st.AccelCmd,
		BrakeCmd:       st.BrakeCmd,
		DutyCycle:      st.DutyCycle,
		DriverEnable:   st.DriverEnable,
		ThrottleCmd:    st.ThrottleCmd,
		Fault: Fault{
			Strikes:       st.Faults.Strikes,
			Latched:       st.Faults.Latched,
			Timeout:       st.Faults.Timeout,
			ClearAttempts: st.Faults.ClearAttempts,
			Permanent:     st.Faults.Permanent,
		},
		Tick:      st.Tick,
		Timestamp: st.Time.UnixMilli(),
	}
}

// Reporter decimates the status stream. Every n-th status goes to
// <prefix>/telemetry; transitions always go to <prefix>/state, retained.
type Reporter struct {
	pub    Publisher
	prefix string
	every  int
	n      int
	errors int
	log    Logger
}

func NewReporter(pub Publisher, prefix string, every int, logger Logger) *Reporter {
	if every <= 0 {
		every = 1
	}
	return &Reporter{pub: pub, prefix: prefix, every: every, log: logger}
}

func (r *Reporter) TelemetryTopic() string { return r.prefix + "/telemetry" }
func (r *Reporter) StateTopic() string     { return r.prefix + "/state" }

// Report publishes st when it is due. Failures are logged and returned.
func (r *Reporter) Report(st scheduler.Status) error {
	r.n++
	due := r.n >= r.every
	if !due && !st.Changed() {
		return nil
	}

	data, err := json.Marshal(NewPayload(st))
	if err != nil {
		return r.fail(fmt.Errorf("failed to marshal telemetry: %w", err))
	}

	if st.Changed() {
		if err := r.pub.Publish(r.StateTopic(), true, []byte(st.MotorStatus.String())); err != nil {
			return r.fail(err)
		}
	}
	if due {
		r.n = 0
		if err := r.pub.Publish(r.TelemetryTopic(), false, data); err != nil {
			return r.fail(err)
		}
	}
	return nil
}

func (r *Reporter) fail(err error) error {
	r.errors++
	if r.errors == 1 || r.errors%100 == 0 {
		r.log.Error("Telemetry report failed (%d errors): %v", r.errors, err)
	}
	return err
}
