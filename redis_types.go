package main

import (
	"drive-service/scheduler"
)

// RedisMotorStatus is the content of the motor-drive hash
type RedisMotorStatus struct {
	State          string
	Duty           uint8
	DriverOn       bool
	GearRequired   string
	GearSensed     string
	MotorCurrent   float64
	BatteryVoltage float64
	BatteryCurrent float64
	Temperature    uint8
	Energy         float64
	Speed          uint16
	Throttle       int16
}

func NewRedisMotorStatus(st scheduler.Status) RedisMotorStatus {
	return RedisMotorStatus{
		State:          st.MotorStatus.String(),
		Duty:           st.DutyCycle,
		DriverOn:       st.DriverEnable,
		GearRequired:   st.GearRequired.String(),
		GearSensed:     st.GearStatus.String(),
		MotorCurrent:   st.MotorCurrent,
		BatteryVoltage: st.BatteryVoltage,
		BatteryCurrent: st.BatteryCurrent,
		Temperature:    st.MotorTemp,
		Energy:         st.Energy,
		Speed:          st.CarSpeed,
		Throttle:       st.ThrottleCmd,
	}
}

// Fields returns the hash fields to write
func (s RedisMotorStatus) Fields() map[string]interface{} {
	return map[string]interface{}{
		"state":           s.State,
		"duty":            s.Duty,
		"driver":          map[bool]string{true: "on", false: "off"}[s.DriverOn],
		"gear:required":   s.GearRequired,
		"gear:sensed":     s.GearSensed,
		"motor:current":   formatFloat(s.MotorCurrent),
		"battery:voltage": formatFloat(s.BatteryVoltage),
		"battery:current": formatFloat(s.BatteryCurrent),
		"temperature":     s.Temperature,
		"energy":          formatFloat(s.Energy),
		"speed":           s.Speed,
		"throttle":        s.Throttle,
	}
}
