package comms

// Logger interface for link logging
type Logger interface {
	Debug(format string, v ...interface{})
	Info(format string, v ...interface{})
	Warn(format string, v ...interface{})
	Error(format string, v ...interface{})
	DebugCAN(direction string, id uint32, data []byte, length uint8)
}

// DebugCANFrame logs a CAN frame if a logger is set
func DebugCANFrame(logger Logger, direction string, id uint32, data [8]byte, length uint8) {
	if logger != nil {
		logger.DebugCAN(direction, id, data[:], length)
	}
}
