package main

import (
	"fmt"
	"log"
	"strings"

	"drive-service/comms"
	"drive-service/scheduler"
	"drive-service/sensors"
	"drive-service/telemetry"
)

// LeveledLogger wraps a standard logger with log level filtering
type LeveledLogger struct {
	logger   *log.Logger
	logLevel LogLevel
}

// NewLeveledLogger creates a new leveled logger
func NewLeveledLogger(logger *log.Logger, level LogLevel) *LeveledLogger {
	return &LeveledLogger{
		logger:   logger,
		logLevel: level,
	}
}

func (l *LeveledLogger) Debug(format string, v ...interface{}) {
	if l.logLevel >= LogLevelDebug {
		l.logger.Printf("[DEBUG] "+format, v...)
	}
}

func (l *LeveledLogger) Info(format string, v ...interface{}) {
	if l.logLevel >= LogLevelInfo {
		l.logger.Printf("[INFO] "+format, v...)
	}
}

func (l *LeveledLogger) Warn(format string, v ...interface{}) {
	if l.logLevel >= LogLevelWarn {
		l.logger.Printf("[WARN] "+format, v...)
	}
}

func (l *LeveledLogger) Error(format string, v ...interface{}) {
	if l.logLevel >= LogLevelError {
		l.logger.Printf("[ERROR] "+format, v...)
	}
}

// Fatalf logs a fatal error and exits
func (l *LeveledLogger) Fatalf(format string, v ...interface{}) {
	l.logger.Fatalf("[FATAL] "+format, v...)
}

func (l *LeveledLogger) SetLevel(level LogLevel) {
	l.logLevel = level
}

func (l *LeveledLogger) GetLevel() LogLevel {
	return l.logLevel
}

// DebugCAN logs CAN frame details at DEBUG level
func (l *LeveledLogger) DebugCAN(direction string, id uint32, data []byte, length uint8) {
	if l.logLevel >= LogLevelDebug {
		var sb strings.Builder
		for i := uint8(0); i < length && int(i) < len(data) && i < 8; i++ {
			fmt.Fprintf(&sb, "%02X ", data[i])
		}
		l.logger.Printf("[DEBUG] CAN %s: ID=0x%03X Len=%d Data=[%s]", direction, id, length, sb.String())
	}
}

// Ensure LeveledLogger satisfies every package logger at compile time
var (
	_ comms.Logger     = (*LeveledLogger)(nil)
	_ sensors.Logger   = (*LeveledLogger)(nil)
	_ scheduler.Logger = (*LeveledLogger)(nil)
	_ telemetry.Logger = (*LeveledLogger)(nil)
)
