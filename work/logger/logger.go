package logger

import (
	"fmt"
	"log"
	"strings"
	"sync/atomic"
)

type LogLevel int32

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

// current holds the process-wide log level. The organizer is a batch tool
// with a single logging configuration, so a package-level level is enough.
var current atomic.Int32

func init() {
	current.Store(int32(INFO))
}

// ParseLogLevel converts a string to a LogLevel, defaulting to INFO.
func ParseLogLevel(level string) LogLevel {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// SetLogLevel sets the process-wide log level.
func SetLogLevel(level string) {
	current.Store(int32(ParseLogLevel(level)))
}

// GetLogLevel returns the current log level as a string.
func GetLogLevel() string {
	switch LogLevel(current.Load()) {
	case DEBUG:
		return "DEBUG"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "INFO"
	}
}

func logMessage(level string, format string, v ...interface{}) {
	log.Printf("[%s] %s", level, fmt.Sprintf(format, v...))
}

func shouldLog(level LogLevel) bool {
	return level >= LogLevel(current.Load())
}

// Debug logs debug level messages
func Debug(format string, v ...interface{}) {
	if shouldLog(DEBUG) {
		logMessage("DEBUG", format, v...)
	}
}

// Info logs info level messages
func Info(format string, v ...interface{}) {
	if shouldLog(INFO) {
		logMessage("INFO", format, v...)
	}
}

// Warn logs warning level messages
func Warn(format string, v ...interface{}) {
	if shouldLog(WARN) {
		logMessage("WARN", format, v...)
	}
}

// Error logs error level messages
func Error(format string, v ...interface{}) {
	if shouldLog(ERROR) {
		logMessage("ERROR", format, v...)
	}
}
