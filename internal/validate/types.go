// SPDX-License-Identifier: MIT
package validate

// LogLevel represents valid log levels
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// IsValid checks if the log level is valid
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true
	default:
		return false
	}
}

func (l LogLevel) String() string {
	return string(l)
}

// LogLevels lists every accepted level.
func LogLevels() []string {
	return []string{string(LogLevelDebug), string(LogLevelInfo), string(LogLevelWarn), string(LogLevelError)}
}
