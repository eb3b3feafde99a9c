package pact

import (
	"github.com/form3tech-oss/pact-mock-server/internal/app/logging"
	"github.com/pkg/errors"
)

type LevelFilter = logging.LevelFilter

const (
	LevelOff   = logging.LevelOff
	LevelError = logging.LevelError
	LevelWarn  = logging.LevelWarn
	LevelInfo  = logging.LevelInfo
	LevelDebug = logging.LevelDebug
	LevelTrace = logging.LevelTrace
)

// Status codes of the logger functions.
const (
	LoggerOK              = 0
	LoggerAlreadyApplied  = -1
	LoggerNotInitialised  = -2
	LoggerInvalidSpec     = -3
	LoggerUnknownSink     = -4
	LoggerMissingFilePath = -5
	LoggerFileOpenFailed  = -6
)

// LoggerInit starts a new logger configuration.
func LoggerInit() {
	guard(false, func() bool {
		logging.Default.Init()
		return true
	})
}

// LoggerAttachSink adds a sink to the configuration started by LoggerInit.
// Sinks are "stdout", "stderr", "buffer" and "file <path>".
func LoggerAttachSink(sink string, filter LevelFilter) int {
	return guard(LoggerAlreadyApplied, func() int {
		return loggerCode(logging.Default.AttachSink(sink, filter))
	})
}

// LoggerApply installs the configured sinks. Later sink changes are rejected.
func LoggerApply() int {
	return guard(LoggerAlreadyApplied, func() int {
		return loggerCode(logging.Default.Apply())
	})
}

func LogToStdout(filter LevelFilter) int {
	return logTo("stdout", filter)
}

func LogToStderr(filter LevelFilter) int {
	return logTo("stderr", filter)
}

func LogToFile(path string, filter LevelFilter) int {
	return logTo("file "+path, filter)
}

// LogToBuffer captures logs in memory, globally and per mock server.
func LogToBuffer(filter LevelFilter) int {
	return logTo("buffer", filter)
}

// FetchLogBuffer returns the captured logs of the given log id, or the global
// buffer when it is empty.
func FetchLogBuffer(logID string) string {
	return guard("", func() string {
		logs, ok := logging.Default.FetchBuffer(logID)
		if !ok {
			setLastError(errors.New("no buffer sink has been applied"))
		}
		return logs
	})
}

// LogMessage logs message at level on behalf of source.
func LogMessage(source, level, message string) {
	guard(false, func() bool {
		logging.Default.LogMessage(source, level, message)
		return true
	})
}

func logTo(sink string, filter LevelFilter) int {
	return guard(LoggerAlreadyApplied, func() int {
		logging.Default.Init()
		if code := loggerCode(logging.Default.AttachSink(sink, filter)); code != LoggerOK {
			return code
		}
		return loggerCode(logging.Default.Apply())
	})
}

func loggerCode(err error) int {
	if err == nil {
		return LoggerOK
	}
	setLastError(err)
	switch {
	case errors.Is(err, logging.ErrAlreadyApplied):
		return LoggerAlreadyApplied
	case errors.Is(err, logging.ErrNotInitialised):
		return LoggerNotInitialised
	case errors.Is(err, logging.ErrInvalidSinkSpec):
		return LoggerInvalidSpec
	case errors.Is(err, logging.ErrMissingFilePath):
		return LoggerMissingFilePath
	case errors.Is(err, logging.ErrFileOpen):
		return LoggerFileOpenFailed
	}
	return LoggerUnknownSink
}
