package utils

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel enumerates supported logging levels.
type LogLevel string

// LogFormat enumerates supported logging encoders.
type LogFormat string

// Supported log levels.
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Supported log formats.
const (
	LogFormatStructured LogFormat = "structured"
	LogFormatConsole    LogFormat = "console"
)

const (
	unsupportedLogLevelTemplateConstant  = "unsupported log level %q"
	unsupportedLogFormatTemplateConstant = "unsupported log format %q"
	timestampFieldNameConstant           = "timestamp"
	levelFieldNameConstant               = "level"
	messageFieldNameConstant             = "message"
	loggerFieldNameConstant              = "logger"
	callerFieldNameConstant              = "caller"
)

// LoggerOutputs bundles the diagnostic logger with the human-facing console logger.
// In structured mode the console logger discards output so stderr stays machine readable.
type LoggerOutputs struct {
	DiagnosticLogger *zap.Logger
	ConsoleLogger    *zap.Logger
}

// LoggerFactory creates zap loggers from textual configuration.
type LoggerFactory struct{}

// NewLoggerFactory constructs a LoggerFactory.
func NewLoggerFactory() LoggerFactory {
	return LoggerFactory{}
}

// CreateLoggerOutputs builds loggers writing to stderr for the requested level and format.
func (factory LoggerFactory) CreateLoggerOutputs(logLevel LogLevel, logFormat LogFormat) (LoggerOutputs, error) {
	zapLevel, levelError := factory.parseLevel(logLevel)
	if levelError != nil {
		return LoggerOutputs{}, levelError
	}

	standardError := zapcore.Lock(zapcore.AddSync(os.Stderr))

	switch LogFormat(strings.ToLower(strings.TrimSpace(string(logFormat)))) {
	case LogFormatStructured:
		encoderConfiguration := zap.NewProductionEncoderConfig()
		encoderConfiguration.TimeKey = timestampFieldNameConstant
		encoderConfiguration.LevelKey = levelFieldNameConstant
		encoderConfiguration.MessageKey = messageFieldNameConstant
		encoderConfiguration.NameKey = loggerFieldNameConstant
		encoderConfiguration.CallerKey = callerFieldNameConstant
		encoderConfiguration.EncodeTime = zapcore.ISO8601TimeEncoder
		core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfiguration), standardError, zapLevel)
		return LoggerOutputs{
			DiagnosticLogger: zap.New(core),
			ConsoleLogger:    zap.NewNop(),
		}, nil
	case LogFormatConsole:
		encoderConfiguration := zap.NewDevelopmentEncoderConfig()
		encoderConfiguration.TimeKey = ""
		encoderConfiguration.CallerKey = ""
		encoderConfiguration.NameKey = ""
		encoderConfiguration.EncodeLevel = zapcore.CapitalLevelEncoder
		core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfiguration), standardError, zapLevel)
		consoleConfiguration := encoderConfiguration
		consoleConfiguration.LevelKey = ""
		consoleCore := zapcore.NewCore(zapcore.NewConsoleEncoder(consoleConfiguration), standardError, zapLevel)
		return LoggerOutputs{
			DiagnosticLogger: zap.New(core),
			ConsoleLogger:    zap.New(consoleCore),
		}, nil
	default:
		return LoggerOutputs{}, fmt.Errorf(unsupportedLogFormatTemplateConstant, logFormat)
	}
}

func (factory LoggerFactory) parseLevel(logLevel LogLevel) (zapcore.Level, error) {
	switch LogLevel(strings.ToLower(strings.TrimSpace(string(logLevel)))) {
	case LogLevelDebug:
		return zapcore.DebugLevel, nil
	case LogLevelInfo:
		return zapcore.InfoLevel, nil
	case LogLevelWarn:
		return zapcore.WarnLevel, nil
	case LogLevelError:
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InvalidLevel, fmt.Errorf(unsupportedLogLevelTemplateConstant, logLevel)
	}
}
