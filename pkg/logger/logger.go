package logger

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Logger wraps the application-wide logrus instance.
type Logger struct {
	*logrus.Logger
}

// LogLevel represents log levels
type LogLevel string

const (
	DebugLevel LogLevel = "debug"
	InfoLevel  LogLevel = "info"
	WarnLevel  LogLevel = "warn"
	ErrorLevel LogLevel = "error"
	FatalLevel LogLevel = "fatal"
)

// LogFormat represents log output formats
type LogFormat string

const (
	JSONFormat LogFormat = "json"
	TextFormat LogFormat = "text"
)

// Config represents logger configuration
type Config struct {
	Level  LogLevel
	Format LogFormat
	Output string // file path or "stdout"
}

var (
	instance *Logger
	once     sync.Once
)

// Init initializes the global logger from environment variables.
func Init() {
	once.Do(func() {
		instance = NewLogger(configFromEnv())
	})
}

// NewLogger creates a new logger instance
func NewLogger(config Config) *Logger {
	logger := &Logger{Logger: logrus.New()}

	logger.SetLevel(getLogrusLevel(config.Level))

	if config.Format == JSONFormat {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	if config.Output == "stdout" || config.Output == "" {
		logger.SetOutput(os.Stdout)
		return logger
	}

	if err := os.MkdirAll(filepath.Dir(config.Output), 0755); err != nil {
		logger.SetOutput(os.Stdout)
		return logger
	}
	file, err := os.OpenFile(config.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		logger.SetOutput(os.Stdout)
		return logger
	}
	logger.SetOutput(file)

	return logger
}

func configFromEnv() Config {
	config := Config{
		Level:  InfoLevel,
		Format: JSONFormat,
		Output: "stdout",
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Level = LogLevel(strings.ToLower(level))
	}
	if format := os.Getenv("LOG_FORMAT"); format != "" {
		config.Format = LogFormat(strings.ToLower(format))
	}
	if output := os.Getenv("LOG_OUTPUT"); output != "" {
		config.Output = output
	}

	return config
}

func getLogrusLevel(level LogLevel) logrus.Level {
	switch level {
	case DebugLevel:
		return logrus.DebugLevel
	case InfoLevel:
		return logrus.InfoLevel
	case WarnLevel:
		return logrus.WarnLevel
	case ErrorLevel:
		return logrus.ErrorLevel
	case FatalLevel:
		return logrus.FatalLevel
	default:
		return logrus.InfoLevel
	}
}

// Global logger functions

func Debug(args ...interface{}) {
	if instance != nil {
		instance.Debug(args...)
	}
}

func Debugf(format string, args ...interface{}) {
	if instance != nil {
		instance.Debugf(format, args...)
	}
}

func Info(args ...interface{}) {
	if instance != nil {
		instance.Info(args...)
	}
}

func Infof(format string, args ...interface{}) {
	if instance != nil {
		instance.Infof(format, args...)
	}
}

func Warn(args ...interface{}) {
	if instance != nil {
		instance.Warn(args...)
	}
}

func Error(args ...interface{}) {
	if instance != nil {
		instance.Error(args...)
	}
}

func Errorf(format string, args ...interface{}) {
	if instance != nil {
		instance.Errorf(format, args...)
	}
}

func Fatal(args ...interface{}) {
	if instance != nil {
		instance.Fatal(args...)
	}
}

// WithField creates a logger entry with a field
func WithField(key string, value interface{}) *logrus.Entry {
	if instance != nil {
		return instance.WithField(key, value)
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

// WithFields creates a logger entry with multiple fields
func WithFields(fields logrus.Fields) *logrus.Entry {
	if instance != nil {
		return instance.WithFields(fields)
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

// WithError creates a logger entry with an error field
func WithError(err error) *logrus.Entry {
	if instance != nil {
		return instance.WithError(err)
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

// Context-aware logging functions

// LogRequest logs HTTP request information
func LogRequest(method, path, ip string, duration time.Duration, statusCode int) {
	WithFields(logrus.Fields{
		"method":      method,
		"path":        path,
		"ip":          ip,
		"duration_ms": duration.Milliseconds(),
		"status_code": statusCode,
		"type":        "request",
	}).Info("HTTP Request")
}

// LogUserAction logs user actions
func LogUserAction(userID, action string, metadata map[string]interface{}) {
	fields := logrus.Fields{
		"user_id": userID,
		"action":  action,
		"type":    "user_action",
	}
	for k, v := range metadata {
		fields[k] = v
	}

	WithFields(fields).Info("User Action")
}

// LogChatEvent logs request-room chat events
func LogChatEvent(event, roomID, userID string, metadata map[string]interface{}) {
	fields := logrus.Fields{
		"event":   event,
		"room_id": roomID,
		"user_id": userID,
		"type":    "chat_event",
	}
	for k, v := range metadata {
		fields[k] = v
	}

	WithFields(fields).Info("Chat Event")
}

// LogAcceptEvent logs acceptance-protocol outcomes
func LogAcceptEvent(event, requestID, helperID string, metadata map[string]interface{}) {
	fields := logrus.Fields{
		"event":      event,
		"request_id": requestID,
		"helper_id":  helperID,
		"type":       "accept_event",
	}
	for k, v := range metadata {
		fields[k] = v
	}

	WithFields(fields).Info("Accept Event")
}

// LogError logs detailed error information
func LogError(err error, context string, metadata map[string]interface{}) {
	fields := logrus.Fields{
		"error":   err.Error(),
		"context": context,
		"type":    "error_detail",
	}
	for k, v := range metadata {
		fields[k] = v
	}

	WithFields(fields).Error("Application Error")
}
