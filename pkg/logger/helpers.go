package logger

import (
	"time"

	"github.com/google/uuid"
)

// NewRunID returns a fresh identifier for one ingestion run
func NewRunID() string {
	return uuid.NewString()
}

// ForRun returns a child of l tagged with the run id
func ForRun(l Logger, runID string) Logger {
	return l.WithField("run_id", runID)
}

// ForComponent returns a child of l tagged with a component name
func ForComponent(l Logger, component string) Logger {
	return l.WithField("component", component)
}

// LogRequest logs one remote call at a level chosen by its status code
func LogRequest(l Logger, method, url string, statusCode int, duration time.Duration) {
	fields := map[string]interface{}{
		"method":      method,
		"url":         url,
		"status_code": statusCode,
		"duration":    duration,
	}

	switch {
	case statusCode >= 200 && statusCode < 300:
		l.DebugWithFields("HTTP request completed", fields)
	case statusCode >= 500:
		l.ErrorWithFields("HTTP request server error", fields)
	default:
		l.WarnWithFields("HTTP request client error", fields)
	}
}

// NewNopLogger creates a no-operation logger for testing
func NewNopLogger() Logger {
	return nopLogger{}
}

type nopLogger struct{}

func (n nopLogger) Debug(msg string)                                          {}
func (n nopLogger) Info(msg string)                                           {}
func (n nopLogger) Warn(msg string)                                           {}
func (n nopLogger) Error(msg string)                                          {}
func (n nopLogger) WithField(key string, value interface{}) Logger            { return n }
func (n nopLogger) WithFields(fields map[string]interface{}) Logger           { return n }
func (n nopLogger) WithError(err error) Logger                                { return n }
func (n nopLogger) DebugWithFields(msg string, fields map[string]interface{}) {}
func (n nopLogger) InfoWithFields(msg string, fields map[string]interface{})  {}
func (n nopLogger) WarnWithFields(msg string, fields map[string]interface{})  {}
func (n nopLogger) ErrorWithFields(msg string, fields map[string]interface{}) {}
