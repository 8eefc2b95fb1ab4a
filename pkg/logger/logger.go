package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger wraps logrus to provide structured, service-scoped logging.
type Logger struct {
	entry *logrus.Entry
}

// Init configures the global logrus settings. The JSON format matters for
// downstream log collection, so the field names are pinned here.
func Init(level logrus.Level) {
	logrus.SetFormatter(&logrus.JSONFormatter{
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})

	logrus.SetOutput(os.Stdout)
	logrus.SetLevel(level)
}

// ParseLevel maps a config-file level string onto a logrus level,
// defaulting to Info for anything unrecognized.
func ParseLevel(level string) logrus.Level {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return logrus.InfoLevel
	}
	return parsed
}

// New creates a Logger pre-seeded with the service name and an optional
// per-request trace ID.
func New(serviceName, traceID string) *Logger {
	return &Logger{
		entry: logrus.WithFields(logrus.Fields{
			"service_name": serviceName,
			"trace_id":     traceID,
		}),
	}
}

// WithField returns a copy of the logger with an extra structured field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}

// WithPayload attaches custom business data to the log entry.
func (l *Logger) WithPayload(payload map[string]interface{}) *Logger {
	return &Logger{entry: l.entry.WithField("payload", payload)}
}

// Info logs an informational message.
func (l *Logger) Info(message string) {
	l.entry.Info(message)
}

// Warn logs a warning message.
func (l *Logger) Warn(message string) {
	l.entry.Warn(message)
}

// Error logs an error message.
func (l *Logger) Error(message string) {
	l.entry.Error(message)
}

// Debug logs a debug message.
func (l *Logger) Debug(message string) {
	l.entry.Debug(message)
}

// Fatal logs a fatal message and terminates the process.
func (l *Logger) Fatal(message string) {
	l.entry.Fatal(message)
}
