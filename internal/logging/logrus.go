package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ConsoleOutput is the log path value that keeps logging on stderr.
const ConsoleOutput = "console"

// Init builds a logrus logger for the given level and output path.
// An empty path or "console" logs to stderr; anything else is a file
// rotated by lumberjack.
func Init(level, path string) (*log.Logger, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}

	l := log.New()
	l.SetLevel(lvl)
	l.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})

	var out io.Writer = os.Stderr
	if path != "" && path != ConsoleOutput {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		out = &lumberjack.Logger{
			// Log file absolute path, os agnostic
			Filename:   filepath.ToSlash(path),
			MaxSize:    5, // MB
			MaxBackups: 10,
			MaxAge:     30, // days
			Compress:   true,
		}
	}
	l.SetOutput(out)

	return l, nil
}

type logrusLogger struct {
	entry *log.Entry
}

// NewLogrus adapts a logrus logger to Logger.
func NewLogrus(l *log.Logger) Logger {
	return &logrusLogger{entry: log.NewEntry(l)}
}

// With returns a Logger that always carries the given key-value pairs.
// Loggers that are not logrus-backed are returned unchanged.
func With(l Logger, keysAndValues ...interface{}) Logger {
	lr, ok := l.(*logrusLogger)
	if !ok {
		return l
	}
	return &logrusLogger{entry: lr.entry.WithFields(fields(keysAndValues))}
}

func (l *logrusLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(fields(keysAndValues)).Debug(msg)
}

func (l *logrusLogger) Info(msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(fields(keysAndValues)).Info(msg)
}

func (l *logrusLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(fields(keysAndValues)).Warn(msg)
}

func (l *logrusLogger) Error(msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(fields(keysAndValues)).Error(msg)
}

// fields turns alternating key-value pairs into logrus fields.
// A dangling key is kept under "!BADKEY" rather than dropped.
func fields(keysAndValues []interface{}) log.Fields {
	f := make(log.Fields, len(keysAndValues)/2)
	for i := 0; i < len(keysAndValues); i += 2 {
		if i+1 >= len(keysAndValues) {
			f["!BADKEY"] = keysAndValues[i]
			break
		}
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprint(keysAndValues[i])
		}
		f[key] = keysAndValues[i+1]
	}
	return f
}
