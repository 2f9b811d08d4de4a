// Package logging wraps logrus with the process-wide logger configuration.
// Callers import it as `log "github.com/nghyane/msgproxy/internal/logging"`.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Fields is a set of structured log fields.
type Fields = logrus.Fields

var (
	setupOnce  sync.Once
	outputMu   sync.Mutex
	fileWriter *lumberjack.Logger
)

// logFormatter renders "[time] [level] message key=value" lines.
type logFormatter struct{}

func (f *logFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b strings.Builder
	b.Grow(128)
	b.WriteString(entry.Time.Format("2006-01-02 15:04:05"))
	b.WriteString(" [")
	b.WriteString(strings.ToUpper(entry.Level.String()[:4]))
	b.WriteString("] ")
	b.WriteString(entry.Message)
	if len(entry.Data) > 0 {
		keys := make([]string, 0, len(entry.Data))
		for k := range entry.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, entry.Data[k])
		}
	}
	b.WriteByte('\n')
	return []byte(b.String()), nil
}

// SetupBaseLogger installs the formatter and stdout output. Safe to call more than once.
func SetupBaseLogger() {
	setupOnce.Do(func() {
		logrus.SetFormatter(&logFormatter{})
		logrus.SetOutput(os.Stdout)
		logrus.SetLevel(logrus.InfoLevel)
	})
}

// SetDebug toggles debug level logging.
func SetDebug(enabled bool) {
	if enabled {
		logrus.SetLevel(logrus.DebugLevel)
		return
	}
	logrus.SetLevel(logrus.InfoLevel)
}

// IsDebug reports whether debug logging is enabled.
func IsDebug() bool {
	return logrus.IsLevelEnabled(logrus.DebugLevel)
}

// ConfigureLogOutput switches between stdout and a rotating file under dir.
func ConfigureLogOutput(toFile bool, dir string) error {
	outputMu.Lock()
	defer outputMu.Unlock()

	if !toFile {
		if fileWriter != nil {
			_ = fileWriter.Close()
			fileWriter = nil
		}
		logrus.SetOutput(os.Stdout)
		return nil
	}

	if dir == "" {
		dir = "logs"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	if fileWriter != nil {
		_ = fileWriter.Close()
	}
	fileWriter = &lumberjack.Logger{
		Filename:   filepath.Join(dir, "msgproxy.log"),
		MaxSize:    50,
		MaxBackups: 5,
		MaxAge:     14,
		Compress:   true,
	}
	logrus.SetOutput(io.MultiWriter(os.Stdout, fileWriter))
	return nil
}

func Debugf(format string, args ...any) { logrus.Debugf(format, args...) }
func Infof(format string, args ...any)  { logrus.Infof(format, args...) }
func Warnf(format string, args ...any)  { logrus.Warnf(format, args...) }
func Errorf(format string, args ...any) { logrus.Errorf(format, args...) }
func Fatalf(format string, args ...any) { logrus.Fatalf(format, args...) }

func Debug(args ...any) { logrus.Debug(args...) }
func Info(args ...any)  { logrus.Info(args...) }
func Warn(args ...any)  { logrus.Warn(args...) }

// WithError returns an entry carrying err.
func WithError(err error) *logrus.Entry { return logrus.WithError(err) }

// WithField returns an entry carrying one field.
func WithField(key string, value any) *logrus.Entry { return logrus.WithField(key, value) }

// WithFields returns an entry carrying fields.
func WithFields(fields Fields) *logrus.Entry { return logrus.WithFields(fields) }
