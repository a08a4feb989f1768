// Package logger wraps logrus with a per-module field and optional rotating
// file output. Library packages receive *logrus.Entry values built from it.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Fields is an alias for logrus.Fields
type Fields = logrus.Fields

// Config configures the process-wide logger.
type Config struct {
	Level      string `mapstructure:"log_level"`
	Format     string `mapstructure:"log_format"`
	File       string `mapstructure:"log_file"`
	MaxSize    int    `mapstructure:"log_max_size"`
	MaxBackups int    `mapstructure:"log_max_backups"`
	MaxAge     int    `mapstructure:"log_max_age"`
	Compress   bool   `mapstructure:"log_compress"`
}

// Logger is a logrus.Logger carrying a module name.
type Logger struct {
	*logrus.Logger
	module string
}

var (
	mu     sync.RWMutex
	global *logrus.Logger
	closer io.Closer
)

// Init configures the global logger. Output goes to stderr and, when
// cfg.File is set, to a lumberjack-rotated file as well.
func Init(cfg Config) error {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	l := logrus.New()
	l.SetLevel(level)

	if cfg.Format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:          true,
			DisableSorting:         true,
			DisableLevelTruncation: true,
			PadLevelText:           true,
			TimestampFormat:        "2006-01-02 15:04:05",
		})
	}

	var rotate *lumberjack.Logger
	outputs := []io.Writer{os.Stderr}
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return fmt.Errorf("create log directory: %w", err)
		}
		rotate = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
		outputs = append(outputs, rotate)
	}

	if len(outputs) > 1 {
		l.SetOutput(io.MultiWriter(outputs...))
	} else {
		l.SetOutput(outputs[0])
	}

	mu.Lock()
	defer mu.Unlock()
	if closer != nil {
		closer.Close()
		closer = nil
	}
	global = l
	if rotate != nil {
		closer = rotate
	}
	return nil
}

// Close releases the rotating log file, if any.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if closer == nil {
		return nil
	}
	err := closer.Close()
	closer = nil
	return err
}

// New returns a logger for module. Before Init it writes nowhere, so
// packages and tests can log unconditionally.
func New(module string) *Logger {
	mu.RLock()
	l := global
	mu.RUnlock()

	if l == nil {
		l = Discard()
	}
	return &Logger{Logger: l, module: module}
}

// Discard returns a logger that drops everything.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// Entry returns an entry carrying the module field.
func (l *Logger) Entry() *logrus.Entry {
	return l.WithFields(nil)
}

// WithFields adds fields to the logger
func (l *Logger) WithFields(fields Fields) *logrus.Entry {
	if l.module != "" {
		if fields == nil {
			fields = Fields{}
		}
		fields["module"] = l.module
	}
	return l.Logger.WithFields(fields)
}

// WithError adds an error to the logger
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.WithFields(Fields{"error": err})
}
