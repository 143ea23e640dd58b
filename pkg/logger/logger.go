package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	// Verbose forces debug level regardless of env.
	Verbose bool
	// File, when set, duplicates every record into a rotating log file.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

var (
	mu      sync.RWMutex
	current = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	rotator *lumberjack.Logger
)

// Init configures the package logger for the given environment.
// Development gets a text handler at debug level, everything else JSON at info.
func Init(env string) {
	Setup(env, Options{})
}

func Setup(env string, opts Options) {
	dev := isDevelopment(env)

	level := slog.LevelInfo
	if dev || opts.Verbose {
		level = slog.LevelDebug
	}

	var w io.Writer = os.Stdout
	var rot *lumberjack.Logger
	if opts.File != "" {
		rot = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    orDefault(opts.MaxSizeMB, 100),
			MaxBackups: orDefault(opts.MaxBackups, 5),
			MaxAge:     orDefault(opts.MaxAgeDays, 14),
			Compress:   true,
		}
		w = io.MultiWriter(os.Stdout, rot)
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if dev {
		h = slog.NewTextHandler(w, handlerOpts)
	} else {
		h = slog.NewJSONHandler(w, handlerOpts)
	}

	mu.Lock()
	if rotator != nil {
		_ = rotator.Close()
	}
	rotator = rot
	current = slog.New(h)
	mu.Unlock()

	slog.SetDefault(current)
}

// SetOutput swaps the handler, mostly for tests.
func SetOutput(w io.Writer, level slog.Level) {
	mu.Lock()
	current = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	mu.Unlock()
}

func L() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

func Debug(msg string, args ...any) { L().Debug(msg, args...) }
func Info(msg string, args ...any)  { L().Info(msg, args...) }
func Warn(msg string, args ...any)  { L().Warn(msg, args...) }
func Error(msg string, args ...any) { L().Error(msg, args...) }

func Fatal(msg string, args ...any) {
	L().Error(msg, args...)
	Close()
	os.Exit(1)
}

// Close flushes the rotating file, if any.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if rotator != nil {
		_ = rotator.Close()
		rotator = nil
	}
}

func isDevelopment(env string) bool {
	switch strings.ToLower(env) {
	case "dev", "development", "local":
		return true
	}
	return false
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
