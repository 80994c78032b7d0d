package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config contains logging configuration.
type Config struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string
	// FilePath is the log file. Empty means DefaultLogPath().
	FilePath string
	// MaxSizeMB is the size in MB before rotation (default: 10).
	MaxSizeMB int
	// MaxFiles is the number of rotated files to keep (default: 5).
	MaxFiles int
	// MaxAgeDays removes rotated files older than this. Zero keeps them.
	MaxAgeDays int
	// WriteToStderr also copies file logs to stderr.
	WriteToStderr bool
}

// DefaultConfig returns sensible defaults for file logging.
func DefaultConfig() Config {
	return Config{
		Level:     "info",
		FilePath:  DefaultLogPath(),
		MaxSizeMB: 10,
		MaxFiles:  5,
	}
}

// DebugConfig returns configuration for --debug runs.
func DebugConfig() Config {
	cfg := DefaultConfig()
	cfg.Level = "debug"
	return cfg
}

// Setup opens the rotating log file and returns a JSON logger writing to it,
// plus a cleanup function closing the file.
func Setup(cfg Config) (*slog.Logger, func(), error) {
	if cfg.FilePath == "" {
		cfg.FilePath = DefaultLogPath()
	}
	if err := EnsureLogDir(cfg.FilePath); err != nil {
		return nil, nil, err
	}

	rotator := &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxFiles,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}

	var output io.Writer = rotator
	if cfg.WriteToStderr {
		output = io.MultiWriter(rotator, os.Stderr)
	}

	handler := slog.NewJSONHandler(output, &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	})

	cleanup := func() {
		_ = rotator.Close()
	}

	return slog.New(handler), cleanup, nil
}

// NewConsoleLogger returns a text logger on w that only shows warnings and
// errors. It is the logger for runs without --debug.
func NewConsoleLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
}

// Init installs the process-wide logger. With debug set, logs go to the
// rotating file at debug level; otherwise to stderr at warn.
func Init(debug bool, cfg Config) (func(), error) {
	if !debug {
		slog.SetDefault(NewConsoleLogger(os.Stderr))
		return func() {}, nil
	}

	cfg.Level = "debug"
	if cfg.FilePath == "" {
		cfg.FilePath = DefaultLogPath()
	}
	logger, cleanup, err := Setup(cfg)
	if err != nil {
		return nil, err
	}

	slog.SetDefault(logger)
	slog.Debug("logging_initialized", slog.String("log_file", cfg.FilePath))
	return cleanup, nil
}

// parseLevel converts string level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LevelFromString converts a level name to slog.Level.
func LevelFromString(level string) slog.Level {
	return parseLevel(level)
}
