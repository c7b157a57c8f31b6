package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation settings for the optional log file.
const (
	DefaultMaxSizeMB  = 10
	DefaultMaxBackups = 3
	DefaultMaxAgeDays = 7
)

// Format selects the stderr encoder.
type Format string

const (
	FormatAuto    Format = "auto"
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
)

// Options describes where and how the daemon logs.
type Options struct {
	Level  string // debug, info, warn, error
	Format Format
	// File, when set, receives JSON logs with lumberjack rotation in
	// addition to stderr.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// ParseLevel maps a level name to a zap level. Empty means info.
func ParseLevel(s string) (zapcore.Level, error) {
	if strings.TrimSpace(s) == "" {
		return zapcore.InfoLevel, nil
	}
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "warning" {
		name = "warn"
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(name)); err != nil {
		return lvl, fmt.Errorf("invalid log level %q", s)
	}
	return lvl, nil
}

// ParseFormat validates a format name. Empty means auto.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatAuto:
		return FormatAuto, nil
	case FormatConsole:
		return FormatConsole, nil
	case FormatJSON:
		return FormatJSON, nil
	}
	return "", fmt.Errorf("invalid log format %q (want auto, console or json)", s)
}

// New builds the process logger writing to stderr and, optionally, a
// rotated file.
func New(opts Options) (*zap.Logger, error) {
	return build(opts, os.Stderr, term.IsTerminal(int(os.Stderr.Fd())))
}

func build(opts Options, stderr io.Writer, tty bool) (*zap.Logger, error) {
	lvl, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	format, err := ParseFormat(string(opts.Format))
	if err != nil {
		return nil, err
	}
	level := zap.NewAtomicLevelAt(lvl)

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var stderrEnc zapcore.Encoder
	if format == FormatConsole || (format == FormatAuto && tty) {
		consoleCfg := encCfg
		if tty {
			consoleCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		} else {
			consoleCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		}
		stderrEnc = zapcore.NewConsoleEncoder(consoleCfg)
	} else {
		stderrEnc = zapcore.NewJSONEncoder(encCfg)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(stderrEnc, zapcore.Lock(zapcore.AddSync(stderr)), level),
	}

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		rotator := &lj.Logger{
			Filename:   opts.File,
			MaxSize:    valOr(opts.MaxSizeMB, DefaultMaxSizeMB),
			MaxBackups: valOr(opts.MaxBackups, DefaultMaxBackups),
			MaxAge:     valOr(opts.MaxAgeDays, DefaultMaxAgeDays),
			Compress:   opts.Compress,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(rotator), level))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
