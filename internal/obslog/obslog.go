// Package obslog owns the process-wide zap logger: console and file cores,
// selectable encodings, installed once at start-up.
package obslog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/park285/chessbench-go/internal/config"
)

const defaultFile = "logs/chessbench.log"

var global atomic.Pointer[zap.Logger]

func init() { global.Store(zap.NewNop()) }

// L는 전역 로거를 반환.
func L() *zap.Logger { return global.Load() }

// Named returns a component logger.
func Named(component string) *zap.Logger { return L().Named(component) }

func Sync() { _ = L().Sync() }

// Options는 로거 구성값.
type Options struct {
	Level     string
	ToConsole bool
	ToFile    bool
	Caller    bool
	Format    string // legacy | json | console
	File      string
}

// FromConfig copies the LOG_* settings.
func FromConfig(cfg *config.AppConfig) Options {
	return Options{
		Level:     cfg.LogLevel,
		ToConsole: cfg.LogToConsole,
		ToFile:    cfg.LogToFile,
		Caller:    cfg.LogCaller,
		Format:    cfg.LogFormat,
		File:      cfg.LogFile,
	}
}

// Init builds a logger from opts and installs it globally.
func Init(opts Options) error {
	logger, err := Build(opts)
	if err != nil {
		return err
	}
	global.Store(logger)
	return nil
}

// Build constructs a logger without installing it.
func Build(opts Options) (*zap.Logger, error) {
	level := parseLevel(opts.Level)
	format := strings.ToLower(strings.TrimSpace(opts.Format))
	enc, ok := encoders[format]
	if !ok {
		format, enc = "legacy", encoders["legacy"]
	}

	var cores []zapcore.Core
	if opts.ToFile {
		f, err := openLogFile(opts.File)
		if err != nil {
			return nil, err
		}
		cores = append(cores, zapcore.NewCore(enc(), zapcore.AddSync(f), level))
	}
	// stdout은 A2A 응답 출력용이라 콘솔 로그는 stderr로
	if opts.ToConsole || len(cores) == 0 {
		cores = append(cores, zapcore.NewCore(enc(), zapcore.Lock(os.Stderr), level))
	}

	zopts := []zap.Option{zap.AddStacktrace(zapcore.ErrorLevel)}
	if opts.Caller || format == "legacy" {
		zopts = append(zopts, zap.AddCaller())
	}
	return zap.New(zapcore.NewTee(cores...), zopts...), nil
}

func openLogFile(path string) (*os.File, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = defaultFile
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

// parseLevel accepts zap level names plus "warning"; anything else is info.
func parseLevel(s string) zapcore.Level {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "warning" {
		s = "warn"
	}
	lvl, err := zapcore.ParseLevel(s)
	if err != nil || s == "" {
		return zapcore.InfoLevel
	}
	return lvl
}

var encoders = map[string]func() zapcore.Encoder{
	"legacy": func() zapcore.Encoder {
		cfg := zap.NewProductionEncoderConfig()
		cfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
		cfg.EncodeLevel = zapcore.CapitalLevelEncoder
		cfg.ConsoleSeparator = " | "
		return zapcore.NewConsoleEncoder(cfg)
	},
	"console": func() zapcore.Encoder {
		cfg := zap.NewProductionEncoderConfig()
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.EncodeLevel = zapcore.CapitalLevelEncoder
		return zapcore.NewConsoleEncoder(cfg)
	},
	"json": func() zapcore.Encoder {
		cfg := zap.NewProductionEncoderConfig()
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.EncodeLevel = zapcore.LowercaseLevelEncoder
		return zapcore.NewJSONEncoder(cfg)
	},
}
