package obslog

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zapcore"

	"github.com/park285/chessbench-go/internal/config"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"WARNING": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"":        zapcore.InfoLevel,
		"bogus":   zapcore.InfoLevel,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestBuildWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "bench.log")
	logger, err := Build(Options{Level: "info", ToFile: true, Format: "json", File: path})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	logger.Info("hello")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if len(data) == 0 {
		t.Fatalf("log file is empty")
	}
}

func TestInitInstallsGlobal(t *testing.T) {
	before := L()
	defer global.Store(before)

	opts := FromConfig(&config.AppConfig{LogLevel: "debug", LogFormat: "console", LogToConsole: true})
	if opts.Level != "debug" || opts.Format != "console" || !opts.ToConsole {
		t.Fatalf("unexpected options %+v", opts)
	}
	if err := Init(opts); err != nil {
		t.Fatalf("init: %v", err)
	}
	if L() == before {
		t.Fatalf("global logger was not replaced")
	}
	if !L().Core().Enabled(zapcore.DebugLevel) {
		t.Fatalf("debug level should be enabled")
	}
}
