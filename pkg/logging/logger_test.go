package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug": zapcore.DebugLevel,
		"INFO":  zapcore.InfoLevel,
		"warn":  zapcore.WarnLevel,
		"error": zapcore.ErrorLevel,
		"bogus": zapcore.InfoLevel,
		"":      zapcore.InfoLevel,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewFileLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.log")
	logger, err := New(Options{Level: "info", Format: "console", OutputFile: path, EnableColors: true})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	logger.ComponentInfo(ComponentLink, "link opened", zap.String("remote", "B"))
	logger.ComponentDebug(ComponentLink, "filtered out")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, "[LINK] link opened") {
		t.Errorf("missing tagged message in %q", out)
	}
	if strings.Contains(out, "\033[") {
		t.Error("file output must not carry color codes")
	}
	if strings.Contains(out, "filtered out") {
		t.Error("debug message should be filtered at info level")
	}
}

func TestNewJSONLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.json")
	logger, err := New(Options{Level: "debug", Format: "json", OutputFile: path})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	logger.Named("A").ComponentWarn(ComponentRouter, "route failed")
	_ = logger.Sync()

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), `"node":"A"`) {
		t.Errorf("expected node field in %q", string(data))
	}
}

func TestNewBadOutputFile(t *testing.T) {
	if _, err := New(Options{OutputFile: filepath.Join(t.TempDir(), "missing", "x.log")}); err == nil {
		t.Fatal("expected error for unwritable log path")
	}
}
