package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func newBufLogger(level slog.Level, format string) (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return NewLogger(Config{Level: level, Format: format, Output: &buf}), &buf
}

func TestTextAndJSONFormats(t *testing.T) {
	logger, buf := newBufLogger(slog.LevelInfo, "text")
	logger.Info("boot", "key", "value")
	if out := buf.String(); !strings.Contains(out, "boot") || !strings.Contains(out, "key=value") {
		t.Errorf("text output = %q", out)
	}

	logger, buf = newBufLogger(slog.LevelInfo, "json")
	logger.Info("boot", "key", "value")
	if out := buf.String(); !strings.Contains(out, `"msg":"boot"`) || !strings.Contains(out, `"key":"value"`) {
		t.Errorf("json output = %q", out)
	}
}

func TestLevelFiltering(t *testing.T) {
	logger, buf := newBufLogger(slog.LevelWarn, "text")
	logger.Info("too quiet")
	if strings.Contains(buf.String(), "too quiet") {
		t.Error("info record emitted at warn level")
	}
	logger.Warn("loud enough")
	if !strings.Contains(buf.String(), "loud enough") {
		t.Error("warn record missing at warn level")
	}
}

func TestAttributeConstructors(t *testing.T) {
	cases := []struct {
		attr slog.Attr
		want string
	}{
		{Pid(12345), "pid=12345"},
		{Task(42), "task_id=42"},
		{Handle(7), "handle=7"},
		{Syscall("open"), "syscall=open"},
		{Path("/some/path"), "path=/some/path"},
		{Operation("create"), "operation=create"},
	}
	for _, c := range cases {
		t.Run(c.want, func(t *testing.T) {
			logger, buf := newBufLogger(slog.LevelInfo, "text")
			logger.Info("tagged", c.attr)
			if !strings.Contains(buf.String(), c.want) {
				t.Errorf("output %q missing %q", buf.String(), c.want)
			}
		})
	}
}

func TestChainedAttributes(t *testing.T) {
	logger, buf := newBufLogger(slog.LevelInfo, "json")
	logger.With(Pid(1234), Operation("exec")).Info("chained", Syscall("execve"))
	out := buf.String()
	for _, want := range []string{`"pid":1234`, `"operation":"exec"`, `"syscall":"execve"`} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %s", out, want)
		}
	}
}

func TestContextRoundTrip(t *testing.T) {
	logger, buf := newBufLogger(slog.LevelInfo, "text")
	ctx := ContextWithLogger(context.Background(), logger)
	if FromContext(ctx) != logger {
		t.Fatal("context did not return the attached logger")
	}
	FromContext(ctx).Info("via context")
	if !strings.Contains(buf.String(), "via context") {
		t.Error("attached logger did not receive the record")
	}
	if FromContext(context.Background()) != Default() {
		t.Error("bare context should fall back to the default logger")
	}
}

func TestSetDefaultAndHelpers(t *testing.T) {
	logger, buf := newBufLogger(slog.LevelDebug, "text")
	old := Default()
	SetDefault(logger)
	defer SetDefault(old)

	if Default() != logger {
		t.Fatal("SetDefault did not take effect")
	}
	for _, step := range []struct {
		log  func(string, ...any)
		want string
	}{
		{Info, "INFO"},
		{Warn, "WARN"},
		{Error, "ERROR"},
		{Debug, "DEBUG"},
	} {
		buf.Reset()
		step.log("message")
		if !strings.Contains(buf.String(), step.want) {
			t.Errorf("helper did not log at %s: %q", step.want, buf.String())
		}
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"ERROR":   slog.LevelError,
		"bogus":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
