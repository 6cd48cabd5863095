package observability

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/contrib/processors/minsev"
)

func restoreDefault(t *testing.T) {
	t.Helper()
	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })
}

func TestInstrumentLocal(t *testing.T) {
	tests := []struct {
		format string
		want   string
	}{
		{format: "text", want: "msg=hello"},
		{format: "json", want: `"msg":"hello"`},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			restoreDefault(t)
			var buf bytes.Buffer

			shutdown, err := Instrument(context.Background(), Options{
				Level:  slog.LevelInfo,
				Format: tt.format,
				Writer: &buf,
			})
			if err != nil {
				t.Fatalf("Instrument: %v", err)
			}

			slog.Debug("hidden")
			slog.Info("hello")
			if err := shutdown(context.Background()); err != nil {
				t.Fatalf("shutdown: %v", err)
			}

			out := buf.String()
			if !strings.Contains(out, tt.want) {
				t.Errorf("output %q missing %q", out, tt.want)
			}
			if strings.Contains(out, "hidden") {
				t.Errorf("debug record logged at info level: %q", out)
			}
		})
	}
}

func TestInstrumentStdoutExporter(t *testing.T) {
	restoreDefault(t)
	var buf bytes.Buffer

	shutdown, err := Instrument(context.Background(), Options{
		Level:    slog.LevelWarn,
		Exporter: ExporterStdout,
		Writer:   &buf,
	})
	if err != nil {
		t.Fatalf("Instrument: %v", err)
	}

	slog.Info("below threshold")
	slog.Warn("exported record")
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "exported record") {
		t.Errorf("output %q missing exported record", out)
	}
	if strings.Contains(out, "below threshold") {
		t.Errorf("record below minimum severity exported: %q", out)
	}
}

func TestInstrumentRejectsUnknown(t *testing.T) {
	restoreDefault(t)

	if _, err := Instrument(context.Background(), Options{Format: "xml"}); err == nil {
		t.Error("unknown format: expected error")
	}
	if _, err := Instrument(context.Background(), Options{Exporter: "carrier-pigeon"}); err == nil {
		t.Error("unknown exporter: expected error")
	}
}

func TestSeverity(t *testing.T) {
	tests := []struct {
		level slog.Level
		want  minsev.Severity
	}{
		{slog.LevelDebug, minsev.SeverityDebug},
		{slog.LevelInfo, minsev.SeverityInfo},
		{slog.LevelWarn, minsev.SeverityWarn},
		{slog.LevelError, minsev.SeverityError},
		{slog.LevelError + 4, minsev.SeverityError},
	}

	for _, tt := range tests {
		if got := severity(tt.level); got != tt.want {
			t.Errorf("severity(%v) = %v, want %v", tt.level, got, tt.want)
		}
	}
}
