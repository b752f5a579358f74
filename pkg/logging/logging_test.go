package logging

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCompactHandlerFormat(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewCompactHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	log.With("component", "graphstore").WithGroup("merge").Info("batch merged",
		"nodes", 3, "label", "two words")

	line := buf.String()
	if !strings.HasPrefix(line, "[INFO]  ") {
		t.Errorf("expected INFO prefix, got %q", line)
	}
	for _, want := range []string{"batch merged |", "component=graphstore", "merge.nodes=3", `merge.label="two words"`} {
		if !strings.Contains(line, want) {
			t.Errorf("expected %q in %q", want, line)
		}
	}
}

func TestCompactHandlerLevels(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewCompactHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))

	log.Info("hidden")
	log.Warn("shown")

	if strings.Contains(buf.String(), "hidden") {
		t.Errorf("info line should be filtered: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "[WARN]  ") {
		t.Errorf("warn line missing: %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name    string
		verbose int
		want    slog.Level
		wantErr bool
	}{
		{"info", 0, slog.LevelInfo, false},
		{"", 0, slog.LevelInfo, false},
		{"WARN", 0, slog.LevelWarn, false},
		{"error", 1, slog.LevelDebug, false},
		{"info", 3, LevelTrace, false},
		{"loud", 0, slog.LevelInfo, true},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.name, tt.verbose)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q, %d) error = %v, wantErr %v", tt.name, tt.verbose, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q, %d) = %v, want %v", tt.name, tt.verbose, got, tt.want)
		}
	}
}

func TestConfigureRejectsUnknownFormat(t *testing.T) {
	if err := Configure(&bytes.Buffer{}, slog.LevelInfo, "xml"); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	var buf bytes.Buffer
	if err := Configure(&buf, slog.LevelInfo, "compact"); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	defer Configure(&bytes.Buffer{}, slog.LevelInfo, "compact")

	var seen string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/explore/search?query=kea", nil)
	req.Header.Set(RequestIDHeader, "fixed-request-id-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if seen != "fixed-request-id-123" {
		t.Errorf("handler saw request id %q", seen)
	}
	if got := rec.Header().Get(RequestIDHeader); got != "fixed-request-id-123" {
		t.Errorf("response header request id = %q", got)
	}
	if !strings.Contains(buf.String(), "request rejected") || !strings.Contains(buf.String(), "req=fixed-re") {
		t.Errorf("unexpected log output %q", buf.String())
	}
}

func TestRequestIDGenerated(t *testing.T) {
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if len(rec.Header().Get(RequestIDHeader)) != 36 {
		t.Errorf("expected generated uuid, got %q", rec.Header().Get(RequestIDHeader))
	}
}
