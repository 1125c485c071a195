package logger

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"inboxwhats/pkg/trace"
)

func TestMaskAddress(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"whatsapp:+15551234567", "whatsapp:+155****4567"},
		{"+15551234567", "+155****4567"},
		{"12345", "*****"},
		{"whatsapp:", "whatsapp:"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := MaskAddress(tt.in); got != tt.want {
				t.Errorf("MaskAddress(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestWithTrace(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)

	WithTrace(context.Background(), base).Info("no trace")
	WithTrace(trace.WithContext(context.Background(), "abc"), base).Info("traced")

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if _, ok := entries[0].ContextMap()["trace_id"]; ok {
		t.Errorf("untraced entry carries trace_id")
	}
	if got := entries[1].ContextMap()["trace_id"]; got != "abc" {
		t.Errorf("trace_id = %v, want abc", got)
	}
}
