package observability

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNopTracer(t *testing.T) {
	tracer := NopTracer()
	ctx := context.Background()
	ctx2, span := tracer.StartSpan(ctx, "test")
	if ctx2 != ctx {
		t.Fatalf("nop tracer should return same context")
	}
	span.SetTag("key", "value")
	span.SetError(nil)
	span.Finish()
}

func TestSlogLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	log := NewSlogLogger(base).With(String("component", "xref"))

	log.Warn("recovered", Int64("offset", 1234), Int("object", 7), Bool("repaired", true),
		Duration("took", 1500*time.Millisecond), Error("error", errors.New("cycle")))

	out := buf.String()
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "msg=recovered")
	assert.Contains(t, out, "component=xref")
	assert.Contains(t, out, "offset=1234")
	assert.Contains(t, out, "object=7")
	assert.Contains(t, out, "repaired=true")
	assert.Contains(t, out, "took=1.5s")
	assert.Contains(t, out, "error=cycle")
}

func TestSlogLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	log := NewSlogLogger(base)
	log.Debug("hidden")
	log.Info("hidden")
	assert.Empty(t, buf.String())
	log.Error("shown")
	assert.Contains(t, buf.String(), "shown")
}
