package ocr

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"evcharge/internal/models"
	"evcharge/internal/reading"
)

type fakeEngine struct {
	name  string
	text  string
	err   error
	delay time.Duration
	calls int
}

func (f *fakeEngine) Name() string { return f.name }

func (f *fakeEngine) Recognize(ctx context.Context, image []byte, hint Hint) (*Text, error) {
	f.calls++
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &Text{Text: f.text}, nil
}

func TestRecognizerUsesFirstProducingEngine(t *testing.T) {
	primary := &fakeEngine{name: "primary", text: "12345 kWh"}
	fallback := &fakeEngine{name: "fallback", text: "99999"}
	r := NewRecognizer([]Engine{primary, fallback}, time.Second, zap.NewNop())

	result := r.Recognize(context.Background(), []byte("img"), HintMeter, reading.Context{ExpectedSlot: models.SlotBefore})

	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.Reading == nil || *result.Reading != 12345 {
		t.Errorf("reading = %v, want 12345", result.Reading)
	}
	if fallback.calls != 0 {
		t.Errorf("fallback engine was called %d times", fallback.calls)
	}
}

func TestRecognizerFallsBackOnError(t *testing.T) {
	primary := &fakeEngine{name: "primary", err: errors.New("quota exceeded")}
	fallback := &fakeEngine{name: "fallback", text: "12345"}
	r := NewRecognizer([]Engine{primary, fallback}, time.Second, zap.NewNop())

	result := r.Recognize(context.Background(), []byte("img"), HintMeter, reading.Context{ExpectedSlot: models.SlotBefore})

	if !result.Success {
		t.Fatalf("expected fallback success, got %+v", result)
	}
	if fallback.calls != 1 {
		t.Errorf("fallback calls = %d, want 1", fallback.calls)
	}
}

func TestRecognizerSkipsEmptyText(t *testing.T) {
	primary := &fakeEngine{name: "primary", text: ""}
	fallback := &fakeEngine{name: "fallback", text: "12345"}
	r := NewRecognizer([]Engine{primary, fallback}, time.Second, zap.NewNop())

	result := r.Recognize(context.Background(), []byte("img"), HintMeter, reading.Context{ExpectedSlot: models.SlotBefore})
	if !result.Success {
		t.Fatalf("expected success from fallback, got %+v", result)
	}
}

func TestRecognizerTimesOutSlowEngine(t *testing.T) {
	slow := &fakeEngine{name: "slow", text: "12345", delay: 500 * time.Millisecond}
	fast := &fakeEngine{name: "fast", text: "12345"}
	r := NewRecognizer([]Engine{slow, fast}, 20*time.Millisecond, zap.NewNop())

	result := r.Recognize(context.Background(), []byte("img"), HintMeter, reading.Context{ExpectedSlot: models.SlotBefore})

	if !result.Success {
		t.Fatalf("expected success from fast engine, got %+v", result)
	}
	if fast.calls != 1 {
		t.Errorf("fast engine calls = %d, want 1", fast.calls)
	}
}

func TestRecognizerWithoutEngines(t *testing.T) {
	r := NewRecognizer(nil, time.Second, zap.NewNop())
	result := r.Recognize(context.Background(), []byte("img"), HintNone, reading.Context{})
	if result.Success {
		t.Fatalf("expected failure, got %+v", result)
	}
}

func TestRecognizerUnreadableText(t *testing.T) {
	engine := &fakeEngine{name: "primary", text: "hello world"}
	r := NewRecognizer([]Engine{engine}, time.Second, zap.NewNop())

	result := r.Recognize(context.Background(), []byte("img"), HintMeter, reading.Context{ExpectedSlot: models.SlotBefore})
	if result.Success {
		t.Fatalf("expected extraction failure, got %+v", result)
	}
	if result.RawText != "hello world" {
		t.Errorf("raw text = %q", result.RawText)
	}
}
