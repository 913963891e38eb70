// Package ocr is the text-recognition boundary. Engines turn image bytes into
// raw text; the Recognizer tries them in priority order under an enforced
// timeout and hands the text to the reading extractor.
package ocr

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"evcharge/internal/models"
	"evcharge/internal/reading"
)

// Hint tells an engine what kind of display it is looking at, so it can focus
// on digit transcription for utility meters.
type Hint int

const (
	HintNone Hint = iota
	HintMeter
	HintDisplay
)

// WordConfidence is per-word recognition confidence, when the engine has it.
type WordConfidence struct {
	Word       string
	Confidence float64
}

// Text is an engine's raw output.
type Text struct {
	Text  string
	Words []WordConfidence
}

// Engine is one underlying recognition implementation.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, image []byte, hint Hint) (*Text, error)
}

// ErrNoEngines is returned when the recognizer was built without any engine.
var ErrNoEngines = errors.New("ocr: no engines configured")

// Recognizer chains engines in priority order. The first engine that produces
// non-empty text wins; its text is parsed by the extraction engine. A slow or
// failing engine is skipped, never waited on past the timeout.
type Recognizer struct {
	engines []Engine
	timeout time.Duration
	logger  *zap.Logger
}

// NewRecognizer builds the chain. Timeout bounds each engine call.
func NewRecognizer(engines []Engine, timeout time.Duration, logger *zap.Logger) *Recognizer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Recognizer{engines: engines, timeout: timeout, logger: logger}
}

// Recognize runs the engine chain and extracts a reading from the first text
// produced. All failures collapse into an unsuccessful result; the session
// flow then offers manual entry.
func (r *Recognizer) Recognize(ctx context.Context, image []byte, hint Hint, rctx reading.Context) models.RecognitionResult {
	if len(r.engines) == 0 {
		r.logger.Warn("recognition requested with no engines configured")
		return models.RecognitionResult{}
	}

	for _, engine := range r.engines {
		text, err := r.recognizeOne(ctx, engine, image, hint)
		if err != nil {
			r.logger.Warn("recognition engine failed",
				zap.String("engine", engine.Name()),
				zap.Error(err),
			)
			continue
		}
		if text == nil || text.Text == "" {
			continue
		}

		result := reading.Extract(text.Text, rctx)
		r.logger.Info("recognition completed",
			zap.String("engine", engine.Name()),
			zap.Bool("success", result.Success),
			zap.String("method", result.Method),
			zap.Int("confidence", result.Confidence),
		)
		return result
	}

	return models.RecognitionResult{}
}

func (r *Recognizer) recognizeOne(ctx context.Context, engine Engine, image []byte, hint Hint) (*Text, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return engine.Recognize(ctx, image, hint)
}
