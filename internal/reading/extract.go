// Package reading turns a block of recognized text into a numeric meter
// reading with a confidence score. An ordered list of pattern strategies is
// evaluated; every match is validated against the expected slot and the
// previous reading, scored, and the best valid candidate wins.
package reading

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"evcharge/internal/models"
)

// Magnitude ranges separating the two kinds of readings. A cumulative utility
// meter counts thousands of kWh; the station display shows a single session.
const (
	meterMin   = 1000.0
	meterMax   = 999999.0
	displayMin = 0.1
	displayMax = 50.0

	// Session delta limits against a known previous reading. Deltas up to
	// plausibleDelta are a normal charge; up to looseDelta are possible but
	// suspicious; beyond that the candidate is rejected.
	plausibleDelta = 50.0
	looseDelta     = 100.0
)

// Context carries what the caller already knows about the photo.
type Context struct {
	PreviousReading *float64
	// ExpectedSlot constrains the candidate's scale when set: before/after
	// demand a meter-scale value, display a display-scale one.
	ExpectedSlot models.Slot
}

type candidate struct {
	value      float64
	confidence int
	method     string
	meter      bool
}

// Extract evaluates all strategies over text and returns the best valid
// candidate. Reading is nil and Success false when nothing matches.
func Extract(text string, ctx Context) models.RecognitionResult {
	var best *candidate
	var plainInts []float64

	textBonus := keywordBonus(text)

	for _, strat := range strategies {
		for _, match := range strat.Pattern.FindAllStringSubmatch(text, -1) {
			raw := strings.ReplaceAll(strat.Normalize(match), ",", ".")
			value, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				continue
			}
			if strat.Name == StrategyPlainInteger {
				plainInts = append(plainInts, value)
			}

			cand, ok := validate(value, ctx)
			if !ok {
				continue
			}
			cand.method = strat.Name
			cand.confidence = clampConfidence(strat.Base + cand.confidence + textBonus + separatorBonus(match[0]))
			if best == nil || cand.confidence > best.confidence {
				c := cand
				best = &c
			}
		}
	}

	if ctx.PreviousReading != nil {
		best = applyTenthCorrection(best, plainInts, *ctx.PreviousReading, textBonus)
	}

	if best == nil {
		return models.RecognitionResult{RawText: text}
	}

	value := roundReading(best.value, best.meter)
	return models.RecognitionResult{
		Success:    true,
		RawText:    text,
		Confidence: best.confidence,
		Reading:    &value,
		Method:     best.method,
	}
}

// validate classifies the candidate's scale, checks it against the expected
// slot, and computes the proximity bonus. The returned confidence holds only
// the bonus portion; the strategy base is added by the caller.
func validate(value float64, ctx Context) (candidate, bool) {
	meterOK := value >= meterMin && value <= meterMax
	if !meterOK && ctx.PreviousReading != nil && math.Abs(value-*ctx.PreviousReading) <= looseDelta {
		// Small installations run meters below the usual magnitude range;
		// proximity to the known previous reading is the stronger signal.
		meterOK = true
	}
	displayOK := value >= displayMin && value <= displayMax

	var meter bool
	switch ctx.ExpectedSlot {
	case models.SlotBefore, models.SlotAfter:
		if !meterOK {
			return candidate{}, false
		}
		meter = true
	case models.SlotDisplay:
		if !displayOK {
			return candidate{}, false
		}
	default:
		switch {
		case meterOK:
			meter = true
		case displayOK:
		default:
			return candidate{}, false
		}
	}

	bonus := 0
	if meter && ctx.PreviousReading != nil {
		delta := math.Abs(value - *ctx.PreviousReading)
		switch {
		case delta <= plausibleDelta:
			bonus += 25
		case delta <= looseDelta:
			bonus += 10
		default:
			return candidate{}, false
		}
	}

	return candidate{value: value, confidence: bonus, meter: meter}, true
}

// applyTenthCorrection recovers the commonly missed last decimal digit: a
// whole plain-integer candidate v is re-read as v/10 when that produces a
// plausible session delta while v itself does not.
func applyTenthCorrection(best *candidate, plainInts []float64, prev float64, textBonus int) *candidate {
	if best != nil && best.method != StrategyPlainInteger {
		return best
	}

	values := plainInts
	if best != nil {
		values = []float64{best.value}
	}
	for _, v := range values {
		if v != math.Trunc(v) {
			continue
		}
		corrected := v / 10
		if !deltaPlausible(corrected, prev) || deltaPlausible(v, prev) {
			continue
		}
		return &candidate{
			value:      corrected,
			confidence: clampConfidence(35 + 25 + textBonus),
			method:     StrategyPlainInteger + "-corrected",
			meter:      true,
		}
	}
	return best
}

func deltaPlausible(value, prev float64) bool {
	delta := math.Abs(value - prev)
	return delta >= 0.1 && delta <= plausibleDelta
}

func keywordBonus(text string) int {
	lower := strings.ToLower(text)
	bonus := 0
	if strings.Contains(lower, "kwh") {
		bonus += 20
	}
	if strings.Contains(lower, "квт") {
		bonus += 20
	}
	if strings.Contains(lower, "показан") {
		bonus += 15
	}
	if strings.Contains(lower, "лічильник") {
		bonus += 15
	}
	return bonus
}

func separatorBonus(rawMatch string) int {
	if strings.ContainsAny(rawMatch, ".,") {
		return 10
	}
	return 0
}

func clampConfidence(v int) int {
	if v > 100 {
		return 100
	}
	if v < 0 {
		return 0
	}
	return v
}

func roundReading(value float64, meter bool) float64 {
	if meter {
		return math.Round(value*10) / 10
	}
	return math.Round(value*100) / 100
}

// FormatReading renders a reading the way it is shown to users: one decimal
// place for meter-scale values, two for display-scale ones.
func FormatReading(value float64) string {
	if value >= meterMin || value > displayMax {
		return fmt.Sprintf("%.1f", value)
	}
	return fmt.Sprintf("%.2f", value)
}
