package reading

import (
	"regexp"
	"strings"
)

// Strategy is one scan pattern over recognized text. Normalize converts the
// raw submatch into a numeric string; Base is the fixed priority score the
// strategy contributes before bonuses.
type Strategy struct {
	Name      string
	Pattern   *regexp.Regexp
	Normalize func(match []string) string
	Base      int
}

func joinDigits(match []string) string {
	return strings.ReplaceAll(match[1], " ", "")
}

func firstGroup(match []string) string {
	return match[1]
}

func splitPair(match []string) string {
	return match[1] + "." + match[2]
}

// strategies is evaluated in order; earlier entries win confidence ties.
var strategies = []Strategy{
	{
		// Meter displays that print spaced digits: "0 0 5 0 8".
		Name:      "spaced-digits",
		Pattern:   regexp.MustCompile(`((?:\d ){3,6}\d)`),
		Normalize: joinDigits,
		Base:      45,
	},
	{
		// A number immediately followed by an energy unit marker.
		Name:      "unit-adjacent",
		Pattern:   regexp.MustCompile(`(?i)(\d{1,6}(?:[.,]\d{1,3})?)\s*(?:kwh|kw·h|квт)`),
		Normalize: firstGroup,
		Base:      55,
	},
	{
		// Integer and decimal part split by whitespace: "00508 5" -> 508.5.
		Name:      "split-decimal",
		Pattern:   regexp.MustCompile(`(\d{4,6})\s+(\d{1,2})\b`),
		Normalize: splitPair,
		Base:      50,
	},
	{
		// A bare 5-6 digit integer, the usual shape of a cumulative meter
		// readout when OCR drops the decimal point.
		Name:      StrategyPlainInteger,
		Pattern:   regexp.MustCompile(`\b(\d{5,6})\b`),
		Normalize: firstGroup,
		Base:      35,
	},
	{
		// Generic decimal number, lowest-priority fallback.
		Name:      "decimal",
		Pattern:   regexp.MustCompile(`(\d{1,6}[.,]\d{1,3})`),
		Normalize: firstGroup,
		Base:      30,
	},
}

// StrategyPlainInteger is referenced by the tenth-digit correction pass.
const StrategyPlainInteger = "plain-integer"

// Strategies returns the ranked strategy list, mainly for tests.
func Strategies() []Strategy {
	out := make([]Strategy, len(strategies))
	copy(out, strategies)
	return out
}
