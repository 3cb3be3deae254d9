package llm

import (
	"strconv"
	"strings"
)

// DefaultConfidence is used when a model response lacks a parseable
// trailing confidence value.
const DefaultConfidence = 0.7

// ParseConfidence extracts the numeric self-reported confidence the model
// is instructed to append to its answer ("Confidence: 0.8"). The last
// occurrence wins. When no value in [0,1] can be parsed it returns
// (DefaultConfidence, false); callers log the fallback but never fail on it.
func ParseConfidence(text string) (float64, bool) {
	lower := strings.ToLower(text)
	idx := strings.LastIndex(lower, "confidence:")
	if idx < 0 {
		return DefaultConfidence, false
	}

	rest := strings.TrimSpace(lower[idx+len("confidence:"):])
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return DefaultConfidence, false
	}

	v, err := strconv.ParseFloat(strings.Trim(fields[0], ".,)]"), 64)
	if err != nil || v < 0 || v > 1 {
		return DefaultConfidence, false
	}
	return v, true
}
