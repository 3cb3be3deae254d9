// Package intent classifies farmer questions into weighted topic intents.
// Matching is deliberately simple: case-insensitive substring matching on
// fixed keyword stems. Upgrading to stemming or NLP would change scores and
// is a behavior change, not a refactor.
package intent

import "strings"

// Intent is a coarse topic category for a farmer question.
type Intent string

const (
	Irrigation Intent = "irrigation"
	Weather    Intent = "weather"
	Soil       Intent = "soil"
	Market     Intent = "market"
	Fertilizer Intent = "fertilizer"
	Pest       Intent = "pest"
)

// Priority is the fixed order used to resolve ties between equally scored
// intents. Classification never depends on map iteration order.
var Priority = []Intent{Irrigation, Weather, Soil, Market, Fertilizer, Pest}

// keywords maps each intent to its keyword stems. Stems match inflections:
// "irrigat" covers "irrigate", "irrigation", "irrigating".
var keywords = map[Intent][]string{
	Irrigation: {"irrigat", "water", "moisture", "drip", "sprinkler"},
	Weather:    {"weather", "rain", "forecast", "temperature", "humidity", "wind"},
	Soil:       {"soil", "ph", "nitrogen", "phosphorus", "potassium", "organic carbon"},
	Market:     {"price", "market", "sell", "mandi", "trade", "rate"},
	Fertilizer: {"fertiliz", "nutrient", "npk", "urea", "manure", "compost"},
	Pest:       {"pest", "disease", "insect", "fungus", "virus", "weed"},
}

// Classify scores the question against every intent. The score for an
// intent is matched-stems / total-stems for that intent; intents with no
// match are omitted. An empty map is a valid result and means no intent
// signal (callers skip filtering in that case).
func Classify(text string) map[Intent]float64 {
	q := strings.ToLower(text)
	scores := make(map[Intent]float64)
	for _, in := range Priority {
		stems := keywords[in]
		matched := 0
		for _, stem := range stems {
			if strings.Contains(q, stem) {
				matched++
			}
		}
		if matched > 0 {
			scores[in] = float64(matched) / float64(len(stems))
		}
	}
	return scores
}

// Primary returns the highest-scoring intent. Ties resolve by the fixed
// Priority order. ok is false when scores is empty.
func Primary(scores map[Intent]float64) (primary Intent, ok bool) {
	best := 0.0
	for _, in := range Priority {
		s, present := scores[in]
		if !present {
			continue
		}
		if !ok || s > best {
			primary, best, ok = in, s, true
		}
	}
	return primary, ok
}
