// Package rules is the deterministic fallback advice engine. It answers
// irrigation, fertilizer, pest and market-timing questions from explicit
// observations when retrieval or generation is unusable. Every rule is a
// pure function; missing observations are explicit nil pointers with named
// defaults, never silent coercion.
package rules

import (
	"fmt"
	"strings"

	"github.com/agrisage/agrisage/safety"
)

// Observations carries the optional measurements a rule may consult.
// A nil field means the observation is missing.
type Observations struct {
	SoilMoisture *float64 // percent
	PrecipProb   *float64 // percent
	SoilN        *float64 // kg/ha
	SoilP        *float64 // kg/ha
	SoilK        *float64 // kg/ha

	CurrentPrice  *float64
	HistoricalAvg *float64
}

// Advice is the output of one rule.
type Advice struct {
	Action     string  `json:"action"`
	Advice     string  `json:"advice"`
	Confidence float64 `json:"confidence"`
	Escalate   bool    `json:"escalate"`
}

// Defaults applied when irrigation observations are missing.
const (
	defaultSoilMoisture = 30.0
	defaultPrecipProb   = 30.0
)

// NPK deficiency thresholds in kg/ha.
const (
	minSoilN = 280.0
	minSoilP = 11.0
	minSoilK = 120.0
)

// escalateBelow forces the escalate flag on any advice this uncertain,
// regardless of which rule produced it.
const escalateBelow = 0.4

// Irrigation decides between irrigating now, delaying for rain, and
// consulting an agent. Missing observations take the documented defaults.
func Irrigation(soilMoisture, precipProb *float64) Advice {
	moisture := valueOr(soilMoisture, defaultSoilMoisture)
	precip := valueOr(precipProb, defaultPrecipProb)

	if moisture < 30 && precip < 30 {
		return Advice{
			Action:     "irrigate_now",
			Advice:     "Soil moisture low and low chance of rain — irrigate in the evening.",
			Confidence: 0.90,
		}
	}
	if precip > 70 {
		return Advice{
			Action:     "delay_irrigation",
			Advice:     "Heavy rain likely — delay irrigation.",
			Confidence: 0.95,
		}
	}
	return Advice{
		Action:     "consult",
		Advice:     "Insufficient confidence — consult extension agent.",
		Confidence: 0.40,
	}
}

// Fertilizer checks soil NPK levels against deficiency thresholds. Without
// a complete soil test it recommends getting one instead of guessing.
func Fertilizer(soilN, soilP, soilK *float64) Advice {
	if soilN == nil || soilP == nil || soilK == nil {
		return Advice{
			Action:     "soil_test",
			Advice:     "Get soil tested for accurate fertilizer recommendations.",
			Confidence: 0.85,
		}
	}

	var deficient []string
	if *soilN < minSoilN {
		deficient = append(deficient, "Nitrogen")
	}
	if *soilP < minSoilP {
		deficient = append(deficient, "Phosphorus")
	}
	if *soilK < minSoilK {
		deficient = append(deficient, "Potassium")
	}

	if len(deficient) > 0 {
		return Advice{
			Action: "consult_expert",
			Advice: fmt.Sprintf("Soil shows %s deficiency. Consult agricultural officer for specific fertilizer recommendations.",
				strings.Join(deficient, ", ")),
			Confidence: 0.75,
		}
	}
	return Advice{
		Action:     "balanced_fertilizer",
		Advice:     "Soil nutrients appear adequate. Use balanced fertilizer as per crop requirements.",
		Confidence: 0.70,
	}
}

// PestDisease always escalates. Automated diagnosis is an absolute no,
// not a placeholder for a future model.
func PestDisease() Advice {
	return Advice{
		Action:     "escalate",
		Advice:     "Pest and disease diagnosis requires expert examination. Contact your nearest Krishi Vigyan Kendra or agricultural extension officer immediately.",
		Confidence: 1.0,
	}
}

// MarketTiming compares the current price to the historical average and
// advises selling, storing, or checking the mandi.
func MarketTiming(currentPrice, historicalAvg *float64) Advice {
	if currentPrice == nil || historicalAvg == nil {
		return Advice{
			Action:     "check_market",
			Advice:     "Check current market prices at nearby mandis before selling.",
			Confidence: 0.60,
		}
	}

	ratio := *currentPrice / *historicalAvg

	if ratio > 1.15 {
		return Advice{
			Action: "sell_now",
			Advice: fmt.Sprintf("Current price is %.1f%% above average. Good time to sell.",
				(ratio-1)*100),
			Confidence: 0.80,
		}
	}
	if ratio < 0.85 {
		return Advice{
			Action: "wait_or_store",
			Advice: fmt.Sprintf("Current price is %.1f%% below average. Consider waiting if you can store safely.",
				(1-ratio)*100),
			Confidence: 0.75,
		}
	}
	return Advice{
		Action:     "market_normal",
		Advice:     "Prices are near average. Sell based on your immediate needs.",
		Confidence: 0.65,
	}
}

// Respond routes the question to exactly one rule. The restricted-substance
// check runs first; afterwards categories match in fixed priority order:
// irrigation, fertilizer, pest/disease, market. Any result with confidence
// below escalateBelow gets its escalate flag forced on.
func Respond(question string, obs Observations) Advice {
	if safety.IsRestricted(question) {
		return Advice{
			Action:     "escalate",
			Advice:     "This question involves chemicals or dosages. Please consult your local agricultural extension officer or Krishi Vigyan Kendra for safe recommendations.",
			Confidence: 1.0,
			Escalate:   true,
		}
	}

	q := strings.ToLower(question)

	var result Advice
	switch {
	case containsAny(q, "irrigat", "water", "moisture"):
		result = Irrigation(obs.SoilMoisture, obs.PrecipProb)
	case containsAny(q, "fertiliz", "nutrient", "npk"):
		result = Fertilizer(obs.SoilN, obs.SoilP, obs.SoilK)
	case containsAny(q, "pest", "disease", "insect", "fungus", "virus"):
		result = PestDisease()
	case containsAny(q, "price", "market", "sell", "mandi"):
		result = MarketTiming(obs.CurrentPrice, obs.HistoricalAvg)
	default:
		result = Advice{
			Action:     "consult",
			Advice:     "For specific agricultural advice, please consult your local agricultural extension officer or visit the nearest Krishi Vigyan Kendra.",
			Confidence: 0.50,
		}
	}

	if result.Confidence < escalateBelow {
		result.Escalate = true
	}
	return result
}

func valueOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func containsAny(lower string, terms ...string) bool {
	for _, t := range terms {
		if strings.Contains(lower, t) {
			return true
		}
	}
	return false
}
