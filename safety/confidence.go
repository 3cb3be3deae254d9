package safety

// Combined-confidence weighting. Retrieved-evidence quality is weighted
// more heavily than a single language-model self-report.
const (
	retrievalWeight  = 0.6
	generationWeight = 0.4
)

// Combine blends the retrieval score and the generation confidence into one
// scalar. Inputs and output are clamped to [0,1]. Pure and total.
func Combine(retrievalScore, generationConfidence float64) float64 {
	return clamp01(retrievalWeight*clamp01(retrievalScore) +
		generationWeight*clamp01(generationConfidence))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
