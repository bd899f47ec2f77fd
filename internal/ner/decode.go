package ner

import (
	"math"

	"github.com/straja-ai/entityshield/internal/spans"
)

// decodePredictions picks the arg-max label for every real token of enc.
// logits is the flattened [seqLen, numLabels] output row for one sequence.
func decodePredictions(logits []float32, numLabels int, labels []string, enc Encoding) []spans.TokenPrediction {
	if numLabels <= 0 || len(labels) == 0 || len(logits) == 0 {
		return nil
	}
	out := make([]spans.TokenPrediction, 0, len(enc.Pieces))
	for i, p := range enc.Pieces {
		if p.Start < 0 || p.End <= p.Start {
			continue
		}
		base := i * numLabels
		if base+numLabels > len(logits) {
			break
		}
		row := logits[base : base+numLabels]
		best, prob := argmaxProb(row)
		label := "O"
		if best < len(labels) && labels[best] != "" {
			label = labels[best]
		}
		out = append(out, spans.TokenPrediction{
			Tag:     label,
			Surface: p.Surface,
			Start:   p.Start,
			End:     p.End,
			Score:   prob,
		})
	}
	return out
}

// argmaxProb returns the index of the largest logit and its softmax probability.
func argmaxProb(row []float32) (int, float32) {
	best := 0
	bestScore := float32(-math.MaxFloat32)
	for j, v := range row {
		if v > bestScore {
			best = j
			bestScore = v
		}
	}
	sum := 0.0
	for _, v := range row {
		sum += math.Exp(float64(v - bestScore))
	}
	if sum == 0 {
		return best, 0
	}
	return best, float32(1.0 / sum)
}
