package chatterbox

import (
	"math"
	"math/rand/v2"
	"sort"
)

// negInf marks filtered-out vocabulary entries.
var negInf = float32(math.Inf(-1))

// applyRepetitionPenalty dampens every token already present in history:
// negative logits are multiplied by penalty, non-negative logits divided.
// penalty == 1 is a no-op.
func applyRepetitionPenalty(logits []float32, history []int64, penalty float32) {
	if penalty == 1 {
		return
	}

	for _, tok := range history {
		if tok < 0 || tok >= int64(len(logits)) {
			continue
		}
		if logits[tok] < 0 {
			logits[tok] *= penalty
		} else {
			logits[tok] /= penalty
		}
	}
}

// applyTemperature divides every logit by temp. temp == 1 is a no-op.
func applyTemperature(logits []float32, temp float32) {
	if temp == 1 {
		return
	}
	for i := range logits {
		logits[i] /= temp
	}
}

// applyTopK keeps the k largest logits and sets the rest to -inf. Entries
// tied with the k-th largest value are all kept. k <= 0 or k >= len disables
// the filter.
func applyTopK(logits []float32, k int) {
	if k <= 0 || k >= len(logits) {
		return
	}

	vals := append([]float32(nil), logits...)
	sort.Slice(vals, func(a, b int) bool { return vals[a] > vals[b] })
	threshold := vals[k-1]

	for i, v := range logits {
		if v < threshold {
			logits[i] = negInf
		}
	}
}

// applyTopP performs nucleus filtering on the raw logits: softmax over the
// descending order, keep the smallest prefix whose cumulative probability
// first exceeds p (the crossing element included), -inf for the rest.
// p >= 1 disables the filter.
func applyTopP(logits []float32, p float32) {
	if p >= 1 {
		return
	}

	n := len(logits)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return logits[order[a]] > logits[order[b]] })

	maxLogit := logits[order[0]]
	if math.IsInf(float64(maxLogit), -1) {
		return
	}

	var sum float64
	for _, idx := range order {
		sum += math.Exp(float64(logits[idx] - maxLogit))
	}

	cutoff := n
	var cum float64
	for i, idx := range order {
		cum += math.Exp(float64(logits[idx]-maxLogit)) / sum
		if cum > float64(p) {
			cutoff = i + 1
			break
		}
	}

	for _, idx := range order[cutoff:] {
		logits[idx] = negInf
	}
}

// softmaxInPlace converts logits to a probability distribution using the
// max-subtracted form. If every entry is -inf the distribution degenerates to
// index 0, an explicit fallback rather than NaN propagation.
func softmaxInPlace(logits []float32) {
	maxLogit := logits[0]
	for _, v := range logits[1:] {
		if v > maxLogit {
			maxLogit = v
		}
	}

	if math.IsInf(float64(maxLogit), 0) || math.IsNaN(float64(maxLogit)) {
		logits[0] = 1
		for i := range logits[1:] {
			logits[i+1] = 0
		}
		return
	}

	var sum float64
	for i, v := range logits {
		e := math.Exp(float64(v - maxLogit))
		logits[i] = float32(e)
		sum += e
	}

	inv := float32(1 / sum)
	for i := range logits {
		logits[i] *= inv
	}
}

// sampleIndex draws from the distribution by inverse transform: the smallest
// index whose cumulative probability reaches u. Floating-point drift that
// leaves the cumulative sum below u falls back to the last index.
func sampleIndex(rng *rand.Rand, probs []float32) int64 {
	u := rng.Float32()

	var cum float32
	for i, p := range probs {
		cum += p
		if u <= cum {
			return int64(i)
		}
	}

	return int64(len(probs) - 1)
}
