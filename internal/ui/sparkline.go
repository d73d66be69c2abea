package ui

// Sparkline renders a throughput history as one block rune per sample,
// exactly width runes wide. Samples scale against the window maximum;
// a nonzero sample never renders as the idle block, so a crawling
// transfer stays distinguishable from a stalled one.
func Sparkline(samples []float64, width int) string {
	if width <= 0 {
		return ""
	}

	blocks := []rune("▁▂▃▄▅▆▇█")

	// The newest width samples, padded left with idle when the history
	// is still short.
	window := make([]float64, width)
	if len(samples) >= width {
		copy(window, samples[len(samples)-width:])
	} else {
		copy(window[width-len(samples):], samples)
	}

	maxVal := 0.0
	for _, v := range window {
		if v > maxVal {
			maxVal = v
		}
	}

	out := make([]rune, width)
	for i, v := range window {
		if maxVal <= 0 || v <= 0 {
			out[i] = blocks[0]
			continue
		}
		idx := 1 + int(v/maxVal*float64(len(blocks)-2))
		if idx >= len(blocks) {
			idx = len(blocks) - 1
		}
		out[i] = blocks[idx]
	}
	return string(out)
}
