package labels

import "strings"

const ellipsis = "…"

// MeasureFunc returns the rendered width of a string in points.
type MeasureFunc func(s string) float64

// FitText word-wraps text to maxWidth and clamps the result to maxLines.
// Wrapping is greedy; when the text needs more lines than allowed, the last
// permitted line is truncated with an ellipsis, cutting at a word boundary
// when one fits. Every returned line fits in maxWidth, including a single
// word wider than the limit.
func FitText(text string, maxWidth float64, maxLines int, measure MeasureFunc) []string {
	lines := wrapText(text, maxWidth, measure)
	if len(lines) > maxLines {
		kept := lines[:maxLines:maxLines]
		kept[maxLines-1] = strings.Join(lines[maxLines-1:], " ")
		lines = kept
	}
	for i, line := range lines {
		lines[i] = truncate(line, maxWidth, measure)
	}
	return lines
}

// wrapText greedily packs words into lines no wider than maxWidth. A single
// word wider than maxWidth gets its own line.
func wrapText(text string, maxWidth float64, measure MeasureFunc) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var lines []string
	current := words[0]
	for _, word := range words[1:] {
		candidate := current + " " + word
		if measure(candidate) <= maxWidth {
			current = candidate
			continue
		}
		lines = append(lines, current)
		current = word
	}
	return append(lines, current)
}

// truncate shortens s until s+ellipsis fits in maxWidth. Whole trailing
// words are dropped first; only when no word boundary fits does it fall back
// to cutting characters.
func truncate(s string, maxWidth float64, measure MeasureFunc) string {
	if measure(s) <= maxWidth {
		return s
	}

	words := strings.Fields(s)
	for n := len(words) - 1; n > 0; n-- {
		candidate := strings.Join(words[:n], " ") + ellipsis
		if measure(candidate) <= maxWidth {
			return candidate
		}
	}

	runes := []rune(strings.TrimRight(s, " "))
	for len(runes) > 0 {
		candidate := strings.TrimRight(string(runes), " ") + ellipsis
		if measure(candidate) <= maxWidth {
			return candidate
		}
		runes = runes[:len(runes)-1]
	}
	return ellipsis
}
