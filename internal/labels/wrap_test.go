package labels

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedMeasure gives every rune a width of 6 points.
func fixedMeasure(s string) float64 {
	return float64(len([]rune(s))) * 6
}

func TestFitText_NoWrapNeeded(t *testing.T) {
	lines := FitText("Strelitzia", 120, 2, fixedMeasure)
	assert.Equal(t, []string{"Strelitzia"}, lines)
}

func TestFitText_GreedyWrap(t *testing.T) {
	// 20 runes per line at width 120.
	lines := FitText("Strelitzia Nicolai XL potmaat 21", 120, 3, fixedMeasure)
	assert.Equal(t, []string{"Strelitzia Nicolai", "XL potmaat 21"}, lines)
}

func TestFitText_Stable(t *testing.T) {
	text := "Monstera Deliciosa variegata op mosstok 19cm"
	first := FitText(text, 100, 2, fixedMeasure)
	second := FitText(text, 100, 2, fixedMeasure)
	assert.Equal(t, first, second, "wrapping must be deterministic")
}

func TestFitText_TruncatesLastLine(t *testing.T) {
	text := "Philodendron Scandens Brasil hangpot extra groot formaat"
	lines := FitText(text, 120, 2, fixedMeasure)

	require.Len(t, lines, 2)
	assert.True(t, strings.HasSuffix(lines[1], ellipsis), "last line should end in ellipsis")
	for _, line := range lines {
		assert.LessOrEqual(t, fixedMeasure(line), 120.0, "no line may exceed max width")
	}
}

func TestFitText_TruncationPrefersWordBoundary(t *testing.T) {
	text := "Ficus Lyrata Bambino klein groot reuze"
	lines := FitText(text, 120, 1, fixedMeasure)

	require.Len(t, lines, 1)
	trimmed := strings.TrimSuffix(lines[0], ellipsis)
	assert.False(t, strings.HasSuffix(trimmed, " "), "no trailing space before ellipsis")
	// The cut should land after a whole word from the input.
	assert.Contains(t, text, trimmed)
}

func TestFitText_SingleOversizedWord(t *testing.T) {
	lines := FitText("Chrysanthemum-grandiflorum-extralang", 60, 1, fixedMeasure)

	require.Len(t, lines, 1)
	assert.LessOrEqual(t, fixedMeasure(lines[0]), 60.0)
	assert.True(t, strings.HasSuffix(lines[0], ellipsis))
}

func TestFitText_OversizedWordWithinLineBudget(t *testing.T) {
	// The line count fits the budget, but the long word alone exceeds the
	// width and must still be clamped.
	lines := FitText("Aloe Chrysanthemum-grandiflorum-extralang", 120, 3, fixedMeasure)

	require.Len(t, lines, 2)
	for _, line := range lines {
		assert.LessOrEqual(t, fixedMeasure(line), 120.0)
	}
	assert.True(t, strings.HasSuffix(lines[1], ellipsis))
}

func TestFitText_EmptyText(t *testing.T) {
	assert.Nil(t, FitText("   ", 120, 2, fixedMeasure))
}

func TestTruncate_FitsUnchanged(t *testing.T) {
	assert.Equal(t, "Aloe", truncate("Aloe", 120, fixedMeasure))
}
