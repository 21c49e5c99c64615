package sensitivity

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDRCSSuppressionAlwaysWithinBounds(t *testing.T) {
	d := NewDRCS()
	for i := 0; i < 40; i++ {
		dx, dy := 5.0, 0.0
		d.ApplyToInput(&dx, &dy)
		s := d.suppression()
		t.Logf("tick %d: score=%.4f", i, d.Score())
		require.GreaterOrEqual(t, s, d.SuppressionFloor)
		require.LessOrEqual(t, s, d.SuppressionCeil)
	}
}

func TestDRCSRepeatedDirectionRaisesScore(t *testing.T) {
	d := NewDRCS()
	var lastScore float64
	for i := 0; i < 5; i++ {
		dx, dy := 5.0, 0.0
		d.ApplyToInput(&dx, &dy)
		lastScore = d.Score()
	}
	require.Greater(t, lastScore, 0.0, "repeating the same direction should accumulate repetition score")
}

func TestDRCSVariedDirectionKeepsScoreLow(t *testing.T) {
	d := NewDRCS()
	dirs := [][2]float64{{5, 0}, {0, 5}, {-5, 0}, {0, -5}, {5, 5}}
	for _, dir := range dirs {
		dx, dy := dir[0], dir[1]
		d.ApplyToInput(&dx, &dy)
	}
	require.LessOrEqual(t, d.Score(), 1.0)
}
