package sensitivity

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDragHistoryDampsRepeatedDirection(t *testing.T) {
	var h dragHistory
	h.push(5, 0)
	factor := h.dampingFor(5, 0)
	require.InDelta(t, dragDamping, factor, 1e-12, "identical direction repeated must trigger drag damping")
}

func TestDragHistoryNoDampOnDirectionChange(t *testing.T) {
	var h dragHistory
	h.push(5, 0)
	factor := h.dampingFor(0, 5)
	require.Equal(t, 1.0, factor, "perpendicular motion should not be damped")
}

func TestDragHistoryIgnoresNearZeroVectors(t *testing.T) {
	var h dragHistory
	h.push(0.0001, 0)
	factor := h.dampingFor(0.0001, 0)
	require.Equal(t, 1.0, factor, "vectors below the magnitude floor never trigger damping")
}

func TestDragHistoryBounded(t *testing.T) {
	var h dragHistory
	for i := 0; i < dragHistorySize*3; i++ {
		h.push(float64(i), 0)
	}
	require.Equal(t, dragHistorySize, h.Len())
}
