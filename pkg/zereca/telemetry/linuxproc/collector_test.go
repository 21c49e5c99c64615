//go:build linux

package linuxproc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCollector(t *testing.T) {
	col, err := NewCollector(0.0)
	require.NoError(t, err)
	require.NotNil(t, col)
}
