//go:build amd64 || arm64

package conv

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntToInt32(t *testing.T) {
	got, err := IntToInt32(-1)
	require.NoError(t, err)
	assert.Equal(t, int32(-1), got)

	got, err = IntToInt32(math.MaxInt32)
	require.NoError(t, err)
	assert.Equal(t, int32(math.MaxInt32), got)

	_, err = IntToInt32(math.MaxInt32 + 1)
	assert.Error(t, err)
}

func TestCount(t *testing.T) {
	n, err := Count(7)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	_, err = Count(-3)
	assert.Error(t, err)
}
