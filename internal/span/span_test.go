package span

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/forwardindex/internal/errs"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name               string
		length, start, end int
		wantStart, wantEnd int
		wantErr            bool
	}{
		{"whole document", 5, -1, -1, 0, 5, false},
		{"prefix", 5, -1, 2, 0, 2, false},
		{"suffix", 5, 3, -1, 3, 5, false},
		{"end clamped", 5, 1, 99, 1, 5, false},
		{"single token", 5, 4, 5, 4, 5, false},
		{"empty document", 0, -1, -1, 0, 0, false},
		{"empty document explicit", 0, 0, 0, 0, 0, false},
		{"inverted", 5, 3, 2, 0, 0, true},
		{"empty range", 5, 2, 2, 0, 0, true},
		{"negative start", 5, -3, 2, 0, 0, true},
		{"negative end", 5, 0, -2, 0, 0, true},
		{"start beyond length", 5, 6, -1, 0, 0, true},
		{"start at length", 5, 5, -1, 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end, err := Resolve(tt.length, tt.start, tt.end)
			if tt.wantErr {
				assert.ErrorIs(t, err, errs.ErrInvalidArgument)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStart, start)
			assert.Equal(t, tt.wantEnd, end)
		})
	}
}

func TestCheck(t *testing.T) {
	assert.NoError(t, CheckPairs([]int{1}, []int{2}))
	assert.ErrorIs(t, CheckPairs([]int{1}, nil), errs.ErrInvalidArgument)

	assert.NoError(t, CheckID(0, 1))
	assert.ErrorIs(t, CheckID(1, 1), errs.ErrInvalidArgument)
	assert.ErrorIs(t, CheckID(-1, 1), errs.ErrInvalidArgument)
}
