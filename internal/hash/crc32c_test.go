package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCRC32CStreamingMatchesOneShot(t *testing.T) {
	data := []byte("forward index segment")

	h := NewCRC32C()
	_, _ = h.Write(data[:7])
	_, _ = h.Write(data[7:])

	assert.Equal(t, CRC32C(data), h.Sum32())
	assert.NotEqual(t, CRC32C(data), CRC32C(data[1:]))
}
