package resource

import (
	"context"
	"io"
)

// ReaderAt is a positional reader that honors a context, as remote blobs do.
type ReaderAt interface {
	ReadAt(ctx context.Context, p []byte, off int64) (int, error)
}

// ReadAll reads the first size bytes of r, pacing the reads through the
// controller's IO limiter.
func (c *Controller) ReadAll(ctx context.Context, r ReaderAt, size int64) ([]byte, error) {
	const step = 1 << 20

	buf := make([]byte, size)
	for off := int64(0); off < size; {
		n := min(size-off, step)
		if err := c.AcquireIO(ctx, int(n)); err != nil {
			return nil, err
		}
		read, err := r.ReadAt(ctx, buf[off:off+n], off)
		off += int64(read)
		if err != nil {
			if err == io.EOF && off == size {
				break
			}
			return nil, err
		}
		if read == 0 {
			return nil, io.ErrUnexpectedEOF
		}
	}
	return buf, nil
}
