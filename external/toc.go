package external

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"

	"github.com/hupe1980/forwardindex/internal/conv"
	"github.com/hupe1980/forwardindex/internal/errs"
	"github.com/hupe1980/forwardindex/internal/fs"
)

// Entry locates one document in the tokens file. Offset and Length are in
// ints; Length includes the closing token slot.
type Entry struct {
	Offset  int64
	Length  int32
	Deleted bool
}

// End returns the offset just past the document.
func (e Entry) End() int64 { return e.Offset + int64(e.Length) }

// dataEnd is the end of the token data e occupies. Empty documents occupy
// none, wherever their offset points.
func dataEnd(e Entry) int64 {
	if e.Length == 0 {
		return 0
	}
	return e.End()
}

// encodeTOC writes int32 n, int64[n] offsets, int32[n] lengths and
// byte[n] deleted flags, big-endian.
func encodeTOC(w io.Writer, toc []Entry) error {
	n, err := conv.IntToInt32(len(toc))
	if err != nil {
		return err
	}

	bw := bufio.NewWriter(w)
	var buf [8]byte

	binary.BigEndian.PutUint32(buf[:4], uint32(n))
	if _, err := bw.Write(buf[:4]); err != nil {
		return err
	}
	for _, e := range toc {
		binary.BigEndian.PutUint64(buf[:], uint64(e.Offset))
		if _, err := bw.Write(buf[:]); err != nil {
			return err
		}
	}
	for _, e := range toc {
		binary.BigEndian.PutUint32(buf[:4], uint32(e.Length))
		if _, err := bw.Write(buf[:4]); err != nil {
			return err
		}
	}
	for _, e := range toc {
		var b byte
		if e.Deleted {
			b = 1
		}
		if err := bw.WriteByte(b); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func decodeTOC(data []byte) ([]Entry, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("%w: table of contents truncated", ErrFormat)
	}
	n, err := conv.Count(int32(binary.BigEndian.Uint32(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: table of contents: %v", ErrFormat, err)
	}
	if want := 4 + n*(8+4+1); len(data) != want {
		return nil, fmt.Errorf("%w: table of contents is %d bytes, want %d for %d entries", ErrFormat, len(data), want, n)
	}

	offsets := data[4:]
	lengths := offsets[8*n:]
	deleted := lengths[4*n:]

	toc := make([]Entry, n)
	for i := range toc {
		e := Entry{
			Offset:  int64(binary.BigEndian.Uint64(offsets[8*i:])),
			Length:  int32(binary.BigEndian.Uint32(lengths[4*i:])),
			Deleted: deleted[i] != 0,
		}
		if e.Offset < 0 || e.Length < 0 {
			return nil, fmt.Errorf("%w: table of contents entry %d has offset %d, length %d", ErrFormat, i, e.Offset, e.Length)
		}
		toc[i] = e
	}
	return toc, nil
}

func readTOC(fsys fs.FileSystem, path string) ([]Entry, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return nil, fmt.Errorf("%w: no table of contents: %s", ErrFormat, path)
		}
		return nil, errs.Wrap("read", path, err)
	}
	toc, err := decodeTOC(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return toc, nil
}

func writeTOC(fsys fs.FileSystem, path string, toc []Entry) error {
	err := fs.WriteFileAtomic(fsys, path, func(w io.Writer) error {
		return encodeTOC(w, toc)
	})
	return errs.Wrap("write", path, err)
}
