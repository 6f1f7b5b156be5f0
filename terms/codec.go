package terms

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/hupe1980/forwardindex/internal/conv"
)

// DefaultMaxBlockSize bounds the UTF-8 bytes stored in one terms block.
const DefaultMaxBlockSize = 1 << 30

// File holds the decoded contents of a terms file.
type File struct {
	Terms                []string
	SensitivePositions   []int32
	InsensitivePositions []int32
}

// Encode writes f in the terms file layout:
//
//	int32 n
//	blocks: int32 count, int32 offsets[count], int32 byteSize, bytes
//	int32[n] unused, int32[n] sensitive positions
//	int32[n] unused, int32[n] insensitive positions
//
// All integers are big-endian.
func Encode(w io.Writer, f *File, maxBlockSize int) error {
	n := len(f.Terms)
	if len(f.SensitivePositions) != n || len(f.InsensitivePositions) != n {
		return fmt.Errorf("terms: encode: %d terms but %d/%d positions",
			n, len(f.SensitivePositions), len(f.InsensitivePositions))
	}
	if maxBlockSize <= 0 {
		maxBlockSize = DefaultMaxBlockSize
	}

	bw := bufio.NewWriter(w)
	var scratch [4]byte
	putInt := func(v int32) error {
		binary.BigEndian.PutUint32(scratch[:], uint32(v))
		_, err := bw.Write(scratch[:])
		return err
	}

	count, err := conv.IntToInt32(n)
	if err != nil {
		return err
	}
	if err := putInt(count); err != nil {
		return err
	}

	for next := 0; next < n; {
		first := next
		size := 0
		for next < n {
			l := len(f.Terms[next])
			if size+l > maxBlockSize {
				break
			}
			size += l
			next++
		}
		if next == first {
			return fmt.Errorf("%w: term %d is %d bytes, block size is %d",
				ErrTermTooLarge, first, len(f.Terms[first]), maxBlockSize)
		}

		if err := putInt(int32(next - first)); err != nil {
			return err
		}
		off := 0
		for _, t := range f.Terms[first:next] {
			if err := putInt(int32(off)); err != nil {
				return err
			}
			off += len(t)
		}
		if err := putInt(int32(size)); err != nil {
			return err
		}
		for _, t := range f.Terms[first:next] {
			if _, err := bw.WriteString(t); err != nil {
				return err
			}
		}
	}

	for _, positions := range [][]int32{f.SensitivePositions, f.InsensitivePositions} {
		for range n {
			if err := putInt(0); err != nil {
				return err
			}
		}
		for _, p := range positions {
			if err := putInt(p); err != nil {
				return err
			}
		}
	}

	return bw.Flush()
}

// Decode parses a terms file. Strings are copied out of data, so data may
// be unmapped afterwards.
func Decode(data []byte) (*File, error) {
	d := decoder{data: data}

	n, err := conv.Count(d.int32())
	if err != nil {
		return nil, d.fail(err)
	}
	if d.err != nil {
		return nil, d.err
	}

	f := &File{Terms: make([]string, 0, n)}
	for len(f.Terms) < n {
		count, err := conv.Count(d.int32())
		if err != nil {
			return nil, d.fail(err)
		}
		if count == 0 || len(f.Terms)+count > n {
			return nil, d.fail(fmt.Errorf("block holds %d terms, %d remaining", count, n-len(f.Terms)))
		}
		offsets := make([]int, count)
		for i := range offsets {
			if offsets[i], err = conv.Count(d.int32()); err != nil {
				return nil, d.fail(err)
			}
		}
		size, err := conv.Count(d.int32())
		if err != nil {
			return nil, d.fail(err)
		}
		block := d.bytes(size)
		if d.err != nil {
			return nil, d.err
		}
		for i, start := range offsets {
			end := size
			if i+1 < count {
				end = offsets[i+1]
			}
			if start > end || end > size {
				return nil, d.fail(fmt.Errorf("term offsets out of order in block"))
			}
			if !utf8.Valid(block[start:end]) {
				return nil, d.fail(fmt.Errorf("term %d is not valid UTF-8", len(f.Terms)))
			}
			f.Terms = append(f.Terms, string(block[start:end]))
		}
	}

	d.skip(4 * n)
	f.SensitivePositions = d.int32s(n)
	d.skip(4 * n)
	f.InsensitivePositions = d.int32s(n)
	if d.err != nil {
		return nil, d.err
	}

	return f, nil
}

type decoder struct {
	data []byte
	off  int
	err  error
}

func (d *decoder) fail(err error) error {
	if d.err == nil {
		d.err = fmt.Errorf("%w: at byte %d: %v", ErrFormat, d.off, err)
	}
	return d.err
}

func (d *decoder) bytes(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || len(d.data)-d.off < n {
		d.fail(io.ErrUnexpectedEOF)
		return nil
	}
	b := d.data[d.off : d.off+n]
	d.off += n
	return b
}

func (d *decoder) skip(n int) { d.bytes(n) }

func (d *decoder) int32() int32 {
	b := d.bytes(4)
	if b == nil {
		return 0
	}
	return int32(binary.BigEndian.Uint32(b))
}

func (d *decoder) int32s(n int) []int32 {
	b := d.bytes(4 * n)
	if b == nil {
		return nil
	}
	out := make([]int32, n)
	for i := range out {
		out[i] = int32(binary.BigEndian.Uint32(b[4*i:]))
	}
	return out
}
