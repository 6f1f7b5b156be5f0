package segment

import (
	"encoding/binary"
	"fmt"
)

// File layout, little endian:
//
//	header        FileHeader (HeaderSize bytes)
//	per field     term blocks, block index, order arrays, tokens, doc index
//	field table   one fieldEntry per field
//	footer        CRC32C of everything before it
const (
	MagicNumber = 0x46495347 // "FISG"
	Version     = 1

	HeaderSize = 4 + 4 + 4 + 4 + 1 + 7 + 8
	footerSize = 4

	blockRefSize  = 4 + 8 + 4
	docRecordSize = 8 + 4 + 1 + 1
)

// FileHeader is the fixed header of a segment file.
type FileHeader struct {
	Magic            uint32
	Version          uint32
	NumDocs          uint32
	NumFields        uint32
	Compression      Compression
	_                [7]byte
	FieldTableOffset uint64
}

func (h *FileHeader) Encode() []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:], h.Version)
	binary.LittleEndian.PutUint32(buf[8:], h.NumDocs)
	binary.LittleEndian.PutUint32(buf[12:], h.NumFields)
	buf[16] = byte(h.Compression)
	binary.LittleEndian.PutUint64(buf[24:], h.FieldTableOffset)
	return buf
}

func DecodeHeader(buf []byte) (*FileHeader, error) {
	if len(buf) < HeaderSize {
		return nil, fmt.Errorf("%w: buffer too small for header", ErrFormat)
	}
	h := &FileHeader{}
	h.Magic = binary.LittleEndian.Uint32(buf[0:])
	if h.Magic != MagicNumber {
		return nil, ErrInvalidMagic
	}
	h.Version = binary.LittleEndian.Uint32(buf[4:])
	if h.Version != Version {
		return nil, ErrInvalidVersion
	}
	h.NumDocs = binary.LittleEndian.Uint32(buf[8:])
	h.NumFields = binary.LittleEndian.Uint32(buf[12:])
	h.Compression = Compression(buf[16])
	if h.Compression > CompressionZSTD {
		return nil, fmt.Errorf("%w: unknown compression %d", ErrFormat, buf[16])
	}
	h.FieldTableOffset = binary.LittleEndian.Uint64(buf[24:])
	return h, nil
}

// fieldEntry locates the sections of one field. Offsets are absolute.
type fieldEntry struct {
	Name             string
	NumTerms         uint32
	NumBlocks        uint32
	BlockIndexOffset uint64
	OrdersOffset     uint64
	TokensOffset     uint64
	TokensLength     uint64
	DocIndexOffset   uint64
}

func (e *fieldEntry) appendTo(buf []byte) []byte {
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(e.Name)))
	buf = append(buf, e.Name...)
	buf = binary.LittleEndian.AppendUint32(buf, e.NumTerms)
	buf = binary.LittleEndian.AppendUint32(buf, e.NumBlocks)
	buf = binary.LittleEndian.AppendUint64(buf, e.BlockIndexOffset)
	buf = binary.LittleEndian.AppendUint64(buf, e.OrdersOffset)
	buf = binary.LittleEndian.AppendUint64(buf, e.TokensOffset)
	buf = binary.LittleEndian.AppendUint64(buf, e.TokensLength)
	return binary.LittleEndian.AppendUint64(buf, e.DocIndexOffset)
}

const fieldEntryFixedSize = 2 + 4 + 4 + 8*5

func decodeFieldEntry(buf []byte) (fieldEntry, int, error) {
	var e fieldEntry
	if len(buf) < 2 {
		return e, 0, fmt.Errorf("%w: truncated field table", ErrFormat)
	}
	n := int(binary.LittleEndian.Uint16(buf))
	if len(buf) < fieldEntryFixedSize+n {
		return e, 0, fmt.Errorf("%w: truncated field table", ErrFormat)
	}
	e.Name = string(buf[2 : 2+n])
	p := buf[2+n:]
	e.NumTerms = binary.LittleEndian.Uint32(p[0:])
	e.NumBlocks = binary.LittleEndian.Uint32(p[4:])
	e.BlockIndexOffset = binary.LittleEndian.Uint64(p[8:])
	e.OrdersOffset = binary.LittleEndian.Uint64(p[16:])
	e.TokensOffset = binary.LittleEndian.Uint64(p[24:])
	e.TokensLength = binary.LittleEndian.Uint64(p[32:])
	e.DocIndexOffset = binary.LittleEndian.Uint64(p[40:])
	return e, fieldEntryFixedSize + n, nil
}

// Codec is the encoding of one document's term ids.
type Codec uint8

const (
	// CodecAllTheSame stores one value for every position. The parameter
	// is the number of bytes of that value.
	CodecAllTheSame Codec = 0
	// CodecValuePerToken stores one value per position. The parameter is
	// the number of bytes per value, 1 to 4.
	CodecValuePerToken Codec = 1
)

// Stored values are term id + 1, so NoTerm (-1) is 0.

func valueWidth(v uint32) uint8 {
	switch {
	case v == 0:
		return 0
	case v < 1<<8:
		return 1
	case v < 1<<16:
		return 2
	case v < 1<<24:
		return 3
	default:
		return 4
	}
}

func putValue(buf []byte, v uint32, width uint8) {
	for i := range width {
		buf[i] = byte(v >> (8 * i))
	}
}

func getValue(buf []byte, width uint8) uint32 {
	var v uint32
	for i := range width {
		v |= uint32(buf[i]) << (8 * i)
	}
	return v
}

// encodeTokens picks the smallest codec for ids.
func encodeTokens(ids []int32) (Codec, uint8, []byte) {
	if len(ids) == 0 {
		return CodecAllTheSame, 0, nil
	}

	same := true
	var maxValue uint32
	for _, id := range ids {
		maxValue = max(maxValue, uint32(id+1))
		if id != ids[0] {
			same = false
		}
	}

	if same {
		w := valueWidth(uint32(ids[0] + 1))
		buf := make([]byte, w)
		putValue(buf, uint32(ids[0]+1), w)
		return CodecAllTheSame, w, buf
	}

	w := max(valueWidth(maxValue), 1)
	buf := make([]byte, len(ids)*int(w))
	for i, id := range ids {
		putValue(buf[i*int(w):], uint32(id+1), w)
	}
	return CodecValuePerToken, w, buf
}

// tokensSize returns the number of data bytes a record needs.
func tokensSize(codec Codec, param uint8, length int) (int, error) {
	switch {
	case param > 4:
		return 0, fmt.Errorf("%w: value width %d", ErrFormat, param)
	case codec == CodecAllTheSame:
		return int(param), nil
	case codec == CodecValuePerToken && param > 0:
		return length * int(param), nil
	default:
		return 0, fmt.Errorf("%w: unknown tokens codec %d/%d", ErrFormat, codec, param)
	}
}

// decodeTokens returns the ids at positions [start, end) of a record.
func decodeTokens(codec Codec, param uint8, data []byte, start, end int) []int32 {
	out := make([]int32, end-start)
	if codec == CodecAllTheSame {
		id := int32(getValue(data, param)) - 1
		for i := range out {
			out[i] = id
		}
		return out
	}
	w := int(param)
	for i := range out {
		out[i] = int32(getValue(data[(start+i)*w:], param)) - 1
	}
	return out
}
