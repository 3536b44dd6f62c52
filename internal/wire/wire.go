// Package wire frames persisted rows for byte-oriented tables (redis, bigcache)
// that have no separate column for the last-fetched timestamp.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const (
	version byte = 1
	kindRow byte = 1
)

var (
	ErrCorrupt = errors.New("flowstore: corrupt row")
	magic4     = [...]byte{'F', 'L', 'W', 'S'}
)

const rowHeader = 4 + 1 + 1 + 8 + 4

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Row: magic(4) | ver(1) | kind(1=row) | lastFetched(i64 be, unix millis) | vlen(u32 be) | payload(vlen)
func EncodeRow(lastFetched int64, payload []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(rowHeader + len(payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindRow)

	var u8 [8]byte
	var u4 [4]byte

	binary.BigEndian.PutUint64(u8[:], uint64(lastFetched))
	buf.Write(u8[:])

	binary.BigEndian.PutUint32(u4[:], uint32(len(payload)))
	buf.Write(u4[:])

	buf.Write(payload)
	return buf.Bytes()
}

// DecodeRow rejects anything that is not exactly one well-formed frame.
// The returned payload aliases b.
func DecodeRow(b []byte) (lastFetched int64, payload []byte, err error) {
	if len(b) < rowHeader || !hasMagic(b) || b[4] != version || b[5] != kindRow {
		return 0, nil, ErrCorrupt
	}

	off := 6
	lastFetched = int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8

	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen < 0 || vlen != len(b)-off { // strict framing: no short reads, no trailing bytes
		return 0, nil, ErrCorrupt
	}

	return lastFetched, b[off:], nil
}

// WithLastFetched returns a copy of a framed row with its timestamp replaced,
// leaving the payload untouched.
func WithLastFetched(b []byte, lastFetched int64) ([]byte, error) {
	if _, _, err := DecodeRow(b); err != nil {
		return nil, err
	}
	out := make([]byte, len(b))
	copy(out, b)
	binary.BigEndian.PutUint64(out[6:14], uint64(lastFetched))
	return out, nil
}
