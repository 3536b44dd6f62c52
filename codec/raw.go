package codec

import "errors"

// Bytes is an identity codec for []byte values. Encode/Decode return the
// input unchanged.
type Bytes struct{}

func (Bytes) Encode(b []byte) ([]byte, error) { return b, nil }
func (Bytes) Decode(b []byte) ([]byte, error) { return b, nil }

// String is a trivial codec for Go string values, and the usual key codec
// for string-keyed stores. By convention this assumes UTF-8 and performs no
// validation.
type String struct{}

func (String) Encode(s string) ([]byte, error) { return []byte(s), nil }
func (String) Decode(b []byte) (string, error) { return string(b), nil }

var errUnitPayload = errors.New("codec: unit key must be empty")

// Unit is the key codec of unkeyed stores: one row per store, addressed by
// the empty key.
type Unit struct{}

func (Unit) Encode(struct{}) ([]byte, error) { return []byte{}, nil }
func (Unit) Decode(b []byte) (struct{}, error) {
	if len(b) != 0 {
		return struct{}{}, errUnitPayload
	}
	return struct{}{}, nil
}
