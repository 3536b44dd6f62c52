package codec

import (
	"github.com/fxamacker/cbor/v2"
)

// CBOR serializes values with fxamacker/cbor. Construct with NewCBOR or MustCBOR.
//
// Pass deterministic=true when the codec encodes keys: rows are addressed by
// the encoded bytes, so map-bearing keys need Core Deterministic Encoding
// (RFC 8949). Times are always written as RFC3339Nano.
type CBOR[V any] struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

var _ Codec[struct{}] = CBOR[struct{}]{}

func NewCBOR[V any](deterministic bool) (CBOR[V], error) {
	eo := cbor.PreferredUnsortedEncOptions()
	if deterministic {
		eo = cbor.CoreDetEncOptions()
	}
	eo.Time = cbor.TimeRFC3339Nano

	var (
		c   CBOR[V]
		err error
	)
	if c.enc, err = eo.EncMode(); err != nil {
		return CBOR[V]{}, err
	}
	if c.dec, err = (cbor.DecOptions{}).DecMode(); err != nil {
		return CBOR[V]{}, err
	}
	return c, nil
}

// MustCBOR is NewCBOR for package-level codec variables; it panics on error.
func MustCBOR[V any](deterministic bool) CBOR[V] {
	c, err := NewCBOR[V](deterministic)
	if err != nil {
		panic(err)
	}
	return c
}

func (c CBOR[V]) Encode(v V) ([]byte, error) { return c.enc.Marshal(v) }

func (c CBOR[V]) Decode(b []byte) (V, error) {
	var v V
	err := c.dec.Unmarshal(b, &v)
	return v, err
}
