// Package codec converts keys and values to bytes for persisted caches.
//
// Key codecs must be deterministic: equal keys must encode to identical bytes,
// since the encoded form addresses the row in the physical table.
package codec

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// Func builds a Codec from two functions.
type Func[V any] struct {
	EncodeFunc func(V) ([]byte, error)
	DecodeFunc func([]byte) (V, error)
}

func (f Func[V]) Encode(v V) ([]byte, error) { return f.EncodeFunc(v) }
func (f Func[V]) Decode(b []byte) (V, error) { return f.DecodeFunc(b) }
