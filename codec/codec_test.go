package codec

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type price struct {
	Base  string    `json:"base" msgpack:"base" cbor:"base"`
	Rate  float64   `json:"rate" msgpack:"rate" cbor:"rate"`
	Taken time.Time `json:"taken" msgpack:"taken" cbor:"taken"`
}

func TestValueCodecsRoundTrip(t *testing.T) {
	in := price{Base: "BTC", Rate: 42.5, Taken: time.UnixMilli(1700000000123).UTC()}

	codecs := map[string]Codec[price]{
		"json":     JSON[price]{},
		"msgpack":  Msgpack[price]{},
		"cbor":     MustCBOR[price](false),
		"cbor_det": MustCBOR[price](true),
		"limit":    Limit[price]{Inner: JSON[price]{}, MaxDecode: 1024},
	}
	for name, c := range codecs {
		t.Run(name, func(t *testing.T) {
			b, err := c.Encode(in)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			out, err := c.Decode(b)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if out.Base != in.Base || out.Rate != in.Rate || !out.Taken.Equal(in.Taken) {
				t.Fatalf("round trip mismatch: got %+v want %+v", out, in)
			}
		})
	}
}

func TestDeterministicCBORKeys(t *testing.T) {
	type key struct {
		Tags map[string]int `cbor:"tags"`
	}
	c := MustCBOR[key](true)
	k := key{Tags: map[string]int{"z": 1, "a": 2, "m": 3}}
	first, err := c.Encode(k)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 20; i++ {
		b, err := c.Encode(k)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(first, b) {
			t.Fatalf("deterministic CBOR produced different bytes on run %d", i)
		}
	}
}

func TestMsgpackSortsMapKeys(t *testing.T) {
	c := Msgpack[map[string]int]{}
	a, err := c.Encode(map[string]int{"z": 1, "a": 2, "m": 3, "b": 4})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 20; i++ {
		b, err := c.Encode(map[string]int{"b": 4, "m": 3, "a": 2, "z": 1})
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(a, b) {
			t.Fatalf("msgpack produced different bytes on run %d", i)
		}
	}
}

func TestLimitRejectsOversized(t *testing.T) {
	c := Limit[string]{Inner: String{}, MaxDecode: 4}
	if _, err := c.Decode([]byte("12345")); err == nil {
		t.Fatalf("expected error for oversized payload")
	}
	if v, err := c.Decode([]byte("1234")); err != nil || v != "1234" {
		t.Fatalf("boundary decode: v=%q err=%v", v, err)
	}
}

func TestUnit(t *testing.T) {
	b, err := Unit{}.Encode(struct{}{})
	if err != nil || len(b) != 0 {
		t.Fatalf("Unit.Encode: b=%v err=%v", b, err)
	}
	if _, err := (Unit{}).Decode([]byte("x")); err == nil {
		t.Fatalf("Unit.Decode should reject a non-empty payload")
	}
}

func TestJSONDecodeCorrupt(t *testing.T) {
	if _, err := (JSON[price]{}).Decode([]byte(`{"base":`)); err == nil {
		t.Fatalf("expected decode error for truncated json")
	}
}

func TestProtobufRoundTrip(t *testing.T) {
	c := NewProtobuf(func() *wrapperspb.StringValue { return &wrapperspb.StringValue{} })
	b, err := c.Encode(wrapperspb.String("tier-2"))
	if err != nil {
		t.Fatal(err)
	}
	out, err := c.Decode(b)
	if err != nil {
		t.Fatal(err)
	}
	if !proto.Equal(out, wrapperspb.String("tier-2")) {
		t.Fatalf("got %v", out)
	}
}

func TestFunc(t *testing.T) {
	c := Func[int]{
		EncodeFunc: func(v int) ([]byte, error) { return []byte(strings.Repeat("x", v)), nil },
		DecodeFunc: func(b []byte) (int, error) { return len(b), nil },
	}
	b, _ := c.Encode(3)
	if v, _ := c.Decode(b); v != 3 {
		t.Fatalf("got %d", v)
	}
}
