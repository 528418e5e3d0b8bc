package codec

import (
	"github.com/fxamacker/cbor/v2"
)

// CBOR stores values as CBOR. Build it with NewCBOR; the zero value has no
// modes and panics on use.
//
// A deterministic CBOR writes RFC 8949 core deterministic bytes, so equal
// values give equal records. The ledger uses it for each record's metadata
// block. Decoding rejects duplicate map keys and indefinite-length items in
// that mode, since a record read back from a provider may have been written
// by another process.
type CBOR[V any] struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

var _ Codec[struct{}] = CBOR[struct{}]{}

// NewCBOR returns a CBOR codec. Timestamps inside V are written as RFC3339Nano
// strings.
func NewCBOR[V any](deterministic bool) (CBOR[V], error) {
	eo := cbor.PreferredUnsortedEncOptions()
	do := cbor.DecOptions{}
	if deterministic {
		eo = cbor.CoreDetEncOptions()
		do.DupMapKey = cbor.DupMapKeyEnforcedAPF
		do.IndefLength = cbor.IndefLengthForbidden
	}
	eo.Time = cbor.TimeRFC3339Nano

	em, err := eo.EncMode()
	if err != nil {
		return CBOR[V]{}, err
	}
	dm, err := do.DecMode()
	if err != nil {
		return CBOR[V]{}, err
	}
	return CBOR[V]{enc: em, dec: dm}, nil
}

// MustCBOR panics where NewCBOR would fail. Meant for package-level values.
func MustCBOR[V any](deterministic bool) CBOR[V] {
	c, err := NewCBOR[V](deterministic)
	if err != nil {
		panic(err)
	}
	return c
}

func (c CBOR[V]) Encode(v V) ([]byte, error) {
	return c.enc.Marshal(v)
}

func (c CBOR[V]) Decode(b []byte) (V, error) {
	var v V
	err := c.dec.Unmarshal(b, &v)
	return v, err
}
