// Package codec converts entry values to and from the bytes a provider stores.
//
// A Codec only sees the value. The ledger frames it with the generation and
// a CBOR metadata block (see NewCBOR) before handing it to a provider. Limit
// wraps any codec with a decode size cap.
package codec

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
