package codec

// Bytes is an identity codec for []byte values, for bodies that are already
// raw bytes and only need entrycache's framing and generation checks.
type Bytes struct{}

func (Bytes) Encode(b []byte) ([]byte, error) { return b, nil }
func (Bytes) Decode(b []byte) ([]byte, error) {
	// the provider buffer may be reused; hand out our own copy
	return append([]byte(nil), b...), nil
}

// String stores Go strings as UTF-8 bytes without validation.
type String struct{}

func (String) Encode(s string) ([]byte, error) { return []byte(s), nil }
func (String) Decode(b []byte) (string, error) { return string(b), nil }
