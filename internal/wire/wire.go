package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	version    byte = 1
	kindRecord byte = 1

	hdrLen = 4 + 1 + 1 + 8 + 4 // magic | ver | kind | gen | metaLen
)

var (
	ErrCorrupt = errors.New("entrycache: corrupt record")
	magic4     = [...]byte{'E', 'N', 'T', 'C'}
)

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Record is one persisted generation of an entry.
// Meta is an opaque metadata block; the caller picks its encoding.
type Record struct {
	Gen     uint64
	Meta    []byte
	Payload []byte
}

// EncodeRecord frames r as:
//
//	magic(4) | ver(1) | kind(1=record) | gen(u64 be) | mlen(u32 be) | meta(mlen) | vlen(u32 be) | payload(vlen)
func EncodeRecord(r Record) ([]byte, error) {
	if uint64(len(r.Meta)) > 0xFFFFFFFF || uint64(len(r.Payload)) > 0xFFFFFFFF {
		return nil, fmt.Errorf("entrycache: record too large (meta=%d payload=%d)", len(r.Meta), len(r.Payload))
	}

	var buf bytes.Buffer
	buf.Grow(hdrLen + len(r.Meta) + 4 + len(r.Payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindRecord)

	var u8 [8]byte
	var u4 [4]byte

	binary.BigEndian.PutUint64(u8[:], r.Gen)
	buf.Write(u8[:])

	binary.BigEndian.PutUint32(u4[:], uint32(len(r.Meta)))
	buf.Write(u4[:])
	buf.Write(r.Meta)

	binary.BigEndian.PutUint32(u4[:], uint32(len(r.Payload)))
	buf.Write(u4[:])
	buf.Write(r.Payload)

	return buf.Bytes(), nil
}

// DecodeRecord parses a frame produced by EncodeRecord.
// Meta and Payload alias b (zero-copy). Trailing bytes are rejected.
func DecodeRecord(b []byte) (Record, error) {
	if len(b) < hdrLen || !hasMagic(b) || b[4] != version || b[5] != kindRecord {
		return Record{}, ErrCorrupt
	}

	off := 6

	gen := binary.BigEndian.Uint64(b[off : off+8])
	off += 8

	mlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if mlen < 0 || mlen > len(b)-off {
		return Record{}, ErrCorrupt
	}
	meta := b[off : off+mlen]
	off += mlen

	if off+4 > len(b) {
		return Record{}, ErrCorrupt
	}
	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen < 0 || vlen != len(b)-off {
		return Record{}, ErrCorrupt
	}

	return Record{Gen: gen, Meta: meta, Payload: b[off : off+vlen]}, nil
}
