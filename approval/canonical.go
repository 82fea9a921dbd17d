package approval

import (
	"crypto/sha256"
	"encoding/binary"
	"sort"
)

// Payload is the opaque structured operation payload carried by a
// Request. Values are restricted to strings and 64-bit integers so that
// canonicalization is deterministic across implementations.
type Payload map[string]PayloadValue

// PayloadValue is a single canonicalizable field. Exactly one of IsInt
// or the string form is active.
type PayloadValue struct {
	str   string
	num   int64
	isInt bool
}

// StringValue constructs a string-typed PayloadValue.
func StringValue(s string) PayloadValue { return PayloadValue{str: s} }

// IntValue constructs an int64-typed PayloadValue.
func IntValue(n int64) PayloadValue { return PayloadValue{num: n, isInt: true} }

// String returns the string form of v, or "" if v is int-typed.
func (v PayloadValue) String() string { return v.str }

// Int returns the int64 form of v and whether v is int-typed.
func (v PayloadValue) Int() (int64, bool) { return v.num, v.isInt }

const (
	payloadTagString byte = 's'
	payloadTagInt    byte = 'i'
)

// writeLengthPrefixed writes a uint32-little-endian length followed by b.
func writeLengthPrefixed(h interface{ Write([]byte) (int, error) }, b []byte) {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(b)))
	h.Write(lenBuf[:])
	h.Write(b)
}

// CanonicalPayload serializes p into a deterministic byte sequence: fields
// are ordered lexicographically by name, and values carry an explicit type
// tag so independent signers obtain byte-identical encodings regardless of
// map iteration order or language-specific integer width defaults.
func CanonicalPayload(p Payload) []byte {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf := make([]byte, 0, 64*len(keys))
	w := &byteBuf{b: buf}
	for _, k := range keys {
		writeLengthPrefixed(w, []byte(k))
		v := p[k]
		if n, ok := v.Int(); ok {
			w.Write([]byte{payloadTagInt})
			var nb [8]byte
			binary.LittleEndian.PutUint64(nb[:], uint64(n))
			w.Write(nb[:])
		} else {
			w.Write([]byte{payloadTagString})
			writeLengthPrefixed(w, []byte(v.String()))
		}
	}
	return w.b
}

type byteBuf struct{ b []byte }

func (w *byteBuf) Write(p []byte) (int, error) {
	w.b = append(w.b, p...)
	return len(p), nil
}

// Digest computes the deterministic signing surface: SHA-256 over
// a length-prefixed concatenation of request_id, operation_type,
// canonical(payload), requester_id, created_at_ns.
func Digest(r *Request) [32]byte {
	h := sha256.New()
	writeLengthPrefixed(h, []byte(r.RequestID))
	writeLengthPrefixed(h, []byte(r.OperationType))
	h.Write(CanonicalPayload(r.OperationPayload))
	writeLengthPrefixed(h, []byte(r.RequesterID))

	var nsBuf [8]byte
	binary.LittleEndian.PutUint64(nsBuf[:], uint64(r.CreatedAtNS))
	h.Write(nsBuf[:])

	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum
}
