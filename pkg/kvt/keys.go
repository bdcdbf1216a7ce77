package kvt

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/orneryd/iqe/pkg/thing"
)

// KeyBase identifies the (namespace, database, table, index-name) prefix
// shared by every key belonging to one index, matching spec.md §6's
// "Index key layout": keys are prefix-encoded as
// (namespace, database, table, index-name, encoded-value[, tiebreaker]).
//
// Grounded on pkg/storage/badger.go's single-byte-prefix + separator-byte
// key scheme (labelIndexKey/labelIndexPrefix etc.), generalised from the
// fixed node/edge/label-index prefixes to an arbitrary per-index prefix.
type KeyBase struct {
	Namespace string
	Database  string
	Table     string
	Index     string
}

const sep = byte(0x00)

// Prefix returns the byte prefix shared by every key under this index.
func (b KeyBase) Prefix() []byte {
	var buf bytes.Buffer
	buf.WriteString(b.Namespace)
	buf.WriteByte(sep)
	buf.WriteString(b.Database)
	buf.WriteByte(sep)
	buf.WriteString(b.Table)
	buf.WriteByte(sep)
	buf.WriteString(b.Index)
	buf.WriteByte(sep)
	return buf.Bytes()
}

// EncodeValue appends the encoded form of an index value to the index's
// prefix, producing a key usable for equality lookups or as a range bound.
// Values are encoded type-tagged so that distinct dynamic types never
// collide and so ordering is stable across encodings of the same type.
func EncodeValue(v any) []byte {
	var buf bytes.Buffer
	switch x := v.(type) {
	case string:
		buf.WriteByte('s')
		buf.WriteString(x)
		// Terminator so no encoded string is a prefix of a longer one.
		buf.WriteByte(0x00)
	case int:
		buf.WriteByte('i')
		// Flip the sign bit so negative values sort before positive ones.
		binary.Write(&buf, binary.BigEndian, uint64(int64(x))^(1<<63))
	case int64:
		buf.WriteByte('i')
		binary.Write(&buf, binary.BigEndian, uint64(x)^(1<<63))
	case float64:
		buf.WriteByte('f')
		// Flip sign bit so IEEE-754 bit patterns sort in numeric order,
		// including across the negative/positive boundary.
		bits := floatSortableBits(x)
		binary.Write(&buf, binary.BigEndian, bits)
	case bool:
		buf.WriteByte('b')
		if x {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	default:
		buf.WriteByte('?')
		fmt.Fprintf(&buf, "%v", x)
	}
	return buf.Bytes()
}

func floatSortableBits(f float64) uint64 {
	bits := math.Float64bits(f)
	if bits&(1<<63) != 0 {
		// negative: flip all bits
		return ^bits
	}
	// positive: flip sign bit only
	return bits | (1 << 63)
}

// EqualKey builds the key for an equality lookup: prefix + encoded value.
func (b KeyBase) EqualKey(v any) []byte {
	return append(b.Prefix(), EncodeValue(v)...)
}

// TieBreakerKey builds an equality key with a deterministic tiebreaker
// suffix appended, used when the encoded value alone cannot disambiguate
// distinct records mapping to equal-looking encodings (e.g. raw vector
// values in a range scan over an MTree/HNSW-adjacent ordered index). The
// tiebreaker is a content hash of the thing; see DESIGN.md for why this
// uses crypto/sha256 rather than golang.org/x/crypto's blake2b.
func (b KeyBase) TieBreakerKey(v any, t thing.Thing) []byte {
	k := b.EqualKey(v)
	h := sha256.Sum256([]byte(t.String()))
	return append(k, h[:8]...)
}

// RangeBounds computes [fromKey, toKey) for an ordered range scan,
// adjusting for inclusive-start/end flags by appending a minimum or maximum
// sentinel suffix, per spec.md §6.
func (b KeyBase) RangeBounds(fromVal any, fromIncl bool, toVal any, toIncl bool) (from, to []byte) {
	prefix := b.Prefix()
	// The sentinel is nine 0xFF bytes, one longer than TieBreakerKey's
	// 8-byte suffix, so it sorts after every suffixed key of that value.
	sentinel := []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	from = append(append([]byte{}, prefix...), EncodeValue(fromVal)...)
	if !fromIncl {
		from = append(from, sentinel...) // exclusive start: skip past exact match
	}
	to = append(append([]byte{}, prefix...), EncodeValue(toVal)...)
	if toIncl {
		to = append(to, sentinel...) // inclusive end: include exact match and its children
	}
	return from, to
}
