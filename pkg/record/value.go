// ABOUTME: Typed property values and the sorted (prop_id, value) encoding
// ABOUTME: shared by node and edge records (§4.5)

package record

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// ValueKind tags the type of a property value (§4.5 "Values are tagged").
type ValueKind byte

const (
	KindNull ValueKind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindBytes
	KindDate
	KindDateTime
)

// Value is one typed property value. Exactly one of the typed fields is
// meaningful, selected by Kind.
type Value struct {
	Kind  ValueKind
	Bool  bool
	Int   int64
	Float float64
	Bytes []byte // also backs String, Date (unix-day int64 reuses Int), DateTime (unix-nano reuses Int)
}

func NullValue() Value          { return Value{Kind: KindNull} }
func BoolValue(b bool) Value    { return Value{Kind: KindBool, Bool: b} }
func IntValue(i int64) Value    { return Value{Kind: KindInt, Int: i} }
func FloatValue(f float64) Value { return Value{Kind: KindFloat, Float: f} }
func StringValue(s string) Value { return Value{Kind: KindString, Bytes: []byte(s)} }
func BytesValue(b []byte) Value  { return Value{Kind: KindBytes, Bytes: b} }

// DateValue stores a day count (e.g. days since epoch).
func DateValue(days int64) Value { return Value{Kind: KindDate, Int: days} }

// DateTimeValue stores unix nanoseconds.
func DateTimeValue(unixNano int64) Value { return Value{Kind: KindDateTime, Int: unixNano} }

func (v Value) String() string { return string(v.Bytes) }

// Prop is one (prop_id, value) pair.
type Prop struct {
	ID    uint32
	Value Value
}

// SortProps sorts props ascending by prop_id and drops duplicates,
// last-wins within the input order (§3 "Record").
func SortProps(props []Prop) []Prop {
	// Stable sort preserves input order among equal keys so "last wins"
	// survives the subsequent dedup pass.
	sort.SliceStable(props, func(i, j int) bool { return props[i].ID < props[j].ID })
	out := make([]Prop, 0, len(props))
	for i, p := range props {
		if i+1 < len(props) && props[i+1].ID == p.ID {
			continue // a later entry with the same id overrides this one
		}
		out = append(out, p)
	}
	return out
}

// EncodeProps writes a sorted, deduped property list: a count followed by
// (prop_id u32, kind u8, value-bytes) tuples.
func EncodeProps(buf []byte, props []Prop) []byte {
	props = SortProps(props)
	var hdr [2]byte
	binary.BigEndian.PutUint16(hdr[:], uint16(len(props)))
	buf = append(buf, hdr[:]...)
	for _, p := range props {
		var idb [4]byte
		binary.BigEndian.PutUint32(idb[:], p.ID)
		buf = append(buf, idb[:]...)
		buf = append(buf, byte(p.Value.Kind))
		buf = encodeValueBody(buf, p.Value)
	}
	return buf
}

func encodeValueBody(buf []byte, v Value) []byte {
	switch v.Kind {
	case KindNull:
		return buf
	case KindBool:
		if v.Bool {
			return append(buf, 1)
		}
		return append(buf, 0)
	case KindInt, KindDate, KindDateTime:
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(v.Int))
		return append(buf, b[:]...)
	case KindFloat:
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], math.Float64bits(v.Float))
		return append(buf, b[:]...)
	case KindString, KindBytes:
		var lb [4]byte
		binary.BigEndian.PutUint32(lb[:], uint32(len(v.Bytes)))
		buf = append(buf, lb[:]...)
		return append(buf, v.Bytes...)
	default:
		panic(fmt.Sprintf("record: unknown value kind %d", v.Kind))
	}
}

// DecodeProps reads back a property list encoded by EncodeProps, returning
// the remaining unconsumed tail of buf.
func DecodeProps(buf []byte) ([]Prop, []byte, error) {
	if len(buf) < 2 {
		return nil, nil, fmt.Errorf("record: truncated prop count")
	}
	n := binary.BigEndian.Uint16(buf[:2])
	buf = buf[2:]
	props := make([]Prop, 0, n)
	for i := uint16(0); i < n; i++ {
		if len(buf) < 5 {
			return nil, nil, fmt.Errorf("record: truncated prop header")
		}
		id := binary.BigEndian.Uint32(buf[:4])
		kind := ValueKind(buf[4])
		buf = buf[5:]
		var v Value
		var err error
		v, buf, err = decodeValueBody(kind, buf)
		if err != nil {
			return nil, nil, err
		}
		props = append(props, Prop{ID: id, Value: v})
	}
	return props, buf, nil
}

func decodeValueBody(kind ValueKind, buf []byte) (Value, []byte, error) {
	switch kind {
	case KindNull:
		return Value{Kind: KindNull}, buf, nil
	case KindBool:
		if len(buf) < 1 {
			return Value{}, nil, fmt.Errorf("record: truncated bool value")
		}
		return Value{Kind: KindBool, Bool: buf[0] != 0}, buf[1:], nil
	case KindInt, KindDate, KindDateTime:
		if len(buf) < 8 {
			return Value{}, nil, fmt.Errorf("record: truncated int value")
		}
		i := int64(binary.BigEndian.Uint64(buf[:8]))
		return Value{Kind: kind, Int: i}, buf[8:], nil
	case KindFloat:
		if len(buf) < 8 {
			return Value{}, nil, fmt.Errorf("record: truncated float value")
		}
		f := math.Float64frombits(binary.BigEndian.Uint64(buf[:8]))
		return Value{Kind: KindFloat, Float: f}, buf[8:], nil
	case KindString, KindBytes:
		if len(buf) < 4 {
			return Value{}, nil, fmt.Errorf("record: truncated blob length")
		}
		l := binary.BigEndian.Uint32(buf[:4])
		buf = buf[4:]
		if uint32(len(buf)) < l {
			return Value{}, nil, fmt.Errorf("record: truncated blob body")
		}
		v := Value{Kind: kind, Bytes: append([]byte(nil), buf[:l]...)}
		return v, buf[l:], nil
	default:
		return Value{}, nil, fmt.Errorf("record: unknown value kind %d", kind)
	}
}
