package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/suxatcode/helix-db-sub002/internal/herr"
)

// Kind tags the variant carried by a Value (spec.md §3: "Value. Tagged
// union over: null, bool, signed 64-bit, unsigned 64-bit, float 64,
// string, bytes, timestamp, array-of-Value, map-string-to-Value.").
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindUint
	KindFloat
	KindString
	KindBytes
	KindTimestamp
	KindArray
	KindMap
)

// Value is the tagged union flowing through property maps and the
// traversal pipeline's Value variant. Only the field matching Kind is
// meaningful; the rest are zero.
type Value struct {
	Kind  Kind
	Bool  bool
	Int   int64
	Uint  uint64
	Float float64
	Str   string
	Bytes []byte
	Time  time.Time
	Array []Value
	Map   map[string]Value
}

func Null() Value                { return Value{Kind: KindNull} }
func Bool(b bool) Value          { return Value{Kind: KindBool, Bool: b} }
func Int(i int64) Value          { return Value{Kind: KindInt, Int: i} }
func Uint(u uint64) Value        { return Value{Kind: KindUint, Uint: u} }
func Float(f float64) Value      { return Value{Kind: KindFloat, Float: f} }
func Str(s string) Value         { return Value{Kind: KindString, Str: s} }
func Bin(b []byte) Value         { return Value{Kind: KindBytes, Bytes: b} }
func Timestamp(t time.Time) Value { return Value{Kind: KindTimestamp, Time: t} }
func Array(vs []Value) Value     { return Value{Kind: KindArray, Array: vs} }
func Map(m map[string]Value) Value { return Value{Kind: KindMap, Map: m} }

// FromAny converts a loosely-typed Go value (as decoded from request
// JSON) into a Value, the boundary between the wire format (§6) and
// the typed property model.
func FromAny(v any) Value {
	switch t := v.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(t)
	case float64:
		if t == float64(int64(t)) {
			return Int(int64(t))
		}
		return Float(t)
	case int:
		return Int(int64(t))
	case int64:
		return Int(t)
	case uint64:
		return Uint(t)
	case string:
		return Str(t)
	case []byte:
		return Bin(t)
	case time.Time:
		return Timestamp(t)
	case []any:
		out := make([]Value, len(t))
		for i, e := range t {
			out[i] = FromAny(e)
		}
		return Array(out)
	case map[string]any:
		out := make(map[string]Value, len(t))
		for k, e := range t {
			out[k] = FromAny(e)
		}
		return Map(out)
	default:
		return Str(fmt.Sprintf("%v", t))
	}
}

// Native unwraps a Value back into a plain Go value suitable for
// json.Marshal in a response body (§6: "Body encoding: JSON, UTF-8.").
func (v Value) Native() any {
	switch v.Kind {
	case KindNull:
		return nil
	case KindBool:
		return v.Bool
	case KindInt:
		return v.Int
	case KindUint:
		return v.Uint
	case KindFloat:
		return v.Float
	case KindString:
		return v.Str
	case KindBytes:
		return v.Bytes
	case KindTimestamp:
		return v.Time
	case KindArray:
		out := make([]any, len(v.Array))
		for i, e := range v.Array {
			out[i] = e.Native()
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.Map))
		for k, e := range v.Map {
			out[k] = e.Native()
		}
		return out
	default:
		return nil
	}
}

// MarshalJSON lets a bare Value (e.g. a FromValues item)
// serialize as its native JSON representation rather than exposing the
// tagged-union struct shape.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Native())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = FromAny(raw)
	return nil
}

// Equal reports structural equality, used by the secondary-index
// rewrite check (an update only re-indexes a property if its encoded
// form actually changed).
func (v Value) Equal(other Value) bool {
	return string(encodeIndexValue(v)) == string(encodeIndexValue(other))
}

// encodeIndexValue produces a stable byte encoding of a Value for use
// as a secondary-index key component (spec.md §4.1:
// "secondary_indices[name] | bincoded property value | node_id").
//
// There is no bincode-equivalent deterministic serializer among the
// example repos' dependencies (gob is encoder-stateful and not
// byte-stable across processes; protobuf requires a schema neither
// side has for an open-ended tagged union), so this is a small
// hand-rolled tag+payload encoding — see DESIGN.md for the
// standard-library justification.
func encodeIndexValue(v Value) []byte {
	buf := make([]byte, 0, 16)
	buf = append(buf, byte(v.Kind))
	switch v.Kind {
	case KindNull:
	case KindBool:
		if v.Bool {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	case KindInt:
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(v.Int)^(1<<63))
		buf = append(buf, b[:]...)
	case KindUint:
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], v.Uint)
		buf = append(buf, b[:]...)
	case KindFloat:
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], floatSortableBits(v.Float))
		buf = append(buf, b[:]...)
	case KindString:
		buf = append(buf, []byte(v.Str)...)
	case KindBytes:
		buf = append(buf, v.Bytes...)
	case KindTimestamp:
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(v.Time.UnixNano()))
		buf = append(buf, b[:]...)
	case KindArray, KindMap:
		// Composite properties are not indexable; encode their JSON form
		// so Equal() still behaves sanely for change-detection purposes.
		j, _ := json.Marshal(v.Native())
		buf = append(buf, j...)
	}
	return buf
}

// floatSortableBits maps a float64 to a uint64 whose unsigned order
// matches the float order (flip all bits for negatives, flip the sign
// bit for non-negatives) — standard trick, not load-bearing for
// correctness here since index keys are only ever looked up by exact
// match, never range-scanned.
func floatSortableBits(f float64) uint64 {
	bits := math.Float64bits(f)
	if bits&(1<<63) != 0 {
		return ^bits
	}
	return bits ^ (1 << 63)
}

var errInvalidID = herr.New(herr.KindConversion, "invalid id")
