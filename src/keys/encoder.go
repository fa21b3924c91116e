package keys

import (
	"bytes"
	"encoding/binary"
	"math"
	"sort"

	"go.mongodb.org/mongo-driver/bson"
)

// Type tags for the canonical encoding. The tag order mirrors the sort
// order of the value domain so encoded keys of different types never
// collide.
const (
	tagNull   = 0
	tagBool   = 1
	tagInt    = 2
	tagFloat  = 3
	tagString = 4
	tagArray  = 5
	tagObject = 6
)

// Encode produces the canonical byte encoding of a field value. Equal
// values (including an integer and a float of equal numeric value)
// produce equal encodings; the encoding feeds both hashing and equality
// checks in the hash index.
func Encode(value interface{}) []byte {
	var buf bytes.Buffer
	encodeTo(&buf, value)
	return buf.Bytes()
}

// normalize maps the BSON container aliases a snapshot reload produces
// onto the plain Go shapes the rest of the package matches on
func normalize(value interface{}) interface{} {
	switch v := value.(type) {
	case bson.A:
		return []interface{}(v)
	case bson.M:
		return map[string]interface{}(v)
	case bson.D:
		out := make(map[string]interface{}, len(v))
		for _, e := range v {
			out[e.Key] = e.Value
		}
		return out
	default:
		return value
	}
}

func encodeTo(buf *bytes.Buffer, value interface{}) {
	switch v := normalize(value).(type) {
	case nil:
		buf.WriteByte(tagNull)

	case bool:
		buf.WriteByte(tagBool)
		if v {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}

	case string:
		buf.WriteByte(tagString)
		buf.Write([]byte(v))

	case []interface{}:
		buf.WriteByte(tagArray)
		for _, item := range v {
			writeFramed(buf, item)
		}

	case map[string]interface{}:
		buf.WriteByte(tagObject)
		names := make([]string, 0, len(v))
		for k := range v {
			names = append(names, k)
		}
		sort.Strings(names)
		for _, k := range names {
			var kb bytes.Buffer
			kb.WriteByte(tagString)
			kb.Write([]byte(k))
			writeFrame(buf, kb.Bytes())
			writeFramed(buf, v[k])
		}

	default:
		encodeNumberTo(buf, value)
	}
}

// encodeNumberTo writes the canonical numeric encoding. Integral values
// (whatever Go type carried them) encode as int64 so that 2 and 2.0 are
// the same key; only non-integral floats fall back to the float form.
func encodeNumberTo(buf *bytes.Buffer, value interface{}) {
	if i, ok := AsInt64(value); ok {
		buf.WriteByte(tagInt)
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(i))
		buf.Write(b[:])
		return
	}
	if f, ok := AsFloat64(value); ok {
		if f == math.Trunc(f) && f >= math.MinInt64 && f <= math.MaxInt64 {
			buf.WriteByte(tagInt)
			var b [8]byte
			binary.BigEndian.PutUint64(b[:], uint64(int64(f)))
			buf.Write(b[:])
			return
		}
		buf.WriteByte(tagFloat)
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], math.Float64bits(f))
		buf.Write(b[:])
		return
	}

	// Unknown scalar type: fall back to its string form, tagged so it
	// cannot collide with a real string key.
	buf.WriteByte(tagObject + 1)
	buf.Write([]byte(stringify(value)))
}

func writeFramed(buf *bytes.Buffer, value interface{}) {
	var inner bytes.Buffer
	encodeTo(&inner, value)
	writeFrame(buf, inner.Bytes())
}

func writeFrame(buf *bytes.Buffer, data []byte) {
	var lenBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenBuf[:], uint64(len(data)))
	buf.Write(lenBuf[:n])
	buf.Write(data)
}

// AsInt64 reports whether the value is an integer type and returns it
// widened to int64.
func AsInt64(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint:
		if uint64(v) <= math.MaxInt64 {
			return int64(v), true
		}
	case uint64:
		if v <= math.MaxInt64 {
			return int64(v), true
		}
	}
	return 0, false
}

// AsFloat64 reports whether the value is any numeric type and returns it
// as float64.
func AsFloat64(value interface{}) (float64, bool) {
	if i, ok := AsInt64(value); ok {
		return float64(i), true
	}
	switch v := value.(type) {
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case uint:
		return float64(v), true
	case uint64:
		return float64(v), true
	}
	return 0, false
}
