package wire

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Encode appends the msgpack-family encoding of v to dst and returns the
// result. v must be built from nil, bool, a signed/unsigned integer kind,
// float32/float64, string, Bin, Array/[]any, or Map.
func Encode(dst []byte, v any) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return append(dst, 0xc0), nil
	case bool:
		if val {
			return append(dst, 0xc3), nil
		}
		return append(dst, 0xc2), nil
	case int:
		return encodeInt(dst, int64(val)), nil
	case int8:
		return encodeInt(dst, int64(val)), nil
	case int16:
		return encodeInt(dst, int64(val)), nil
	case int32:
		return encodeInt(dst, int64(val)), nil
	case int64:
		return encodeInt(dst, val), nil
	case uint:
		return encodeUint(dst, uint64(val)), nil
	case uint8:
		return encodeUint(dst, uint64(val)), nil
	case uint16:
		return encodeUint(dst, uint64(val)), nil
	case uint32:
		return encodeUint(dst, uint64(val)), nil
	case uint64:
		return encodeUint(dst, val), nil
	case float32:
		return encodeFloat64(dst, float64(val)), nil
	case float64:
		return encodeFloat64(dst, val), nil
	case string:
		return encodeString(dst, val), nil
	case Bin:
		return encodeBin(dst, val), nil
	case []byte:
		return encodeBin(dst, val), nil
	case Array:
		return encodeArray(dst, val)
	case []any:
		return encodeArray(dst, val)
	case Map:
		return encodeMap(dst, val)
	default:
		return nil, fmt.Errorf("%w: unsupported value type %T", ErrTypeMismatch, v)
	}
}

func encodeInt(dst []byte, n int64) []byte {
	switch {
	case n >= 0:
		return encodeUint(dst, uint64(n))
	case n >= -32:
		return append(dst, byte(0xe0|(n+32)))
	case n >= math.MinInt8:
		return append(dst, 0xd0, byte(int8(n)))
	case n >= math.MinInt16:
		b := make([]byte, 2)
		binary.BigEndian.PutUint16(b, uint16(int16(n)))
		return append(append(dst, 0xd1), b...)
	case n >= math.MinInt32:
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, uint32(int32(n)))
		return append(append(dst, 0xd2), b...)
	default:
		b := make([]byte, 8)
		binary.BigEndian.PutUint64(b, uint64(n))
		return append(append(dst, 0xd3), b...)
	}
}

func encodeUint(dst []byte, n uint64) []byte {
	switch {
	case n <= 0x7f:
		return append(dst, byte(n))
	case n <= math.MaxUint8:
		return append(dst, 0xcc, byte(n))
	case n <= math.MaxUint16:
		b := make([]byte, 2)
		binary.BigEndian.PutUint16(b, uint16(n))
		return append(append(dst, 0xcd), b...)
	case n <= math.MaxUint32:
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, uint32(n))
		return append(append(dst, 0xce), b...)
	default:
		b := make([]byte, 8)
		binary.BigEndian.PutUint64(b, n)
		return append(append(dst, 0xcf), b...)
	}
}

func encodeFloat64(dst []byte, f float64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, math.Float64bits(f))
	return append(append(dst, 0xcb), b...)
}

func encodeString(dst []byte, s string) []byte {
	n := len(s)
	switch {
	case n <= 31:
		dst = append(dst, byte(0xa0|n))
	case n <= math.MaxUint8:
		dst = append(dst, 0xd9, byte(n))
	case n <= math.MaxUint16:
		b := make([]byte, 2)
		binary.BigEndian.PutUint16(b, uint16(n))
		dst = append(append(dst, 0xda), b...)
	default:
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, uint32(n))
		dst = append(append(dst, 0xdb), b...)
	}
	return append(dst, s...)
}

func encodeBin(dst []byte, b []byte) []byte {
	n := len(b)
	switch {
	case n <= math.MaxUint8:
		dst = append(dst, 0xc4, byte(n))
	case n <= math.MaxUint16:
		hdr := make([]byte, 2)
		binary.BigEndian.PutUint16(hdr, uint16(n))
		dst = append(append(dst, 0xc5), hdr...)
	default:
		hdr := make([]byte, 4)
		binary.BigEndian.PutUint32(hdr, uint32(n))
		dst = append(append(dst, 0xc6), hdr...)
	}
	return append(dst, b...)
}

func encodeArrayHeader(dst []byte, n int) []byte {
	switch {
	case n <= 15:
		return append(dst, byte(0x90|n))
	case n <= math.MaxUint16:
		b := make([]byte, 2)
		binary.BigEndian.PutUint16(b, uint16(n))
		return append(append(dst, 0xdc), b...)
	default:
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, uint32(n))
		return append(append(dst, 0xdd), b...)
	}
}

func encodeArray(dst []byte, a []any) ([]byte, error) {
	dst = encodeArrayHeader(dst, len(a))
	var err error
	for _, elem := range a {
		dst, err = Encode(dst, elem)
		if err != nil {
			return nil, err
		}
	}
	return dst, nil
}

func encodeMapHeader(dst []byte, n int) []byte {
	switch {
	case n <= 15:
		return append(dst, byte(0x80|n))
	case n <= math.MaxUint16:
		b := make([]byte, 2)
		binary.BigEndian.PutUint16(b, uint16(n))
		return append(append(dst, 0xde), b...)
	default:
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, uint32(n))
		return append(append(dst, 0xdf), b...)
	}
}

func encodeMap(dst []byte, m Map) ([]byte, error) {
	dst = encodeMapHeader(dst, len(m))
	var err error
	for _, entry := range m {
		dst, err = Encode(dst, entry.Key)
		if err != nil {
			return nil, err
		}
		dst, err = Encode(dst, entry.Value)
		if err != nil {
			return nil, err
		}
	}
	return dst, nil
}
