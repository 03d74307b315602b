package wire

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Decode reads one value from the front of buf and returns it along with
// the remaining, unconsumed bytes. ErrTruncated means buf holds a valid
// but incomplete prefix — the caller should buffer more bytes and retry;
// any other error means buf's prefix is malformed and the connection that
// produced it should be closed.
func Decode(buf []byte) (value any, rest []byte, err error) {
	if len(buf) == 0 {
		return nil, buf, ErrTruncated
	}
	tag := buf[0]
	switch {
	case tag <= 0x7f: // positive fixint
		return int64(tag), buf[1:], nil
	case tag >= 0xe0: // negative fixint
		return int64(int8(tag)), buf[1:], nil
	case tag&0xe0 == 0xa0: // fixstr
		n := int(tag & 0x1f)
		return decodeStringBody(buf[1:], n)
	case tag&0xf0 == 0x90: // fixarray
		n := int(tag & 0x0f)
		return decodeArrayBody(buf[1:], n)
	case tag&0xf0 == 0x80: // fixmap
		n := int(tag & 0x0f)
		return decodeMapBody(buf[1:], n)
	}

	switch tag {
	case 0xc0:
		return nil, buf[1:], nil
	case 0xc2:
		return false, buf[1:], nil
	case 0xc3:
		return true, buf[1:], nil
	case 0xcc: // uint8
		return decodeFixed(buf[1:], 1, func(b []byte) any { return int64(b[0]) })
	case 0xcd: // uint16
		return decodeFixed(buf[1:], 2, func(b []byte) any { return int64(binary.BigEndian.Uint16(b)) })
	case 0xce: // uint32
		return decodeFixed(buf[1:], 4, func(b []byte) any { return int64(binary.BigEndian.Uint32(b)) })
	case 0xcf: // uint64
		return decodeFixed(buf[1:], 8, func(b []byte) any { return binary.BigEndian.Uint64(b) })
	case 0xd0: // int8
		return decodeFixed(buf[1:], 1, func(b []byte) any { return int64(int8(b[0])) })
	case 0xd1: // int16
		return decodeFixed(buf[1:], 2, func(b []byte) any { return int64(int16(binary.BigEndian.Uint16(b))) })
	case 0xd2: // int32
		return decodeFixed(buf[1:], 4, func(b []byte) any { return int64(int32(binary.BigEndian.Uint32(b))) })
	case 0xd3: // int64
		return decodeFixed(buf[1:], 8, func(b []byte) any { return int64(binary.BigEndian.Uint64(b)) })
	case 0xca: // float32
		return decodeFixed(buf[1:], 4, func(b []byte) any { return float64(math.Float32frombits(binary.BigEndian.Uint32(b))) })
	case 0xcb: // float64
		return decodeFixed(buf[1:], 8, func(b []byte) any { return math.Float64frombits(binary.BigEndian.Uint64(b)) })
	case 0xd9: // str8
		return decodeLenPrefixed(buf[1:], 1, decodeStringBody)
	case 0xda: // str16
		return decodeLenPrefixed(buf[1:], 2, decodeStringBody)
	case 0xdb: // str32
		return decodeLenPrefixed(buf[1:], 4, decodeStringBody)
	case 0xc4: // bin8
		return decodeLenPrefixed(buf[1:], 1, decodeBinBody)
	case 0xc5: // bin16
		return decodeLenPrefixed(buf[1:], 2, decodeBinBody)
	case 0xc6: // bin32
		return decodeLenPrefixed(buf[1:], 4, decodeBinBody)
	case 0xdc: // array16
		return decodeLenPrefixed(buf[1:], 2, decodeArrayBody)
	case 0xdd: // array32
		return decodeLenPrefixed(buf[1:], 4, decodeArrayBody)
	case 0xde: // map16
		return decodeLenPrefixed(buf[1:], 2, decodeMapBody)
	case 0xdf: // map32
		return decodeLenPrefixed(buf[1:], 4, decodeMapBody)
	default:
		return nil, buf, fmt.Errorf("%w: tag 0x%02x", ErrInvalidMessageFormat, tag)
	}
}

func need(buf []byte, n int) error {
	if len(buf) < n {
		return ErrTruncated
	}
	return nil
}

func decodeFixed(buf []byte, n int, conv func([]byte) any) (any, []byte, error) {
	if err := need(buf, n); err != nil {
		return nil, buf, err
	}
	return conv(buf[:n]), buf[n:], nil
}

// decodeLenPrefixed reads a big-endian length of lenBytes, then delegates
// to body for the payload.
func decodeLenPrefixed(buf []byte, lenBytes int, body func([]byte, int) (any, []byte, error)) (any, []byte, error) {
	if err := need(buf, lenBytes); err != nil {
		return nil, buf, err
	}
	var n int
	switch lenBytes {
	case 1:
		n = int(buf[0])
	case 2:
		n = int(binary.BigEndian.Uint16(buf[:2]))
	case 4:
		n = int(binary.BigEndian.Uint32(buf[:4]))
	}
	return body(buf[lenBytes:], n)
}

func decodeStringBody(buf []byte, n int) (any, []byte, error) {
	if err := need(buf, n); err != nil {
		return nil, buf, err
	}
	return string(buf[:n]), buf[n:], nil
}

func decodeBinBody(buf []byte, n int) (any, []byte, error) {
	if err := need(buf, n); err != nil {
		return nil, buf, err
	}
	out := make(Bin, n)
	copy(out, buf[:n])
	return out, buf[n:], nil
}

func decodeArrayBody(buf []byte, n int) (any, []byte, error) {
	if n < 0 {
		return nil, buf, ErrInvalidArrayLength
	}
	out := make(Array, 0, n)
	rest := buf
	for i := 0; i < n; i++ {
		var v any
		var err error
		v, rest, err = Decode(rest)
		if err != nil {
			return nil, buf, err
		}
		out = append(out, v)
	}
	return out, rest, nil
}

func decodeMapBody(buf []byte, n int) (any, []byte, error) {
	if n < 0 {
		return nil, buf, ErrInvalidArrayLength
	}
	out := make(Map, 0, n)
	rest := buf
	for i := 0; i < n; i++ {
		var k, v any
		var err error
		k, rest, err = Decode(rest)
		if err != nil {
			return nil, buf, err
		}
		switch k.(type) {
		case string, int64, uint64:
		default:
			return nil, buf, fmt.Errorf("%w: map key of kind %s", ErrTypeMismatch, Kind(k))
		}
		v, rest, err = Decode(rest)
		if err != nil {
			return nil, buf, err
		}
		out = append(out, MapEntry{Key: k, Value: v})
	}
	return out, rest, nil
}
