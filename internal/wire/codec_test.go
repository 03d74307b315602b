package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	cases := []any{
		nil,
		true,
		false,
		int64(0),
		int64(127),
		int64(-1),
		int64(-33),
		int64(1000),
		int64(-100000),
		uint64(1 << 40),
		float64(3.5),
		"",
		"hello",
		Bin{1, 2, 3},
		Array{int64(1), "two", Array{int64(3)}},
		Map{{Key: "a", Value: int64(1)}, {Key: int64(2), Value: "b"}},
	}
	for _, v := range cases {
		encoded, err := Encode(nil, v)
		require.NoError(t, err)
		got, rest, err := Decode(encoded)
		require.NoError(t, err)
		require.Empty(t, rest)
		require.Equal(t, v, got)
	}
}

func TestRoundTrip_MapKeyOrderPreserved(t *testing.T) {
	m := Map{
		{Key: "zebra", Value: int64(1)},
		{Key: "apple", Value: int64(2)},
		{Key: int64(0), Value: "default"},
	}
	encoded, err := Encode(nil, m)
	require.NoError(t, err)
	got, _, err := Decode(encoded)
	require.NoError(t, err)
	gotMap, ok := got.(Map)
	require.True(t, ok)
	require.Len(t, gotMap, 3)
	require.Equal(t, "zebra", gotMap[0].Key)
	require.Equal(t, "apple", gotMap[1].Key)
	require.Equal(t, int64(0), gotMap[2].Key)
}

func TestDecode_AcceptsStringAndIntegerMapKeys(t *testing.T) {
	encoded, err := Encode(nil, Map{{Key: int64(1), Value: "x"}})
	require.NoError(t, err)
	got, _, err := Decode(encoded)
	require.NoError(t, err)
	m := got.(Map)
	v, ok := m.Get(int64(1))
	require.True(t, ok)
	require.Equal(t, "x", v)
	_, ok = m.Get("1")
	require.False(t, ok, "string key must not match an int64 key")
}

func TestFramingResilience(t *testing.T) {
	req, err := EncodeRequest(1, "spawn_pty", Array{int64(24), int64(80)})
	require.NoError(t, err)
	notif, err := EncodeNotification("redraw", Array{Array{"flush"}})
	require.NoError(t, err)
	stream := append(append([]byte{}, req...), notif...)

	for chunkSize := 1; chunkSize <= len(stream); chunkSize++ {
		var dec Decoder
		var got []Message
		for i := 0; i < len(stream); i += chunkSize {
			end := i + chunkSize
			if end > len(stream) {
				end = len(stream)
			}
			dec.Feed(stream[i:end])
			for {
				msg, ok, err := dec.Next()
				require.NoError(t, err)
				if !ok {
					break
				}
				got = append(got, msg)
			}
		}
		require.Len(t, got, 2, "chunk size %d", chunkSize)
		require.True(t, dec.Empty(), "chunk size %d should end on a frame boundary", chunkSize)
		require.Equal(t, TypeRequest, got[0].Type)
		require.Equal(t, "spawn_pty", got[0].Method)
		require.Equal(t, TypeNotification, got[1].Type)
		require.Equal(t, "redraw", got[1].Method)
	}
}

func TestDecodeMessage_InvalidMessageType(t *testing.T) {
	encoded, err := Encode(nil, Array{int64(9), int64(1), "x", Array{}})
	require.NoError(t, err)
	_, _, err = DecodeMessage(encoded)
	require.ErrorIs(t, err, ErrInvalidMessageType)
}

func TestDecodeMessage_InvalidArrayLength(t *testing.T) {
	encoded, err := Encode(nil, Array{int64(0), int64(1)})
	require.NoError(t, err)
	_, _, err = DecodeMessage(encoded)
	require.ErrorIs(t, err, ErrInvalidArrayLength)
}

func TestDecodeMessage_TypeMismatch(t *testing.T) {
	encoded, err := Encode(nil, Array{int64(0), int64(1), int64(5), Array{}})
	require.NoError(t, err)
	_, _, err = DecodeMessage(encoded)
	require.ErrorIs(t, err, ErrTypeMismatch)
}

func TestDecode_TopLevelNotArray(t *testing.T) {
	encoded, err := Encode(nil, "not a frame")
	require.NoError(t, err)
	_, _, err = DecodeMessage(encoded)
	require.ErrorIs(t, err, ErrInvalidMessageFormat)
}
