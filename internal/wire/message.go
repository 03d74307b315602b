package wire

import "fmt"

// MessageType is the first element of every frame.
type MessageType int64

const (
	TypeRequest      MessageType = 0
	TypeResponse     MessageType = 1
	TypeNotification MessageType = 2
)

// Message is the decoded form of a request, response, or notification
// frame. Only the fields relevant to Type are populated.
type Message struct {
	Type   MessageType
	MsgID  uint64 // Request, Response
	Method string // Request, Notification
	Params Array  // Request, Notification
	Err    any    // Response: nil on success
	Result any    // Response
}

// EncodeRequest builds a `[0, msgid, method, params]` frame.
func EncodeRequest(msgid uint64, method string, params Array) ([]byte, error) {
	return Encode(nil, Array{int64(TypeRequest), msgid, method, params})
}

// EncodeResponse builds a `[1, msgid, error_or_nil, result]` frame.
func EncodeResponse(msgid uint64, errVal any, result any) ([]byte, error) {
	return Encode(nil, Array{int64(TypeResponse), msgid, errVal, result})
}

// EncodeNotification builds a `[2, method, params]` frame.
func EncodeNotification(method string, params Array) ([]byte, error) {
	return Encode(nil, Array{int64(TypeNotification), method, params})
}

// DecodeMessage decodes exactly one frame from the front of buf.
func DecodeMessage(buf []byte) (Message, []byte, error) {
	v, rest, err := Decode(buf)
	if err != nil {
		return Message{}, buf, err
	}
	arr, ok := v.(Array)
	if !ok {
		return Message{}, buf, fmt.Errorf("%w: top-level value is not an array", ErrInvalidMessageFormat)
	}
	if len(arr) != 3 && len(arr) != 4 {
		return Message{}, buf, fmt.Errorf("%w: array length %d", ErrInvalidArrayLength, len(arr))
	}
	typTag, ok := asInt(arr[0])
	if !ok {
		return Message{}, buf, fmt.Errorf("%w: message type is %s", ErrTypeMismatch, Kind(arr[0]))
	}

	switch MessageType(typTag) {
	case TypeRequest:
		if len(arr) != 4 {
			return Message{}, buf, fmt.Errorf("%w: request needs 4 elements, got %d", ErrInvalidArrayLength, len(arr))
		}
		msgid, ok := asInt(arr[1])
		if !ok {
			return Message{}, buf, fmt.Errorf("%w: msgid is %s", ErrTypeMismatch, Kind(arr[1]))
		}
		method, ok := arr[2].(string)
		if !ok {
			return Message{}, buf, fmt.Errorf("%w: method is %s", ErrTypeMismatch, Kind(arr[2]))
		}
		params, err := asArray(arr[3])
		if err != nil {
			return Message{}, buf, err
		}
		return Message{Type: TypeRequest, MsgID: uint64(msgid), Method: method, Params: params}, rest, nil

	case TypeResponse:
		if len(arr) != 4 {
			return Message{}, buf, fmt.Errorf("%w: response needs 4 elements, got %d", ErrInvalidArrayLength, len(arr))
		}
		msgid, ok := asInt(arr[1])
		if !ok {
			return Message{}, buf, fmt.Errorf("%w: msgid is %s", ErrTypeMismatch, Kind(arr[1]))
		}
		return Message{Type: TypeResponse, MsgID: uint64(msgid), Err: arr[2], Result: arr[3]}, rest, nil

	case TypeNotification:
		if len(arr) != 3 {
			return Message{}, buf, fmt.Errorf("%w: notification needs 3 elements, got %d", ErrInvalidArrayLength, len(arr))
		}
		method, ok := arr[1].(string)
		if !ok {
			return Message{}, buf, fmt.Errorf("%w: method is %s", ErrTypeMismatch, Kind(arr[1]))
		}
		params, err := asArray(arr[2])
		if err != nil {
			return Message{}, buf, err
		}
		return Message{Type: TypeNotification, Method: method, Params: params}, rest, nil

	default:
		return Message{}, buf, fmt.Errorf("%w: %d", ErrInvalidMessageType, typTag)
	}
}

func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case uint64:
		return int64(n), true
	default:
		return 0, false
	}
}

func asArray(v any) (Array, error) {
	switch a := v.(type) {
	case Array:
		return a, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: params is %s", ErrTypeMismatch, Kind(v))
	}
}

// Decoder buffers partial frames across socket reads, decoding a prefix
// as soon as a full message is available and advancing the cursor past
// it.
type Decoder struct {
	buf []byte
}

// Feed appends newly read bytes to the decoder's buffer.
func (d *Decoder) Feed(b []byte) {
	d.buf = append(d.buf, b...)
}

// Next pops one complete frame from the buffer, if present. ok is false
// and err is nil when the buffer holds only a partial frame (the caller
// should Feed more and retry). A non-nil err means the buffered prefix is
// malformed; the caller should close the connection.
func (d *Decoder) Next() (msg Message, ok bool, err error) {
	if len(d.buf) == 0 {
		return Message{}, false, nil
	}
	msg, rest, err := DecodeMessage(d.buf)
	if err != nil {
		if err == ErrTruncated {
			return Message{}, false, nil
		}
		return Message{}, false, err
	}
	d.buf = rest
	return msg, true, nil
}

// Empty reports whether the buffer holds no unconsumed bytes — used by the
// framing-resilience property to check the stream ended on a frame
// boundary.
func (d *Decoder) Empty() bool {
	return len(d.buf) == 0
}
