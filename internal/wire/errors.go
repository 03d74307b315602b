package wire

import "errors"

// Sentinel wire errors. All but ErrTruncated are recoverable at the
// connection layer (close the offending client) but fatal for the decode
// call that produced them; ErrTruncated only means more bytes are needed,
// and Decoder.Next reports it as "no complete frame yet".
var (
	ErrInvalidMessageFormat = errors.New("wire: invalid message format")
	ErrInvalidMessageType   = errors.New("wire: invalid message type")
	ErrInvalidArrayLength   = errors.New("wire: invalid array length")
	ErrTypeMismatch         = errors.New("wire: type mismatch")
	ErrTruncated            = errors.New("wire: truncated frame")
)
