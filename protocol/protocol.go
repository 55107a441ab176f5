// Package protocol implements the length-value frame protocol for suprpc.
//
// It solves TCP's sticky packet problem with a leading length field: the
// receiver peeks the 4-byte total length, waits until that many bytes are
// buffered, then consumes exactly one frame.
//
// Frame format (all integers big-endian):
//
//	0          4          8          12         12+idlen
//	┌──────────┬──────────┬──────────┬──────────┬──────────────────┐
//	│ total_len│  mtype   │  idlen   │    id    │      body        │
//	│  uint32  │  uint32  │  uint32  │ idlen B  │  JSON, UTF-8     │
//	└──────────┴──────────┴──────────┴──────────┴──────────────────┘
//
// total_len counts everything after itself: 8 + idlen + len(body).
// The id is the raw bytes of the request's UUID; the body is the JSON
// serialization of the message variant selected by mtype.
package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/sis-shen/suprpc-json/codec"
	"github.com/sis-shen/suprpc-json/message"
)

const (
	// lenFieldSize is the size of the leading total_len field, which is
	// not counted by its own value.
	lenFieldSize = 4

	// fixedFieldsSize is mtype + idlen, the fixed part counted by total_len.
	fixedFieldsSize = 8

	// MaxPendingBytes caps how much a connection may buffer without
	// yielding a processable frame before it is shut down. Defends the
	// server against malformed length fields and oversized frames.
	MaxPendingBytes = 64 * 1024
)

// Error is a protocol-level decode failure classified by RCode:
// PARSE_FAILED for malformed frames or bodies, ERROR_MSGTYPE for unknown
// message types, INVALID_MSG for bodies that fail the variant check.
// Every one of them tears the connection down — a framing failure leaves
// no way to resynchronize the byte stream.
type Error struct {
	Code message.RCode
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", message.ErrReason(e.Code), e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// CanProcess reports whether buf holds at least one complete frame.
// A partial frame never advances the buffer.
func CanProcess(buf *bytes.Buffer) bool {
	if buf.Len() < lenFieldSize {
		return false
	}
	total := binary.BigEndian.Uint32(buf.Bytes()[:lenFieldSize])
	return uint32(buf.Len()) >= lenFieldSize+total
}

// OnMessage consumes exactly one frame from buf and returns the decoded,
// validated message. The caller must have seen CanProcess return true.
func OnMessage(buf *bytes.Buffer) (message.Message, error) {
	if !CanProcess(buf) {
		return nil, &Error{Code: message.RCodeParseFailed, Err: fmt.Errorf("incomplete frame: %d bytes buffered", buf.Len())}
	}
	total := binary.BigEndian.Uint32(buf.Next(lenFieldSize))
	frame := buf.Next(int(total))
	if total < fixedFieldsSize {
		return nil, &Error{Code: message.RCodeParseFailed, Err: fmt.Errorf("frame too short: total_len=%d", total)}
	}

	mtype := message.MType(binary.BigEndian.Uint32(frame[0:4]))
	idlen := binary.BigEndian.Uint32(frame[4:8])
	if fixedFieldsSize+idlen > total {
		return nil, &Error{Code: message.RCodeParseFailed, Err: fmt.Errorf("idlen %d exceeds frame of %d bytes", idlen, total)}
	}
	id := frame[fixedFieldsSize : fixedFieldsSize+idlen]
	body := frame[fixedFieldsSize+idlen:]

	msg, err := message.New(mtype)
	if err != nil {
		return nil, &Error{Code: message.RCodeErrorMsgType, Err: err}
	}
	if err := codec.Default().Decode(body, msg); err != nil {
		return nil, &Error{Code: message.RCodeParseFailed, Err: err}
	}
	msg.SetRID(string(id))
	if err := msg.Check(); err != nil {
		return nil, &Error{Code: message.RCodeInvalidMsg, Err: err}
	}
	return msg, nil
}

// Encode serializes msg into one complete frame.
func Encode(msg message.Message) ([]byte, error) {
	body, err := codec.Default().Encode(msg)
	if err != nil {
		return nil, err
	}
	id := []byte(msg.RID())

	total := fixedFieldsSize + len(id) + len(body)
	frame := make([]byte, lenFieldSize+total)
	binary.BigEndian.PutUint32(frame[0:4], uint32(total))
	binary.BigEndian.PutUint32(frame[4:8], uint32(msg.MType()))
	binary.BigEndian.PutUint32(frame[8:12], uint32(len(id)))
	copy(frame[12:12+len(id)], id)
	copy(frame[12+len(id):], body)
	return frame, nil
}
