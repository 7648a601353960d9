// Package frame defines the datagram header carried in front of every
// transport message: one chunk of a logical message or the EOF sentinel.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	Magic   uint32 = 0x7C4A0001
	Version uint16 = 1

	HeaderLen = 24

	FlagContinuation uint16 = 0x01
	FlagEOF          uint16 = 0x02
)

var (
	ErrShortHeader        = errors.New("frame: short fixed header")
	ErrBadMagic           = errors.New("frame: bad magic")
	ErrBadVersion         = errors.New("frame: unsupported version")
	ErrPayloadTooLarge    = errors.New("frame: payload too large")
	ErrPayloadLenMismatch = errors.New("frame: payload_len disagrees with datagram size")
	ErrEOFWithPayload     = errors.New("frame: eof sentinel carries payload")
	ErrUnknownFlags       = errors.New("frame: unknown flags")
)

// Header is the fixed datagram header.
type Header struct {
	Magic      uint32
	Version    uint16
	Flags      uint16
	MessageID  uint64
	Seq        uint32
	PayloadLen uint32
}

// Frame is one datagram.
type Frame struct {
	Header  Header
	Payload []byte
}

// IsEOF reports whether the frame is the end-of-stream sentinel.
func (f Frame) IsEOF() bool { return f.Header.Flags&FlagEOF != 0 }

// More reports whether further chunks of the same message follow.
func (f Frame) More() bool { return f.Header.Flags&FlagContinuation != 0 }

// Limits constrains frame decode/encode memory use.
type Limits struct {
	MaxPayloadBytes uint32
}

// LimitsFor sizes limits for a transport whose atomic datagram is
// maxMsgSize bytes.
func LimitsFor(maxMsgSize int) Limits {
	if maxMsgSize <= HeaderLen {
		return Limits{}
	}
	return Limits{MaxPayloadBytes: uint32(maxMsgSize - HeaderLen)}
}

// Chunk builds a data frame.
func Chunk(messageID uint64, seq uint32, payload []byte, more bool) Frame {
	h := Header{Magic: Magic, Version: Version, MessageID: messageID, Seq: seq}
	if more {
		h.Flags |= FlagContinuation
	}
	return Frame{Header: h, Payload: payload}
}

// EOF builds the end-of-stream sentinel.
func EOF(messageID uint64) Frame {
	return Frame{Header: Header{Magic: Magic, Version: Version, Flags: FlagEOF, MessageID: messageID}}
}

// Encode renders f as one datagram.
func Encode(f Frame, limits Limits) ([]byte, error) {
	if uint64(len(f.Payload)) > uint64(limits.MaxPayloadBytes) {
		return nil, ErrPayloadTooLarge
	}
	if f.IsEOF() && len(f.Payload) > 0 {
		return nil, ErrEOFWithPayload
	}
	h := f.Header
	h.Magic = Magic
	h.Version = Version
	h.PayloadLen = uint32(len(f.Payload))
	out := make([]byte, 0, HeaderLen+len(f.Payload))
	out = append(out, EncodeHeader(h)...)
	return append(out, f.Payload...), nil
}

// Decode parses one datagram. The payload aliases b.
func Decode(b []byte, limits Limits) (Frame, error) {
	if len(b) < HeaderLen {
		return Frame{}, ErrShortHeader
	}
	h, err := DecodeHeader(b[:HeaderLen])
	if err != nil {
		return Frame{}, err
	}
	if h.Magic != Magic {
		return Frame{}, ErrBadMagic
	}
	if h.Version != Version {
		return Frame{}, ErrBadVersion
	}
	if h.Flags&^(FlagContinuation|FlagEOF) != 0 {
		return Frame{}, ErrUnknownFlags
	}
	if h.PayloadLen > limits.MaxPayloadBytes {
		return Frame{}, ErrPayloadTooLarge
	}
	if uint64(len(b)-HeaderLen) != uint64(h.PayloadLen) {
		return Frame{}, ErrPayloadLenMismatch
	}
	if h.Flags&FlagEOF != 0 && h.PayloadLen > 0 {
		return Frame{}, ErrEOFWithPayload
	}
	return Frame{Header: h, Payload: b[HeaderLen:]}, nil
}

func EncodeHeader(h Header) []byte {
	buf := make([]byte, HeaderLen)
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	binary.BigEndian.PutUint16(buf[4:6], h.Version)
	binary.BigEndian.PutUint16(buf[6:8], h.Flags)
	binary.BigEndian.PutUint64(buf[8:16], h.MessageID)
	binary.BigEndian.PutUint32(buf[16:20], h.Seq)
	binary.BigEndian.PutUint32(buf[20:24], h.PayloadLen)
	return buf
}

func DecodeHeader(b []byte) (Header, error) {
	if len(b) != HeaderLen {
		return Header{}, fmt.Errorf("frame: invalid fixed header length: %d", len(b))
	}
	return Header{
		Magic:      binary.BigEndian.Uint32(b[0:4]),
		Version:    binary.BigEndian.Uint16(b[4:6]),
		Flags:      binary.BigEndian.Uint16(b[6:8]),
		MessageID:  binary.BigEndian.Uint64(b[8:16]),
		Seq:        binary.BigEndian.Uint32(b[16:20]),
		PayloadLen: binary.BigEndian.Uint32(b[20:24]),
	}, nil
}
