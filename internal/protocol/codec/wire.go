package codec

import (
	"encoding/binary"
	"errors"
	"math"
)

var (
	ErrTruncated = errors.New("codec: truncated value")
	ErrTooLong   = errors.New("codec: length exceeds u32")
)

// reader walks an encoded value. All reads are bounds checked.
type reader struct {
	buf []byte
	off int
}

func (r *reader) remaining() int { return len(r.buf) - r.off }

func (r *reader) take(n int) ([]byte, error) {
	if n < 0 || r.remaining() < n {
		return nil, ErrTruncated
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *reader) u32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// blob reads a u32 length prefix and that many bytes. The result aliases
// the input.
func (r *reader) blob() ([]byte, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	if uint64(n) > uint64(r.remaining()) {
		return nil, ErrTruncated
	}
	return r.take(int(n))
}

func putU32(out []byte, n int) ([]byte, error) {
	if n < 0 || uint64(n) > math.MaxUint32 {
		return nil, ErrTooLong
	}
	return binary.BigEndian.AppendUint32(out, uint32(n)), nil
}

func putBlob(out, b []byte) ([]byte, error) {
	out, err := putU32(out, len(b))
	if err != nil {
		return nil, err
	}
	return append(out, b...), nil
}
