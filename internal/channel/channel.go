// Package channel implements named unidirectional message channels over a
// transport: bounded atomic sends, chunked transfer of larger payloads,
// and an EOF sentinel distinct from every payload.
package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/danmuck/typechan/internal/observability"
	"github.com/danmuck/typechan/internal/protocol"
	"github.com/danmuck/typechan/internal/protocol/frame"
	"github.com/danmuck/typechan/internal/transport"
	"github.com/rs/zerolog/log"
)

var ErrSequence = errors.New("channel: chunk out of sequence")

// Channel owns exactly one transport handle.
type Channel struct {
	name       string
	dir        transport.Direction
	tr         transport.Transport
	limits     frame.Limits
	maxPayload int
	opts       options

	sendMu        sync.Mutex
	nextID        uint64
	closedForSend bool
	indeterminate bool

	recvMu      sync.Mutex
	eofReceived bool

	released atomic.Bool
}

// Open looks up name in reg and dials dir's side of its endpoint.
func Open(reg transport.Registry, name string, dir transport.Direction, opts ...Option) (*Channel, error) {
	return OpenContext(context.Background(), reg, name, dir, opts...)
}

// OpenContext is Open with a context bounding the dial.
func OpenContext(ctx context.Context, reg transport.Registry, name string, dir transport.Direction, opts ...Option) (*Channel, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	ep, err := reg.Lookup(name)
	if err != nil {
		return nil, err
	}
	if !o.hasDial {
		o.dial = transport.DefaultDialConfig()
		if fr, ok := reg.(*transport.FileRegistry); ok {
			o.dial = fr.DialConfig()
		}
	}
	tr, err := transport.Dial(ctx, ep, dir, o.dial)
	if err != nil {
		return nil, &protocol.TransportError{Channel: name, Op: "open", Err: err}
	}
	ch, err := New(name, dir, tr, opts...)
	if err != nil {
		_ = tr.Close()
		return nil, err
	}
	log.Debug().Str("channel", name).Str("dir", dir.String()).Str("endpoint", ep.String()).Msg("channel opened")
	return ch, nil
}

// New wraps an already dialed transport.
func New(name string, dir transport.Direction, tr transport.Transport, opts ...Option) (*Channel, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	size := tr.MaxMsgSize()
	if o.maxMsgSize > 0 && o.maxMsgSize < size {
		size = o.maxMsgSize
	}
	if size <= frame.HeaderLen {
		return nil, &protocol.TransportError{Channel: name, Op: "open", Err: transport.ErrMessageTooLarge}
	}
	limits := frame.LimitsFor(size)
	return &Channel{
		name:       name,
		dir:        dir,
		tr:         tr,
		limits:     limits,
		maxPayload: int(limits.MaxPayloadBytes),
		opts:       o,
	}, nil
}

func (c *Channel) Name() string { return c.name }

func (c *Channel) Direction() transport.Direction { return c.dir }

// MaxPayload is the largest payload Send accepts.
func (c *Channel) MaxPayload() int { return c.maxPayload }

// Indeterminate reports whether a chunked send was abandoned part way.
func (c *Channel) Indeterminate() bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return c.indeterminate
}

func (c *Channel) Closed() bool { return c.released.Load() }

func (c *Channel) checkSend() error {
	if c.dir != transport.Output {
		return protocol.ErrWrongDirection
	}
	if c.released.Load() {
		return protocol.ErrClosed
	}
	if c.closedForSend {
		return protocol.ErrClosedForSend
	}
	return nil
}

func (c *Channel) fail(op string, err error) error {
	observability.RecordFailure(c.name, c.dir.String())
	log.Debug().Err(err).Str("channel", c.name).Str("op", op).Msg("channel operation failed")
	return &protocol.TransportError{Channel: c.name, Op: op, Err: err}
}

func (c *Channel) put(f frame.Frame) error {
	b, err := frame.Encode(f, c.limits)
	if err != nil {
		return err
	}
	return c.tr.Send(b)
}

// Send transmits p as one datagram.
func (c *Channel) Send(p []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if err := c.checkSend(); err != nil {
		return err
	}
	if len(p) > c.maxPayload {
		return protocol.ErrPayloadTooLarge
	}
	id := c.nextID
	c.nextID++
	if err := c.put(frame.Chunk(id, 0, p, false)); err != nil {
		return c.fail("send", err)
	}
	observability.RecordMessage(c.name, c.dir.String(), len(p), 1)
	return nil
}

// SendChunked transmits p as ordered chunks of at most MaxPayload bytes.
// The first failed chunk aborts the message and leaves the channel
// indeterminate.
func (c *Channel) SendChunked(p []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if err := c.checkSend(); err != nil {
		return err
	}
	id := c.nextID
	c.nextID++

	chunks := 0
	for off := 0; off == 0 || off < len(p); {
		end := min(off+c.maxPayload, len(p))
		more := end < len(p)
		if err := c.put(frame.Chunk(id, uint32(chunks), p[off:end], more)); err != nil {
			if chunks > 0 {
				c.indeterminate = true
				err = fmt.Errorf("%w: %w", protocol.ErrIndeterminate, err)
			}
			log.Error().Err(err).Str("channel", c.name).Int("chunk", chunks).Msg("chunked send aborted")
			return c.fail("send_chunked", err)
		}
		chunks++
		if !more {
			break
		}
		off = end
	}
	observability.RecordMessage(c.name, c.dir.String(), len(p), chunks)
	log.Debug().Str("channel", c.name).Int("bytes", len(p)).Int("chunks", chunks).Msg("chunked send")
	return nil
}

// SendEOF emits the sentinel. Further sends fail with
// protocol.ErrClosedForSend.
func (c *Channel) SendEOF() error {
	c.sendMu.Lock()
	err := c.checkSend()
	if err == nil {
		id := c.nextID
		c.nextID++
		if perr := c.put(frame.EOF(id)); perr != nil {
			err = c.fail("send_eof", perr)
		} else {
			c.closedForSend = true
			observability.RecordEOF(c.name, c.dir.String())
		}
	}
	c.sendMu.Unlock()

	if err == nil && c.opts.closeOnEOFSend {
		return c.Close()
	}
	return err
}

// Recv receives one logical message into dst and returns its length.
// A message longer than dst is consumed and fails with
// *protocol.BufferTooSmallError.
func (c *Channel) Recv(dst []byte) (int, error) {
	msg, err := c.RecvChunked()
	if err != nil {
		return 0, err
	}
	if len(msg) > len(dst) {
		return 0, &protocol.BufferTooSmallError{Capacity: len(dst), Needed: len(msg)}
	}
	return copy(dst, msg), nil
}

// RecvChunked receives one logical message, reassembling chunks, into a
// fresh slice. It returns protocol.ErrEOF once the sentinel arrives and on
// every call after.
func (c *Channel) RecvChunked() ([]byte, error) {
	msg, err := c.recv()
	if errors.Is(err, protocol.ErrEOF) && c.opts.closeOnEOFRecv {
		_ = c.Close()
	}
	return msg, err
}

func (c *Channel) recv() ([]byte, error) {
	c.recvMu.Lock()
	defer c.recvMu.Unlock()
	if c.dir != transport.Input {
		return nil, protocol.ErrWrongDirection
	}
	if c.eofReceived {
		return nil, protocol.ErrEOF
	}
	if c.released.Load() {
		return nil, protocol.ErrClosed
	}

	var (
		msg       []byte
		id        uint64
		datagrams int
	)
	for {
		b, err := c.tr.Recv()
		if err != nil {
			if c.released.Load() {
				return nil, protocol.ErrClosed
			}
			return nil, c.fail("recv", err)
		}
		f, err := frame.Decode(b, c.limits)
		if err != nil {
			return nil, c.fail("recv", err)
		}
		if f.IsEOF() {
			if datagrams > 0 {
				log.Warn().Str("channel", c.name).Int("chunks", datagrams).Msg("eof interrupted a chunked message")
			}
			c.eofReceived = true
			observability.RecordEOF(c.name, c.dir.String())
			return nil, protocol.ErrEOF
		}
		if datagrams == 0 {
			if f.Header.Seq != 0 {
				return nil, c.fail("recv", ErrSequence)
			}
			id = f.Header.MessageID
		} else if f.Header.MessageID != id || f.Header.Seq != uint32(datagrams) {
			return nil, c.fail("recv", ErrSequence)
		}
		datagrams++
		if !f.More() && datagrams == 1 {
			msg = f.Payload
		} else {
			msg = append(msg, f.Payload...)
		}
		if !f.More() {
			break
		}
	}
	if msg == nil {
		msg = []byte{}
	}
	observability.RecordMessage(c.name, c.dir.String(), len(msg), datagrams)
	return msg, nil
}

// Close releases the transport. Only the first call has an effect.
func (c *Channel) Close() error {
	if !c.released.CompareAndSwap(false, true) {
		return nil
	}
	log.Debug().Str("channel", c.name).Str("dir", c.dir.String()).Msg("channel closed")
	return c.tr.Close()
}
