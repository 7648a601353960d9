package transport

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math/rand"
	"net"
	"os"
	"sync"
	"time"

	"github.com/nuclio/errors"
	"github.com/rs/xid"
	"github.com/rs/zerolog/log"
)

const socketPathTemplate = "/tmp/typechan-%s.sock"

func init() {
	RegisterKind(KindUnix, dialUnix)
}

// SocketPath returns a fresh unix socket path under /tmp.
func SocketPath() string {
	return fmt.Sprintf(socketPathTemplate, xid.New().String())
}

// unixTransport frames datagrams on a unix stream socket with a u32
// big-endian length prefix. The input side owns the socket file and
// accepts a single writer on first Recv.
type unixTransport struct {
	address  string
	dir      Direction
	max      int
	listener net.Listener

	connMu sync.Mutex
	conn   net.Conn

	writeMu sync.Mutex
	closed  chan struct{}
	closing sync.Once
}

func dialUnix(ctx context.Context, ep Endpoint, dir Direction, cfg DialConfig) (Transport, error) {
	t := &unixTransport{
		address: ep.Address,
		dir:     dir,
		max:     ep.Size(),
		closed:  make(chan struct{}),
	}
	if dir == Input {
		if err := t.listen(); err != nil {
			return nil, err
		}
		return t, nil
	}
	conn, err := dialWithBackoff(ctx, ep.Address, cfg)
	if err != nil {
		return nil, err
	}
	t.conn = conn
	return t, nil
}

func (t *unixTransport) listen() error {
	if _, err := os.Stat(t.address); err == nil {
		if err := os.Remove(t.address); err != nil {
			return errors.Wrapf(err, "Can't remove stale socket %s", t.address)
		}
	}
	listener, err := net.Listen("unix", t.address)
	if err != nil {
		return errors.Wrapf(err, "Can't listen on %s", t.address)
	}
	t.listener = listener
	log.Debug().Str("address", t.address).Msg("unix transport listening")
	return nil
}

func dialWithBackoff(ctx context.Context, address string, cfg DialConfig) (net.Conn, error) {
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	var dialer net.Dialer
	var lastErr error
	for attempt := 1; ; attempt++ {
		conn, err := dialer.DialContext(ctx, "unix", address)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		log.Debug().Err(err).Str("address", address).Int("attempt", attempt).Msg("unix transport dial failed")

		timer := time.NewTimer(NextBackoffDelay(cfg.Backoff, attempt, rng))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, errors.Wrapf(lastErr, "Can't connect to %s", address)
		case <-timer.C:
		}
	}
}

func (t *unixTransport) MaxMsgSize() int { return t.max }

func (t *unixTransport) isClosed() bool {
	select {
	case <-t.closed:
		return true
	default:
		return false
	}
}

// peer returns the connected socket, accepting it on the input side.
func (t *unixTransport) peer() (net.Conn, error) {
	t.connMu.Lock()
	defer t.connMu.Unlock()
	if t.conn != nil {
		return t.conn, nil
	}
	if t.listener == nil {
		return nil, ErrClosed
	}
	conn, err := t.listener.Accept()
	if err != nil {
		if t.isClosed() {
			return nil, ErrClosed
		}
		return nil, errors.Wrapf(err, "Can't accept on %s", t.address)
	}
	t.conn = conn
	return conn, nil
}

func (t *unixTransport) Send(b []byte) error {
	if len(b) > t.max {
		return ErrMessageTooLarge
	}
	if t.isClosed() {
		return ErrClosed
	}
	conn, err := t.peer()
	if err != nil {
		return err
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	msg := make([]byte, 4+len(b))
	binary.BigEndian.PutUint32(msg, uint32(len(b)))
	copy(msg[4:], b)
	if _, err := conn.Write(msg); err != nil {
		if t.isClosed() {
			return ErrClosed
		}
		return errors.Wrapf(err, "Can't write to %s", t.address)
	}
	return nil
}

func (t *unixTransport) Recv() ([]byte, error) {
	if t.isClosed() {
		return nil, ErrClosed
	}
	conn, err := t.peer()
	if err != nil {
		return nil, err
	}

	var prefix [4]byte
	if _, err := io.ReadFull(conn, prefix[:]); err != nil {
		return nil, t.readError(err)
	}
	n := binary.BigEndian.Uint32(prefix[:])
	if int64(n) > int64(t.max) {
		// skip the body so the next read starts at a length prefix
		if _, err := io.CopyN(io.Discard, conn, int64(n)); err != nil {
			return nil, t.readError(err)
		}
		return nil, ErrMessageTooLarge
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(conn, b); err != nil {
		return nil, t.readError(err)
	}
	return b, nil
}

func (t *unixTransport) readError(err error) error {
	if t.isClosed() {
		return ErrClosed
	}
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return ErrPeerClosed
	}
	return errors.Wrapf(err, "Can't read from %s", t.address)
}

func (t *unixTransport) Close() error {
	var err error
	t.closing.Do(func() {
		close(t.closed)
		if t.listener != nil {
			err = t.listener.Close()
		}
		t.connMu.Lock()
		conn := t.conn
		t.connMu.Unlock()
		if conn != nil {
			if cerr := conn.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}
		if t.dir == Input {
			_ = os.Remove(t.address)
		}
	})
	return err
}
