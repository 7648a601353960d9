package channel

import "github.com/danmuck/typechan/internal/transport"

type options struct {
	closeOnEOFRecv bool
	closeOnEOFSend bool
	maxMsgSize     int
	dial           transport.DialConfig
	hasDial        bool
}

// Option adjusts how a channel is opened.
type Option func(*options)

// WithCloseOnEOFRecv releases the channel as soon as an EOF sentinel is
// received.
func WithCloseOnEOFRecv(v bool) Option {
	return func(o *options) { o.closeOnEOFRecv = v }
}

// WithCloseOnEOFSend releases the channel right after SendEOF.
func WithCloseOnEOFSend(v bool) Option {
	return func(o *options) { o.closeOnEOFSend = v }
}

// WithMaxMsgSize caps the datagram size below the endpoint's.
func WithMaxMsgSize(n int) Option {
	return func(o *options) { o.maxMsgSize = n }
}

func WithDialConfig(cfg transport.DialConfig) Option {
	return func(o *options) {
		o.dial = cfg
		o.hasDial = true
	}
}
