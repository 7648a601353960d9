// Package rpc pairs a request channel and a reply channel into server
// and client roles. Each role owns both of its channels.
package rpc

import (
	"errors"
	"sync"
	"time"

	"github.com/danmuck/typechan/internal/channel"
	"github.com/danmuck/typechan/internal/framer"
	"github.com/danmuck/typechan/internal/observability"
	"github.com/danmuck/typechan/internal/protocol"
	"github.com/danmuck/typechan/internal/protocol/codec"
	"github.com/danmuck/typechan/internal/protocol/schema"
	"github.com/danmuck/typechan/internal/transport"
	"github.com/rs/zerolog/log"
)

// RequestName and ReplyName are the registry names of an RPC's channels.
func RequestName(name string) string { return name + ".request" }

func ReplyName(name string) string { return name + ".reply" }

type endpoint struct {
	name    string
	req     *framer.Framer
	rep     *framer.Framer
	closing sync.Once
	err     error
}

func (e *endpoint) close() error {
	e.closing.Do(func() {
		err := e.req.Close()
		if rerr := e.rep.Close(); err == nil {
			err = rerr
		}
		e.err = err
	})
	return e.err
}

func compile(reqFmt, repFmt string) ([]*schema.Descriptor, []*schema.Descriptor, error) {
	req, err := codec.CompileFormat(reqFmt)
	if err != nil {
		return nil, nil, err
	}
	rep, err := codec.CompileFormat(repFmt)
	if err != nil {
		return nil, nil, err
	}
	return req.Fields(), rep.Fields(), nil
}

type opener struct {
	reg    transport.Registry
	opts   []channel.Option
	opened []*channel.Channel
}

func (o *opener) open(name string, dir transport.Direction, fields []*schema.Descriptor) (*framer.Framer, error) {
	ch, err := channel.Open(o.reg, name, dir, o.opts...)
	if err != nil {
		return nil, err
	}
	o.opened = append(o.opened, ch)
	return framer.New(ch, fields)
}

func (o *opener) abort() {
	for _, ch := range o.opened {
		_ = ch.Close()
	}
}

// Server receives requests and sends replies. The caller drives every
// iteration.
type Server struct {
	endpoint
}

// BindServer opens the request input and reply output channels of name.
func BindServer(reg transport.Registry, name string, reqFields, repFields []*schema.Descriptor, opts ...channel.Option) (*Server, error) {
	o := &opener{reg: reg, opts: opts}
	req, err := o.open(RequestName(name), transport.Input, reqFields)
	if err != nil {
		o.abort()
		return nil, err
	}
	rep, err := o.open(ReplyName(name), transport.Output, repFields)
	if err != nil {
		o.abort()
		return nil, err
	}
	log.Debug().Str("rpc", name).Msg("server bound")
	return &Server{endpoint{name: name, req: req, rep: rep}}, nil
}

// BindServerFormat is BindServer with printf/scanf patterns.
func BindServerFormat(reg transport.Registry, name, reqFmt, repFmt string, opts ...channel.Option) (*Server, error) {
	reqFields, repFields, err := compile(reqFmt, repFmt)
	if err != nil {
		return nil, err
	}
	return BindServer(reg, name, reqFields, repFields, opts...)
}

func (s *Server) Name() string { return s.name }

// ReceiveRequest blocks for the next request and decodes it into dsts.
// It returns protocol.ErrEOF once the client has signalled the end.
func (s *Server) ReceiveRequest(dsts []any, realloc bool) (framer.Result, error) {
	return s.req.Recv(dsts, realloc)
}

// ReceiveRequestValues is ReceiveRequest into fresh values.
func (s *Server) ReceiveRequestValues() ([]any, error) {
	values, _, err := s.req.RecvValues()
	return values, err
}

func (s *Server) SendReply(values []any) error {
	return s.rep.Send(values)
}

// SendEOF tells the client no more replies follow.
func (s *Server) SendEOF() error {
	return s.rep.SendEOF()
}

// Close releases both channels. Only the first call has an effect.
func (s *Server) Close() error { return s.close() }

// Client sends requests and waits for replies, one call at a time.
type Client struct {
	endpoint
	mu sync.Mutex
}

// BindClient opens the reply input and request output channels of name.
// The reply side is opened first so a server dialing it finds a listener.
func BindClient(reg transport.Registry, name string, reqFields, repFields []*schema.Descriptor, opts ...channel.Option) (*Client, error) {
	o := &opener{reg: reg, opts: opts}
	rep, err := o.open(ReplyName(name), transport.Input, repFields)
	if err != nil {
		o.abort()
		return nil, err
	}
	req, err := o.open(RequestName(name), transport.Output, reqFields)
	if err != nil {
		o.abort()
		return nil, err
	}
	log.Debug().Str("rpc", name).Msg("client bound")
	return &Client{endpoint: endpoint{name: name, req: req, rep: rep}}, nil
}

// BindClientFormat is BindClient with printf/scanf patterns.
func BindClientFormat(reg transport.Registry, name, reqFmt, repFmt string, opts ...channel.Option) (*Client, error) {
	reqFields, repFields, err := compile(reqFmt, repFmt)
	if err != nil {
		return nil, err
	}
	return BindClient(reg, name, reqFields, repFields, opts...)
}

func (c *Client) Name() string { return c.name }

// Call sends req and blocks for the reply, decoding it into dsts. An EOF
// or transport failure on the reply channel before the reply arrives
// fails with *protocol.RpcClosedError.
func (c *Client) Call(req []any, dsts []any, realloc bool) (framer.Result, error) {
	if err := codec.CheckArity(c.rep.Fields(), len(dsts), "reply"); err != nil {
		return framer.Result{Status: protocol.StatusError}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	if err := c.req.Send(req); err != nil {
		observability.RecordCall(c.name, time.Since(start), false)
		return framer.Result{Status: protocol.StatusError}, err
	}
	res, err := c.rep.Recv(dsts, realloc)
	observability.RecordCall(c.name, time.Since(start), err == nil)
	if err != nil {
		return res, c.closed(err)
	}
	return res, nil
}

// CallValues is Call returning fresh reply values.
func (c *Client) CallValues(req []any) ([]any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	if err := c.req.Send(req); err != nil {
		observability.RecordCall(c.name, time.Since(start), false)
		return nil, err
	}
	values, _, err := c.rep.RecvValues()
	observability.RecordCall(c.name, time.Since(start), err == nil)
	if err != nil {
		return nil, c.closed(err)
	}
	return values, nil
}

func (c *Client) closed(err error) error {
	switch protocol.KindOf(err) {
	case protocol.KindEOF, protocol.KindTransport:
		log.Debug().Err(err).Str("rpc", c.name).Msg("reply channel closed mid-call")
		return &protocol.RpcClosedError{Name: c.name, Err: err}
	}
	if errors.Is(err, protocol.ErrClosed) {
		return &protocol.RpcClosedError{Name: c.name, Err: err}
	}
	return err
}

// SendEOF tells the server no more requests follow.
func (c *Client) SendEOF() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.req.SendEOF()
}

// Close releases both channels. Only the first call has an effect.
func (c *Client) Close() error { return c.close() }
