// Package transport moves whole datagrams between processes and maps
// logical channel names to provisioned endpoints.
package transport

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/nuclio/errors"
)

// Transport kinds.
const (
	KindMemory = "memory"
	KindUnix   = "unix"
)

// DefaultMaxMsgSize is the atomic datagram size used when an endpoint
// does not set one.
const DefaultMaxMsgSize = 64 * 1024

var (
	ErrClosed          = errors.New("transport: closed")
	ErrPeerClosed      = errors.New("transport: peer closed")
	ErrMessageTooLarge = errors.New("transport: datagram exceeds max message size")
)

// Transport is an ordered, reliable datagram pipe with a bounded atomic
// message size. Send and Recv block until the datagram is handed off or
// arrives.
type Transport interface {
	Send(b []byte) error
	Recv() ([]byte, error)
	MaxMsgSize() int
	Close() error
}

// Direction is the role a process plays on a channel.
type Direction int

const (
	Input Direction = iota
	Output
)

func (d Direction) String() string {
	if d == Output {
		return "output"
	}
	return "input"
}

// Endpoint is a provisioned transport address.
type Endpoint struct {
	Name       string
	Kind       string
	Address    string
	MaxMsgSize int
}

// Size returns the endpoint datagram size with the default applied.
func (e Endpoint) Size() int {
	if e.MaxMsgSize > 0 {
		return e.MaxMsgSize
	}
	return DefaultMaxMsgSize
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s://%s?max=%d", e.Kind, e.Address, e.Size())
}

// Dialer opens one side of an endpoint.
type Dialer func(ctx context.Context, ep Endpoint, dir Direction, cfg DialConfig) (Transport, error)

var (
	kindsMu sync.RWMutex
	kinds   = map[string]Dialer{}
)

// RegisterKind installs the dialer for a transport kind.
func RegisterKind(kind string, dial Dialer) {
	kindsMu.Lock()
	defer kindsMu.Unlock()
	kinds[kind] = dial
}

// HasKind reports whether a dialer is installed for kind.
func HasKind(kind string) bool {
	kindsMu.RLock()
	defer kindsMu.RUnlock()
	_, ok := kinds[kind]
	return ok
}

// AvailableKinds lists installed transport kinds.
func AvailableKinds() []string {
	kindsMu.RLock()
	defer kindsMu.RUnlock()
	out := make([]string, 0, len(kinds))
	for kind := range kinds {
		out = append(out, kind)
	}
	sort.Strings(out)
	return out
}

// Dial opens dir's side of ep with the dialer registered for ep.Kind.
func Dial(ctx context.Context, ep Endpoint, dir Direction, cfg DialConfig) (Transport, error) {
	kindsMu.RLock()
	dial, ok := kinds[ep.Kind]
	kindsMu.RUnlock()
	if !ok {
		return nil, errors.Errorf("transport: unknown kind %q for %s", ep.Kind, ep.Name)
	}
	return dial(ctx, ep, dir, cfg)
}
