package transport

import (
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/danmuck/typechan/internal/protocol"
	"github.com/google/uuid"
	"github.com/nuclio/errors"
)

// Registry maps logical channel names to provisioned endpoints.
// Lookup fails with *protocol.ChannelNotFoundError for unknown names.
type Registry interface {
	Lookup(name string) (Endpoint, error)
}

// MemoryRegistry is a process-local registry filled by an orchestrator
// or a test.
type MemoryRegistry struct {
	mu        sync.RWMutex
	endpoints map[string]Endpoint
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{endpoints: make(map[string]Endpoint)}
}

func (r *MemoryRegistry) Lookup(name string) (Endpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ep, ok := r.endpoints[name]
	if !ok {
		return Endpoint{}, &protocol.ChannelNotFoundError{Name: name}
	}
	return ep, nil
}

// Register records ep under ep.Name, replacing any previous entry.
func (r *MemoryRegistry) Register(ep Endpoint) error {
	if ep.Name == "" {
		return errors.New("transport: endpoint name is required")
	}
	if !HasKind(ep.Kind) {
		return errors.Errorf("transport: unknown kind %q for %s", ep.Kind, ep.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endpoints[ep.Name] = ep
	return nil
}

// Provision registers name on a fresh in-memory queue.
func (r *MemoryRegistry) Provision(name string, maxMsgSize int) (Endpoint, error) {
	ep := Endpoint{Name: name, Kind: KindMemory, Address: uuid.NewString(), MaxMsgSize: maxMsgSize}
	return ep, r.Register(ep)
}

// ProvisionUnix registers name on a fresh unix socket path.
func (r *MemoryRegistry) ProvisionUnix(name string, maxMsgSize int) (Endpoint, error) {
	ep := Endpoint{Name: name, Kind: KindUnix, Address: SocketPath(), MaxMsgSize: maxMsgSize}
	return ep, r.Register(ep)
}

func (r *MemoryRegistry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.endpoints, name)
}

// Names lists registered names in sorted order.
func (r *MemoryRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.endpoints))
	for name := range r.endpoints {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// EnvRegistry resolves names from environment variables set by a parent
// process. Channel "rpc.request" with prefix "TYPECHAN_" reads
// TYPECHAN_RPC_REQUEST, whose value is an endpoint URL such as
// "unix:///tmp/x.sock?max=65536" or "memory://queue-1".
type EnvRegistry struct {
	Prefix string
	Getenv func(string) string
}

// DefaultEnvPrefix is the variable prefix used by NewEnvRegistry.
const DefaultEnvPrefix = "TYPECHAN_"

func NewEnvRegistry() *EnvRegistry {
	return &EnvRegistry{Prefix: DefaultEnvPrefix, Getenv: os.Getenv}
}

// EnvKey is the variable consulted for name.
func (r *EnvRegistry) EnvKey(name string) string {
	key := strings.Map(func(c rune) rune {
		switch {
		case c >= 'a' && c <= 'z':
			return c - 'a' + 'A'
		case c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			return c
		default:
			return '_'
		}
	}, name)
	return r.Prefix + key
}

func (r *EnvRegistry) Lookup(name string) (Endpoint, error) {
	getenv := r.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	raw := getenv(r.EnvKey(name))
	if raw == "" {
		return Endpoint{}, &protocol.ChannelNotFoundError{Name: name}
	}
	ep, err := ParseEndpoint(name, raw)
	if err != nil {
		return Endpoint{}, errors.Wrapf(err, "Can't parse %s", r.EnvKey(name))
	}
	return ep, nil
}

// ParseEndpoint parses "kind://address?max=N" into an endpoint named name.
func ParseEndpoint(name, raw string) (Endpoint, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, err
	}
	if !HasKind(u.Scheme) {
		return Endpoint{}, errors.Errorf("transport: unknown kind %q", u.Scheme)
	}
	ep := Endpoint{Name: name, Kind: u.Scheme, Address: u.Host + u.Path}
	if ep.Address == "" {
		return Endpoint{}, errors.Errorf("transport: endpoint %q has no address", raw)
	}
	if max := u.Query().Get("max"); max != "" {
		n, err := strconv.Atoi(max)
		if err != nil || n <= 0 {
			return Endpoint{}, errors.Errorf("transport: invalid max %q", max)
		}
		ep.MaxMsgSize = n
	}
	return ep, nil
}

// Chain consults registries in order and returns the first hit.
type Chain []Registry

func (c Chain) Lookup(name string) (Endpoint, error) {
	for _, r := range c {
		ep, err := r.Lookup(name)
		if err == nil {
			return ep, nil
		}
		if protocol.KindOf(err) != protocol.KindChannelNotFound {
			return Endpoint{}, err
		}
	}
	return Endpoint{}, &protocol.ChannelNotFoundError{Name: name}
}
