package transport

import (
	"context"
	"sync"
)

// DefaultQueueDepth is how many datagrams a memory queue buffers before
// Send blocks.
const DefaultQueueDepth = 1024

func init() {
	RegisterKind(KindMemory, dialMemory)
}

// Hub holds named in-process queues. Every memory endpoint with the same
// address shares one queue.
type Hub struct {
	mu     sync.Mutex
	queues map[string]*queue
}

// DefaultHub backs the memory transport kind.
var DefaultHub = NewHub()

func NewHub() *Hub {
	return &Hub{queues: make(map[string]*queue)}
}

func (h *Hub) queue(address string) *queue {
	h.mu.Lock()
	defer h.mu.Unlock()
	q, ok := h.queues[address]
	if !ok {
		q = &queue{ch: make(chan []byte, DefaultQueueDepth), hung: make(chan struct{})}
		h.queues[address] = q
	}
	return q
}

// Drop forgets the queue for address. Open transports keep their queue.
func (h *Hub) Drop(address string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.queues, address)
}

type queue struct {
	ch chan []byte

	mu      sync.Mutex
	writers int
	hung    chan struct{}
}

func (q *queue) attach() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.writers == 0 {
		select {
		case <-q.hung:
			q.hung = make(chan struct{})
		default:
		}
	}
	q.writers++
}

func (q *queue) detach() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.writers--
	if q.writers == 0 {
		close(q.hung)
	}
}

func (q *queue) hangup() <-chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.hung
}

type memoryTransport struct {
	q       *queue
	dir     Direction
	max     int
	closed  chan struct{}
	closing sync.Once
}

func dialMemory(_ context.Context, ep Endpoint, dir Direction, _ DialConfig) (Transport, error) {
	return DefaultHub.Open(ep, dir), nil
}

// Open attaches one side of ep to its queue.
func (h *Hub) Open(ep Endpoint, dir Direction) Transport {
	t := &memoryTransport{
		q:      h.queue(ep.Address),
		dir:    dir,
		max:    ep.Size(),
		closed: make(chan struct{}),
	}
	if dir == Output {
		t.q.attach()
	}
	return t
}

func (t *memoryTransport) MaxMsgSize() int { return t.max }

func (t *memoryTransport) Send(b []byte) error {
	if len(b) > t.max {
		return ErrMessageTooLarge
	}
	msg := make([]byte, len(b))
	copy(msg, b)
	select {
	case <-t.closed:
		return ErrClosed
	default:
	}
	select {
	case t.q.ch <- msg:
		return nil
	case <-t.closed:
		return ErrClosed
	}
}

func (t *memoryTransport) Recv() ([]byte, error) {
	select {
	case <-t.closed:
		return nil, ErrClosed
	default:
	}
	select {
	case b := <-t.q.ch:
		return b, nil
	case <-t.closed:
		return nil, ErrClosed
	case <-t.q.hangup():
		select {
		case b := <-t.q.ch:
			return b, nil
		default:
			return nil, ErrPeerClosed
		}
	}
}

func (t *memoryTransport) Close() error {
	t.closing.Do(func() {
		close(t.closed)
		if t.dir == Output {
			t.q.detach()
		}
	})
	return nil
}
