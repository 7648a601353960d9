package transport

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/typechan/internal/protocol"
	"github.com/danmuck/typechan/internal/testutil/testlog"
	"github.com/stretchr/testify/require"
)

func openPair(t *testing.T, ep Endpoint) (in, out Transport) {
	t.Helper()
	cfg := DefaultDialConfig()
	in, err := Dial(context.Background(), ep, Input, cfg)
	require.NoError(t, err)
	out, err = Dial(context.Background(), ep, Output, cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = out.Close()
		_ = in.Close()
	})
	return in, out
}

func TestMemoryTransportOrderAndCopy(t *testing.T) {
	testlog.Start(t)
	reg := NewMemoryRegistry()
	ep, err := reg.Provision("mem", 16)
	require.NoError(t, err)
	in, out := openPair(t, ep)

	msg := []byte("first")
	require.NoError(t, out.Send(msg))
	msg[0] = 'X'
	require.NoError(t, out.Send([]byte{}))
	require.NoError(t, out.Send([]byte("third")))

	got, err := in.Recv()
	require.NoError(t, err)
	require.Equal(t, "first", string(got))
	got, err = in.Recv()
	require.NoError(t, err)
	require.Empty(t, got)
	got, err = in.Recv()
	require.NoError(t, err)
	require.Equal(t, "third", string(got))

	require.ErrorIs(t, out.Send(make([]byte, 17)), ErrMessageTooLarge)
	require.Equal(t, 16, out.MaxMsgSize())
}

func TestMemoryTransportPeerClosedAfterDrain(t *testing.T) {
	testlog.Start(t)
	ep := Endpoint{Name: "hangup", Kind: KindMemory, Address: "hangup-test"}
	hub := NewHub()
	in := hub.Open(ep, Input)
	out := hub.Open(ep, Output)

	require.NoError(t, out.Send([]byte("last")))
	require.NoError(t, out.Close())
	require.NoError(t, out.Close())

	got, err := in.Recv()
	require.NoError(t, err)
	require.Equal(t, "last", string(got))
	_, err = in.Recv()
	require.ErrorIs(t, err, ErrPeerClosed)

	require.NoError(t, in.Close())
	_, err = in.Recv()
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, out.Send(nil), ErrClosed)
}

func TestMemoryTransportCloseUnblocksRecv(t *testing.T) {
	testlog.Start(t)
	hub := NewHub()
	ep := Endpoint{Name: "block", Kind: KindMemory, Address: "block"}
	out := hub.Open(ep, Output)
	defer out.Close()
	in := hub.Open(ep, Input)

	done := make(chan error, 1)
	go func() {
		_, err := in.Recv()
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, in.Close())
	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("recv did not return after close")
	}
}

func TestUnixTransportRoundTrip(t *testing.T) {
	testlog.Start(t)
	reg := NewMemoryRegistry()
	ep, err := reg.ProvisionUnix("sock", 1024)
	require.NoError(t, err)
	in, out := openPair(t, ep)

	payloads := [][]byte{[]byte("alpha"), {}, make([]byte, 1024)}
	for _, p := range payloads {
		require.NoError(t, out.Send(p))
	}
	for _, want := range payloads {
		got, err := in.Recv()
		require.NoError(t, err)
		require.Equal(t, len(want), len(got))
	}
	require.ErrorIs(t, out.Send(make([]byte, 1025)), ErrMessageTooLarge)

	require.NoError(t, out.Close())
	_, err = in.Recv()
	require.ErrorIs(t, err, ErrPeerClosed)
	require.NoError(t, in.Close())
	_, statErr := os.Stat(ep.Address)
	require.True(t, os.IsNotExist(statErr))
}

func TestUnixOversizedDatagramKeepsStreamAligned(t *testing.T) {
	testlog.Start(t)
	reg := NewMemoryRegistry()
	small, err := reg.ProvisionUnix("narrow", 16)
	require.NoError(t, err)
	wide := small
	wide.MaxMsgSize = 64

	cfg := DefaultDialConfig()
	in, err := Dial(context.Background(), small, Input, cfg)
	require.NoError(t, err)
	defer in.Close()
	out, err := Dial(context.Background(), wide, Output, cfg)
	require.NoError(t, err)
	defer out.Close()

	require.NoError(t, out.Send(make([]byte, 40)))
	require.NoError(t, out.Send([]byte("next")))

	_, err = in.Recv()
	require.ErrorIs(t, err, ErrMessageTooLarge)
	got, err := in.Recv()
	require.NoError(t, err)
	require.Equal(t, "next", string(got))
}

func TestUnixDialTimesOutWithoutListener(t *testing.T) {
	testlog.Start(t)
	ep := Endpoint{Name: "nobody", Kind: KindUnix, Address: SocketPath()}
	cfg := DefaultDialConfig()
	cfg.ConnectTimeout = 100 * time.Millisecond
	_, err := Dial(context.Background(), ep, Output, cfg)
	require.Error(t, err)
}

func TestUnixDialWaitsForLateListener(t *testing.T) {
	testlog.Start(t)
	ep := Endpoint{Name: "late", Kind: KindUnix, Address: SocketPath()}

	type result struct {
		tr  Transport
		err error
	}
	dialed := make(chan result, 1)
	go func() {
		tr, err := Dial(context.Background(), ep, Output, DefaultDialConfig())
		dialed <- result{tr, err}
	}()
	time.Sleep(50 * time.Millisecond)
	in, err := Dial(context.Background(), ep, Input, DefaultDialConfig())
	require.NoError(t, err)
	defer in.Close()

	res := <-dialed
	require.NoError(t, res.err)
	defer res.tr.Close()
	require.NoError(t, res.tr.Send([]byte("hi")))
	got, err := in.Recv()
	require.NoError(t, err)
	require.Equal(t, "hi", string(got))
}

func TestRegistries(t *testing.T) {
	testlog.Start(t)
	mem := NewMemoryRegistry()
	_, err := mem.Provision("a", 0)
	require.NoError(t, err)
	require.Error(t, mem.Register(Endpoint{Name: "bad", Kind: "carrier-pigeon", Address: "x"}))

	env := &EnvRegistry{Prefix: "TC_", Getenv: func(key string) string {
		if key == "TC_RPC_REQUEST" {
			return "unix:///tmp/req.sock?max=2048"
		}
		if key == "TC_BROKEN" {
			return "memory://q?max=zero"
		}
		return ""
	}}
	require.Equal(t, "TC_RPC_REQUEST", env.EnvKey("rpc.request"))

	chain := Chain{mem, env}
	ep, err := chain.Lookup("a")
	require.NoError(t, err)
	require.Equal(t, KindMemory, ep.Kind)
	require.Equal(t, DefaultMaxMsgSize, ep.Size())

	ep, err = chain.Lookup("rpc.request")
	require.NoError(t, err)
	require.Equal(t, Endpoint{Name: "rpc.request", Kind: KindUnix, Address: "/tmp/req.sock", MaxMsgSize: 2048}, ep)

	_, err = chain.Lookup("missing")
	require.Equal(t, protocol.KindChannelNotFound, protocol.KindOf(err))
	_, err = chain.Lookup("broken")
	require.Error(t, err)
	require.NotEqual(t, protocol.KindChannelNotFound, protocol.KindOf(err))

	mem.Remove("a")
	require.Empty(t, mem.Names())
	_, err = Dial(context.Background(), Endpoint{Name: "x", Kind: "nope"}, Input, DefaultDialConfig())
	require.Error(t, err)
	require.Equal(t, []string{KindMemory, KindUnix}, AvailableKinds())
}

func TestFileRegistryReload(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "registry.toml")
	write := func(content string) {
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	write(`
[dial]
connect_timeout = "1s"

[[channels]]
name = "one"
kind = "memory"
address = "q1"
`)
	reg, err := OpenFileRegistry(path)
	require.NoError(t, err)
	defer reg.Close()
	require.Equal(t, time.Second, reg.DialConfig().ConnectTimeout)

	var mu sync.Mutex
	var seen [][]string
	reg.OnChange(func(names []string) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, names)
	})
	require.NoError(t, reg.Watch())

	write(`
[[channels]]
name = "two"
kind = "unix"
address = "/tmp/two.sock"
max_msg_size = 512
`)
	require.Eventually(t, func() bool {
		_, err := reg.Lookup("two")
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)
	require.Equal(t, []string{"two"}, reg.Names())
	_, err = reg.Lookup("one")
	require.Equal(t, protocol.KindChannelNotFound, protocol.KindOf(err))
	require.NoError(t, reg.Close())
	mu.Lock()
	require.Contains(t, seen, []string{"two"})
	mu.Unlock()

	write(`[[channels]]
name = "broken"
`)
	require.Error(t, reg.Reload())
	ep, err := reg.Lookup("two")
	require.NoError(t, err)
	require.Equal(t, 512, ep.MaxMsgSize)
	require.NoError(t, reg.Close())
	require.NoError(t, reg.Close())
}

func TestNextBackoffDelay(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{InitialDelay: 10 * time.Millisecond, Multiplier: 2, MaxDelay: 50 * time.Millisecond}
	require.Equal(t, 10*time.Millisecond, NextBackoffDelay(cfg, 1, nil))
	require.Equal(t, 20*time.Millisecond, NextBackoffDelay(cfg, 2, nil))
	require.Equal(t, 50*time.Millisecond, NextBackoffDelay(cfg, 5, nil))

	cfg.Jitter = true
	d := NextBackoffDelay(cfg, 2, rand.New(rand.NewSource(1)))
	require.GreaterOrEqual(t, d, 10*time.Millisecond)
	require.Less(t, d, 30*time.Millisecond)
}
