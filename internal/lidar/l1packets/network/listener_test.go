package network

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"
)

type recordingHandler struct {
	mu       sync.Mutex
	payloads [][]byte
	times    []time.Time
	failOn   int
	err      error
}

func (h *recordingHandler) HandlePacket(payload []byte, captured time.Time) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	cp := append([]byte(nil), payload...)
	h.payloads = append(h.payloads, cp)
	h.times = append(h.times, captured)
	if h.failOn > 0 && len(h.payloads) == h.failOn {
		return h.err
	}
	return nil
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.payloads)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestUDPListener_DeliversPayloads(t *testing.T) {
	sock := newMockSocket([]byte{1, 2, 3}, []byte{4, 5})
	h := &recordingHandler{}
	stats := NewPacketStats()
	fixed := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	l := NewUDPListener(UDPListenerConfig{
		Address: "127.0.0.1:2368",
		RcvBuf:  1 << 20,
		Handler: h,
		Stats:   stats,
		Socket:  sock.factory(),
		Now:     func() time.Time { return fixed },
	})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- l.Start(ctx) }()

	waitFor(t, func() bool { return h.count() == 2 })
	cancel()

	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("Start() = %v, want context.Canceled", err)
	}
	if !sock.isClosed() {
		t.Error("socket not closed after Start returned")
	}
	if sock.rcvBuf != 1<<20 {
		t.Errorf("receive buffer = %d", sock.rcvBuf)
	}
	if string(h.payloads[1]) != string([]byte{4, 5}) {
		t.Errorf("payload = %v", h.payloads[1])
	}
	if !h.times[0].Equal(fixed) {
		t.Errorf("captured = %v, want %v", h.times[0], fixed)
	}

	w := stats.GetAndReset()
	if w.Packets != 2 || w.Bytes != 5 {
		t.Errorf("stats = %+v", w)
	}
}

func TestUDPListener_HandlerErrorStops(t *testing.T) {
	fatal := errors.New("escalated")
	sock := newMockSocket([]byte{1}, []byte{2}, []byte{3})
	h := &recordingHandler{failOn: 2, err: fatal}

	l := NewUDPListener(UDPListenerConfig{Address: ":2368", Handler: h, Socket: sock.factory()})

	err := l.Start(context.Background())
	if !errors.Is(err, fatal) {
		t.Fatalf("Start() = %v, want %v", err, fatal)
	}
	if h.count() != 2 {
		t.Errorf("handled %d packets, want 2", h.count())
	}
}

func TestUDPListener_ReadErrorContinues(t *testing.T) {
	sock := newMockSocket([]byte{9})
	sock.readErr = errors.New("transient")
	h := &recordingHandler{}

	l := NewUDPListener(UDPListenerConfig{Address: ":2368", Handler: h, Socket: sock.factory()})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- l.Start(ctx) }()

	waitFor(t, func() bool { return h.count() == 1 })
	if err := l.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("Start() after Close = %v, want nil", err)
	}
}

func TestUDPListener_ListenError(t *testing.T) {
	l := NewUDPListener(UDPListenerConfig{
		Address: ":2368",
		Socket: func(*net.UDPAddr) (UDPSocket, error) {
			return nil, errors.New("address in use")
		},
	})
	if err := l.Start(context.Background()); err == nil {
		t.Fatal("expected listen error")
	}
	if l.LocalAddr() != nil {
		t.Error("LocalAddr should be nil when not bound")
	}
}

func TestUDPListener_RealSocket(t *testing.T) {
	h := &recordingHandler{}
	l := NewUDPListener(UDPListenerConfig{Address: "127.0.0.1:0", Handler: h})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- l.Start(ctx) }()

	waitFor(t, func() bool { return l.LocalAddr() != nil })
	conn, err := net.Dial("udp", l.LocalAddr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if _, err := conn.Write(make([]byte, 1206)); err != nil {
		t.Fatalf("write: %v", err)
	}

	waitFor(t, func() bool { return h.count() == 1 })
	if n := len(h.payloads[0]); n != 1206 {
		t.Errorf("payload size = %d, want 1206", n)
	}
	cancel()
	<-errCh
}

func TestPacketHandlerFunc(t *testing.T) {
	called := false
	var h PacketHandler = PacketHandlerFunc(func([]byte, time.Time) error {
		called = true
		return nil
	})
	if err := h.HandlePacket(nil, time.Time{}); err != nil || !called {
		t.Errorf("HandlePacket() = %v, called = %v", err, called)
	}
}
