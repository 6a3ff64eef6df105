package network

import (
	"net"
	"sync"
	"time"
)

// timeoutError satisfies net.Error with Timeout() == true.
type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

// mockSocket serves datagrams pushed onto in; an empty queue behaves like a
// read deadline expiring.
type mockSocket struct {
	in chan []byte

	mu       sync.Mutex
	closed   bool
	rcvBuf   int
	readErr  error
	deadline time.Time
}

func newMockSocket(packets ...[]byte) *mockSocket {
	s := &mockSocket{in: make(chan []byte, len(packets)+16)}
	for _, p := range packets {
		s.in <- p
	}
	return s
}

func (s *mockSocket) ReadFromUDP(b []byte) (int, *net.UDPAddr, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, nil, net.ErrClosed
	}
	if err := s.readErr; err != nil {
		s.readErr = nil
		s.mu.Unlock()
		return 0, nil, err
	}
	s.mu.Unlock()

	select {
	case p := <-s.in:
		return copy(b, p), &net.UDPAddr{IP: net.IPv4(192, 168, 1, 201), Port: DefaultPort}, nil
	case <-time.After(5 * time.Millisecond):
		return 0, nil, &net.OpError{Op: "read", Net: "udp", Err: timeoutError{}}
	}
}

func (s *mockSocket) SetReadBuffer(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rcvBuf = n
	return nil
}

func (s *mockSocket) SetReadDeadline(t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deadline = t
	return nil
}

func (s *mockSocket) LocalAddr() net.Addr {
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: DefaultPort}
}

func (s *mockSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *mockSocket) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *mockSocket) factory() SocketFactory {
	return func(*net.UDPAddr) (UDPSocket, error) { return s, nil }
}
