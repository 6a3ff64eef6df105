package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

// DefaultPort is the VLP-16 data port.
const DefaultPort = 2368

// maxDatagramSize leaves headroom above the 1206-byte sensor payload so
// oversized datagrams are seen (and rejected) whole.
const maxDatagramSize = 2048

// readTimeout bounds each blocking read so cancellation is noticed.
const readTimeout = 100 * time.Millisecond

// PacketHandler consumes one datagram payload together with its receive
// time. Any error it returns is fatal and stops the source; per-packet
// problems must be absorbed by the handler.
type PacketHandler interface {
	HandlePacket(payload []byte, captured time.Time) error
}

// PacketHandlerFunc adapts a function to PacketHandler.
type PacketHandlerFunc func(payload []byte, captured time.Time) error

// HandlePacket calls f.
func (f PacketHandlerFunc) HandlePacket(payload []byte, captured time.Time) error {
	return f(payload, captured)
}

// UDPListenerConfig configures a UDPListener.
type UDPListenerConfig struct {
	Address     string // host:port to bind, e.g. ":2368"
	RcvBuf      int    // socket receive buffer in bytes; 0 leaves the OS default
	LogInterval time.Duration
	Handler     PacketHandler
	Stats       *PacketStats
	Forwarder   *PacketForwarder
	Socket      SocketFactory // defaults to ListenUDP
	Now         func() time.Time
}

// UDPListener receives sensor datagrams and passes each payload to its
// handler on the receiving goroutine.
type UDPListener struct {
	address     string
	rcvBuf      int
	logInterval time.Duration
	handler     PacketHandler
	stats       *PacketStats
	forwarder   *PacketForwarder
	socket      SocketFactory
	now         func() time.Time

	connMu sync.RWMutex
	conn   UDPSocket
}

// NewUDPListener creates a listener; call Start to begin receiving.
func NewUDPListener(cfg UDPListenerConfig) *UDPListener {
	l := &UDPListener{
		address:     cfg.Address,
		rcvBuf:      cfg.RcvBuf,
		logInterval: cfg.LogInterval,
		handler:     cfg.Handler,
		stats:       cfg.Stats,
		forwarder:   cfg.Forwarder,
		socket:      cfg.Socket,
		now:         cfg.Now,
	}
	if l.logInterval == 0 {
		l.logInterval = time.Minute
	}
	if l.stats == nil {
		l.stats = NewPacketStats()
	}
	if l.socket == nil {
		l.socket = ListenUDP
	}
	if l.now == nil {
		l.now = time.Now
	}
	return l
}

// Start binds the socket and receives until ctx is cancelled, the socket
// is closed, or the handler returns an error. Cancellation returns
// ctx.Err(); closing the listener returns nil.
func (l *UDPListener) Start(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", l.address)
	if err != nil {
		return fmt.Errorf("resolve UDP address %s: %w", l.address, err)
	}
	conn, err := l.socket(addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", l.address, err)
	}
	l.setConn(conn)
	defer l.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if l.rcvBuf > 0 {
		if err := conn.SetReadBuffer(l.rcvBuf); err != nil {
			opsf("failed to set receive buffer to %d bytes: %v", l.rcvBuf, err)
		}
	}
	opsf("UDP listener started on %s", conn.LocalAddr())

	if l.forwarder != nil {
		l.forwarder.Start(ctx)
	}
	go l.logStats(ctx)

	buf := make([]byte, maxDatagramSize)
	var deadlineErrLogged bool
	for {
		if err := ctx.Err(); err != nil {
			opsf("UDP listener stopping: %v", err)
			return err
		}

		if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil && !deadlineErrLogged {
			opsf("failed to set read deadline: %v", err)
			deadlineErrLogged = true
		}

		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			opsf("UDP read error: %v", err)
			continue
		}

		captured := l.now()
		payload := buf[:n]
		l.stats.AddPacket(n)
		tracef("datagram from %v: %d bytes", from, n)

		if l.forwarder != nil {
			l.forwarder.ForwardAsync(payload)
		}
		if l.handler != nil {
			if err := l.handler.HandlePacket(payload, captured); err != nil {
				return err
			}
		}
	}
}

func (l *UDPListener) logStats(ctx context.Context) {
	ticker := time.NewTicker(l.logInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.stats.LogStats()
		}
	}
}

func (l *UDPListener) setConn(conn UDPSocket) {
	l.connMu.Lock()
	defer l.connMu.Unlock()
	l.conn = conn
}

// LocalAddr returns the bound address, or nil before Start.
func (l *UDPListener) LocalAddr() net.Addr {
	l.connMu.RLock()
	defer l.connMu.RUnlock()
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr()
}

// Close releases the socket. It is safe to call more than once.
func (l *UDPListener) Close() error {
	l.connMu.Lock()
	conn := l.conn
	l.conn = nil
	l.connMu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}
