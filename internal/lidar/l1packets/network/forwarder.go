package network

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"
)

// forwardQueueSize is the number of datagrams buffered for mirroring.
const forwardQueueSize = 1000

// PacketForwarder mirrors raw sensor datagrams to another UDP address, for
// example a visualiser on a second host. Forwarding never blocks ingest:
// when the queue is full the datagram is dropped and counted.
type PacketForwarder struct {
	conn        net.Conn
	ch          chan []byte
	stats       *PacketStats
	logInterval time.Duration
	address     string

	closeOnce sync.Once
	done      chan struct{}
}

// NewPacketForwarder dials addr:port. stats may be nil.
func NewPacketForwarder(addr string, port int, stats *PacketStats, logInterval time.Duration) (*PacketForwarder, error) {
	address := net.JoinHostPort(addr, fmt.Sprint(port))
	raddr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, fmt.Errorf("resolve forward address %s: %w", address, err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("dial forward address %s: %w", address, err)
	}
	return newPacketForwarder(conn, address, stats, logInterval), nil
}

func newPacketForwarder(conn net.Conn, address string, stats *PacketStats, logInterval time.Duration) *PacketForwarder {
	if stats == nil {
		stats = NewPacketStats()
	}
	if logInterval <= 0 {
		logInterval = time.Minute
	}
	return &PacketForwarder{
		conn:        conn,
		ch:          make(chan []byte, forwardQueueSize),
		stats:       stats,
		logInterval: logInterval,
		address:     address,
		done:        make(chan struct{}),
	}
}

// Start runs the send loop until ctx is cancelled or Close is called.
func (f *PacketForwarder) Start(ctx context.Context) {
	go func() {
		var failed int
		var lastErr error
		ticker := time.NewTicker(f.logInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-f.done:
				return
			case pkt := <-f.ch:
				if _, err := f.conn.Write(pkt); err != nil {
					failed++
					lastErr = err
				}
			case <-ticker.C:
				if failed > 0 {
					opsf("failed to forward %d packets to %s (latest: %v)", failed, f.address, lastErr)
					failed, lastErr = 0, nil
				}
			}
		}
	}()
	opsf("forwarding packets to %s", f.address)
}

// ForwardAsync queues a copy of pkt for sending.
func (f *PacketForwarder) ForwardAsync(pkt []byte) {
	cp := make([]byte, len(pkt))
	copy(cp, pkt)

	select {
	case f.ch <- cp:
	default:
		f.stats.AddDropped()
	}
}

// Close stops the send loop and closes the connection. It is safe to call
// more than once.
func (f *PacketForwarder) Close() error {
	var err error
	f.closeOnce.Do(func() {
		close(f.done)
		err = f.conn.Close()
	})
	return err
}
