package network

import (
	"net"
	"time"
)

// UDPSocket is the subset of *net.UDPConn the listener needs. Tests
// substitute an in-memory socket.
type UDPSocket interface {
	ReadFromUDP(b []byte) (n int, addr *net.UDPAddr, err error)
	SetReadBuffer(bytes int) error
	SetReadDeadline(t time.Time) error
	LocalAddr() net.Addr
	Close() error
}

// SocketFactory opens a UDP socket bound to addr.
type SocketFactory func(addr *net.UDPAddr) (UDPSocket, error)

// ListenUDP is the default SocketFactory.
func ListenUDP(addr *net.UDPAddr) (UDPSocket, error) {
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
