package network

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// PacketStats counts datagrams seen by the listener and forwarder. It is
// safe for concurrent use.
type PacketStats struct {
	mu        sync.Mutex
	packets   int64
	bytes     int64
	dropped   int64
	lastReset time.Time
}

// NewPacketStats creates a zeroed counter set.
func NewPacketStats() *PacketStats {
	return &PacketStats{lastReset: time.Now()}
}

// AddPacket records one received datagram of the given size.
func (ps *PacketStats) AddPacket(bytes int) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.packets++
	ps.bytes += int64(bytes)
}

// AddDropped records one datagram lost on the forward path.
func (ps *PacketStats) AddDropped() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.dropped++
}

// StatsWindow is the content of one reporting interval.
type StatsWindow struct {
	Packets  int64
	Bytes    int64
	Dropped  int64
	Duration time.Duration
}

// String formats the window as per-second rates.
func (w StatsWindow) String() string {
	secs := w.Duration.Seconds()
	if secs <= 0 {
		secs = 1
	}
	s := fmt.Sprintf("%.2f MB/s, %s packets/s",
		float64(w.Bytes)/secs/(1024*1024), formatWithCommas(int64(float64(w.Packets)/secs)))
	if w.Dropped > 0 {
		s += fmt.Sprintf(", %d dropped on forward", w.Dropped)
	}
	return s
}

// GetAndReset returns the current window and starts a new one.
func (ps *PacketStats) GetAndReset() StatsWindow {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	now := time.Now()
	w := StatsWindow{
		Packets:  ps.packets,
		Bytes:    ps.bytes,
		Dropped:  ps.dropped,
		Duration: now.Sub(ps.lastReset),
	}
	ps.packets, ps.bytes, ps.dropped = 0, 0, 0
	ps.lastReset = now
	return w
}

// LogStats reports and resets the current window. Idle windows are not
// logged.
func (ps *PacketStats) LogStats() {
	w := ps.GetAndReset()
	if w.Packets == 0 && w.Dropped == 0 {
		return
	}
	diagf("lidar stats: %s", w)
}

func formatWithCommas(n int64) string {
	s := fmt.Sprintf("%d", n)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
