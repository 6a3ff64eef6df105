package network

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestPacketStats_GetAndReset(t *testing.T) {
	ps := NewPacketStats()
	ps.AddPacket(1206)
	ps.AddPacket(1206)
	ps.AddDropped()

	w := ps.GetAndReset()
	if w.Packets != 2 || w.Bytes != 2412 || w.Dropped != 1 {
		t.Errorf("window = %+v", w)
	}
	if w.Duration < 0 {
		t.Errorf("duration = %v", w.Duration)
	}
	if w := ps.GetAndReset(); w.Packets != 0 || w.Bytes != 0 || w.Dropped != 0 {
		t.Errorf("counters not reset: %+v", w)
	}
}

func TestStatsWindow_String(t *testing.T) {
	w := StatsWindow{Packets: 7540, Bytes: 754 * 1206 * 10, Dropped: 3, Duration: 10 * time.Second}
	s := w.String()
	for _, want := range []string{"754 packets/s", "3 dropped on forward", "MB/s"} {
		if !strings.Contains(s, want) {
			t.Errorf("%q does not contain %q", s, want)
		}
	}
}

func TestPacketStats_LogStats(t *testing.T) {
	var diag bytes.Buffer
	SetLogWriters(nil, &diag, nil)
	defer SetLogWriters(nil, nil, nil)

	ps := NewPacketStats()
	ps.LogStats()
	if diag.Len() != 0 {
		t.Errorf("idle window logged: %q", diag.String())
	}

	ps.AddPacket(100)
	ps.LogStats()
	if !strings.Contains(diag.String(), "[network] ") || !strings.Contains(diag.String(), "lidar stats") {
		t.Errorf("diag log = %q", diag.String())
	}
}

func TestFormatWithCommas(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{1234567, "1,234,567"},
		{-28800, "-28,800"},
	}
	for _, tt := range tests {
		if got := formatWithCommas(tt.in); got != tt.want {
			t.Errorf("formatWithCommas(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
