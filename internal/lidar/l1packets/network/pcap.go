package network

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// pcapngMagic is the section header block type that opens a pcapng file.
var pcapngMagic = []byte{0x0A, 0x0D, 0x0D, 0x0A}

// ReplayConfig configures ReadPCAPFile.
type ReplayConfig struct {
	// Port selects UDP datagrams whose source or destination port matches.
	// Zero means DefaultPort.
	Port int
	// SpeedMultiplier paces replay against capture timestamps (1.0 =
	// real time, 2.0 = twice as fast). Zero or less replays as fast as
	// the handler allows.
	SpeedMultiplier float64
	Stats           *PacketStats
	Forwarder       *PacketForwarder
}

// ReplayResult summarises one replay.
type ReplayResult struct {
	Frames   int // capture records read
	Packets  int // sensor payloads handed to the handler
	Skipped  int // non-UDP or other-port records
	Duration time.Duration
}

// packetSource yields captured frames from either pcap flavour.
type packetSource interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

func openPacketSource(r io.Reader) (packetSource, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(4)
	if err != nil {
		return nil, fmt.Errorf("read capture header: %w", err)
	}
	if bytes.Equal(magic, pcapngMagic) {
		return pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
	}
	return pcapgo.NewReader(br)
}

// ReadPCAPFile replays the UDP payloads of a capture file through handler,
// stamping each with its capture timestamp. Both pcap and pcapng files are
// accepted. Replay stops at end of file, on cancellation, or when the
// handler returns an error.
func ReadPCAPFile(ctx context.Context, path string, cfg ReplayConfig, handler PacketHandler) (res ReplayResult, err error) {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}

	f, err := os.Open(path)
	if err != nil {
		return res, fmt.Errorf("open capture %s: %w", path, err)
	}
	defer f.Close()

	src, err := openPacketSource(f)
	if err != nil {
		return res, fmt.Errorf("open capture %s: %w", path, err)
	}
	linkType := src.LinkType()
	diagf("replaying %s (link type %s, udp port %d, speed %.1fx)", path, linkType, cfg.Port, cfg.SpeedMultiplier)

	start := time.Now()
	var firstCapture time.Time
	defer func() { res.Duration = time.Since(start) }()

	for {
		if err := ctx.Err(); err != nil {
			opsf("replay of %s cancelled after %d packets", path, res.Packets)
			return res, err
		}

		data, ci, err := src.ReadPacketData()
		if errors.Is(err, io.EOF) {
			diagf("replay of %s complete: %d packets from %d frames in %v",
				path, res.Packets, res.Frames, time.Since(start))
			return res, nil
		}
		if err != nil {
			return res, fmt.Errorf("read capture %s frame %d: %w", path, res.Frames+1, err)
		}
		res.Frames++

		payload, ok := udpPayload(data, linkType, cfg.Port)
		if !ok {
			res.Skipped++
			continue
		}

		if cfg.SpeedMultiplier > 0 {
			if firstCapture.IsZero() {
				firstCapture = ci.Timestamp
			}
			due := start.Add(time.Duration(float64(ci.Timestamp.Sub(firstCapture)) / cfg.SpeedMultiplier))
			if wait := time.Until(due); wait > 0 {
				select {
				case <-ctx.Done():
					return res, ctx.Err()
				case <-time.After(wait):
				}
			}
		}

		if cfg.Stats != nil {
			cfg.Stats.AddPacket(len(payload))
		}
		if cfg.Forwarder != nil {
			cfg.Forwarder.ForwardAsync(payload)
		}

		res.Packets++
		if err := handler.HandlePacket(payload, ci.Timestamp); err != nil {
			return res, err
		}
		if res.Packets%10000 == 0 {
			diagf("replay progress: %d packets in %v", res.Packets, time.Since(start))
		}
	}
}

// udpPayload decodes one captured frame and returns its UDP payload when
// either port matches.
func udpPayload(data []byte, linkType layers.LinkType, port int) ([]byte, bool) {
	pkt := gopacket.NewPacket(data, linkType, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
	udpLayer := pkt.Layer(layers.LayerTypeUDP)
	if udpLayer == nil {
		return nil, false
	}
	udp, ok := udpLayer.(*layers.UDP)
	if !ok {
		return nil, false
	}
	if int(udp.DstPort) != port && int(udp.SrcPort) != port {
		return nil, false
	}
	if len(udp.Payload) == 0 {
		return nil, false
	}
	return udp.Payload, true
}
