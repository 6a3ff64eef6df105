// Package testutil builds synthetic VLP-16 payloads for tests.
package testutil

import (
	"encoding/binary"
)

// Raw VLP-16 payload geometry. Duplicated from the parse package so that
// parse's own tests can use these builders without an import cycle.
const (
	PacketSize         = 1206
	BlocksPerPacket    = 12
	BlockSize          = 100
	SequencesPerBlock  = 2
	FiringsPerSequence = 16
	UpperBank          = 0xEEFF
	ReturnStrongest    = 0x37
	ReturnLast         = 0x38
	ProductVLP16       = 0x22
)

// PacketBuilder assembles synthetic VLP-16 payloads.
type PacketBuilder struct {
	Azimuths   [BlocksPerPacket]uint16
	Flags      [BlocksPerPacket]uint16
	Stamp      uint32
	ReturnMode uint8
	ProductID  uint8

	// Distances[block][sequence][firing slot] in 2mm units.
	Distances    [BlocksPerPacket][SequencesPerBlock][FiringsPerSequence]uint16
	Reflectivity [BlocksPerPacket][SequencesPerBlock][FiringsPerSequence]uint8
}

// NewPacketBuilder returns a builder for a valid strongest-return packet
// whose block azimuths start at start and advance by step (raw 0.01° units,
// wrapped at 36000). Every return is set to distance and reflectivity 100.
func NewPacketBuilder(start, step uint16, distance uint16) *PacketBuilder {
	b := &PacketBuilder{
		ReturnMode: ReturnStrongest,
		ProductID:  ProductVLP16,
	}
	for bi := 0; bi < BlocksPerPacket; bi++ {
		b.Flags[bi] = UpperBank
		b.Azimuths[bi] = uint16((uint32(start) + uint32(bi)*uint32(step)) % 36000)
		for si := 0; si < SequencesPerBlock; si++ {
			for fi := 0; fi < FiringsPerSequence; fi++ {
				b.Distances[bi][si][fi] = distance
				b.Reflectivity[bi][si][fi] = 100
			}
		}
	}
	return b
}

// Bytes serialises the packet.
func (b *PacketBuilder) Bytes() []byte {
	buf := make([]byte, PacketSize)
	for bi := 0; bi < BlocksPerPacket; bi++ {
		off := bi * BlockSize
		binary.LittleEndian.PutUint16(buf[off:], b.Flags[bi])
		binary.LittleEndian.PutUint16(buf[off+2:], b.Azimuths[bi])
		for si := 0; si < SequencesPerBlock; si++ {
			for fi := 0; fi < FiringsPerSequence; fi++ {
				p := off + 4 + si*FiringsPerSequence*3 + fi*3
				binary.LittleEndian.PutUint16(buf[p:], b.Distances[bi][si][fi])
				buf[p+2] = b.Reflectivity[bi][si][fi]
			}
		}
	}
	binary.LittleEndian.PutUint32(buf[1200:], b.Stamp)
	buf[1204] = b.ReturnMode
	buf[1205] = b.ProductID
	return buf
}

// RotationPackets returns n packets whose block azimuths continue one
// another with a constant step, starting at start.
func RotationPackets(n int, start, step uint16, distance uint16) [][]byte {
	out := make([][]byte, 0, n)
	az := uint32(start)
	for i := 0; i < n; i++ {
		b := NewPacketBuilder(uint16(az%36000), step, distance)
		b.Stamp = uint32(i) * 1327
		out = append(out, b.Bytes())
		az += uint32(step) * BlocksPerPacket
	}
	return out
}
