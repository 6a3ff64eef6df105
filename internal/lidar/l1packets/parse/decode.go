package parse

import (
	"fmt"
	"sync/atomic"
	"time"
)

// FiringSequenceStamped is one decoded firing sequence.
type FiringSequenceStamped struct {
	Time     time.Time      // capture time + index × FiringCycle
	Azimuth  float64        // radians, [0, 2π)
	Sequence FiringSequence // firing-order returns
}

// Decoded holds the 24 firing sequences of one packet in firing order.
type Decoded [SEQUENCES_PER_PACKET]FiringSequenceStamped

// Result is the outcome of decoding one packet. It always carries all 24
// records; advisory findings are listed in Diagnostics.
type Result struct {
	Records     Decoded
	PacketStamp uint32 // raw top-of-hour microsecond stamp
	ReturnMode  ReturnMode
	Diagnostics []Diagnostic
}

// Parser decodes VLP-16 payloads. It is stateless apart from counters, so a
// single Parser may be shared; counters are updated atomically.
type Parser struct {
	packets     atomic.Int64
	rejected    atomic.Int64
	diagnostics atomic.Int64
}

// NewParser creates a Parser.
func NewParser() *Parser {
	return &Parser{}
}

// ParserStats is a snapshot of parser counters.
type ParserStats struct {
	Packets     int64
	Rejected    int64
	Diagnostics int64
}

// Stats returns the current counters.
func (p *Parser) Stats() ParserStats {
	return ParserStats{
		Packets:     p.packets.Load(),
		Rejected:    p.rejected.Load(),
		Diagnostics: p.diagnostics.Load(),
	}
}

// DecodePacket decodes one payload captured at the given time.
//
// Structural failures (ErrMalformedPacket, ErrUnsupportedDeviceMode) reject
// the whole packet. Bad block flags, out-of-range azimuths and interpolation
// anomalies are reported as diagnostics and do not stop the decode.
func (p *Parser) DecodePacket(data []byte, captured time.Time) (*Result, error) {
	p.packets.Add(1)

	pkt, err := ReadPacket(data)
	if err != nil {
		p.rejected.Add(1)
		return nil, err
	}
	if err := pkt.CheckDeviceMode(); err != nil {
		p.rejected.Add(1)
		opsf("rejecting packet: %v", err)
		return nil, err
	}

	res := &Result{
		PacketStamp: pkt.Stamp,
		ReturnMode:  ReturnMode(pkt.ReturnMode),
	}

	for bi := range pkt.Blocks {
		block := &pkt.Blocks[bi]
		if block.Azimuth > MAX_RAW_AZIMUTH {
			res.Diagnostics = append(res.Diagnostics, Diagnostic{
				Kind:  MalformedBlock,
				Index: bi,
				Msg:   fmt.Sprintf("invalid raw azimuth %d", block.Azimuth),
			})
		}
		if block.Flag != UPPER_BANK {
			res.Diagnostics = append(res.Diagnostics, Diagnostic{
				Kind:  MalformedBlock,
				Index: bi,
				Msg:   fmt.Sprintf("invalid bank flag 0x%04X", block.Flag),
			})
		}

		for si := 0; si < SEQUENCES_PER_BLOCK; si++ {
			di := bi*SEQUENCES_PER_BLOCK + si
			rec := &res.Records[di]
			rec.Time = captured.Add(time.Duration(di) * FiringCycle)
			// Odd records are corrected by InterpolateAzimuths below.
			rec.Azimuth = wrapAngle(RawToAzimuth(block.Azimuth))
			rec.Sequence = block.Sequences[si]
		}
	}

	res.Diagnostics = append(res.Diagnostics, InterpolateAzimuths(&res.Records)...)

	if n := len(res.Diagnostics); n > 0 {
		p.diagnostics.Add(int64(n))
		for _, d := range res.Diagnostics {
			diagf("packet stamp=%d: %s", pkt.Stamp, d)
		}
	}
	tracef("decoded packet stamp=%d mode=%s first_azimuth=%.4f", pkt.Stamp, res.ReturnMode, res.Records[0].Azimuth)

	return res, nil
}
