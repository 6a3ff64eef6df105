package parse

import "fmt"

// DataPoint is one laser return: raw distance in 2mm units (0 = no return)
// and a calibrated reflectivity value.
type DataPoint struct {
	Distance     uint16
	Reflectivity uint8
}

// FiringSequence holds the 16 returns of one firing of the whole fan,
// indexed by firing order (not elevation order, see LaserID).
type FiringSequence [FIRINGS_PER_SEQUENCE]DataPoint

// DataBlock is one 100-byte wire block: two firing sequences sharing a
// single sampled azimuth.
type DataBlock struct {
	Flag      uint16 // must equal UPPER_BANK
	Azimuth   uint16 // raw azimuth in 0.01° units, [0, 35999]
	Sequences [SEQUENCES_PER_BLOCK]FiringSequence
}

// Packet is the decoded form of one 1206-byte sensor payload.
type Packet struct {
	Blocks     [BLOCKS_PER_PACKET]DataBlock
	Stamp      uint32 // microseconds since the top of the hour, first firing of block 0
	ReturnMode uint8
	ProductID  uint8
}

// ReturnMode names the return-mode factory byte.
type ReturnMode uint8

func (m ReturnMode) String() string {
	switch uint8(m) {
	case RETURN_MODE_STRONGEST:
		return "strongest"
	case RETURN_MODE_LAST:
		return "last"
	default:
		return fmt.Sprintf("unknown(0x%02X)", uint8(m))
	}
}

// ReadPacket reads every field of a payload into a Packet. It performs no
// semantic validation beyond the length check.
func ReadPacket(data []byte) (*Packet, error) {
	if len(data) != PACKET_SIZE {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrMalformedPacket, PACKET_SIZE, len(data))
	}

	r := reader{buf: data}
	pkt := &Packet{}
	var err error

	for bi := 0; bi < BLOCKS_PER_PACKET; bi++ {
		block := &pkt.Blocks[bi]
		if block.Flag, err = r.uint16At(blockOffset(bi) + BLOCK_FLAG_OFFSET); err != nil {
			return nil, fmt.Errorf("block %d flag: %w", bi, err)
		}
		if block.Azimuth, err = r.uint16At(blockOffset(bi) + BLOCK_AZIMUTH_OFFSET); err != nil {
			return nil, fmt.Errorf("block %d azimuth: %w", bi, err)
		}
		for si := 0; si < SEQUENCES_PER_BLOCK; si++ {
			off := sequenceOffset(bi, si)
			for fi := 0; fi < FIRINGS_PER_SEQUENCE; fi++ {
				if block.Sequences[si][fi], err = r.dataPointAt(off + fi*BYTES_PER_POINT); err != nil {
					return nil, fmt.Errorf("block %d sequence %d firing %d: %w", bi, si, fi, err)
				}
			}
		}
	}

	if pkt.Stamp, err = r.uint32At(STAMP_OFFSET); err != nil {
		return nil, fmt.Errorf("stamp: %w", err)
	}
	if pkt.ReturnMode, err = r.uint8At(RETURN_MODE_OFFSET); err != nil {
		return nil, fmt.Errorf("return mode: %w", err)
	}
	if pkt.ProductID, err = r.uint8At(PRODUCT_ID_OFFSET); err != nil {
		return nil, fmt.Errorf("product id: %w", err)
	}

	return pkt, nil
}

// CheckDeviceMode validates the factory bytes.
func (p *Packet) CheckDeviceMode() error {
	if (p.ReturnMode != RETURN_MODE_STRONGEST && p.ReturnMode != RETURN_MODE_LAST) || p.ProductID != PRODUCT_ID_VLP16 {
		return &DeviceModeError{ReturnMode: p.ReturnMode, ProductID: p.ProductID}
	}
	return nil
}
