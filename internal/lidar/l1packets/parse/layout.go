package parse

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

/*
VLP-16 / Puck Lite packet layout

The sensor emits one 1206-byte UDP payload per 24 firing sequences. All
multi-byte fields are little-endian.

PACKET STRUCTURE (1206 bytes total):
├── Data Blocks (1200 bytes) - 12 blocks × 100 bytes each, starting at offset 0
│   └── Each block: 2-byte flag (0xEEFF) + 2-byte azimuth + 2 firing sequences × 16 × 3 bytes
├── Timestamp (4 bytes)  - microseconds since the top of the hour, offset 1200
└── Factory (2 bytes)    - return mode (offset 1204) + product id (offset 1205)

Every field is read through the offset table below with explicit bounds
checks. The decoder never reinterprets the payload as a packed struct.
*/

// VLP-16 packet structure constants
const (
	PACKET_SIZE          = 1206 // Total UDP payload size in bytes
	BLOCKS_PER_PACKET    = 12   // Data blocks per packet
	SEQUENCES_PER_BLOCK  = 2    // Firing sequences sharing one azimuth sample
	SEQUENCES_PER_PACKET = BLOCKS_PER_PACKET * SEQUENCES_PER_BLOCK
	FIRINGS_PER_SEQUENCE = 16 // One firing per laser
	BYTES_PER_POINT      = 3  // 2 bytes distance + 1 byte reflectivity
	BYTES_PER_SEQUENCE   = FIRINGS_PER_SEQUENCE * BYTES_PER_POINT
)

// Field offset table. Block offsets are relative to the start of the block.
const (
	BLOCK_FLAG_SIZE       = 2
	BLOCK_AZIMUTH_SIZE    = 2
	BLOCK_SIZE            = BLOCK_FLAG_SIZE + BLOCK_AZIMUTH_SIZE + SEQUENCES_PER_BLOCK*BYTES_PER_SEQUENCE // 100
	RANGING_DATA_SIZE     = BLOCKS_PER_PACKET * BLOCK_SIZE                                                // 1200
	BLOCK_FLAG_OFFSET     = 0
	BLOCK_AZIMUTH_OFFSET  = BLOCK_FLAG_OFFSET + BLOCK_FLAG_SIZE
	BLOCK_SEQUENCE_OFFSET = BLOCK_AZIMUTH_OFFSET + BLOCK_AZIMUTH_SIZE
	STAMP_OFFSET          = RANGING_DATA_SIZE
	STAMP_SIZE            = 4
	RETURN_MODE_OFFSET    = STAMP_OFFSET + STAMP_SIZE
	PRODUCT_ID_OFFSET     = RETURN_MODE_OFFSET + 1
)

// Sentinels and unit conversions
const (
	UPPER_BANK          = 0xEEFF // Bank flag sentinel (0xFF 0xEE on the wire)
	MAX_RAW_AZIMUTH     = 35999  // Raw azimuth is in 0.01° units, [0, 35999]
	AZIMUTH_RESOLUTION  = 0.01   // Degrees per raw azimuth LSB
	DISTANCE_RESOLUTION = 0.002  // Metres per raw distance LSB
)

// Factory byte values
const (
	RETURN_MODE_STRONGEST uint8 = 0x37 // 55
	RETURN_MODE_LAST      uint8 = 0x38 // 56
	PRODUCT_ID_VLP16      uint8 = 0x22 // 34, VLP-16 and Puck Lite
)

// Timing and geometry of the vertical fan.
const (
	// FiringCycle is the duration of one full firing sequence (Tf).
	FiringCycle = 55296 * time.Nanosecond
	// SingleFiring is the spacing between two consecutive laser firings.
	SingleFiring = 2304 * time.Nanosecond

	MaxElevationDeg = 15.0
	MinElevationDeg = -15.0
)

// Elevation bounds in radians.
var (
	MaxElevation = MaxElevationDeg * math.Pi / 180.0
	MinElevation = MinElevationDeg * math.Pi / 180.0
)

// laserIDs maps elevation index (0 = lowest ring, 15 = highest) to the
// firing-order slot that carries that ring inside a FiringSequence. Lasers
// fire interleaved: slot 0 is -15°, slot 1 is +1°, slot 2 is -13°, ...
var laserIDs = [FIRINGS_PER_SEQUENCE]int{0, 2, 4, 6, 8, 10, 12, 14, 1, 3, 5, 7, 9, 11, 13, 15}

// LaserID returns the firing-order slot of the ring at elevation index idx
// (0 = lowest elevation). It panics when idx is outside [0, 15].
func LaserID(idx int) int {
	return laserIDs[idx]
}

// RawToAzimuth converts a raw 0.01° azimuth to radians.
func RawToAzimuth(raw uint16) float64 {
	return float64(raw) * AZIMUTH_RESOLUTION * math.Pi / 180.0
}

// reader wraps a payload with bounds-checked little-endian field access.
type reader struct {
	buf []byte
}

func (r reader) uint8At(off int) (uint8, error) {
	if off < 0 || off >= len(r.buf) {
		return 0, fmt.Errorf("read uint8 at offset %d: %w", off, errOutOfBounds)
	}
	return r.buf[off], nil
}

func (r reader) uint16At(off int) (uint16, error) {
	if off < 0 || off+2 > len(r.buf) {
		return 0, fmt.Errorf("read uint16 at offset %d: %w", off, errOutOfBounds)
	}
	return binary.LittleEndian.Uint16(r.buf[off : off+2]), nil
}

func (r reader) uint32At(off int) (uint32, error) {
	if off < 0 || off+4 > len(r.buf) {
		return 0, fmt.Errorf("read uint32 at offset %d: %w", off, errOutOfBounds)
	}
	return binary.LittleEndian.Uint32(r.buf[off : off+4]), nil
}

func (r reader) dataPointAt(off int) (DataPoint, error) {
	d, err := r.uint16At(off)
	if err != nil {
		return DataPoint{}, err
	}
	refl, err := r.uint8At(off + 2)
	if err != nil {
		return DataPoint{}, err
	}
	return DataPoint{Distance: d, Reflectivity: refl}, nil
}

// blockOffset returns the byte offset of data block i.
func blockOffset(i int) int {
	return i * BLOCK_SIZE
}

// sequenceOffset returns the byte offset of firing sequence k inside block i.
func sequenceOffset(i, k int) int {
	return blockOffset(i) + BLOCK_SEQUENCE_OFFSET + k*BYTES_PER_SEQUENCE
}
