package parse

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedPacket is returned when a payload is not exactly PACKET_SIZE bytes.
	ErrMalformedPacket = errors.New("malformed packet")

	// ErrUnsupportedDeviceMode is returned when the factory bytes name a return
	// mode or product this decoder does not handle. Only the offending packet
	// is rejected; callers decide whether repeated failures should escalate.
	ErrUnsupportedDeviceMode = errors.New("unsupported device mode")

	errOutOfBounds = errors.New("offset out of bounds")
)

// DeviceModeError reports the factory bytes of a rejected packet.
type DeviceModeError struct {
	ReturnMode uint8
	ProductID  uint8
}

func (e *DeviceModeError) Error() string {
	return fmt.Sprintf("%v: return mode 0x%02X (want 0x%02X strongest or 0x%02X last), product id 0x%02X (want 0x%02X)",
		ErrUnsupportedDeviceMode, e.ReturnMode, RETURN_MODE_STRONGEST, RETURN_MODE_LAST, e.ProductID, PRODUCT_ID_VLP16)
}

// Unwrap lets errors.Is match ErrUnsupportedDeviceMode.
func (e *DeviceModeError) Unwrap() error {
	return ErrUnsupportedDeviceMode
}

// DiagnosticKind classifies a non-fatal decode finding.
type DiagnosticKind int

const (
	// MalformedBlock marks a data block with a bad bank flag or an
	// out-of-range raw azimuth. Decoding continues with the block's data.
	MalformedBlock DiagnosticKind = iota + 1
	// InterpolationAnomaly marks an odd firing sequence whose neighbouring
	// azimuths are out of order even after unwrapping.
	InterpolationAnomaly
)

func (k DiagnosticKind) String() string {
	switch k {
	case MalformedBlock:
		return "MalformedBlock"
	case InterpolationAnomaly:
		return "InterpolationAnomaly"
	default:
		return fmt.Sprintf("DiagnosticKind(%d)", int(k))
	}
}

// Diagnostic is an advisory finding attached to a decoded packet.
type Diagnostic struct {
	Kind  DiagnosticKind
	Index int // block index for MalformedBlock, record index for InterpolationAnomaly
	Msg   string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s[%d]: %s", d.Kind, d.Index, d.Msg)
}
