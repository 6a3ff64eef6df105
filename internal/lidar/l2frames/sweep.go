package l2frames

import (
	"time"

	"github.com/banshee-data/puck/internal/lidar/l1packets/parse"
)

// Record is one decoded firing sequence as produced by the packet layer.
type Record = parse.FiringSequenceStamped

// Sweep is a completed window of firing sequences. Once returned by the
// ScanAssembler it is detached: the assembler never touches Records again.
type Sweep struct {
	Seq     int64    // sequential sweep number within the assembler's lifetime
	Trigger string   // name of the trigger policy that closed the sweep
	Records []Record // temporal/azimuth order
}

// Len returns the number of firing sequences (grid columns) in the sweep.
func (s *Sweep) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Records)
}

// Start returns the time of the first firing sequence.
func (s *Sweep) Start() time.Time {
	if s.Len() == 0 {
		return time.Time{}
	}
	return s.Records[0].Time
}

// End returns the time of the last firing sequence.
func (s *Sweep) End() time.Time {
	if s.Len() == 0 {
		return time.Time{}
	}
	return s.Records[len(s.Records)-1].Time
}
