package l2frames

import "fmt"

// Trigger decides when the ScanAssembler closes a sweep. The set of
// policies is closed to this package; new strategies implement the two
// hooks and the append loop stays unchanged.
type Trigger interface {
	fmt.Stringer

	// flushBefore reports whether buf must be flushed before rec joins it.
	flushBefore(buf []Record, rec Record) bool
	// flushAfter reports whether buf must be flushed once rec has joined it.
	flushAfter(buf []Record) bool
	// capacityHint sizes a fresh buffer.
	capacityHint() int
}

// FixedWidth flushes once the buffer holds exactly N firing sequences.
type FixedWidth struct {
	N int
}

func (t FixedWidth) String() string { return fmt.Sprintf("fixed_width(%d)", t.N) }

func (t FixedWidth) flushBefore([]Record, Record) bool { return false }

func (t FixedWidth) flushAfter(buf []Record) bool { return len(buf) >= t.N }

func (t FixedWidth) capacityHint() int {
	if t.N > 0 {
		return t.N
	}
	return 0
}

// FullRotation flushes when the azimuth steps backwards, i.e. the sensor
// has crossed 0° and started a new revolution. The crossing record opens
// the next sweep.
type FullRotation struct{}

// firingsPerRotation approximates one revolution at 10 Hz.
const firingsPerRotation = 1808

func (FullRotation) String() string { return "full_rotation" }

func (FullRotation) flushBefore(buf []Record, rec Record) bool {
	return len(buf) > 0 && rec.Azimuth < buf[len(buf)-1].Azimuth
}

func (FullRotation) flushAfter([]Record) bool { return false }

func (FullRotation) capacityHint() int { return firingsPerRotation }

// ScanAssembler accumulates decoded firing sequences and cuts them into
// sweeps according to its Trigger.
//
// A ScanAssembler has exactly one writer and is not safe for concurrent use.
// Flushing swaps out the filled buffer and installs a fresh one, so a
// returned Sweep never aliases memory the assembler will write again.
type ScanAssembler struct {
	trigger Trigger
	buf     []Record
	seq     int64
}

// NewScanAssembler creates an assembler with the given trigger policy.
func NewScanAssembler(trigger Trigger) *ScanAssembler {
	a := &ScanAssembler{trigger: trigger}
	a.buf = a.newBuffer()
	return a
}

func (a *ScanAssembler) newBuffer() []Record {
	return make([]Record, 0, a.trigger.capacityHint())
}

// Trigger returns the active trigger policy.
func (a *ScanAssembler) Trigger() Trigger {
	return a.trigger
}

// SetTrigger replaces the trigger policy. Records buffered under the old
// policy are discarded.
func (a *ScanAssembler) SetTrigger(t Trigger) {
	if n := len(a.buf); n > 0 {
		diagf("trigger %s -> %s: discarding %d buffered records", a.trigger, t, n)
	}
	a.trigger = t
	a.buf = a.newBuffer()
}

// Len returns the number of buffered records.
func (a *ScanAssembler) Len() int {
	return len(a.buf)
}

// Reset discards the buffered records.
func (a *ScanAssembler) Reset() {
	a.buf = a.newBuffer()
}

// Append adds records in order and returns every sweep completed along the
// way, oldest first. Most calls return nil.
func (a *ScanAssembler) Append(recs ...Record) []*Sweep {
	var done []*Sweep
	for _, rec := range recs {
		if a.trigger.flushBefore(a.buf, rec) {
			tracef("azimuth %.4f < %.4f: rotation complete with %d records",
				rec.Azimuth, a.buf[len(a.buf)-1].Azimuth, len(a.buf))
			if s := a.Flush(); s != nil {
				done = append(done, s)
			}
		}
		a.buf = append(a.buf, rec)
		if a.trigger.flushAfter(a.buf) {
			if s := a.Flush(); s != nil {
				done = append(done, s)
			}
		}
	}
	return done
}

// Flush detaches the buffered records as a Sweep and starts a new, empty
// buffer. Flushing an empty buffer returns nil.
func (a *ScanAssembler) Flush() *Sweep {
	if len(a.buf) == 0 {
		return nil
	}
	a.seq++
	s := &Sweep{
		Seq:     a.seq,
		Trigger: a.trigger.String(),
		Records: a.buf,
	}
	a.buf = a.newBuffer()
	return s
}
