package parse

import (
	"fmt"
	"math"
)

const tau = 2 * math.Pi

// MaxBlockAzimuthStep bounds the plausible rotation between two consecutive
// data blocks. At the fastest spin rate (20 Hz) a block spans about 0.8°.
var MaxBlockAzimuthStep = 5.0 * math.Pi / 180.0

// wrapAngle folds an angle into [0, 2π).
func wrapAngle(a float64) float64 {
	if a >= tau {
		a = math.Mod(a, tau)
	}
	if a < 0 {
		a = math.Mod(a, tau) + tau
		if a >= tau {
			a = 0
		}
	}
	return a
}

// InterpolateAzimuths fills in the azimuth of every odd record. Only one
// azimuth is sampled per data block, so the second firing sequence of the
// block is placed half way to the next block's azimuth. The last block has
// no successor and reuses the step between the two blocks before it.
//
// Even records must already hold their block azimuth, and odd records their
// own block azimuth, both in [0, 2π).
func InterpolateAzimuths(d *Decoded) []Diagnostic {
	var diags []Diagnostic

	for bi := 0; bi < BLOCKS_PER_PACKET; bi++ {
		di := bi*SEQUENCES_PER_BLOCK + 1

		prev, next := di-1, di+1
		if bi == BLOCKS_PER_PACKET-1 {
			prev -= 2
			next -= 2
		}

		azPrev := d[prev].Azimuth
		azNext := d[next].Azimuth
		if azNext < azPrev {
			azNext += tau
		}
		// A backwards step unwraps to nearly a full turn, so the step bound
		// also catches out-of-order blocks.
		if azPrev > azNext || azNext-azPrev > MaxBlockAzimuthStep {
			diags = append(diags, Diagnostic{
				Kind:  InterpolationAnomaly,
				Index: di,
				Msg:   fmt.Sprintf("azimuth_prev %f, azimuth_next %f", azPrev, azNext),
			})
		}

		d[di].Azimuth = wrapAngle(d[di].Azimuth + (azNext-azPrev)/2)
	}

	return diags
}
