package l2frames

import (
	"math"
	"testing"
	"time"

	"github.com/banshee-data/puck/internal/lidar/l1packets/parse"
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func deg(d float64) float64 { return d * math.Pi / 180 }

// recordAt returns a record at azimuth azDeg where every firing reports
// distance raw units.
func recordAt(i int, azDeg float64, distance uint16) Record {
	rec := Record{
		Time:    epoch.Add(time.Duration(i) * parse.FiringCycle),
		Azimuth: deg(azDeg),
	}
	for k := range rec.Sequence {
		rec.Sequence[k] = parse.DataPoint{Distance: distance, Reflectivity: uint8(k)}
	}
	return rec
}

func recordsAt(azDeg ...float64) []Record {
	out := make([]Record, len(azDeg))
	for i, a := range azDeg {
		out[i] = recordAt(i, a, 5000)
	}
	return out
}

// decodeAll runs raw payloads through a parser and returns the records in
// arrival order, one packet every 1.327ms.
func decodeAll(t *testing.T, packets [][]byte) []Record {
	t.Helper()
	p := parse.NewParser()
	var out []Record
	for i, pkt := range packets {
		res, err := p.DecodePacket(pkt, epoch.Add(time.Duration(i)*1327*time.Microsecond))
		if err != nil {
			t.Fatalf("DecodePacket(%d): %v", i, err)
		}
		out = append(out, res.Records[:]...)
	}
	return out
}
