package parse

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/puck/internal/testutil"
)

func TestDecodePacket_TimestampsAndCount(t *testing.T) {
	p := NewParser()
	captured := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	res, err := p.DecodePacket(testutil.NewPacketBuilder(0, 100, 1000).Bytes(), captured)
	if err != nil {
		t.Fatalf("DecodePacket: %v", err)
	}
	if len(res.Records) != 24 {
		t.Fatalf("records = %d, want 24", len(res.Records))
	}
	for i, rec := range res.Records {
		want := captured.Add(time.Duration(i) * FiringCycle)
		if !rec.Time.Equal(want) {
			t.Errorf("record %d time = %v, want %v", i, rec.Time, want)
		}
		if i > 0 && !rec.Time.After(res.Records[i-1].Time) {
			t.Errorf("record %d time not strictly increasing", i)
		}
	}
	if len(res.Diagnostics) != 0 {
		t.Errorf("unexpected diagnostics: %v", res.Diagnostics)
	}
	if res.ReturnMode.String() != "strongest" {
		t.Errorf("ReturnMode = %s", res.ReturnMode)
	}
}

func TestDecodePacket_EvenAzimuthsFromBlocks(t *testing.T) {
	res, err := NewParser().DecodePacket(testutil.NewPacketBuilder(500, 40, 1).Bytes(), time.Time{})
	if err != nil {
		t.Fatalf("DecodePacket: %v", err)
	}
	for bi := 0; bi < BLOCKS_PER_PACKET; bi++ {
		want := RawToAzimuth(uint16(500 + 40*bi))
		if got := res.Records[bi*2].Azimuth; math.Abs(got-want) > 1e-12 {
			t.Errorf("record %d azimuth = %f, want %f", bi*2, got, want)
		}
	}
}

func TestDecodePacket_CopiesSequences(t *testing.T) {
	b := testutil.NewPacketBuilder(0, 40, 0)
	b.Distances[5][0][3] = 111
	b.Distances[5][1][3] = 222
	b.Reflectivity[11][1][15] = 9

	res, err := NewParser().DecodePacket(b.Bytes(), time.Time{})
	if err != nil {
		t.Fatalf("DecodePacket: %v", err)
	}
	if got := res.Records[10].Sequence[3].Distance; got != 111 {
		t.Errorf("record 10 slot 3 = %d, want 111", got)
	}
	if got := res.Records[11].Sequence[3].Distance; got != 222 {
		t.Errorf("record 11 slot 3 = %d, want 222", got)
	}
	if got := res.Records[23].Sequence[15].Reflectivity; got != 9 {
		t.Errorf("record 23 slot 15 reflectivity = %d, want 9", got)
	}
}

func TestDecodePacket_AzimuthRange(t *testing.T) {
	starts := []uint16{0, 100, 17999, 35500, 35900, 35999}
	for _, start := range starts {
		res, err := NewParser().DecodePacket(testutil.NewPacketBuilder(start, 40, 1).Bytes(), time.Time{})
		if err != nil {
			t.Fatalf("start %d: %v", start, err)
		}
		for i, rec := range res.Records {
			if rec.Azimuth < 0 || rec.Azimuth >= 2*math.Pi {
				t.Errorf("start %d record %d azimuth %f outside [0, 2π)", start, i, rec.Azimuth)
			}
		}
	}
}

func TestDecodePacket_MalformedLength(t *testing.T) {
	p := NewParser()
	_, err := p.DecodePacket(make([]byte, 1205), time.Now())
	if !errors.Is(err, ErrMalformedPacket) {
		t.Fatalf("err = %v, want ErrMalformedPacket", err)
	}
	if s := p.Stats(); s.Packets != 1 || s.Rejected != 1 {
		t.Errorf("stats = %+v", s)
	}
}

func TestDecodePacket_UnsupportedDeviceMode(t *testing.T) {
	var ops bytes.Buffer
	SetLogWriters(&ops, nil, nil)
	defer SetLogWriters(nil, nil, nil)

	b := testutil.NewPacketBuilder(0, 40, 1)
	b.ProductID = 0x28
	p := NewParser()

	res, err := p.DecodePacket(b.Bytes(), time.Now())
	if res != nil {
		t.Error("expected no records for a rejected packet")
	}
	if !errors.Is(err, ErrUnsupportedDeviceMode) {
		t.Fatalf("err = %v, want ErrUnsupportedDeviceMode", err)
	}
	if !strings.Contains(ops.String(), "rejecting packet") {
		t.Errorf("ops log = %q", ops.String())
	}

	b.ProductID = PRODUCT_ID_VLP16
	b.ReturnMode = 0x39
	if _, err := p.DecodePacket(b.Bytes(), time.Now()); !errors.Is(err, ErrUnsupportedDeviceMode) {
		t.Fatalf("dual return: err = %v", err)
	}
	if s := p.Stats(); s.Rejected != 2 {
		t.Errorf("Rejected = %d, want 2", s.Rejected)
	}
}

func TestDecodePacket_MalformedBlockIsAdvisory(t *testing.T) {
	var diag bytes.Buffer
	SetLogWriters(nil, &diag, nil)
	defer SetLogWriters(nil, nil, nil)

	b := testutil.NewPacketBuilder(1000, 40, 1)
	b.Flags[4] = 0xDDFF
	b.Azimuths[7] = 36001
	p := NewParser()

	res, err := p.DecodePacket(b.Bytes(), time.Now())
	if err != nil {
		t.Fatalf("DecodePacket: %v", err)
	}
	var blocks []int
	for _, d := range res.Diagnostics {
		if d.Kind == MalformedBlock {
			blocks = append(blocks, d.Index)
		}
	}
	if len(blocks) != 2 || blocks[0] != 4 || blocks[1] != 7 {
		t.Errorf("malformed blocks = %v, want [4 7]", blocks)
	}
	for i, rec := range res.Records {
		if rec.Azimuth < 0 || rec.Azimuth >= 2*math.Pi {
			t.Errorf("record %d azimuth %f outside [0, 2π)", i, rec.Azimuth)
		}
	}
	if !strings.Contains(diag.String(), "MalformedBlock[4]") {
		t.Errorf("diag log = %q", diag.String())
	}
	if s := p.Stats(); s.Diagnostics != int64(len(res.Diagnostics)) {
		t.Errorf("Diagnostics counter = %d, want %d", s.Diagnostics, len(res.Diagnostics))
	}
}
