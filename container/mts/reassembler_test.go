/*
DESCRIPTION
  reassembler_test.go provides testing for access unit reassembly and
  continuity counter tracking.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package mts

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/ausocean/tscodec/container/mts/pes"
	"github.com/ausocean/tscodec/container/mts/psi"
)

// threePacketData is the amount of data that, with a PTS only PES header,
// exactly fills three packets without adaptation fields.
const threePacketData = 3*(PacketSize-HeadSize) - pes.FixedSize - pes.TimestampSize

// pesBytes returns a PES packet holding data, with the given PTS.
func pesBytes(t *testing.T, data []byte, pts uint64, unbounded bool) []byte {
	p := pes.Packet{
		Header:    pes.NewHeader(pes.VideoSID),
		Data:      data,
		Unbounded: unbounded,
	}
	p.Timestamps = pes.PTSOnly(pts)
	b, err := p.Bytes(nil)
	if err != nil {
		t.Fatalf("could not encode PES packet: %v", err)
	}
	return b
}

// tsPackets splits b into packets on pid, with continuity counters starting
// at cc.
func tsPackets(pid uint16, cc byte, b []byte) []*Packet {
	var pkts []*Packet
	for i := 0; len(b) != 0; i++ {
		p := NewPacket(pid)
		p.PUSI = i == 0
		p.AFC = hasPayload
		p.CC = (cc + byte(i)) & ccMask
		n := p.FillPayload(b)
		b = b[n:]
		pkts = append(pkts, &p)
	}
	return pkts
}

// collector records emitted frames.
type collector []*EsFrame

func (c *collector) emit(f *EsFrame) { *c = append(*c, f) }

func testData(n int) []byte {
	d := make([]byte, n)
	for i := range d {
		d[i] = byte(i)
	}
	return d
}

func TestReassembleThreePackets(t *testing.T) {
	data := testData(threePacketData)
	pkts := tsPackets(PIDVideo, 0, pesBytes(t, data, 90000, false))
	if len(pkts) != 3 {
		t.Fatalf("expected 3 packets, got %d", len(pkts))
	}

	var got collector
	r := NewReassembler(psi.StreamTypeH264, PIDVideo)
	for i, p := range pkts[:2] {
		r.Push(p, got.emit)
		if len(got) != 0 {
			t.Fatalf("unexpected frame after packet %d", i)
		}
		if r.cur == nil || r.cur.Completed || r.cur.Empty() {
			t.Fatalf("unexpected in progress frame after packet %d: %+v", i, r.cur)
		}
	}
	r.Push(pkts[2], got.emit)

	if len(got) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(got))
	}
	f := got[0]
	if !f.Completed || f.Broken {
		t.Errorf("unexpected frame state, completed: %v, broken: %v", f.Completed, f.Broken)
	}
	if len(f.Data) != f.ExpectedPayloadLength || f.ExpectedPayloadLength != threePacketData {
		t.Errorf("unexpected lengths, data: %d, expected: %d", len(f.Data), f.ExpectedPayloadLength)
	}
	if !bytes.Equal(f.Data, data) {
		t.Error("did not get expected frame data")
	}
	if pts, ok := f.PTS(); !ok || pts != 90000 {
		t.Errorf("unexpected PTS: %d, ok: %v", pts, ok)
	}
	if f.PID != PIDVideo || f.StreamType != psi.StreamTypeH264 || f.StreamID != pes.VideoSID {
		t.Errorf("unexpected frame identity: %+v", f)
	}
}

func TestReassembleContinuity(t *testing.T) {
	data := testData(threePacketData)

	tests := []struct {
		name      string
		mutate    func([]*Packet) []*Packet
		completed bool
	}{
		{
			name: "gap",
			mutate: func(p []*Packet) []*Packet {
				p[2].CC = 6
				return p
			},
		},
		{
			name: "duplicate",
			mutate: func(p []*Packet) []*Packet {
				return []*Packet{p[0], p[1], p[1], p[2]}
			},
			completed: true,
		},
		{
			name: "discontinuity indicator",
			mutate: func(p []*Packet) []*Packet {
				p[2].CC = 12
				p[2].AFC |= hasAdaptationField
				p[2].AF = &AdaptationField{AdaptationFieldHeader: AdaptationFieldHeader{DI: true}}
				return p
			},
			completed: true,
		},
		{
			name: "overrun",
			mutate: func(p []*Packet) []*Packet {
				p[2].Payload = append(append([]byte(nil), p[2].Payload...), 0x02)
				return p
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			pkts := test.mutate(tsPackets(PIDVideo, 3, pesBytes(t, data, 0, false)))
			var got collector
			r := NewReassembler(psi.StreamTypeH264, PIDVideo)
			for _, p := range pkts {
				r.Push(p, got.emit)
			}
			if len(got) != 1 {
				t.Fatalf("expected 1 frame, got %d", len(got))
			}
			if got[0].Completed != test.completed || got[0].Broken == test.completed {
				t.Errorf("unexpected frame state, completed: %v, broken: %v", got[0].Completed, got[0].Broken)
			}
			if test.completed && !bytes.Equal(got[0].Data, data) {
				t.Error("did not get expected frame data")
			}
		})
	}
}

func TestReassemblePrematureStart(t *testing.T) {
	first := tsPackets(PIDVideo, 0, pesBytes(t, testData(threePacketData), 0, false))
	second := tsPackets(PIDVideo, 2, pesBytes(t, []byte{0xaa, 0xbb}, 3600, false))

	var got collector
	r := NewReassembler(psi.StreamTypeH264, PIDVideo)
	r.Push(first[0], got.emit)
	r.Push(first[1], got.emit)
	r.Push(second[0], got.emit)

	if len(got) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(got))
	}
	if !got[0].Broken {
		t.Error("expected interrupted frame to be broken")
	}
	if !got[1].Completed || !bytes.Equal(got[1].Data, []byte{0xaa, 0xbb}) {
		t.Errorf("unexpected second frame: %+v", got[1])
	}
}

func TestReassembleUnbounded(t *testing.T) {
	data := testData(500)
	pkts := tsPackets(PIDVideo, 0, pesBytes(t, data, 0, true))
	next := tsPackets(PIDVideo, byte(len(pkts)), pesBytes(t, data[:50], 3600, true))

	var got collector
	r := NewReassembler(psi.StreamTypeH264, PIDVideo)
	for _, p := range pkts {
		r.Push(p, got.emit)
	}
	if len(got) != 0 {
		t.Fatalf("unbounded frame should not complete before the next unit start")
	}
	for _, p := range next {
		r.Push(p, got.emit)
	}
	if len(got) != 1 || !got[0].Completed || !bytes.Equal(got[0].Data, data) {
		t.Fatalf("unexpected frames after unit start: %d", len(got))
	}

	r.Flush(got.emit)
	if len(got) != 2 || !got[1].Completed || !bytes.Equal(got[1].Data, data[:50]) {
		t.Errorf("unexpected frames after flush: %d", len(got))
	}
	if pts, _ := got[1].PTS(); pts != 3600 {
		t.Errorf("unexpected PTS of flushed frame: %d", pts)
	}
}

func TestReassembleFlushBounded(t *testing.T) {
	pkts := tsPackets(PIDVideo, 0, pesBytes(t, testData(threePacketData), 0, false))
	var got collector
	r := NewReassembler(psi.StreamTypeH264, PIDVideo)
	r.Push(pkts[0], got.emit)
	r.Flush(got.emit)
	if len(got) != 1 || !got[0].Broken {
		t.Errorf("expected incomplete bounded frame to be flushed as broken")
	}
	r.Flush(got.emit)
	if len(got) != 1 {
		t.Errorf("second flush should emit nothing")
	}
}

func TestReassembleBadHeader(t *testing.T) {
	p := NewPacket(PIDVideo)
	p.PUSI = true
	p.AFC = hasPayload
	p.Payload = []byte{0x00, 0x00, 0x02, 0xe0, 0x00, 0x00}

	var got collector
	r := NewReassembler(psi.StreamTypeH264, PIDVideo)
	r.Push(&p, got.emit)
	if len(got) != 1 || !got[0].Broken {
		t.Errorf("expected frame with invalid PES header to be broken")
	}
}

func TestReassembleRecycle(t *testing.T) {
	var got collector
	r := NewReassembler(psi.StreamTypeH264, PIDVideo)
	for _, p := range tsPackets(PIDVideo, 0, pesBytes(t, []byte{1, 2, 3}, 0, false)) {
		r.Push(p, got.emit)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(got))
	}
	f := got[0]
	r.Recycle(f)

	for _, p := range tsPackets(PIDVideo, 1, pesBytes(t, []byte{4, 5}, 3600, false)) {
		r.Push(p, got.emit)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(got))
	}
	if got[1] != f {
		t.Error("expected recycled frame to be reused")
	}
	if !bytes.Equal(got[1].Data, []byte{4, 5}) || got[1].PID != PIDVideo {
		t.Errorf("unexpected reused frame: %+v", got[1])
	}
}

func TestEsFrameReset(t *testing.T) {
	f := NewEsFrame(psi.StreamTypeAAC, PIDAudio)
	f.Data = append(f.Data, testData(64)...)
	f.Timestamps = pes.PTSAndDTS(10, 5)
	f.PCR = 27000
	f.RandomAccess = true
	f.ExpectedPESPacketLength = 80
	f.ExpectedPayloadLength = 64
	f.Completed = true

	f.Reset()
	first := *f
	if !cmp.Equal(EsFrame{}, first, cmpopts.EquateEmpty()) {
		t.Errorf("reset frame not empty:\n%s", cmp.Diff(EsFrame{}, first, cmpopts.EquateEmpty()))
	}
	if cap(f.Data) < 64 {
		t.Errorf("reset should keep data capacity, got %d", cap(f.Data))
	}
	if !f.Empty() {
		t.Error("reset frame should be empty")
	}

	f.Reset()
	if !cmp.Equal(first, *f, cmpopts.EquateEmpty()) {
		t.Errorf("reset is not idempotent:\n%s", cmp.Diff(first, *f, cmpopts.EquateEmpty()))
	}
}

func TestContinuityChecker(t *testing.T) {
	tests := []struct {
		cc      byte
		payload bool
		di      bool
		want    Continuity
	}{
		{cc: 14, payload: true, want: ContinuityOK},
		{cc: 15, payload: true, want: ContinuityOK},
		{cc: 0, payload: true, want: ContinuityOK},
		{cc: 0, payload: true, want: ContinuityDuplicate},
		{cc: 0, payload: true, want: ContinuityGap},
		{cc: 1, payload: true, want: ContinuityOK},
		{cc: 1, payload: false, want: ContinuityOK},
		{cc: 2, payload: true, want: ContinuityOK},
		{cc: 5, payload: true, want: ContinuityGap},
		{cc: 6, payload: true, want: ContinuityOK},
		{cc: 9, payload: true, di: true, want: ContinuityOK},
		{cc: 10, payload: true, want: ContinuityOK},
	}

	c := NewContinuityChecker()
	for i, test := range tests {
		h := Header{PID: PIDVideo, CC: test.cc, AFC: hasAdaptationField}
		if test.payload {
			h.AFC |= hasPayload
		}
		got := c.Check(&h, test.di)
		if got != test.want {
			t.Errorf("unexpected result for step %d.\n Got: %v\n Want: %v\n", i, got, test.want)
		}
	}

	// Other PIDs are tracked separately.
	h := Header{PID: PIDAudio, CC: 3, AFC: hasPayload}
	if got := c.Check(&h, false); got != ContinuityOK {
		t.Errorf("unexpected result for new PID: %v", got)
	}
	c.Forget(PIDVideo)
	h = Header{PID: PIDVideo, CC: 0, AFC: hasPayload}
	if got := c.Check(&h, false); got != ContinuityOK {
		t.Errorf("unexpected result after forget: %v", got)
	}
}
