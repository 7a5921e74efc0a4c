/*
DESCRIPTION
  discontinuity_test.go provides testing for the DiscontinuityRepairer.

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

	"github.com/pkg/errors"

	"github.com/ausocean/tscodec/container/mts/psi"
)

// repairClip encodes the given packets into a clip.
func repairClip(t *testing.T, pkts ...Packet) []byte {
	var clip []byte
	for i := range pkts {
		b, err := pkts[i].Bytes(nil)
		if err != nil {
			t.Fatalf("did not expect error encoding packet %d: %v", i, err)
		}
		clip = append(clip, b...)
	}
	return clip
}

func patPacket(cc byte) Packet {
	p := NewPacket(PatPid)
	p.PUSI = true
	p.CC = cc
	p.Payload = psi.AddPadding(psi.StandardPatBytes)
	return p
}

func videoPacket(cc byte, rai bool, payload []byte) Packet {
	p := NewPacket(PIDVideo)
	p.CC = cc
	if rai {
		p.AF = &AdaptationField{AdaptationFieldHeader: AdaptationFieldHeader{RAI: true}}
	}
	p.Payload = payload
	return p
}

func TestRepair(t *testing.T) {
	full := bytes.Repeat([]byte{0xa5}, PacketSize-HeadSize)
	short := bytes.Repeat([]byte{0xa5}, 100)

	dr := NewDiscontinuityRepairer()

	// A continuous clip is left untouched.
	clip := repairClip(t, patPacket(0), videoPacket(0, true, short), videoPacket(1, false, full))
	want := append([]byte(nil), clip...)
	err := dr.Repair(clip)
	if err != nil {
		t.Fatalf("did not expect error repairing first clip: %v", err)
	}
	if !bytes.Equal(clip, want) {
		t.Error("continuous clip should not be modified")
	}

	// Skip a clip, so the counters of the next jump.
	clip = repairClip(t, patPacket(2), videoPacket(4, true, short), videoPacket(5, false, full))
	err = dr.Repair(clip)
	if err != nil {
		t.Fatalf("did not expect error repairing second clip: %v", err)
	}

	pats := psi.AddPadding(psi.StandardPatBytes)
	for i, test := range []struct {
		di      bool
		payload []byte
	}{
		{di: true, payload: pats[:len(pats)-2]},
		{di: true, payload: short},
		{di: false, payload: full},
	} {
		var p Packet
		err := p.Decode(clip[i*PacketSize : (i+1)*PacketSize])
		if err != nil {
			t.Fatalf("did not expect error decoding packet %d: %v", i, err)
		}
		gotDI := p.AF != nil && p.AF.DI
		if gotDI != test.di {
			t.Errorf("unexpected discontinuity indicator for packet %d.\n Got: %v\n Want: %v\n", i, gotDI, test.di)
		}
		if !bytes.Equal(p.Payload, test.payload) {
			t.Errorf("did not get expected payload for packet %d", i)
		}
	}

	for _, test := range []struct {
		pid int
		cc  int
	}{{PatPid, 3}, {PIDVideo, 6}} {
		got, ok := dr.ExpectedCC(test.pid)
		if !ok || got != test.cc {
			t.Errorf("unexpected expected cc for PID %d.\n Got: %d\n Want: %d\n", test.pid, got, test.cc)
		}
	}
}

// TestRepairOneByteStuffing checks that a lone stuffing byte adaptation field
// on a table PID is grown into the section stuffing to carry the
// discontinuity indicator.
func TestRepairOneByteStuffing(t *testing.T) {
	payload := bytes.Repeat([]byte{0xff}, PacketSize-HeadSize-1)
	copy(payload, psi.StandardPmtBytes)

	p := NewPacket(PmtPid)
	p.PUSI = true
	p.CC = 7
	p.Payload = payload

	dr := NewDiscontinuityRepairer()
	dr.SetExpectedCC(PmtPid, 3)
	clip := repairClip(t, p)
	if clip[HeadSize] != 0 {
		t.Fatalf("expected one byte adaptation field, got length %d", clip[HeadSize])
	}

	err := dr.Repair(clip)
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}

	var got Packet
	err = got.Decode(clip)
	if err != nil {
		t.Fatalf("did not expect error decoding packet: %v", err)
	}
	if got.AF == nil || !got.AF.DI {
		t.Error("discontinuity indicator not set")
	}
	if !bytes.Equal(got.Payload, payload[:len(payload)-1]) {
		t.Error("did not get expected payload")
	}
}

// TestRepairMediaNoStuffing checks that trailing 0xff bytes of media are
// never taken for stuffing, so packets that cannot be marked are left whole.
func TestRepairMediaNoStuffing(t *testing.T) {
	full := bytes.Repeat([]byte{0xa5}, PacketSize-HeadSize)
	full[len(full)-1], full[len(full)-2] = 0xff, 0xff
	short := append([]byte(nil), full[1:]...) // Encodes with a one byte adaptation field.

	for i, payload := range [][]byte{full, short} {
		dr := NewDiscontinuityRepairer()
		dr.SetExpectedCC(PIDVideo, 0)
		clip := repairClip(t, videoPacket(5, false, payload))
		want := append([]byte(nil), clip...)

		err := dr.Repair(clip)
		if !errors.Is(err, ErrNoRoom) {
			t.Errorf("did not get expected error for test %d.\n Got: %v\n Want: %v\n", i, err, ErrNoRoom)
		}
		if !bytes.Equal(clip, want) {
			t.Errorf("packet modified for test %d", i)
		}
		got, err := Payload(clip)
		if err != nil {
			t.Fatalf("did not expect error getting payload for test %d: %v", i, err)
		}
		if !bytes.Equal(got, payload) {
			t.Errorf("media lost for test %d.\n Got: %d bytes\n Want: %d bytes\n", i, len(got), len(payload))
		}
	}
}

// TestRepairMediaStuffing checks that a media packet whose adaptation field
// carries stuffing is marked without touching the payload.
func TestRepairMediaStuffing(t *testing.T) {
	payload := bytes.Repeat([]byte{0xff}, 150)

	dr := NewDiscontinuityRepairer()
	dr.SetExpectedCC(PIDVideo, 0)
	clip := repairClip(t, videoPacket(5, false, payload))

	err := dr.Repair(clip)
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}

	var got Packet
	err = got.Decode(clip)
	if err != nil {
		t.Fatalf("did not expect error decoding packet: %v", err)
	}
	if got.AF == nil || !got.AF.DI {
		t.Error("discontinuity indicator not set")
	}
	if got.CC != 5 || got.PID != PIDVideo {
		t.Errorf("unexpected header: %+v", got.Header)
	}
	if !bytes.Equal(got.Payload, payload) {
		t.Error("did not get expected payload")
	}
}

func TestRepairInvalidLen(t *testing.T) {
	dr := NewDiscontinuityRepairer()
	err := dr.Repair(make([]byte, PacketSize-1))
	if err != ErrInvalidLen {
		t.Errorf("did not get expected error.\n Got: %v\n Want: %v\n", err, ErrInvalidLen)
	}
}

// TestRepairFailed checks that a failed send rewinds the expected counter so
// that a resend of the same clip is seen as continuous.
func TestRepairFailed(t *testing.T) {
	dr := NewDiscontinuityRepairer()
	_, ok := dr.ExpectedCC(PatPid)
	if ok {
		t.Error("did not expect a counter before any packets")
	}

	clip := repairClip(t, patPacket(0))
	err := dr.Repair(clip)
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	dr.Failed(PatPid)

	want := append([]byte(nil), clip...)
	err = dr.Repair(clip)
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	if !bytes.Equal(clip, want) {
		t.Error("resent clip should not be modified")
	}
	cc, _ := dr.ExpectedCC(PatPid)
	if cc != 1 {
		t.Errorf("unexpected expected cc.\n Got: %d\n Want: 1\n", cc)
	}
}
