/*
LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package main

import (
	"bytes"
	"testing"

	"github.com/ausocean/tscodec/container/mts"
	"github.com/ausocean/utils/logging"
)

// stream returns packets on the video PID with the given counters.
func stream(t *testing.T, ccs ...byte) []byte {
	var b []byte
	for _, cc := range ccs {
		p := mts.NewPacket(mts.PIDVideo)
		p.CC = cc
		p.Payload = []byte{0x01, 0x02, 0x03}
		buf, err := p.Bytes(nil)
		if err != nil {
			t.Fatalf("did not expect error encoding packet: %v", err)
		}
		b = append(b, buf...)
	}
	return b
}

func decode(t *testing.T, b []byte) []mts.Packet {
	var pkts []mts.Packet
	for i := 0; i < len(b); i += mts.PacketSize {
		var p mts.Packet
		err := p.Decode(b[i : i+mts.PacketSize])
		if err != nil {
			t.Fatalf("did not expect error decoding packet: %v", err)
		}
		pkts = append(pkts, p)
	}
	return pkts
}

func TestRepairShift(t *testing.T) {
	var out bytes.Buffer
	n, err := repair(bytes.NewReader(stream(t, 7, 8, 12, 13)), &out, ccShift, (*logging.TestLogger)(t))
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	if n != 4 {
		t.Errorf("unexpected packet count: %d", n)
	}
	for i, p := range decode(t, out.Bytes()) {
		if want := byte(7 + i); p.CC != want {
			t.Errorf("unexpected cc for packet %d.\n Got: %d\n Want: %d\n", i, p.CC, want)
		}
	}
}

func TestRepairDI(t *testing.T) {
	var out bytes.Buffer
	_, err := repair(bytes.NewReader(stream(t, 15, 0, 4, 5)), &out, diUpdate, (*logging.TestLogger)(t))
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	want := []bool{false, false, true, false}
	for i, p := range decode(t, out.Bytes()) {
		if p.AF.DI != want[i] {
			t.Errorf("unexpected discontinuity indicator for packet %d: %v", i, p.AF.DI)
		}
	}
}

func TestRepairErrors(t *testing.T) {
	_, err := repair(bytes.NewReader(nil), &bytes.Buffer{}, 2, (*logging.TestLogger)(t))
	if err != errBadMode {
		t.Errorf("did not get expected error.\n Got: %v\n Want: %v\n", err, errBadMode)
	}

	b := stream(t, 0)
	b[0] = 0x00
	_, err = repair(bytes.NewReader(b), &bytes.Buffer{}, ccShift, (*logging.TestLogger)(t))
	if err == nil {
		t.Error("expected error for bad sync byte")
	}
}
