/*
NAME
  discontinuity.go

DESCRIPTION
  discontinuity.go provides functionality for detecting discontinuities in
  MPEG-TS and accounting for using the discontinuity indicator in the adaptation
  field.

AUTHOR
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package mts

import (
	"github.com/Comcast/gots/v2/packet"
	"github.com/pkg/errors"
)

// ErrNoRoom is returned when an adaptation field cannot be added to a packet
// without losing payload.
var ErrNoRoom = errors.New("no stuffing to make room for adaptation field")

// DiscontinuityRepairer provides function to detect discontinuities in MPEG-TS
// and set the discontinuity indicator as appropriate.
type DiscontinuityRepairer struct {
	expCC map[int]int
}

// NewDiscontinuityRepairer returns a pointer to a new DiscontinuityRepairer.
func NewDiscontinuityRepairer() *DiscontinuityRepairer {
	return &DiscontinuityRepairer{expCC: make(map[int]int)}
}

// Failed is to be called in the case of a failed send of a clip whose
// packets on pid were passed to Repair. This will decrement the expected cc
// so that it aligns with the failed clip's cc.
func (dr *DiscontinuityRepairer) Failed(pid int) {
	if _, ok := dr.ExpectedCC(pid); ok {
		dr.decExpectedCC(pid)
	}
}

// Repair checks the continuity counter of each packet carrying payload in
// the clip d, and sets the discontinuity indicator of any packet whose
// counter is not the one expected for its PID. The adaptation field is grown
// into its own stuffing when it needs a flags byte. On PSI PIDs trailing 0xff
// payload bytes are section stuffing and may be given up too. ErrNoRoom is
// returned if a packet cannot be marked without losing data.
func (dr *DiscontinuityRepairer) Repair(d []byte) error {
	if len(d)%PacketSize != 0 {
		return ErrInvalidLen
	}
	var pkt packet.Packet
	for i := 0; i < len(d); i += PacketSize {
		copy(pkt[:], d[i:i+PacketSize])
		if !packet.ContainsPayload(&pkt) {
			continue // No payload, so the counter does not advance.
		}
		pid := pkt.PID()
		cc := pkt.ContinuityCounter()
		expect, ok := dr.ExpectedCC(pid)
		if ok && cc != expect {
			err := setDiscontinuity(d[i:i+PacketSize], isPSI(pid))
			if err != nil {
				return errors.Wrapf(err, "could not repair packet %d on PID %d", i/PacketSize, pid)
			}
		}
		dr.SetExpectedCC(pid, cc)
		dr.IncExpectedCC(pid)
	}
	return nil
}

// isPSI returns true for the reserved table PIDs and the default PMT PID.
func isPSI(pid int) bool {
	return pid <= SdtPid || pid == PmtPid
}

// setDiscontinuity sets the discontinuity indicator of the packet b in place.
// Trailing 0xff payload bytes are dropped to make room only if table is true.
func setDiscontinuity(b []byte, table bool) error {
	var p Packet
	err := p.Decode(b)
	if err != nil {
		return err
	}
	if p.AF == nil {
		p.AF = &AdaptationField{}
	}
	p.AF.OneByteStuffing = false
	p.AF.DI = true
	p.AF.Stuffing = 0

	if over := p.AF.Size() + len(p.Payload) - (PacketSize - HeadSize); over > 0 {
		if !table || len(p.Payload) < over {
			return ErrNoRoom
		}
		for _, c := range p.Payload[len(p.Payload)-over:] {
			if c != 0xff {
				return ErrNoRoom
			}
		}
		p.Payload = p.Payload[:len(p.Payload)-over]
	}

	// Payload references b, so encode elsewhere first.
	out, err := p.Bytes(nil)
	if err != nil {
		return err
	}
	copy(b, out)
	return nil
}

// ExpectedCC returns the expected cc for pid. If no packet has been seen on
// pid, then 16 and false is returned.
func (dr *DiscontinuityRepairer) ExpectedCC(pid int) (int, bool) {
	cc, ok := dr.expCC[pid]
	if !ok {
		return 16, false
	}
	return cc, true
}

// IncExpectedCC increments the expected cc.
func (dr *DiscontinuityRepairer) IncExpectedCC(pid int) {
	dr.expCC[pid] = (dr.expCC[pid] + 1) & ccMask
}

// decExpectedCC decrements the expected cc.
func (dr *DiscontinuityRepairer) decExpectedCC(pid int) {
	dr.expCC[pid] = (dr.expCC[pid] - 1) & ccMask
}

// SetExpectedCC sets the expected cc.
func (dr *DiscontinuityRepairer) SetExpectedCC(pid, cc int) {
	dr.expCC[pid] = cc
}
