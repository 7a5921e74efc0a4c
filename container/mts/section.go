/*
DESCRIPTION
  section.go provides reassembly of PSI sections carried in the payloads of
  MPEG-TS packets.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package mts

import "github.com/ausocean/tscodec/container/mts/psi"

// sectionAssembler collects the sections of one PSI PID. A unit start packet
// begins with a pointer field giving the number of bytes that finish the
// previous section; a section may span packets and a packet may hold
// several sections, the last followed by 0xff stuffing.
type sectionAssembler struct {
	buf    []byte
	active bool // A section is in progress.
	cc     ccState
}

func newSectionAssembler() *sectionAssembler {
	return &sectionAssembler{cc: newCCState()}
}

// push feeds a packet's payload. handle is called with each complete
// section, from the table ID through the CRC; the slice is only valid for
// the duration of the call. push returns false if data was lost.
func (s *sectionAssembler) push(p *Packet, handle func([]byte)) bool {
	di := p.AF != nil && p.AF.DI
	ok := true
	switch s.cc.check(p.CC, p.HasPayload(), di) {
	case ContinuityDuplicate:
		return true
	case ContinuityGap:
		ok = !s.active
		s.reset()
	}
	if !p.HasPayload() || len(p.Payload) == 0 {
		return ok
	}

	d := p.Payload
	if p.PUSI {
		ptr := int(d[0])
		d = d[1:]
		if ptr > len(d) {
			s.reset()
			return false
		}
		if s.active {
			s.buf = append(s.buf, d[:ptr]...)
			s.extract(handle)
		}
		s.reset()
		s.active = true
		d = d[ptr:]
	} else if !s.active {
		return ok
	}
	s.buf = append(s.buf, d...)
	s.extract(handle)
	return ok
}

// extract passes on every complete section at the front of the buffer.
func (s *sectionAssembler) extract(handle func([]byte)) {
	b := s.buf
	for len(b) >= psi.HeaderSize {
		if b[0] == psi.StuffingByte {
			s.reset()
			return
		}
		n := psi.HeaderSize + psi.SectionLength(b)
		if len(b) < n {
			break
		}
		handle(b[:n])
		b = b[n:]
	}
	if len(b) == 0 && len(s.buf) != 0 {
		s.reset()
		return
	}
	s.buf = append(s.buf[:0], b...)
}

func (s *sectionAssembler) reset() {
	s.buf = s.buf[:0]
	s.active = false
}
