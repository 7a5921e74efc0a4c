/*
DESCRIPTION
  continuity.go provides continuity counter tracking for MPEG-TS PIDs.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package mts

// Continuity is the result of checking a packet's continuity counter.
type Continuity int

// Continuity results.
const (
	ContinuityOK        Continuity = iota // Expected counter, or first packet seen.
	ContinuityDuplicate                   // Same counter as the previous packet.
	ContinuityGap                         // Unexpected counter; packets were lost.
)

func (c Continuity) String() string {
	switch c {
	case ContinuityOK:
		return "ok"
	case ContinuityDuplicate:
		return "duplicate"
	case ContinuityGap:
		return "gap"
	default:
		return "unknown"
	}
}

const ccMask = 0xf

// ccState tracks the continuity counter of one PID.
type ccState struct {
	last int // -1 until a packet with payload is seen.
	dup  bool
}

func newCCState() ccState { return ccState{last: -1} }

// check updates s with a packet's counter. Packets without payload do not
// advance the counter. A set discontinuity indicator excuses any jump. A
// single repeat of the previous counter is a duplicate; any further repeat
// is a gap.
func (s *ccState) check(cc byte, payload, di bool) Continuity {
	if !payload {
		return ContinuityOK
	}
	c := int(cc & ccMask)
	switch {
	case s.last < 0 || di:
		s.dup = false
	case c == s.last && !s.dup:
		s.dup = true
		return ContinuityDuplicate
	case c != (s.last+1)&ccMask:
		s.dup = false
		s.last = c
		return ContinuityGap
	default:
		s.dup = false
	}
	s.last = c
	return ContinuityOK
}

// ContinuityChecker checks continuity counters across PIDs.
type ContinuityChecker struct {
	pids map[uint16]*ccState
}

// NewContinuityChecker returns a new ContinuityChecker.
func NewContinuityChecker() *ContinuityChecker {
	return &ContinuityChecker{pids: make(map[uint16]*ccState)}
}

// Check checks the counter in h against the last counter seen on its PID.
// di is the discontinuity indicator of the packet, if it has an adaptation
// field.
func (c *ContinuityChecker) Check(h *Header, di bool) Continuity {
	s, ok := c.pids[h.PID]
	if !ok {
		n := newCCState()
		s = &n
		c.pids[h.PID] = s
	}
	return s.check(h.CC, h.HasPayload(), di)
}

// Forget drops the state for pid, so the next packet is accepted as is.
func (c *ContinuityChecker) Forget(pid uint16) {
	delete(c.pids, pid)
}
