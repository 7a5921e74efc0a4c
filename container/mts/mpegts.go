/*
NAME
  mpegts.go - provides MPEG-TS constants and functions for inspecting clips
  of MPEG-TS packets.

DESCRIPTION
  See Readme.md

AUTHORS
  Saxon A. Nelson-Milton <saxon.milton@gmail.com>
  Trek Hopton <trek@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package mts provides MPEG-TS (mts) encoding, decoding and related
// functions.
package mts

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/ausocean/tscodec/container/mts/bits"
	"github.com/ausocean/tscodec/container/mts/pes"
	"github.com/ausocean/tscodec/container/mts/psi"
)

// PacketSize is the size of an MPEG-TS packet.
const PacketSize = 188

// SyncByte begins every MPEG-TS packet.
const SyncByte = 0x47

// Standard program IDs for program specific information MPEG-TS packets.
const (
	SdtPid  = 17
	PatPid  = 0
	PmtPid  = 4096
	NullPid = 0x1fff
)

// HeadSize is the size of an MPEG-TS packet header.
const HeadSize = 4

// FindPmt will take a clip of MPEG-TS and try to find a PMT table - if one
// is found, then it is returned along with its index, otherwise nil, -1 and an error is returned.
func FindPmt(d []byte) ([]byte, int, error) {
	return FindPid(d, PmtPid)
}

// FindPat will take a clip of MPEG-TS and try to find a PAT table - if one
// is found, then it is returned along with its index, otherwise nil, -1 and an error is returned.
func FindPat(d []byte) ([]byte, int, error) {
	return FindPid(d, PatPid)
}

// Errors used by FindPid.
var (
	ErrInvalidLen = errors.New("MPEG-TS data not of valid length")
)

// FindPid will take a clip of MPEG-TS and try to find a packet with given PID - if one
// is found, then it is returned along with its index, otherwise nil, -1 and an error is returned.
func FindPid(d []byte, pid uint16) (pkt []byte, i int, err error) {
	if len(d) < PacketSize {
		return nil, -1, ErrInvalidLen
	}
	for i = 0; i+PacketSize <= len(d); i += PacketSize {
		p := (uint16(d[i+1]&0x1f) << 8) | uint16(d[i+2])
		if p == pid {
			pkt = d[i : i+PacketSize]
			return
		}
	}
	return nil, -1, fmt.Errorf("could not find packet with PID %d", pid)
}

// LastPid will take a clip of MPEG-TS and try to find a packet
// with given PID searching in reverse from the end of the clip. If
// one is found, then it is returned along with its index, otherwise
// nil, -1 and an error is returned.
func LastPid(d []byte, pid uint16) (pkt []byte, i int, err error) {
	if len(d) < PacketSize {
		return nil, -1, ErrInvalidLen
	}

	for i = len(d) - PacketSize; i >= 0; i -= PacketSize {
		p := (uint16(d[i+1]&0x1f) << 8) | uint16(d[i+2])
		if p == pid {
			pkt = d[i : i+PacketSize]
			return
		}
	}
	return nil, -1, fmt.Errorf("could not find packet with PID %d", pid)
}

// Errors used by FindPSI.
var (
	ErrMultiplePrograms = errors.New("more than one program not supported")
	ErrNoPrograms       = errors.New("no programs in PAT")
	ErrNotConsecutive   = errors.New("could not find consecutive PIDs")
)

// FindPSI finds the index of a PAT in a slice of MPEG-TS and returns it,
// along with the stream PIDs and their types, and the program descriptors
// of the PMT that directly follows it.
func FindPSI(d []byte) (int, map[uint16]uint8, []psi.Descriptor, error) {
	if len(d) < PacketSize {
		return -1, nil, nil, ErrInvalidLen
	}

	// Find the PAT if it exists.
	pkt, i, err := FindPid(d, PatPid)
	if err != nil {
		return -1, nil, nil, errors.Wrap(err, "error finding PAT")
	}

	// NB: currently we only support one program.
	progs, err := Programs(pkt)
	if err != nil {
		return i, nil, nil, errors.Wrap(err, "cannot get programs from PAT")
	}

	if len(progs) == 0 {
		return i, nil, nil, ErrNoPrograms
	}

	if len(progs) > 1 {
		return i, nil, nil, ErrMultiplePrograms
	}

	pmtPID := pmtPIDs(progs)[0]

	// Now we can look for the PMT. We want to adjust d so that we're not looking
	// at the same data twice.
	d = d[i+PacketSize:]
	pkt, pmtIdx, err := FindPid(d, pmtPID)
	if err != nil {
		return i, nil, nil, errors.Wrap(err, "error finding PMT")
	}

	// Check that the PMT comes straight after the PAT.
	if pmtIdx != 0 {
		return i, nil, nil, ErrNotConsecutive
	}

	pmt, err := decodePMT(pkt)
	if err != nil {
		return i, nil, nil, errors.Wrap(err, "could not get streams from PMT")
	}
	descs, _ := psi.ParseDescriptors(pmt.ProgramInfo)

	streamMap := make(map[uint16]uint8)
	for _, s := range pmt.Infos {
		streamMap[s.ElementaryPID] = s.StreamType
	}

	return i, streamMap, descs, nil
}

var (
	ErrStreamMap = errors.New("stream map is empty")
)

// FirstMediaPID returns the first PID and it's type in the given streamMap.
func FirstMediaPID(streamMap map[uint16]uint8) (p uint16, t uint8, err error) {
	for p, t = range streamMap {
		return
	}
	err = ErrStreamMap
	return
}

// Error used by GetPTSRange.
var errNoPTS = errors.New("could not find PTS")

// GetPTSRange retreives the first and last PTS of an MPEGTS clip.
// If there is only one PTS, it is included twice in the pts return value.
func GetPTSRange(clip []byte, pid uint16) (pts [2]uint64, err error) {
	var _pts uint64
	// Get the first PTS for the given PID.
	var i int
	for {
		if i >= len(clip) {
			return pts, errNoPTS
		}
		pkt, _i, err := FindPid(clip[i:], pid)
		if err != nil {
			return pts, errors.Wrap(err, fmt.Sprintf("could not find packet of PID: %d", pid))
		}
		_pts, err = GetPTS(pkt)
		if err == nil {
			i += _i
			break
		}
		i += _i + PacketSize
	}

	pts[0] = _pts
	pts[1] = pts[0] // Until we have find a second PTS.

	// Get the last PTS searching in reverse from end of the clip.
	first := i
	i = len(clip)
	for {
		pkt, _i, err := LastPid(clip[:i], pid)
		if err != nil || _i <= first {
			return pts, nil
		}
		_pts, err = GetPTS(pkt)
		if err == nil {
			break
		}
		i = _i
	}

	pts[1] = _pts

	return
}

var (
	errNoPesPayload = errors.New("no PES payload")
	errNoPesPTS     = errors.New("no PES PTS")
)

// GetPTS returns a PTS from a packet that has PES payload, or an error otherwise.
func GetPTS(pkt []byte) (uint64, error) {
	// Check the Payload Unit Start Indicator.
	if len(pkt) < PacketSize || pkt[1]&0x040 == 0 {
		return 0, errNoPesPayload
	}

	payload, err := Payload(pkt)
	if err != nil {
		return 0, err
	}

	var h pes.Header
	err = h.Decode(bits.NewReader(payload))
	if err != nil {
		return 0, errors.Wrap(err, "invalid PES header")
	}
	pts, ok := h.Timestamps.PTS()
	if !ok {
		return 0, errNoPesPTS
	}
	return pts, nil
}

// PID returns the packet identifier for the given packet.
func PID(p []byte) (uint16, error) {
	if len(p) < PacketSize {
		return 0, errors.New("packet length less than 188")
	}
	return uint16(p[1]&0x1f)<<8 | uint16(p[2]), nil
}

// Programs returns a map of program numbers and corresponding PMT PIDs for a
// given MPEG-TS PAT packet.
func Programs(p []byte) (map[uint16]uint16, error) {
	sec, err := section(p)
	if err != nil {
		return nil, err
	}
	pat := &psi.PAT{}
	err = pat.Decode(bits.NewReader(sec))
	if err != nil {
		return nil, err
	}
	return pat.ProgramMap(), nil
}

// Streams returns elementary streams defined in a given MPEG-TS PMT packet.
func Streams(p []byte) ([]psi.PMTElementInfo, error) {
	pmt, err := decodePMT(p)
	if err != nil {
		return nil, err
	}
	return pmt.Infos, nil
}

// MediaStreams retrieves the elementary streams from the given PSI. This
// function currently assumes that PSI contain a PAT followed by a PMT directly
// after. We also assume that this MPEG-TS stream contains just one program,
// but this program may contain different streams, i.e. a video stream + audio
// stream.
func MediaStreams(p []byte) ([]psi.PMTElementInfo, error) {
	if len(p) < 2*PacketSize {
		return nil, errors.New("PSI is not two packets or more long")
	}
	pat := p[:PacketSize]
	pmt := p[PacketSize : 2*PacketSize]

	pid, _ := PID(pat)
	if pid != PatPid {
		return nil, errors.New("first packet is not a PAT")
	}

	m, err := Programs(pat)
	if err != nil {
		return nil, errors.Wrap(err, "could not get programs from PAT")
	}

	if len(m) == 0 {
		return nil, ErrNoPrograms
	}

	if len(m) > 1 {
		return nil, ErrMultiplePrograms
	}

	pid, _ = PID(pmt)
	if pid != pmtPIDs(m)[0] {
		return nil, errors.New("second packet is not desired PMT")
	}

	s, err := Streams(pmt)
	if err != nil {
		return nil, errors.Wrap(err, "could not get streams from PMT")
	}
	return s, nil
}

// pmtPIDs returns PMT PIDS from a map containing program number as keys and
// corresponding PMT PIDs as values.
func pmtPIDs(m map[uint16]uint16) []uint16 {
	r := make([]uint16, 0, len(m))
	for _, v := range m {
		r = append(r, v)
	}
	return r
}

func decodePMT(p []byte) (*psi.PMTHeader, error) {
	sec, err := section(p)
	if err != nil {
		return nil, err
	}
	pmt := &psi.PMTHeader{}
	err = pmt.Decode(bits.NewReader(sec))
	if err != nil {
		return nil, err
	}
	return pmt, nil
}

// section returns the section starting in the unit start PSI packet p. The
// section must fit within the packet.
func section(p []byte) ([]byte, error) {
	payload, err := Payload(p)
	if err != nil {
		return nil, errors.Wrap(err, "cannot get packet payload")
	}
	if len(payload) == 0 || int(payload[0])+1 > len(payload) {
		return nil, errors.Wrap(psi.ErrSectionLength, "invalid pointer field")
	}
	return payload[1+int(payload[0]):], nil
}
