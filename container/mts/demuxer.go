/*
DESCRIPTION
  demuxer.go provides the Demuxer, which decodes MPEG-TS into PSI tables and
  elementary stream access units.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package mts

import (
	"sort"

	"github.com/ausocean/utils/logging"
	"github.com/pkg/errors"

	"github.com/ausocean/tscodec/container/mts/bits"
	"github.com/ausocean/tscodec/container/mts/psi"
)

// Demuxer decodes MPEG-TS packets. The PAT on PID 0 gives the PMT PIDs, and
// each PMT gives the elementary stream PIDs, which are reassembled into
// EsFrames. A Demuxer is not safe for concurrent use.
type Demuxer struct {
	log logging.Logger
	pkt Packet

	pat      *psi.PAT
	pmts     map[uint16]*psi.PMTHeader // By program number.
	pmtPIDs  map[uint16]uint16         // PMT PID to program number.
	sections map[uint16]*sectionAssembler
	streams  map[uint16]*Reassembler

	onFrame func(*EsFrame)
	onPAT   func(*psi.PAT)
	onPMT   func(*psi.PMTHeader)

	strictCRC  bool
	dropBroken bool

	queue []*EsFrame
}

// NewDemuxer returns a Demuxer configured with the given options.
func NewDemuxer(log logging.Logger, options ...func(*Demuxer) error) (*Demuxer, error) {
	d := &Demuxer{
		log:      log,
		pmts:     make(map[uint16]*psi.PMTHeader),
		pmtPIDs:  make(map[uint16]uint16),
		sections: map[uint16]*sectionAssembler{PatPid: newSectionAssembler()},
		streams:  make(map[uint16]*Reassembler),
	}
	for _, option := range options {
		err := option(d)
		if err != nil {
			return nil, errors.Wrap(err, "demuxer option failed")
		}
	}
	return d, nil
}

// Demux decodes one 188 byte packet. Errors are returned only for packets
// that cannot be framed or decoded; lost data is reported through broken
// frames.
func (d *Demuxer) Demux(b []byte) error {
	if len(b) != PacketSize {
		return ErrInvalidLen
	}
	if b[0] != SyncByte {
		return ErrSync
	}
	err := d.pkt.Decode(b)
	if err != nil {
		return errors.Wrap(err, "could not decode packet")
	}
	p := &d.pkt
	if p.TEI {
		d.log.Debug("dropping packet with transport error", "PID", p.PID)
		return nil
	}
	if p.PID == NullPid {
		return nil
	}

	if s, ok := d.sections[p.PID]; ok {
		if !s.push(p, func(sec []byte) { d.handleSection(p.PID, sec) }) {
			d.log.Warning("lost PSI data", "PID", p.PID, "CC", p.CC)
		}
		return nil
	}
	if r, ok := d.streams[p.PID]; ok {
		r.Push(p, d.emit)
	}
	return nil
}

// Write implements io.Writer. p must hold whole packets.
func (d *Demuxer) Write(p []byte) (int, error) {
	if len(p)%PacketSize != 0 {
		return 0, ErrInvalidLen
	}
	for i := 0; i < len(p); i += PacketSize {
		err := d.Demux(p[i : i+PacketSize])
		if err != nil {
			return i, err
		}
	}
	return len(p), nil
}

// Flush hands over any frames in progress, in PID order.
func (d *Demuxer) Flush() {
	pids := make([]int, 0, len(d.streams))
	for pid := range d.streams {
		pids = append(pids, int(pid))
	}
	sort.Ints(pids)
	for _, pid := range pids {
		d.streams[uint16(pid)].Flush(d.emit)
	}
}

// Frames returns and clears the frames queued when no FrameHandler is set.
func (d *Demuxer) Frames() []*EsFrame {
	q := d.queue
	d.queue = nil
	return q
}

// Recycle returns a frame to the demuxer for reuse. The caller must not use
// f afterwards.
func (d *Demuxer) Recycle(f *EsFrame) {
	if r, ok := d.streams[f.PID]; ok {
		r.Recycle(f)
	}
}

// PAT returns the current PAT, or nil if none has been seen.
func (d *Demuxer) PAT() *psi.PAT { return d.pat }

// PMT returns the current PMT of the given program.
func (d *Demuxer) PMT(program uint16) (*psi.PMTHeader, bool) {
	pmt, ok := d.pmts[program]
	return pmt, ok
}

func (d *Demuxer) emit(f *EsFrame) {
	if f.Broken {
		d.log.Debug("broken frame", "PID", f.PID, "len", len(f.Data))
		if d.dropBroken {
			d.Recycle(f)
			return
		}
	}
	if d.onFrame != nil {
		d.onFrame(f)
		return
	}
	d.queue = append(d.queue, f)
}

// print adapts the logger to the PSI print hook.
func (d *Demuxer) print(level int8, msg string) { d.log.Log(level, msg) }

// checkCRC applies the CRC policy to a decoding error, returning true if the
// table should be used.
func (d *Demuxer) checkCRC(err error, pid uint16, dump func(int8, psi.LogFunc)) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, psi.ErrCRCMismatch):
		d.log.Warning("PSI CRC mismatch", "PID", pid, "error", err.Error())
		dump(logging.Debug, d.print)
		return !d.strictCRC
	default:
		d.log.Warning("could not decode PSI section", "PID", pid, "error", err.Error())
		return false
	}
}

func (d *Demuxer) handleSection(pid uint16, sec []byte) {
	switch {
	case pid == PatPid && sec[0] == psi.PATTableID:
		pat := &psi.PAT{}
		err := pat.Decode(bits.NewReader(sec))
		if !d.checkCRC(err, pid, pat.Print) {
			return
		}
		d.setPAT(pat)
	case pid != PatPid && sec[0] == psi.PMTTableID:
		pmt := &psi.PMTHeader{}
		err := pmt.Decode(bits.NewReader(sec))
		if !d.checkCRC(err, pid, pmt.Print) {
			return
		}
		d.setPMT(pid, pmt)
	default:
		d.log.Debug("ignoring PSI section", "PID", pid, "table ID", sec[0])
	}
}

func (d *Demuxer) setPAT(pat *psi.PAT) {
	if d.pat == nil || d.pat.VersionNumber != pat.VersionNumber {
		d.log.Debug("new PAT", "version", pat.VersionNumber, "programs", len(pat.Programs))
	}
	d.pat = pat
	for _, prog := range pat.Programs {
		if prog.Number == 0 {
			continue
		}
		d.pmtPIDs[prog.PID] = prog.Number
		if _, ok := d.sections[prog.PID]; !ok {
			d.sections[prog.PID] = newSectionAssembler()
		}
	}
	if d.onPAT != nil {
		d.onPAT(pat)
	}
}

func (d *Demuxer) setPMT(pid uint16, pmt *psi.PMTHeader) {
	prog, ok := d.pmtPIDs[pid]
	if !ok || prog != pmt.ProgramNumber {
		d.log.Warning("PMT program does not match PAT", "PID", pid, "program", pmt.ProgramNumber)
		return
	}
	if old, ok := d.pmts[prog]; !ok || old.VersionNumber != pmt.VersionNumber {
		d.log.Debug("new PMT", "program", prog, "version", pmt.VersionNumber, "streams", len(pmt.Infos))
	}
	d.pmts[prog] = pmt
	for _, info := range pmt.Infos {
		r, ok := d.streams[info.ElementaryPID]
		if !ok {
			d.streams[info.ElementaryPID] = NewReassembler(info.StreamType, info.ElementaryPID)
			continue
		}
		r.SetStreamType(info.StreamType)
	}
	if d.onPMT != nil {
		d.onPMT(pmt)
	}
}
