/*
NAME
  encoder.go

AUTHOR
  Saxon Nelson-Milton <saxon@ausocean.org>
  Dan Kortschak <dan@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package mts

import (
	"fmt"
	"io"
	"time"

	"github.com/ausocean/utils/logging"

	"github.com/ausocean/tscodec/container/mts/pes"
	"github.com/ausocean/tscodec/container/mts/psi"
)

// These three constants are used to select between the three different
// methods of when the PSI is sent.
const (
	psiMethodPacket       = iota // PSI is inserted after a certain number of packets.
	psiMethodTime                // PSI is inserted after a certain amount of time.
	psiMethodRandomAccess        // PSI is inserted before each random access frame.
)

// Constants used to communicate which media codec will be packetized.
const (
	EncodeH264 = iota
	EncodeH265
	EncodeJPEG
	EncodeMJPEG
	EncodePCM
	EncodeADPCM
	EncodeAAC
)

// The program IDs we assign to different types of media.
const (
	PIDVideo = 256
	PIDAudio = 210
)

// Time-related constants.
const (
	// ptsOffset is the offset added to the clock to determine
	// the current presentation timestamp.
	ptsOffset = 700 * time.Millisecond

	// PCRFrequency is the Program Clock Reference frequency in Hz.
	PCRFrequency = 27000000

	// PTSFrequency is the presentation timestamp frequency in Hz.
	PTSFrequency = 90000

	// MaxPTS is the largest PTS value (i.e., for a 33-bit unsigned integer).
	MaxPTS = (1 << 33) - 1
)

// If we are not using random access based PSI intervals then we will send PSI every 7 packets.
const psiSendCount = 7

// Default encoder configuration parameters.
const (
	defaultRate       = 25 // FPS
	defaultPSIMethod  = psiMethodPacket
	defaultStreamType = psi.StreamTypeH264
	defaultStreamID   = pes.VideoSID
	defaultMediaPID   = PIDVideo
	defaultProgram    = 1
	defaultTSID       = 1
)

// Encoder encapsulates properties of an MPEG-TS generator.
type Encoder struct {
	dst io.WriteCloser

	clock       time.Duration
	writePeriod time.Duration
	ptsOffset   time.Duration
	tsSpace     [PacketSize]byte
	pesSpace    []byte

	continuity map[uint16]byte

	psiMethod    int
	pktCount     int
	psiSendCount int
	psiTime      time.Duration
	psiSetTime   time.Duration
	startTime    time.Time

	// The stream written by Write.
	mediaPID   uint16
	streamID   byte
	streamType byte

	program uint16
	pmtPID  uint16
	pcrPID  uint16
	tsid    uint16
	streams []psi.PMTElementInfo
	descs   []byte // PMT program info.

	pat, pmt           []byte
	pmtVersion         byte
	psiDirty, psiFirst bool

	// log is a function that will be used through the encoder code for logging.
	log logging.Logger
}

// NewEncoder returns an Encoder writing to dst. By default Write packetises
// H.264 at 25 access units per second; options configure other media, the
// program layout and the PSI insertion strategy.
func NewEncoder(dst io.WriteCloser, log logging.Logger, options ...func(*Encoder) error) (*Encoder, error) {
	e := &Encoder{
		dst:          dst,
		writePeriod:  time.Duration(float64(time.Second) / defaultRate),
		ptsOffset:    ptsOffset,
		psiMethod:    defaultPSIMethod,
		psiSendCount: psiSendCount,
		mediaPID:     defaultMediaPID,
		streamID:     defaultStreamID,
		streamType:   defaultStreamType,
		program:      defaultProgram,
		pmtPID:       PmtPid,
		tsid:         defaultTSID,
		continuity:   make(map[uint16]byte),
		psiFirst:     true,
		log:          log,
	}

	for _, option := range options {
		err := option(e)
		if err != nil {
			return nil, fmt.Errorf("option failed with error: %w", err)
		}
	}
	log.Debug("encoder options applied")

	if len(e.streams) == 0 {
		e.streams = []psi.PMTElementInfo{psi.NewPMTElementInfo(e.streamType, e.mediaPID)}
	}
	if e.pcrPID == 0 {
		e.pcrPID = e.streams[0].ElementaryPID
	}
	err := e.buildPSI()
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Write implements io.Writer. Write takes raw video or audio data and encodes into MPEG-TS,
// then sending it to the encoder's io.Writer destination. Timestamps are
// derived from the configured rate.
func (e *Encoder) Write(data []byte) (int, error) {
	e.log.Debug("writing data", "len(data)", len(data))
	f := EsFrame{
		Data:         data,
		Timestamps:   pes.PTSOnly(e.pts()),
		PCR:          e.pcr(),
		RandomAccess: true,
		StreamType:   e.streamType,
		StreamID:     e.streamID,
		PID:          e.mediaPID,
	}
	err := e.WriteFrame(&f)
	if err != nil {
		return 0, err
	}
	e.tick()
	return len(data), nil
}

// WriteFrame encodes the access unit f as a PES packet split over MPEG-TS
// packets on f.PID. PSI are written first if due. A PID missing from the PMT
// is added to it with f.StreamType, and the PMT version is bumped. If f.PCR
// is 0 and f.PID is the PCR PID, a PCR is derived from the frame's
// timestamps.
func (e *Encoder) WriteFrame(f *EsFrame) error {
	if !validPID(f.PID) || f.PID == e.pmtPID {
		return ErrInvalidPID
	}
	if !e.hasStream(f.PID) {
		e.log.Info("adding stream to PMT", "PID", f.PID, "stream type", f.StreamType)
		e.streams = append(e.streams, psi.NewPMTElementInfo(f.StreamType, f.PID))
		e.pmtVersion = (e.pmtVersion + 1) & 0x1f
		err := e.buildPSI()
		if err != nil {
			return fmt.Errorf("could not update PMT: %w", err)
		}
		e.psiDirty = true
	}

	err := e.maybeWritePSI(f)
	if err != nil {
		return err
	}

	streamID := f.StreamID
	if streamID == 0 {
		streamID = e.streamID
	}
	pesPkt := pes.Packet{
		Header: pes.NewHeader(streamID),
		Data:   f.Data,
	}
	pesPkt.Timestamps = f.Timestamps
	buf, err := pesPkt.Bytes(e.pesSpace[:0])
	if err != nil {
		return fmt.Errorf("could not encode PES packet: %w", err)
	}
	e.pesSpace = buf

	pusi := true
	for len(buf) != 0 {
		pkt := NewPacket(f.PID)
		pkt.PUSI = pusi
		pkt.CC = e.ccFor(f.PID)
		if pusi && (f.RandomAccess || f.PID == e.pcrPID) {
			pkt.AF = &AdaptationField{}
			pkt.AF.RAI = f.RandomAccess
			if f.PID == e.pcrPID {
				pkt.AF.PCRF = true
				pkt.AF.PCR = e.framePCR(f)
			}
		}
		n := pkt.FillPayload(buf)
		buf = buf[n:]

		b, err := pkt.Bytes(e.tsSpace[:0])
		if err != nil {
			return fmt.Errorf("could not encode MTS packet: %w", err)
		}
		e.log.Debug("writing MTS packet to destination", "size", len(b), "pusi", pusi, "PID", f.PID, "CC", pkt.CC)
		_, err = e.dst.Write(b)
		if err != nil {
			return fmt.Errorf("could not write MTS packet to destination: %w", err)
		}
		e.pktCount++
		pusi = false
	}
	return nil
}

// maybeWritePSI writes PSI if the configured method says they are due, if
// the tables changed, or if none have been written yet.
func (e *Encoder) maybeWritePSI(f *EsFrame) error {
	due := e.psiFirst || e.psiDirty
	switch e.psiMethod {
	case psiMethodPacket:
		e.log.Debug("checking packet no. conditions for PSI write", "count", e.pktCount, "PSI count", e.psiSendCount)
		due = due || e.pktCount >= e.psiSendCount
	case psiMethodRandomAccess:
		e.log.Debug("checking random access conditions for PSI write", "random access", f.RandomAccess)
		due = due || f.RandomAccess
	case psiMethodTime:
		e.log.Debug("checking time conditions for PSI write")
		if time.Since(e.startTime) >= e.psiTime {
			e.psiTime = e.psiSetTime
			e.startTime = time.Now()
			due = true
		}
	default:
		panic("undefined PSI method")
	}
	if !due {
		return nil
	}
	err := e.WritePSI()
	if err != nil {
		return fmt.Errorf("could not write psi: %w", err)
	}
	return nil
}

// WritePSI writes the PAT and PMT to the destination. A table too long for
// one packet is split across several.
func (e *Encoder) WritePSI() error {
	err := e.writeSection(PatPid, e.pat)
	if err != nil {
		return fmt.Errorf("could not write pat packet: %w", err)
	}
	err = e.writeSection(e.pmtPID, e.pmt)
	if err != nil {
		return fmt.Errorf("could not write pmt packet: %w", err)
	}
	e.pktCount = 0
	e.psiFirst, e.psiDirty = false, false
	e.log.Debug("PSI written", "PMT version", e.pmtVersion)
	return nil
}

func (e *Encoder) writeSection(pid uint16, section []byte) error {
	for i, payload := range psi.Packetize(section) {
		pkt := NewPacket(pid)
		pkt.PUSI = i == 0
		pkt.CC = e.ccFor(pid)
		pkt.Payload = payload
		b, err := pkt.Bytes(e.tsSpace[:0])
		if err != nil {
			return err
		}
		_, err = e.dst.Write(b)
		if err != nil {
			return err
		}
		e.pktCount++
	}
	return nil
}

// buildPSI encodes the PAT and PMT from the encoder's program layout.
func (e *Encoder) buildPSI() error {
	var err error
	e.pat, err = psi.NewPAT(e.tsid, psi.Program{Number: e.program, PID: e.pmtPID}).Bytes()
	if err != nil {
		return fmt.Errorf("could not encode PAT: %w", err)
	}
	pmt := psi.NewPMT(e.program, e.pcrPID, e.streams...)
	pmt.VersionNumber = e.pmtVersion
	pmt.ProgramInfo = e.descs
	e.pmt, err = pmt.Bytes()
	if err != nil {
		return fmt.Errorf("could not encode PMT: %w", err)
	}
	return nil
}

func (e *Encoder) hasStream(pid uint16) bool {
	for _, s := range e.streams {
		if s.ElementaryPID == pid {
			return true
		}
	}
	return false
}

// framePCR returns the PCR for f, derived from its DTS, or PTS, less the
// presentation offset if f carries none.
func (e *Encoder) framePCR(f *EsFrame) uint64 {
	if f.PCR != 0 {
		return f.PCR
	}
	ts, ok := f.DTS()
	if !ok {
		ts, ok = f.PTS()
	}
	if !ok {
		return e.pcr()
	}
	off := ticks(e.ptsOffset, PTSFrequency)
	if ts < off {
		return 0
	}
	return (ts - off) * 300
}

// tick advances the clock one frame interval.
func (e *Encoder) tick() {
	e.clock += e.writePeriod
}

// pts retuns the current presentation timestamp.
func (e *Encoder) pts() uint64 {
	return ticks(e.clock+e.ptsOffset, PTSFrequency)
}

// pcr returns the current program clock reference.
func (e *Encoder) pcr() uint64 {
	return ticks(e.clock, PCRFrequency)
}

// ticks returns the number of cycles of a freq Hz clock in d, to the
// microsecond.
func ticks(d time.Duration, freq uint64) uint64 {
	us := uint64(d / time.Microsecond)
	return us/1e6*freq + us%1e6*freq/1e6
}

// ccFor returns the next continuity counter for pid.
func (e *Encoder) ccFor(pid uint16) byte {
	cc := e.continuity[pid]
	e.continuity[pid] = (cc + 1) & ccMask
	return cc
}

func (e *Encoder) Close() error {
	e.log.Debug("closing encoder")
	return e.dst.Close()
}
