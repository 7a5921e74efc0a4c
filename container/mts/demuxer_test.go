/*
DESCRIPTION
  demuxer_test.go provides testing for demultiplexing of MPEG-TS into PSI
  tables and access units.

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

	"github.com/ausocean/utils/logging"
	"github.com/google/go-cmp/cmp"

	"github.com/ausocean/tscodec/container/mts/pes"
	"github.com/ausocean/tscodec/container/mts/psi"
)

func TestDemuxRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	e, err := NewEncoder(
		nopCloser{&buf},
		(*logging.TestLogger)(t),
		ProgramStreams(
			psi.NewPMTElementInfo(psi.StreamTypeH264, PIDVideo),
			psi.NewPMTElementInfo(psi.StreamTypeAAC, PIDAudio),
		),
		RandomAccessPSI(),
	)
	if err != nil {
		t.Fatalf("could not create encoder: %v", err)
	}

	in := []EsFrame{
		{
			Data:         testData(1000),
			Timestamps:   pes.PTSAndDTS(93600, 90000),
			RandomAccess: true,
			StreamType:   psi.StreamTypeH264,
			StreamID:     pes.VideoSID,
			PID:          PIDVideo,
		},
		{
			Data:       testData(300),
			Timestamps: pes.PTSOnly(91000),
			StreamType: psi.StreamTypeAAC,
			StreamID:   pes.AudioSID,
			PID:        PIDAudio,
		},
		{
			Data:       testData(5000),
			Timestamps: pes.PTSAndDTS(97200, 93600),
			StreamType: psi.StreamTypeH264,
			StreamID:   pes.VideoSID,
			PID:        PIDVideo,
		},
	}
	for i := range in {
		err := e.WriteFrame(&in[i])
		if err != nil {
			t.Fatalf("could not write frame %d: %v", i, err)
		}
	}
	wantPCR := []uint64{(90000 - 63000) * 300, 0, (93600 - 63000) * 300}

	d, err := NewDemuxer((*logging.TestLogger)(t))
	if err != nil {
		t.Fatalf("could not create demuxer: %v", err)
	}
	_, err = d.Write(buf.Bytes())
	if err != nil {
		t.Fatalf("did not expect error demuxing: %v", err)
	}
	d.Flush()

	got := d.Frames()
	if len(got) != len(in) {
		t.Fatalf("did not get expected number of frames.\n Got: %d\n Want: %d\n", len(got), len(in))
	}
	for i, f := range got {
		want := in[i]
		if !f.Completed || f.Broken {
			t.Errorf("frame %d not completed", i)
		}
		if !bytes.Equal(f.Data, want.Data) {
			t.Errorf("did not get expected data for frame %d", i)
		}
		if !f.Timestamps.Equal(want.Timestamps) {
			t.Errorf("did not get expected timestamps for frame %d", i)
		}
		if f.RandomAccess != want.RandomAccess || f.PID != want.PID || f.StreamType != want.StreamType || f.StreamID != want.StreamID {
			t.Errorf("unexpected frame %d: %+v", i, f)
		}
		if f.PCR != wantPCR[i] {
			t.Errorf("unexpected PCR for frame %d.\n Got: %d\n Want: %d\n", i, f.PCR, wantPCR[i])
		}
	}
	if d.Frames() != nil {
		t.Error("frame queue should be drained")
	}

	pat := d.PAT()
	if pat == nil || !cmp.Equal(pat.ProgramMap(), map[uint16]uint16{1: PmtPid}) {
		t.Errorf("unexpected PAT: %+v", pat)
	}
	pmt, ok := d.PMT(1)
	if !ok {
		t.Fatal("expected PMT for program 1")
	}
	if pmt.PCRPID != PIDVideo || len(pmt.Infos) != 2 {
		t.Errorf("unexpected PMT: %+v", pmt)
	}
}

func TestDemuxMultiPacketPMT(t *testing.T) {
	var infos []psi.PMTElementInfo
	for i := 0; i < 4; i++ {
		info := psi.NewPMTElementInfo(psi.StreamTypePrivateData, uint16(300+i))
		info.ESInfo = psi.EncodeDescriptors(psi.Descriptor{Tag: psi.LanguageTag, Data: bytes.Repeat([]byte{byte(i)}, 58)})
		infos = append(infos, info)
	}

	var buf bytes.Buffer
	e, err := NewEncoder(nopCloser{&buf}, (*logging.TestLogger)(t), ProgramStreams(infos...))
	if err != nil {
		t.Fatalf("could not create encoder: %v", err)
	}
	err = e.WritePSI()
	if err != nil {
		t.Fatalf("could not write PSI: %v", err)
	}
	if buf.Len() != 3*PacketSize {
		t.Fatalf("expected PAT and two PMT packets, got %d bytes", buf.Len())
	}

	var got []*psi.PMTHeader
	d, err := NewDemuxer((*logging.TestLogger)(t), PMTHandler(func(p *psi.PMTHeader) { got = append(got, p) }))
	if err != nil {
		t.Fatalf("could not create demuxer: %v", err)
	}
	_, err = d.Write(buf.Bytes())
	if err != nil {
		t.Fatalf("did not expect error demuxing: %v", err)
	}

	if len(got) != 1 {
		t.Fatalf("expected 1 PMT, got %d", len(got))
	}
	if len(got[0].Infos) != len(infos) {
		t.Fatalf("unexpected number of streams: %d", len(got[0].Infos))
	}
	for i, info := range got[0].Infos {
		if info.ElementaryPID != infos[i].ElementaryPID || !bytes.Equal(info.ESInfo, infos[i].ESInfo) {
			t.Errorf("unexpected stream %d: %+v", i, info)
		}
	}
}

func TestDemuxSectionsInOnePacket(t *testing.T) {
	pat0 := psi.NewPAT(1, psi.Program{Number: 1, PID: PmtPid})
	pat1 := psi.NewPAT(1, psi.Program{Number: 1, PID: PmtPid}, psi.Program{Number: 2, PID: PmtPid + 1})
	pat1.VersionNumber = 1
	b0, _ := pat0.Bytes()
	b1, _ := pat1.Bytes()

	pkt := NewPacket(PatPid)
	pkt.PUSI = true
	pkt.Payload = psi.AddPadding(append(append([]byte{0x00}, b0...), b1...))
	b, err := pkt.Bytes(nil)
	if err != nil {
		t.Fatalf("could not encode packet: %v", err)
	}

	var versions []byte
	d, _ := NewDemuxer((*logging.TestLogger)(t), PATHandler(func(p *psi.PAT) { versions = append(versions, p.VersionNumber) }))
	err = d.Demux(b)
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	if !bytes.Equal(versions, []byte{0, 1}) {
		t.Errorf("did not get expected PAT versions.\n Got: %v\n Want: %v\n", versions, []byte{0, 1})
	}
	if len(d.PAT().Programs) != 2 {
		t.Errorf("expected the latest PAT to be current")
	}
}

func TestDemuxPointerField(t *testing.T) {
	var infos []psi.PMTElementInfo
	for i := 0; i < 4; i++ {
		info := psi.NewPMTElementInfo(psi.StreamTypePrivateData, uint16(300+i))
		info.ESInfo = make([]byte, 60)
		infos = append(infos, info)
	}
	big, _ := psi.NewPMT(1, 300, infos...).Bytes()
	small := psi.NewPMT(1, PIDVideo, psi.NewPMTElementInfo(psi.StreamTypeH264, PIDVideo))
	small.VersionNumber = 1
	sb, _ := small.Bytes()

	const first = psi.PacketSize - 1
	tail := big[first:]
	p0 := append([]byte{0x00}, big[:first]...)
	p1 := append([]byte{byte(len(tail))}, tail...)
	p1 = psi.AddPadding(append(p1, sb...))

	pat := NewPacket(PatPid)
	pat.PUSI = true
	pat.Payload = psi.AddPadding(psi.StandardPatBytes)
	clip, err := pat.Bytes(nil)
	if err != nil {
		t.Fatalf("could not encode PAT packet: %v", err)
	}
	for i, payload := range [][]byte{p0, p1} {
		pkt := NewPacket(PmtPid)
		pkt.PUSI = true
		pkt.CC = byte(i)
		pkt.Payload = payload
		b, err := pkt.Bytes(nil)
		if err != nil {
			t.Fatalf("could not encode packet %d: %v", i, err)
		}
		clip = append(clip, b...)
	}

	var got []*psi.PMTHeader
	d, _ := NewDemuxer((*logging.TestLogger)(t), PMTHandler(func(p *psi.PMTHeader) { got = append(got, p) }))
	_, err = d.Write(clip)
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 PMTs, got %d", len(got))
	}
	if got[0].VersionNumber != 0 || len(got[0].Infos) != 4 {
		t.Errorf("unexpected first PMT: %+v", got[0])
	}
	if got[1].VersionNumber != 1 || len(got[1].Infos) != 1 {
		t.Errorf("unexpected second PMT: %+v", got[1])
	}
}

func TestDemuxCRCMismatch(t *testing.T) {
	for _, strict := range []bool{false, true} {
		var buf bytes.Buffer
		e, err := NewEncoder(nopCloser{&buf}, (*logging.TestLogger)(t))
		if err != nil {
			t.Fatalf("could not create encoder: %v", err)
		}
		err = e.WritePSI()
		if err != nil {
			t.Fatalf("could not write PSI: %v", err)
		}
		b := buf.Bytes()
		pmtLen := psi.NewPMT(1, PIDVideo, psi.NewPMTElementInfo(psi.StreamTypeH264, PIDVideo)).Size()
		b[PacketSize+HeadSize+1+pmtLen-1] ^= 0xff

		var got []*psi.PMTHeader
		options := []func(*Demuxer) error{PMTHandler(func(p *psi.PMTHeader) { got = append(got, p) })}
		if strict {
			options = append(options, StrictCRC())
		}
		d, err := NewDemuxer((*logging.TestLogger)(t), options...)
		if err != nil {
			t.Fatalf("could not create demuxer: %v", err)
		}
		_, err = d.Write(b)
		if err != nil {
			t.Fatalf("did not expect error: %v", err)
		}

		_, ok := d.PMT(1)
		if strict && (len(got) != 0 || ok) {
			t.Error("PMT with bad CRC should be dropped in strict mode")
		}
		if !strict && (len(got) != 1 || !ok) {
			t.Error("PMT with bad CRC should be used by default")
		}
	}
}

func TestDemuxErrors(t *testing.T) {
	d, _ := NewDemuxer((*logging.TestLogger)(t))

	err := d.Demux(make([]byte, PacketSize-1))
	if err != ErrInvalidLen {
		t.Errorf("did not get expected error.\n Got: %v\n Want: %v\n", err, ErrInvalidLen)
	}
	err = d.Demux(make([]byte, PacketSize))
	if err != ErrSync {
		t.Errorf("did not get expected error.\n Got: %v\n Want: %v\n", err, ErrSync)
	}
	_, err = d.Write(make([]byte, PacketSize+1))
	if err != ErrInvalidLen {
		t.Errorf("did not get expected error.\n Got: %v\n Want: %v\n", err, ErrInvalidLen)
	}
}

func TestDemuxDrops(t *testing.T) {
	var buf bytes.Buffer
	e, err := NewEncoder(nopCloser{&buf}, (*logging.TestLogger)(t))
	if err != nil {
		t.Fatalf("could not create encoder: %v", err)
	}
	err = e.WritePSI()
	if err != nil {
		t.Fatalf("could not write PSI: %v", err)
	}

	// A frame with a transport error, a frame on an unknown PID and a null
	// packet produce nothing.
	for _, pid := range []uint16{PIDVideo, 300, NullPid} {
		pkt := NewPacket(pid)
		pkt.PUSI = true
		pkt.TEI = pid == PIDVideo
		pkt.Payload = pesBytes(t, []byte{1, 2, 3}, 0, false)
		b, err := pkt.Bytes(nil)
		if err != nil {
			t.Fatalf("could not encode packet: %v", err)
		}
		buf.Write(b)
	}

	d, _ := NewDemuxer((*logging.TestLogger)(t))
	_, err = d.Write(buf.Bytes())
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	d.Flush()
	if f := d.Frames(); len(f) != 0 {
		t.Errorf("expected no frames, got %d", len(f))
	}
}

func TestDemuxDropBroken(t *testing.T) {
	pkts := tsPackets(PIDVideo, 0, pesBytes(t, testData(threePacketData), 0, false))
	var clip []byte
	clip = append(clip, standardPSI(t)...)
	for _, p := range []*Packet{pkts[0], pkts[2]} {
		b, err := p.Bytes(nil)
		if err != nil {
			t.Fatalf("could not encode packet: %v", err)
		}
		clip = append(clip, b...)
	}

	for _, drop := range []bool{false, true} {
		var options []func(*Demuxer) error
		if drop {
			options = append(options, DropBroken())
		}
		d, _ := NewDemuxer((*logging.TestLogger)(t), options...)
		_, err := d.Write(clip)
		if err != nil {
			t.Fatalf("did not expect error: %v", err)
		}
		d.Flush()
		f := d.Frames()
		if drop && len(f) != 0 {
			t.Errorf("expected broken frame to be dropped, got %d frames", len(f))
		}
		if !drop && (len(f) != 1 || !f[0].Broken) {
			t.Errorf("expected one broken frame, got %d frames", len(f))
		}
	}
}

// standardPSI returns a PAT and PMT packet for a single H.264 stream on
// PIDVideo.
func standardPSI(t *testing.T) []byte {
	var clip []byte
	for _, s := range []struct {
		pid uint16
		sec []byte
	}{{PatPid, psi.StandardPatBytes}, {PmtPid, psi.StandardPmtBytes}} {
		pkt := NewPacket(s.pid)
		pkt.PUSI = true
		pkt.Payload = psi.AddPadding(s.sec)
		b, err := pkt.Bytes(nil)
		if err != nil {
			t.Fatalf("could not encode PSI packet: %v", err)
		}
		clip = append(clip, b...)
	}
	return clip
}

func TestSectionAssemblerGap(t *testing.T) {
	var infos []psi.PMTElementInfo
	for i := 0; i < 4; i++ {
		info := psi.NewPMTElementInfo(psi.StreamTypePrivateData, uint16(300+i))
		info.ESInfo = make([]byte, 60)
		infos = append(infos, info)
	}
	big, _ := psi.NewPMT(1, 300, infos...).Bytes()
	small, _ := psi.NewPMT(1, PIDVideo, psi.NewPMTElementInfo(psi.StreamTypeH264, PIDVideo)).Bytes()
	bigPayloads := psi.Packetize(big)

	var got [][]byte
	handle := func(sec []byte) { got = append(got, append([]byte(nil), sec...)) }
	s := newSectionAssembler()

	p := NewPacket(PmtPid)
	p.AFC = hasPayload
	p.PUSI = true
	p.Payload = bigPayloads[0]
	if !s.push(&p, handle) || len(got) != 0 || !s.active {
		t.Fatalf("unexpected state after first packet, handled: %d, active: %v", len(got), s.active)
	}

	// The rest of the section arrives after a lost packet.
	p.PUSI = false
	p.CC = 2
	p.Payload = bigPayloads[1]
	if s.push(&p, handle) {
		t.Error("expected lost section data to be reported")
	}
	if len(got) != 0 || s.active || len(s.buf) != 0 {
		t.Errorf("unexpected state after gap, handled: %d, active: %v, buffered: %d", len(got), s.active, len(s.buf))
	}

	p.PUSI = true
	p.CC = 3
	p.Payload = psi.Packetize(small)[0]
	if !s.push(&p, handle) {
		t.Error("did not expect lost data")
	}
	if len(got) != 1 || !bytes.Equal(got[0], small) {
		t.Errorf("did not get expected section.\n Got: %v\n Want: %v\n", got, small)
	}
}
