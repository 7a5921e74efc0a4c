/*
DESCRIPTION
  options.go provides option functions that can be provided to the MTS
  encoder's constructor NewEncoder for encoder configuration, and to
  NewDemuxer for demuxer configuration. Encoder options include media type,
  program layout, PSI insertion strategy and intended access unit rate.

AUTHOR
  Saxon Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package mts

import (
	"errors"
	"time"

	"github.com/ausocean/tscodec/container/mts/pes"
	"github.com/ausocean/tscodec/container/mts/psi"
)

var (
	ErrUnsupportedMedia = errors.New("unsupported media type")
	ErrInvalidRate      = errors.New("invalid access unit rate")
	ErrInvalidPID       = errors.New("invalid PID")
	ErrInvalidCount     = errors.New("invalid PSI send count")
	ErrNoStreams        = errors.New("no streams given")
)

// PacketBasedPSI is an option that can be passed to NewEncoder to select
// packet based PSI writing, i.e. PSI are written to the destination every
// sendCount packets.
func PacketBasedPSI(sendCount int) func(*Encoder) error {
	return func(e *Encoder) error {
		if sendCount < 1 {
			return ErrInvalidCount
		}
		e.psiMethod = psiMethodPacket
		e.psiSendCount = sendCount
		e.log.Debug("configured for packet based PSI insertion", "count", sendCount)
		return nil
	}
}

// TimeBasedPSI is another option that can be passed to NewEncoder to select
// time based PSI writing, i.e. PSI are written to the destination every dur
// (duration).
func TimeBasedPSI(dur time.Duration) func(*Encoder) error {
	return func(e *Encoder) error {
		e.psiMethod = psiMethodTime
		e.psiTime = 0
		e.psiSetTime = dur
		e.startTime = time.Now()
		e.log.Debug("configured for time based PSI insertion", "period", dur)
		return nil
	}
}

// RandomAccessPSI is an option that can be passed to NewEncoder to select
// writing of PSI before every random access frame, so that decoding can
// begin at any of them.
func RandomAccessPSI() func(*Encoder) error {
	return func(e *Encoder) error {
		e.psiMethod = psiMethodRandomAccess
		e.log.Debug("configured for random access based PSI insertion")
		return nil
	}
}

// MediaType is an option that can be passed to NewEncoder. It is used to
// specifiy the media type/codec of the data we are packetising using the
// encoder's Write method. Currently supported options are EncodeH264,
// EncodeH265, EncodeMJPEG, EncodeJPEG, EncodePCM, EncodeADPCM and EncodeAAC.
func MediaType(mt int) func(*Encoder) error {
	return func(e *Encoder) error {
		switch mt {
		case EncodePCM:
			e.mediaPID = PIDAudio
			e.streamID = pes.PrivateStream1SID
			e.streamType = psi.StreamTypePCM
			e.log.Debug("configured for PCM packetisation")
		case EncodeADPCM:
			e.mediaPID = PIDAudio
			e.streamID = pes.PrivateStream1SID
			e.streamType = psi.StreamTypeADPCM
			e.log.Debug("configured for ADPCM packetisation")
		case EncodeAAC:
			e.mediaPID = PIDAudio
			e.streamID = pes.AudioSID
			e.streamType = psi.StreamTypeAAC
			e.log.Debug("configured for AAC packetisation")
		case EncodeH265:
			e.mediaPID = PIDVideo
			e.streamID = pes.VideoSID
			e.streamType = psi.StreamTypeH265
			e.log.Debug("configured for h.265 packetisation")
		case EncodeH264:
			e.mediaPID = PIDVideo
			e.streamID = pes.VideoSID
			e.streamType = psi.StreamTypeH264
			e.log.Debug("configured for h.264 packetisation")
		case EncodeMJPEG:
			e.mediaPID = PIDVideo
			e.streamID = pes.VideoSID
			e.streamType = psi.StreamTypeMJPEG
			e.log.Debug("configured for MJPEG packetisation")
		case EncodeJPEG:
			e.mediaPID = PIDVideo
			e.streamID = pes.VideoSID
			e.streamType = psi.StreamTypeJPEG
			e.log.Debug("configure for JPEG packetisation")
		default:
			return ErrUnsupportedMedia
		}
		return nil
	}
}

// Rate is an option that can be passed to NewEncoder. It is used to specifiy
// the rate at which the access units should be played in playback. This will
// be used to create timestamps and counts such as PTS and PCR.
func Rate(r float64) func(*Encoder) error {
	return func(e *Encoder) error {
		if r < 1 || r > 60 {
			return ErrInvalidRate
		}
		e.writePeriod = time.Duration(float64(time.Second) / r)
		return nil
	}
}

// ProgramStreams is an option that can be passed to NewEncoder to declare
// the elementary streams of the program up front, in PMT order. Without it
// the program holds only the stream selected by MediaType.
func ProgramStreams(infos ...psi.PMTElementInfo) func(*Encoder) error {
	return func(e *Encoder) error {
		if len(infos) == 0 {
			return ErrNoStreams
		}
		for _, info := range infos {
			if !validPID(info.ElementaryPID) {
				return ErrInvalidPID
			}
		}
		e.streams = append([]psi.PMTElementInfo(nil), infos...)
		return nil
	}
}

// ProgramNumber is an option that can be passed to NewEncoder to set the
// program number in the PAT and PMT.
func ProgramNumber(n uint16) func(*Encoder) error {
	return func(e *Encoder) error {
		e.program = n
		return nil
	}
}

// PMTPID is an option that can be passed to NewEncoder to set the PID the
// PMT is written on.
func PMTPID(pid uint16) func(*Encoder) error {
	return func(e *Encoder) error {
		if !validPID(pid) {
			return ErrInvalidPID
		}
		e.pmtPID = pid
		return nil
	}
}

// PCRPID is an option that can be passed to NewEncoder to set the PID that
// carries the PCR. By default it is the first stream's PID.
func PCRPID(pid uint16) func(*Encoder) error {
	return func(e *Encoder) error {
		if !validPID(pid) {
			return ErrInvalidPID
		}
		e.pcrPID = pid
		return nil
	}
}

// TransportStreamID is an option that can be passed to NewEncoder to set the
// transport stream ID in the PAT.
func TransportStreamID(id uint16) func(*Encoder) error {
	return func(e *Encoder) error {
		e.tsid = id
		return nil
	}
}

// ProgramDescriptors is an option that can be passed to NewEncoder to
// carry descriptors in the PMT program info, e.g. a registration descriptor.
func ProgramDescriptors(ds ...psi.Descriptor) func(*Encoder) error {
	return func(e *Encoder) error {
		e.descs = psi.EncodeDescriptors(ds...)
		return nil
	}
}

// validPID returns true if pid may carry a stream or PMT.
func validPID(pid uint16) bool {
	return pid > SdtPid && pid < NullPid
}

// FrameHandler is an option that can be passed to NewDemuxer to receive
// frames as they are completed or broken. The handler takes ownership of
// each frame and may give it back with Demuxer.Recycle. Without a handler,
// frames are queued for Demuxer.Frames.
func FrameHandler(fn func(*EsFrame)) func(*Demuxer) error {
	return func(d *Demuxer) error {
		d.onFrame = fn
		return nil
	}
}

// PATHandler is an option that can be passed to NewDemuxer to be told of
// each PAT decoded.
func PATHandler(fn func(*psi.PAT)) func(*Demuxer) error {
	return func(d *Demuxer) error {
		d.onPAT = fn
		return nil
	}
}

// PMTHandler is an option that can be passed to NewDemuxer to be told of
// each PMT decoded.
func PMTHandler(fn func(*psi.PMTHeader)) func(*Demuxer) error {
	return func(d *Demuxer) error {
		d.onPMT = fn
		return nil
	}
}

// StrictCRC is an option that can be passed to NewDemuxer to discard PSI
// sections with a bad CRC. By default they are logged and used.
func StrictCRC() func(*Demuxer) error {
	return func(d *Demuxer) error {
		d.strictCRC = true
		return nil
	}
}

// DropBroken is an option that can be passed to NewDemuxer to recycle
// broken frames instead of handing them over.
func DropBroken() func(*Demuxer) error {
	return func(d *Demuxer) error {
		d.dropBroken = true
		return nil
	}
}
