/*
DESCRIPTION
  helpers.go provides stream ID constants and classification helpers.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package pes

// Stream IDs as per ITU-T Rec. H.222.0 / ISO/IEC 13818-1, table 2-22.
const (
	ProgramStreamMapSID       = 0xbc
	PrivateStream1SID         = 0xbd
	PaddingSID                = 0xbe
	PrivateStream2SID         = 0xbf
	AudioSID                  = 0xc0 // First of 32 MPEG audio stream IDs.
	VideoSID                  = 0xe0 // First of 16 video stream IDs.
	ECMSID                    = 0xf0
	EMMSID                    = 0xf1
	DSMCCSID                  = 0xf2
	H2221TypeESID             = 0xf8
	ProgramStreamDirectorySID = 0xff
)

// HasOptionalHeader returns true if PES packets with the given stream ID
// carry the flags, header data length and optional fields after the packet
// length.
func HasOptionalHeader(sid byte) bool {
	switch sid {
	case ProgramStreamMapSID, PaddingSID, PrivateStream2SID, ECMSID, EMMSID,
		DSMCCSID, H2221TypeESID, ProgramStreamDirectorySID:
		return false
	default:
		return true
	}
}

// IsVideo returns true if sid is in the video stream ID range.
func IsVideo(sid byte) bool { return sid&0xf0 == VideoSID }

// IsAudio returns true if sid is in the MPEG audio stream ID range.
func IsAudio(sid byte) bool { return sid&0xe0 == AudioSID }
