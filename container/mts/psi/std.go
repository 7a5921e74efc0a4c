/*
NAME
  std.go

DESCRIPTION
  std.go provides stream type constants and standard PSI tables.

AUTHOR
  Saxon Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package psi

import "errors"

// Stream types as per ITU-T Rec. H.222.0 / ISO/IEC 13818-1, table 2-34,
// followed by the user private types used for AusOcean media.
const (
	StreamTypeMPEG1Video  = 0x01
	StreamTypeMPEG2Video  = 0x02
	StreamTypeMPEG1Audio  = 0x03
	StreamTypeMPEG2Audio  = 0x04
	StreamTypePrivateData = 0x06
	StreamTypeAAC         = 0x0f
	StreamTypeMPEG4Video  = 0x10
	StreamTypeLATM        = 0x11
	StreamTypeMetadata    = 0x15
	StreamTypeH264        = 0x1b
	StreamTypeH265        = 0x24
	StreamTypeAC3         = 0x81
	StreamTypeEAC3        = 0x87

	StreamTypeMJPEG = 0x88
	StreamTypeJPEG  = 0x89
	StreamTypePCM   = 0xc0
	StreamTypeADPCM = 0xc1
)

// StreamTypeToMIMEType will return the corresponding MIME type for passed
// stream type.
func StreamTypeToMIMEType(st byte) (string, error) {
	switch st {
	case StreamTypeH264:
		return "video/h264", nil
	case StreamTypeH265:
		return "video/h265", nil
	case StreamTypeMPEG2Video:
		return "video/mpeg2", nil
	case StreamTypeMJPEG:
		return "video/x-motion-jpeg", nil
	case StreamTypeJPEG:
		return "image/jpeg", nil
	case StreamTypeAAC:
		return "audio/aac", nil
	case StreamTypeMPEG1Audio, StreamTypeMPEG2Audio:
		return "audio/mpeg", nil
	case StreamTypeAC3:
		return "audio/ac3", nil
	case StreamTypePCM:
		return "audio/pcm", nil
	case StreamTypeADPCM:
		return "audio/adpcm", nil
	default:
		return "", errors.New("unknown stream type")
	}
}

// IsVideo returns true if st is a video stream type.
func IsVideo(st byte) bool {
	switch st {
	case StreamTypeMPEG1Video, StreamTypeMPEG2Video, StreamTypeMPEG4Video,
		StreamTypeH264, StreamTypeH265, StreamTypeMJPEG, StreamTypeJPEG:
		return true
	}
	return false
}

// Std PSI in bytes form
var (
	StandardPatBytes = []byte{
		0x00, // pointer

		// ---- section included in data sent to CRC32 during check
		// table header
		0x00, // table id
		0xb0, // section syntax indicator:1|private bit:1|reserved:2|section length:2|more bytes...:2
		0x0d, // more bytes...

		// syntax section
		0x00, 0x01, // table id extension
		0xc1, // reserved bits:2|version:5|use now:1 1100 0001
		0x00, // section number
		0x00, // last section number
		// table data
		0x00, 0x01, // Program number
		0xf0, 0x00, // reserved:3|program map PID:13

		0x2a, 0xb1, 0x04, 0xb2, // CRC
		// ----
	}
	StandardPmtBytes = []byte{
		0x00, // pointer

		// ---- section included in data sent to CRC32 during check
		// table header
		0x02, // table id
		0xb0, // section syntax indicator:1|private bit:1|reserved:2|section length:2|more bytes...:2
		0x12, // more bytes...

		// syntax section
		0x00, 0x01, // table id extension
		0xc1, // reserved bits:3|version:5|use now:1
		0x00, // section number
		0x00, // last section number
		// table data
		0xe1, 0x00, // reserved:3|PCR PID:13
		0xf0, 0x00, // reserved:4|unused:2|program info length:10
		// No program descriptors since program info length is 0.
		// elementary stream info data
		0x1b,       // stream type
		0xe1, 0x00, // reserved:3|elementary PID:13
		0xf0, 0x00, // reserved:4|unused:2|ES info length:10
		// No elementary stream descriptors since ES info length is 0.

		0x15, 0xbd, 0x4d, 0x56, // CRC
		// ----
	}
)
