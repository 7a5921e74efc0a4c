/*
NAME
  tsrepair/main.go

DESCRIPTION
  tsrepair attempts to repair MPEG-TS continuity discontinuities using one of
  two methods as selected by the mode flag. Setting the mode flag to 0 will
  result in repair by shifting all CCs such that they are continuous. Setting
  the mode flag to 1 will result in repair through setting the discontinuity
  indicator at packets where a discontinuity exists.

  Specify the input file with the in flag, and the output file with out flag.

AUTHOR
  Saxon A. Nelson-Milton <saxon.milton@gmail.com>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package main

import (
	"flag"
	"io"
	"os"

	"github.com/Comcast/gots/v2/packet"
	"github.com/pkg/errors"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ausocean/tscodec/container/mts"
	"github.com/ausocean/utils/logging"
)

// Consts describing flag usage.
const (
	inUsage   = "The path to the file to be repaired"
	outUsage  = "Output file path"
	modeUsage = "Fix mode: 0 = cc-shift, 1 = di-update"
	logUsage  = "Optional log file path"
)

// Repair modes.
const (
	ccShift = iota
	diUpdate
)

// Logging configuration.
const (
	logMaxSize   = 50 // MB
	logMaxBackup = 3
	logMaxAge    = 7 // days
	logVerbosity = logging.Info
	logSuppress  = false
)

var errBadMode = errors.New("bad fix mode")

func main() {
	inPtr := flag.String("in", "", inUsage)
	outPtr := flag.String("out", "out.ts", outUsage)
	modePtr := flag.Int("mode", diUpdate, modeUsage)
	logPtr := flag.String("log", "", logUsage)
	flag.Parse()

	w := io.Writer(os.Stderr)
	if *logPtr != "" {
		w = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   *logPtr,
			MaxSize:    logMaxSize,
			MaxBackups: logMaxBackup,
			MaxAge:     logMaxAge,
		})
	}
	log := logging.New(logVerbosity, w, logSuppress)

	inFile, err := os.Open(*inPtr)
	if err != nil {
		log.Fatal("could not open input file", "error", err.Error())
	}
	defer inFile.Close()

	outFile, err := os.Create(*outPtr)
	if err != nil {
		log.Fatal("could not create output file", "error", err.Error())
	}
	defer outFile.Close()

	n, err := repair(inFile, outFile, *modePtr, log)
	if err != nil {
		log.Fatal("repair failed", "packets", n, "error", err.Error())
	}
	log.Info("repair complete", "packets", n)
}

// repair copies the packets of r to w, repairing discontinuities according to
// mode. It returns the number of packets written.
func repair(r io.Reader, w io.Writer, mode int, log logging.Logger) (int, error) {
	var fix func(p *packet.Packet, n int)
	switch mode {
	case ccShift:
		expect := make(map[int]int)
		fix = func(p *packet.Packet, n int) {
			if !packet.ContainsPayload(p) {
				return
			}
			pid := p.PID()
			cc, ok := expect[pid]
			if !ok {
				cc = p.ContinuityCounter()
			}
			setCC(p, cc)
			expect[pid] = (cc + 1) & 0xf
		}
	case diUpdate:
		dr := mts.NewDiscontinuityRepairer()
		fix = func(p *packet.Packet, n int) {
			err := dr.Repair(p[:])
			if err == nil {
				return
			}
			log.Warning("could not mark discontinuity", "packet", n, "error", err.Error())

			// Carry on from this packet's counter.
			dr.SetExpectedCC(p.PID(), p.ContinuityCounter())
			dr.IncExpectedCC(p.PID())
		}
	default:
		return 0, errBadMode
	}

	var (
		p packet.Packet
		n int
	)
	for {
		_, err := io.ReadFull(r, p[:])
		switch err {
		case nil:
		case io.EOF:
			return n, nil
		case io.ErrUnexpectedEOF:
			log.Warning("dropping trailing partial packet")
			return n, nil
		default:
			return n, errors.Wrap(err, "read failed")
		}
		if p[0] != mts.SyncByte {
			return n, errors.Wrapf(mts.ErrSync, "packet %d", n)
		}

		fix(&p, n)
		_, err = w.Write(p[:])
		if err != nil {
			return n, errors.Wrap(err, "write failed")
		}
		n++
	}
}

// setCC sets the continuity counter of p.
func setCC(p *packet.Packet, cc int) {
	p[3] = p[3]&0xf0 | byte(cc)&0xf
}
