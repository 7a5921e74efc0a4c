/*
DESCRIPTION
  tsdump demultiplexes an MPEG-TS file and prints its program tables and a
  line for each elementary stream access unit found.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// tsdump prints the PSI and access units of an MPEG-TS file.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ausocean/tscodec/container/mts"
	"github.com/ausocean/tscodec/container/mts/psi"
	"github.com/ausocean/utils/logging"
)

// Logging configuration.
const (
	logMaxSize   = 50 // MB
	logMaxBackup = 3
	logMaxAge    = 7 // days
	logSuppress  = false
)

// Number of packets read from the input at a time.
const readPackets = 512

func main() {
	var (
		inPath     = flag.String("in", "", "MPEG-TS file to dump, stdin if empty")
		logPath    = flag.String("log", "", "optional log file, rotated")
		verbose    = flag.Bool("v", false, "log at debug level")
		strict     = flag.Bool("strict", false, "drop sections that fail the CRC check")
		dropBroken = flag.Bool("drop-broken", false, "do not print broken access units")
	)
	flag.Parse()

	log := newLogger(*logPath, *verbose)

	in := io.Reader(os.Stdin)
	if *inPath != "" {
		f, err := os.Open(*inPath)
		if err != nil {
			log.Fatal("could not open input", "error", err.Error())
		}
		defer f.Close()
		in = f
	}

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()
	show := func(level int8, msg string) {
		if level >= logging.Info || *verbose {
			fmt.Fprintln(out, msg)
		}
	}

	opts := []func(*mts.Demuxer) error{
		printPAT(show),
		printPMT(show),
	}
	var d *mts.Demuxer
	opts = append(opts, mts.FrameHandler(func(f *mts.EsFrame) {
		fmt.Fprintln(out, frameLine(f))
		d.Recycle(f)
	}))
	if *strict {
		opts = append(opts, mts.StrictCRC())
	}
	if *dropBroken {
		opts = append(opts, mts.DropBroken())
	}
	d, err := mts.NewDemuxer(log, opts...)
	if err != nil {
		log.Fatal("could not create demuxer", "error", err.Error())
	}

	n, err := dump(d, in, log)
	d.Flush()
	if err != nil {
		log.Fatal("could not dump stream", "packets", n, "error", err.Error())
	}
	log.Info("finished", "packets", n)
}

// dump feeds whole packets from r to d until r is exhausted, and returns the
// number of packets read. Packets the demuxer rejects are logged and skipped,
// and a trailing partial packet is ignored.
func dump(d *mts.Demuxer, r io.Reader, log logging.Logger) (int, error) {
	buf := make([]byte, readPackets*mts.PacketSize)
	var total int
	for {
		n, err := io.ReadFull(r, buf)
		n -= n % mts.PacketSize
		for i := 0; i < n; i += mts.PacketSize {
			derr := d.Demux(buf[i : i+mts.PacketSize])
			if derr != nil {
				log.Warning("skipping packet", "packet", total, "error", derr.Error())
			}
			total++
		}
		switch err {
		case nil:
		case io.EOF, io.ErrUnexpectedEOF:
			return total, nil
		default:
			return total, err
		}
	}
}

// frameLine gives a one line summary of an access unit.
func frameLine(f *mts.EsFrame) string {
	s := fmt.Sprintf("pid=%d type=%#02x sid=%#02x len=%d", f.PID, f.StreamType, f.StreamID, len(f.Data))
	if pts, ok := f.PTS(); ok {
		s += fmt.Sprintf(" pts=%d", pts)
	}
	if dts, ok := f.DTS(); ok {
		s += fmt.Sprintf(" dts=%d", dts)
	}
	s += fmt.Sprintf(" pcr=%d", f.PCR)
	if f.RandomAccess {
		s += " rai"
	}
	if f.Broken {
		s += " broken"
	}
	return s
}

// printPAT returns a demuxer option that prints each new PAT.
func printPAT(show psi.LogFunc) func(*mts.Demuxer) error {
	return mts.PATHandler(func(p *psi.PAT) { p.Print(logging.Info, show) })
}

// printPMT returns a demuxer option that prints each new PMT.
func printPMT(show psi.LogFunc) func(*mts.Demuxer) error {
	return mts.PMTHandler(func(p *psi.PMTHeader) { p.Print(logging.Info, show) })
}

// newLogger returns a logger writing to stderr, and also to a rotated file at
// path if given.
func newLogger(path string, verbose bool) logging.Logger {
	var level int8 = logging.Info
	if verbose {
		level = logging.Debug
	}
	w := io.Writer(os.Stderr)
	if path != "" {
		w = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   path,
			MaxSize:    logMaxSize,
			MaxBackups: logMaxBackup,
			MaxAge:     logMaxAge,
		})
	}
	return logging.New(level, w, logSuppress)
}
