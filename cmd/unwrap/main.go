/*
LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// unwrap will unwrap an MPEG-TS encoded file and output the elementary stream
// data carried on each media PID to its own file.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"

	"golang.org/x/sync/errgroup"
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
	logVerbosity = logging.Info
	logSuppress  = true
)

func main() {
	var (
		inPath, outPrefix, logPath string
		pid                        int
	)
	flag.StringVar(&inPath, "in", "media.ts", "file path of input")
	flag.StringVar(&outPrefix, "out", "media", "prefix of output files, which are named <prefix>_<pid>.<ext>")
	flag.IntVar(&pid, "pid", 0, "PID of media to unwrap; 0 unwraps every stream in the PMT")
	flag.StringVar(&logPath, "log", "", "optional log file path")
	flag.Parse()

	w := io.Writer(os.Stderr)
	if logPath != "" {
		w = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   logPath,
			MaxSize:    logMaxSize,
			MaxBackups: logMaxBackup,
			MaxAge:     logMaxAge,
		})
	}
	log := logging.New(logVerbosity, w, logSuppress)

	clip, err := os.ReadFile(inPath)
	if err != nil {
		log.Fatal("could not read input", "error", err.Error())
	}

	_, streams, _, err := mts.FindPSI(clip)
	if err != nil {
		log.Fatal("could not find PSI", "error", err.Error())
	}
	if pid != 0 {
		if _, ok := streams[uint16(pid)]; !ok {
			log.Fatal("PID not in PMT", "pid", pid)
		}
		streams = map[uint16]uint8{uint16(pid): streams[uint16(pid)]}
	}

	create := func(pid uint16) (io.WriteCloser, error) {
		return os.Create(fmt.Sprintf("%s_%d.%s", outPrefix, pid, extension(streams[pid])))
	}
	sizes, err := unwrap(context.Background(), clip, streams, create, log)
	if err != nil {
		log.Fatal("could not unwrap clip", "error", err.Error())
	}
	for _, p := range sortedPIDs(sizes) {
		log.Info("wrote stream", "pid", p, "bytes", sizes[p])
	}
}

// unwrap demultiplexes clip with one worker per PID in streams, writing each
// stream's access unit data to the writer given by create. It returns the
// number of bytes written per PID.
func unwrap(ctx context.Context, clip []byte, streams map[uint16]uint8, create func(uint16) (io.WriteCloser, error), log logging.Logger) (map[uint16]int, error) {
	if len(clip)%mts.PacketSize != 0 {
		return nil, mts.ErrInvalidLen
	}

	pids := sortedPIDs(streams)
	sizes := make([]int, len(pids))
	g, ctx := errgroup.WithContext(ctx)
	for i, pid := range pids {
		i, pid := i, pid
		g.Go(func() error {
			dst, err := create(pid)
			if err != nil {
				return fmt.Errorf("could not create output for PID %d: %w", pid, err)
			}
			n, err := unwrapPID(ctx, clip, pid, streams, dst, log)
			sizes[i] = n
			cerr := dst.Close()
			if err != nil {
				return fmt.Errorf("PID %d: %w", pid, err)
			}
			return cerr
		})
	}
	err := g.Wait()
	if err != nil {
		return nil, err
	}

	m := make(map[uint16]int, len(pids))
	for i, pid := range pids {
		m[pid] = sizes[i]
	}
	return m, nil
}

// unwrapPID runs a demuxer over the PSI and the packets of pid in clip,
// writing the data of each complete access unit to dst.
func unwrapPID(ctx context.Context, clip []byte, pid uint16, streams map[uint16]uint8, dst io.Writer, log logging.Logger) (int, error) {
	var (
		d    *mts.Demuxer
		n    int
		werr error
	)
	d, err := mts.NewDemuxer(log, mts.DropBroken(), mts.FrameHandler(func(f *mts.EsFrame) {
		defer d.Recycle(f)
		if werr != nil || f.PID != pid {
			return
		}
		pts, _ := f.PTS()
		log.Debug("unwrapped frame", "pid", f.PID, "pts", pts, "len", len(f.Data))
		var c int
		c, werr = dst.Write(f.Data)
		n += c
	}))
	if err != nil {
		return 0, err
	}

	for i := 0; i < len(clip); i += mts.PacketSize {
		if i%(1024*mts.PacketSize) == 0 && ctx.Err() != nil {
			return n, ctx.Err()
		}
		p := clip[i : i+mts.PacketSize]
		pp, err := mts.PID(p)
		if err != nil {
			return n, err
		}
		if _, media := streams[pp]; media && pp != pid {
			continue
		}
		err = d.Demux(p)
		if err != nil {
			log.Warning("skipping packet", "pid", pid, "packet", i/mts.PacketSize, "error", err.Error())
		}
		if werr != nil {
			return n, werr
		}
	}
	d.Flush()
	return n, werr
}

// extension gives a file extension for a stream type.
func extension(st uint8) string {
	switch st {
	case psi.StreamTypeH264:
		return "h264"
	case psi.StreamTypeH265:
		return "h265"
	case psi.StreamTypeAAC:
		return "aac"
	case psi.StreamTypeMJPEG:
		return "mjpeg"
	default:
		return "raw"
	}
}

func sortedPIDs[V any](m map[uint16]V) []uint16 {
	pids := make([]uint16, 0, len(m))
	for p := range m {
		pids = append(pids, p)
	}
	sort.Slice(pids, func(i, j int) bool { return pids[i] < pids[j] })
	return pids
}
