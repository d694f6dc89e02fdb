package xisort

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"
)

// runInfo describes one sorted scratch file: its path, its element count,
// and the xxhash64 of its bytes, re-verified when the run is drained by a
// merge.
type runInfo struct {
	path  string
	elems uint64
	sum   uint64
}

// valueReader is a random-access view of the run builder's input, either the
// caller's slice or a memory-mapped input file.
type valueReader interface {
	// readAt decodes values into dst starting at element offset off.
	// Precondition: off+len(dst) does not exceed total().
	readAt(dst []float64, off uint64)
	total() uint64
}

// sliceReader adapts a caller-owned slice.
type sliceReader []float64

func (r sliceReader) readAt(dst []float64, off uint64) {
	copy(dst, r[off:])
}

func (r sliceReader) total() uint64 {
	return uint64(len(r))
}

// byteReader adapts a little-endian byte image, typically a read-only mmap
// of the input file. Length must be a multiple of elemSize.
type byteReader []byte

func (r byteReader) readAt(dst []float64, off uint64) {
	base := off * elemSize
	for i := range dst {
		dst[i] = math.Float64frombits(binary.LittleEndian.Uint64(r[base+uint64(i)*elemSize:]))
	}
}

func (r byteReader) total() uint64 {
	return uint64(len(r)) / elemSize
}

// writeJob hands a sorted chunk to the run writer goroutine. Jobs arrive in
// run-index order, so runs land on disk in the order they were cut.
type writeJob struct {
	path string
	vals []float64
}

// buildRuns splits src into chunks of at most maxElems values, sorts each
// chunk, and persists it as a scratch file. Run writing is pipelined: a
// writer goroutine flushes run k while the caller's goroutine keys and sorts
// run k+1. Two value buffers rotate between the stages, so resident value
// memory stays at 2*maxElems doubles plus the record arrays.
//
// Per-run sorts are sequential: runs are usually small enough that task
// dispatch overhead dominates, and the pipeline already overlaps sort and
// write.
func (d *driver) buildRuns(ctx context.Context, src valueReader, maxElems uint64) ([]runInfo, error) {
	n := src.total()
	numRuns := (n + maxElems - 1) / maxElems

	records := make([]record, maxElems)
	aux := make([]record, maxElems)

	runs := make([]runInfo, 0, numRuns)
	jobs := make(chan writeJob)
	free := make(chan []float64, 2)
	free <- make([]float64, maxElems)
	free <- make([]float64, maxElems)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		buf := make([]byte, maxElems*elemSize)
		for job := range jobs {
			info, err := writeRun(job.path, job.vals, buf)
			if err != nil {
				return err
			}
			runs = append(runs, info)
			select {
			case free <- job.vals:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	feed := func() error {
		defer close(jobs)
		for off := uint64(0); off < n; {
			chunk := min(n-off, maxElems)

			var vals []float64
			select {
			case vals = <-free:
			case <-gctx.Done():
				return gctx.Err()
			}
			vals = vals[:chunk]
			src.readAt(vals, off)

			rec := records[:chunk]
			fillRecords(rec, vals, off)
			sortRecords(rec, aux[:chunk], 1, d.cfg.trace)
			for i := range rec {
				vals[i] = rec[i].value
			}

			job := writeJob{path: d.nextRunPath(), vals: vals}
			select {
			case jobs <- job:
			case <-gctx.Done():
				return gctx.Err()
			}
			off += chunk
		}
		return nil
	}

	feedErr := feed()
	if err := g.Wait(); err != nil {
		return runs, err
	}
	return runs, feedErr
}

// writeRun persists vals as a tightly packed little-endian run file and
// returns its descriptor. buf is a caller-owned scratch buffer of at least
// len(vals)*elemSize bytes. Space is preallocated up front so a full disk
// fails before any data is written. On error, a partially created file is
// removed.
func writeRun(path string, vals []float64, buf []byte) (runInfo, error) {
	f, err := os.Create(path)
	if err != nil {
		return runInfo{}, fmt.Errorf("create run file: %w", err)
	}

	size := int64(len(vals)) * elemSize
	if err := fallocateFile(f, size); err != nil {
		f.Close()
		os.Remove(path)
		return runInfo{}, fmt.Errorf("pre-allocate run file: %w", err)
	}

	buf = buf[:size]
	for i, v := range vals {
		binary.LittleEndian.PutUint64(buf[i*elemSize:], math.Float64bits(v))
	}
	if _, err := f.Write(buf); err != nil {
		f.Close()
		os.Remove(path)
		return runInfo{}, fmt.Errorf("write run file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return runInfo{}, fmt.Errorf("close run file: %w", err)
	}

	return runInfo{path: path, elems: uint64(len(vals)), sum: xxhash.Sum64(buf)}, nil
}
