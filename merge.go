package xisort

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/cespare/xxhash/v2"

	xierrors "github.com/xisort/xisort/errors"
	"github.com/xisort/xisort/internal/keycodec"
)

// runCursor tracks one run during a k-way merge: an open file, a buffer of
// decoded values, and a running digest of the bytes consumed. A run starts
// fresh, is active while its buffer holds values, and is drained once the
// file hit EOF and the buffer is exhausted.
type runCursor struct {
	info   runInfo
	file   *os.File
	raw    []byte
	buf    []float64
	idx    int
	eof    bool
	digest *xxhash.Digest
}

func openRunCursor(info runInfo, bufElems uint64) (*runCursor, error) {
	f, err := os.Open(info.path)
	if err != nil {
		return nil, fmt.Errorf("open run file: %w", err)
	}
	fadviseSequential(int(f.Fd()), 0, int64(info.elems)*elemSize)
	c := &runCursor{
		info:   info,
		file:   f,
		raw:    make([]byte, bufElems*elemSize),
		buf:    make([]float64, 0, bufElems),
		digest: xxhash.New(),
	}
	if err := c.refill(); err != nil {
		f.Close()
		return nil, err
	}
	return c, nil
}

// refill replaces the buffer contents with the next stretch of the file.
// At EOF the run's digest is checked against the checksum recorded when the
// run was written.
func (c *runCursor) refill() error {
	c.idx = 0
	c.buf = c.buf[:0]
	if !c.eof {
		n, err := io.ReadFull(c.file, c.raw)
		switch {
		case err == io.EOF:
			n = 0
			c.eof = true
		case errors.Is(err, io.ErrUnexpectedEOF):
			c.eof = true
		case err != nil:
			return fmt.Errorf("read run file %s: %w", c.info.path, err)
		}
		if n%elemSize != 0 {
			return fmt.Errorf("%w: run file %s", xierrors.ErrShortRead, c.info.path)
		}
		c.digest.Write(c.raw[:n])
		for off := 0; off < n; off += elemSize {
			c.buf = append(c.buf, math.Float64frombits(binary.LittleEndian.Uint64(c.raw[off:])))
		}
	}
	if c.eof && len(c.buf) == 0 && c.digest.Sum64() != c.info.sum {
		return fmt.Errorf("%w: %s", xierrors.ErrScratchCorrupted, c.info.path)
	}
	return nil
}

// drained reports whether the run has no values left.
func (c *runCursor) drained() bool {
	return c.idx >= len(c.buf)
}

// head returns the current value. Precondition: !drained().
func (c *runCursor) head() float64 {
	return c.buf[c.idx]
}

// advance consumes the current value, refilling from the file when the
// buffer empties.
func (c *runCursor) advance() error {
	c.idx++
	if c.idx >= len(c.buf) {
		return c.refill()
	}
	return nil
}

func (c *runCursor) close() error {
	return c.file.Close()
}

// mergeRuns merges the given sorted runs into outPath via a min-heap keyed
// by the total-order key with run index as tie-break, making the output a
// deterministic function of the run contents. Returns the descriptor of the
// written file.
//
// On any error the output file is removed; runs are left for the driver to
// unlink.
func mergeRuns(runs []runInfo, outPath string, bufElems uint64, trace *Trace) (out runInfo, err error) {
	cursors := make([]*runCursor, 0, len(runs))
	defer func() {
		for _, c := range cursors {
			c.close()
		}
	}()

	for _, info := range runs {
		c, cerr := openRunCursor(info, bufElems)
		if cerr != nil {
			return runInfo{}, cerr
		}
		cursors = append(cursors, c)
	}

	w, err := newRunFileWriter(outPath, bufElems)
	if err != nil {
		return runInfo{}, err
	}
	defer func() {
		if err != nil {
			w.discard()
		}
	}()

	h := newMergeHeap(len(cursors))
	for i, c := range cursors {
		if !c.drained() {
			h.push(heapEntry{key: keycodec.Encode(c.head()), value: c.head(), run: i})
		}
	}

	var (
		phiLocal   float64
		countLocal int64
		lastRun    = -1
		segLen     int64
	)
	tracing := trace != nil

	for h.len() > 0 {
		e := h.pop()
		if tracing && e.run != lastRun {
			if segLen > 0 {
				phiLocal += 1.0 / float64(segLen)
				countLocal++
			}
			segLen = 0
			lastRun = e.run
		}
		segLen++

		if err = w.append(e.value); err != nil {
			return runInfo{}, err
		}

		c := cursors[e.run]
		if err = c.advance(); err != nil {
			return runInfo{}, err
		}
		if !c.drained() {
			h.push(heapEntry{key: keycodec.Encode(c.head()), value: c.head(), run: e.run})
		}
	}

	if tracing {
		if segLen > 0 {
			phiLocal += 1.0 / float64(segLen)
			countLocal++
		}
		trace.observe(phiLocal, countLocal)
	}

	return w.finish()
}

// runFileWriter buffers doubles and flushes them to a file as packed
// little-endian bytes, digesting every byte written so the file can serve as
// a checksummed input run for a later merge round.
type runFileWriter struct {
	file   *os.File
	path   string
	raw    []byte
	buf    []float64
	elems  uint64
	digest *xxhash.Digest
}

func newRunFileWriter(path string, bufElems uint64) (*runFileWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}
	return &runFileWriter{
		file:   f,
		path:   path,
		raw:    make([]byte, bufElems*elemSize),
		buf:    make([]float64, 0, bufElems),
		digest: xxhash.New(),
	}, nil
}

func (w *runFileWriter) append(v float64) error {
	w.buf = append(w.buf, v)
	if len(w.buf) == cap(w.buf) {
		return w.flush()
	}
	return nil
}

func (w *runFileWriter) flush() error {
	if len(w.buf) == 0 {
		return nil
	}
	raw := w.raw[:len(w.buf)*elemSize]
	for i, v := range w.buf {
		binary.LittleEndian.PutUint64(raw[i*elemSize:], math.Float64bits(v))
	}
	w.digest.Write(raw)
	if _, err := w.file.Write(raw); err != nil {
		return fmt.Errorf("write output file: %w", err)
	}
	w.elems += uint64(len(w.buf))
	w.buf = w.buf[:0]
	return nil
}

// finish flushes residual values and closes the file.
func (w *runFileWriter) finish() (runInfo, error) {
	if err := w.flush(); err != nil {
		return runInfo{}, err
	}
	if err := w.file.Close(); err != nil {
		return runInfo{}, fmt.Errorf("close output file: %w", err)
	}
	return runInfo{path: w.path, elems: w.elems, sum: w.digest.Sum64()}, nil
}

// discard closes and removes a partially written file.
func (w *runFileWriter) discard() {
	w.file.Close()
	os.Remove(w.path)
}
