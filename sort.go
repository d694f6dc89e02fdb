package xisort

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/edsrzf/mmap-go"

	xierrors "github.com/xisort/xisort/errors"
)

// driver owns the scratch files of one sort invocation. Run indices are
// monotone within the invocation, continuing across merge rounds, so every
// scratch file ever created has a distinct name.
type driver struct {
	cfg     *config
	runSeq  int
	scratch map[string]struct{}
}

func newDriver(cfg *config) *driver {
	return &driver{cfg: cfg, scratch: make(map[string]struct{})}
}

// nextRunPath reserves the next scratch file name, xisort_run_<k>.bin.
func (d *driver) nextRunPath() string {
	path := filepath.Join(d.cfg.scratchDir, fmt.Sprintf("xisort_run_%d.bin", d.runSeq))
	d.runSeq++
	d.scratch[path] = struct{}{}
	return path
}

// release unlinks one consumed scratch file.
func (d *driver) release(path string) {
	os.Remove(path)
	delete(d.scratch, path)
}

// cleanup unlinks every scratch file still on disk. Called on both success
// and failure paths.
func (d *driver) cleanup() {
	for path := range d.scratch {
		os.Remove(path)
		delete(d.scratch, path)
	}
}

// Sort sorts data in place under the IEEE-754 total order. The sort is
// stable with respect to original positions of bitwise-equal values when it
// runs in memory. When the external path is forced or the input exceeds the
// memory budget, the slice is spilled to sorted scratch runs, merged, and
// read back.
func Sort(ctx context.Context, data []float64, opts ...Option) error {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if err := validate(cfg); err != nil {
		return err
	}
	if cfg.trace != nil {
		cfg.trace.Reset()
	}
	n := uint64(len(data))
	if n == 0 {
		return nil
	}

	if !cfg.external && n*elemSize <= cfg.memLimit {
		return sortInMemory(ctx, data, cfg)
	}
	if cfg.memLimit == 0 {
		return xierrors.ErrZeroMemLimit
	}

	d := newDriver(cfg)
	defer d.cleanup()

	runs, err := d.buildRuns(ctx, sliceReader(data), maxRunElems(cfg, n))
	if err != nil {
		return err
	}
	final, err := d.mergeToOne(ctx, runs, d.nextRunPath())
	if err != nil {
		return err
	}
	return readBack(data, final.path)
}

// SortFile sorts a file of tightly packed little-endian binary64 values into
// outPath. The input file size must be a multiple of 8 bytes; an empty input
// produces an empty output. Stability across scratch runs is not preserved:
// equal-keyed values are emitted in run order, not original file order.
func SortFile(ctx context.Context, inPath, outPath string, opts ...Option) error {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if err := validate(cfg); err != nil {
		return err
	}
	if cfg.trace != nil {
		cfg.trace.Reset()
	}

	f, err := os.Open(inPath)
	if err != nil {
		return fmt.Errorf("open input file: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat input file: %w", err)
	}
	size := stat.Size()
	if size%elemSize != 0 {
		return fmt.Errorf("%w: %d bytes is not a multiple of %d", xierrors.ErrInvalidInputLength, size, elemSize)
	}
	if size == 0 {
		return writeOutput(outPath, nil)
	}

	mm, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return fmt.Errorf("mmap input file: %w", err)
	}
	defer mm.Unmap()
	madviseSequential(mm)
	src := byteReader(mm)
	n := src.total()

	if !cfg.external && n*elemSize <= cfg.memLimit {
		data := make([]float64, n)
		src.readAt(data, 0)
		if err := sortInMemory(ctx, data, cfg); err != nil {
			return err
		}
		return writeOutput(outPath, data)
	}
	if cfg.memLimit == 0 {
		return xierrors.ErrZeroMemLimit
	}

	d := newDriver(cfg)
	defer d.cleanup()

	runs, err := d.buildRuns(ctx, src, maxRunElems(cfg, n))
	if err != nil {
		return err
	}
	if _, err := d.mergeToOne(ctx, runs, outPath); err != nil {
		os.Remove(outPath)
		return err
	}
	return nil
}

func validate(cfg *config) error {
	if cfg.bufferElems == 0 {
		return xierrors.ErrZeroBufferElems
	}
	if cfg.external && cfg.memLimit == 0 {
		return xierrors.ErrZeroMemLimit
	}
	return nil
}

// maxRunElems is the run size limit in values, floored at one so progress is
// always possible, and capped at the input size so tiny inputs don't reserve
// the whole budget.
func maxRunElems(cfg *config, n uint64) uint64 {
	m := cfg.memLimit / elemSize
	if m < 1 {
		m = 1
	}
	return min(m, n)
}

// sortInMemory keys the slice into records, sorts them stably, and writes
// the values back in sorted order.
func sortInMemory(ctx context.Context, data []float64, cfg *config) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	records := make([]record, len(data))
	aux := make([]record, len(data))
	fillRecords(records, data, 0)
	workers := cfg.workers
	if workers < 1 {
		workers = 1
	}
	sortRecords(records, aux, workers, cfg.trace)
	for i := range records {
		data[i] = records[i].value
	}
	return nil
}

// mergeToOne reduces runs to a single sorted file at outPath. When the run
// count exceeds the memory-bounded fan-in cap, intermediate rounds merge
// groups of at most cap runs, in index order, into new scratch runs until
// one round can produce the final file. Consumed runs are unlinked as soon
// as their merge round completes.
func (d *driver) mergeToOne(ctx context.Context, runs []runInfo, outPath string) (runInfo, error) {
	fanIn := d.fanInCap()
	for len(runs) > fanIn {
		if err := ctx.Err(); err != nil {
			return runInfo{}, err
		}
		next := make([]runInfo, 0, (len(runs)+fanIn-1)/fanIn)
		for lo := 0; lo < len(runs); lo += fanIn {
			group := runs[lo:min(lo+fanIn, len(runs))]
			if len(group) == 1 {
				// Odd tail carries over to the next round.
				next = append(next, group[0])
				continue
			}
			merged, err := mergeRuns(group, d.nextRunPath(), d.cfg.bufferElems, d.cfg.trace)
			if err != nil {
				return runInfo{}, err
			}
			for _, r := range group {
				d.release(r.path)
			}
			next = append(next, merged)
		}
		runs = next
	}

	if err := ctx.Err(); err != nil {
		return runInfo{}, err
	}
	final, err := mergeRuns(runs, outPath, d.cfg.bufferElems, d.cfg.trace)
	if err != nil {
		return runInfo{}, err
	}
	for _, r := range runs {
		d.release(r.path)
	}
	return final, nil
}

// fanInCap is the largest K such that K run buffers fit in half the memory
// budget, leaving the other half for the output buffer and the heap. Floored
// at two so merging always makes progress.
func (d *driver) fanInCap() int {
	bufBytes := d.cfg.bufferElems * elemSize
	k := d.cfg.memLimit / 2 / bufBytes
	if k < 2 {
		return 2
	}
	const maxFanIn = 1 << 20
	if k > maxFanIn {
		return maxFanIn
	}
	return int(k)
}

// readBack loads a merged scratch file into the caller's slice.
func readBack(data []float64, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open merged file: %w", err)
	}
	defer f.Close()
	fadviseSequential(int(f.Fd()), 0, int64(len(data))*elemSize)

	raw := make([]byte, len(data)*elemSize)
	if _, err := io.ReadFull(f, raw); err != nil {
		if err == io.EOF || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: merged file %s", xierrors.ErrOutputIncomplete, path)
		}
		return fmt.Errorf("read merged file: %w", err)
	}
	for i := range data {
		data[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[i*elemSize:]))
	}
	return nil
}

// writeOutput writes data as packed little-endian bytes to path, removing
// the file on failure.
func writeOutput(path string, data []float64) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	raw := make([]byte, len(data)*elemSize)
	for i, v := range data {
		binary.LittleEndian.PutUint64(raw[i*elemSize:], math.Float64bits(v))
	}
	if _, err := f.Write(raw); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("write output file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("close output file: %w", err)
	}
	return nil
}
