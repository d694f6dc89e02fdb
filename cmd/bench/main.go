// Bench measures xisort throughput and verifies mode equivalence: the same
// input is sorted through the in-memory path and the external path, and the
// two outputs must hash identically.
//
// Usage:
//
//	go run ./cmd/bench -elems 10000000 -mem-limit 67108864 -parallel
//
// Flags:
//
//	-elems        Number of doubles to sort (default: 10,000,000)
//	-seed         Input generator seed (default: 1)
//	-mem-limit    External-mode memory budget in bytes (default: 64 MiB)
//	-buffer-elems Run/output buffer size in doubles (default: 32768)
//	-parallel     Enable task-parallel in-memory sorting
package main

import (
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/spaolacci/murmur3"
	"github.com/zeebo/xxh3"

	"github.com/xisort/xisort"
)

// getMaxRSS returns the maximum resident set size in bytes.
// Uses getrusage(RUSAGE_SELF) which tracks peak RSS since process start.
func getMaxRSS() uint64 {
	var rusage syscall.Rusage
	if err := syscall.Getrusage(syscall.RUSAGE_SELF, &rusage); err != nil {
		return 0
	}
	// On macOS, MaxRss is in bytes. On Linux, it's in kilobytes.
	maxRSS := uint64(rusage.Maxrss)
	if runtime.GOOS == "linux" {
		maxRSS *= 1024 // Convert KB to bytes on Linux
	}
	return maxRSS
}

func writeInput(path string, elems uint64, seed uint32) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	buf := make([]byte, 1<<20)
	var idx [8]byte
	pos := 0
	for i := uint64(0); i < elems; i++ {
		binary.LittleEndian.PutUint64(idx[:], i)
		binary.LittleEndian.PutUint64(buf[pos:], murmur3.Sum64WithSeed(idx[:], seed))
		pos += 8
		if pos == len(buf) {
			if _, err := f.Write(buf); err != nil {
				return err
			}
			pos = 0
		}
	}
	if pos > 0 {
		if _, err := f.Write(buf[:pos]); err != nil {
			return err
		}
	}
	return nil
}

// hashFile streams a file through xxh3 and returns its 128-bit digest.
func hashFile(path string) (xxh3.Uint128, error) {
	f, err := os.Open(path)
	if err != nil {
		return xxh3.Uint128{}, err
	}
	defer f.Close()
	h := xxh3.New()
	if _, err := io.Copy(h, f); err != nil {
		return xxh3.Uint128{}, err
	}
	return h.Sum128(), nil
}

func main() {
	elemsFlag := flag.Uint64("elems", 10_000_000, "number of doubles to sort")
	seedFlag := flag.Uint("seed", 1, "input generator seed")
	memLimitFlag := flag.Uint64("mem-limit", 64<<20, "external-mode memory budget in bytes")
	bufFlag := flag.Uint64("buffer-elems", 1<<15, "run/output buffer size in doubles")
	parallelFlag := flag.Bool("parallel", false, "enable task-parallel in-memory sorting")
	flag.Parse()

	tmpDir, err := os.MkdirTemp("", "xisort-bench-")
	if err != nil {
		fmt.Printf("Failed to create temp dir: %v\n", err)
		return
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	inPath := filepath.Join(tmpDir, "input.bin")
	memOut := filepath.Join(tmpDir, "output_mem.bin")
	extOut := filepath.Join(tmpDir, "output_ext.bin")

	fmt.Println("Generating input...")
	if err := writeInput(inPath, *elemsFlag, uint32(*seedFlag)); err != nil {
		fmt.Printf("Input generation failed: %v\n", err)
		return
	}

	ctx := context.Background()
	common := []xisort.Option{xisort.WithBufferElems(*bufFlag)}
	if *parallelFlag {
		common = append(common, xisort.WithParallel(0))
	}

	fmt.Println("Sorting in memory...")
	memStart := time.Now()
	memOpts := append([]xisort.Option{}, common...)
	if err := xisort.SortFile(ctx, inPath, memOut, memOpts...); err != nil {
		fmt.Printf("In-memory sort failed: %v\n", err)
		return
	}
	memDuration := time.Since(memStart)

	fmt.Println("Sorting externally...")
	extStart := time.Now()
	extOpts := append([]xisort.Option{
		xisort.WithExternal(),
		xisort.WithMemLimit(*memLimitFlag),
		xisort.WithScratchDir(tmpDir),
	}, common...)
	if err := xisort.SortFile(ctx, inPath, extOut, extOpts...); err != nil {
		fmt.Printf("External sort failed: %v\n", err)
		return
	}
	extDuration := time.Since(extStart)

	memHash, err := hashFile(memOut)
	if err != nil {
		fmt.Printf("Hashing in-memory output failed: %v\n", err)
		return
	}
	extHash, err := hashFile(extOut)
	if err != nil {
		fmt.Printf("Hashing external output failed: %v\n", err)
		return
	}

	elemsPerSec := func(d time.Duration) float64 {
		return float64(*elemsFlag) / d.Seconds()
	}
	fmt.Printf("\nElements:        %d (%.1f MiB)\n", *elemsFlag, float64(*elemsFlag*8)/(1<<20))
	fmt.Printf("In-memory sort:  %v (%.2fM elems/s)\n", memDuration.Round(time.Millisecond), elemsPerSec(memDuration)/1e6)
	fmt.Printf("External sort:   %v (%.2fM elems/s, mem-limit %d)\n", extDuration.Round(time.Millisecond), elemsPerSec(extDuration)/1e6, *memLimitFlag)
	fmt.Printf("Peak RSS:        %.1f MiB\n", float64(getMaxRSS())/(1<<20))

	if memHash != extHash {
		fmt.Printf("MODE MISMATCH: in-memory %016x%016x != external %016x%016x\n",
			memHash.Hi, memHash.Lo, extHash.Hi, extHash.Lo)
		os.Exit(1)
	}
	fmt.Printf("Outputs match:   xxh3=%016x%016x\n", memHash.Hi, memHash.Lo)
}
