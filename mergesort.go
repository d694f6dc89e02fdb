package xisort

import (
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/xisort/xisort/internal/keycodec"
)

// parThreshold is the minimum segment length for which a recursive half-sort
// is dispatched as its own goroutine. Below it, task overhead dominates the
// memory-bandwidth-bound merge work.
const parThreshold = 1 << 15

// record is an in-memory sort item. key is the total-order key of value, tie
// is the original input index, and seq is reserved for secondary keys; it is
// always equal to tie today. value carries the original bit pattern so NaN
// payloads survive the sort.
type record struct {
	key   uint64
	tie   uint64
	seq   uint64
	value float64
}

// recordLE reports whether a sorts at or before b under the lexicographic
// (key, tie, seq) order. Ties on all three components resolve to the left
// operand, which is what makes the merge stable.
func recordLE(a, b *record) bool {
	if a.key != b.key {
		return a.key < b.key
	}
	if a.tie != b.tie {
		return a.tie < b.tie
	}
	return a.seq <= b.seq
}

// fillRecords materializes records for data into rec, assigning tie and seq
// from base plus the local index.
func fillRecords(rec []record, data []float64, base uint64) {
	for i, v := range data {
		rec[i] = record{
			key:   keycodec.Encode(v),
			tie:   base + uint64(i),
			seq:   base + uint64(i),
			value: v,
		}
	}
}

// recordSorter runs a stable top-down merge sort over a record slice with an
// auxiliary slice of equal length. When sem is non-nil, half-sorts of
// segments at least parThreshold long may run as concurrent tasks; the merge
// of each frame is always sequential, so scheduling cannot affect output.
type recordSorter struct {
	arr   []record
	aux   []record
	sem   *semaphore.Weighted
	trace *Trace
}

// sortRecords stably sorts arr by (key, tie, seq) using aux as scratch.
// workers <= 1 sorts sequentially. aux contents on return are unspecified.
func sortRecords(arr, aux []record, workers int, trace *Trace) {
	s := &recordSorter{arr: arr, aux: aux, trace: trace}
	if workers > 1 {
		// The calling goroutine is a worker itself, so only workers-1
		// extra tasks may be in flight.
		s.sem = semaphore.NewWeighted(int64(workers - 1))
	}
	s.sort(0, len(arr))
}

// sort sorts the half-open segment [lo, hi).
func (s *recordSorter) sort(lo, hi int) {
	if hi-lo < 2 {
		return
	}
	mid := int(uint(lo+hi) >> 1)
	if s.sem != nil && hi-lo >= parThreshold && s.sem.TryAcquire(1) {
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer s.sem.Release(1)
			s.sort(lo, mid)
		}()
		s.sort(mid, hi)
		wg.Wait()
	} else {
		s.sort(lo, mid)
		s.sort(mid, hi)
	}
	s.merge(lo, mid, hi)
}

// merge combines the sorted halves [lo, mid) and [mid, hi) of arr, copying
// the segment into aux first and merging back. Monotone same-source segments
// are reported to the trace handle, one atomic update per merge.
func (s *recordSorter) merge(lo, mid, hi int) {
	copy(s.aux[lo:hi], s.arr[lo:hi])

	var (
		phiLocal   float64
		countLocal int64
		lastSource int // 0 none, 1 left, 2 right
		segLen     int64
	)
	tracing := s.trace != nil

	endSegment := func(source int) {
		if lastSource != source {
			if segLen > 0 && tracing {
				phiLocal += 1.0 / float64(segLen)
				countLocal++
			}
			segLen = 0
			lastSource = source
		}
	}

	i, j, k := lo, mid, lo
	for i < mid && j < hi {
		if recordLE(&s.aux[i], &s.aux[j]) {
			endSegment(1)
			s.arr[k] = s.aux[i]
			i++
		} else {
			endSegment(2)
			s.arr[k] = s.aux[j]
			j++
		}
		k++
		segLen++
	}
	if i < mid {
		endSegment(1)
		segLen += int64(mid - i)
		k += copy(s.arr[k:], s.aux[i:mid])
	}
	if j < hi {
		endSegment(2)
		segLen += int64(hi - j)
		copy(s.arr[k:], s.aux[j:hi])
	}
	if segLen > 0 && tracing {
		phiLocal += 1.0 / float64(segLen)
		countLocal++
	}
	if tracing {
		s.trace.observe(phiLocal, countLocal)
	}
}
