// Xisort sorts a file of packed little-endian IEEE-754 binary64 values under
// the IEEE-754 total order.
//
// Usage:
//
//	xisort [--external] [--parallel] [--trace] [--mem-limit=<bytes>] <input> <output>
//
// Exit code 0 on success; non-zero on any fatal error, with a one-line
// diagnostic prefixed [xisort] on stderr. No partial output file remains on
// failure.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/xisort/xisort"
)

type options struct {
	external    bool
	parallel    bool
	trace       bool
	memLimit    uint64
	bufferElems uint64
	scratchDir  string
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:           "xisort [flags] <input> <output>",
		Short:         "Total-order sorter for binary64 value files",
		Long: "Xisort sorts files of tightly packed little-endian IEEE-754 binary64\n" +
			"values under the IEEE-754-2019 total order: -NaN < -Inf < negative\n" +
			"finites < -0 < +0 < positive finites < +Inf < +NaN. Inputs larger than\n" +
			"the memory limit are sorted externally through scratch run files.",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts, args[0], args[1])
		},
	}

	cmd.Flags().BoolVar(&opts.external, "external", false, "force the external (disk-backed) merge sort")
	cmd.Flags().BoolVar(&opts.parallel, "parallel", false, "permit task-parallel in-memory sorts")
	cmd.Flags().BoolVar(&opts.trace, "trace", false, "report the phi merge-segment diagnostic")
	cmd.Flags().Uint64Var(&opts.memLimit, "mem-limit", 1<<30, "resident memory budget in bytes")
	cmd.Flags().Uint64Var(&opts.bufferElems, "buffer-elems", 1<<15, "per-run and output buffer size in doubles")
	cmd.Flags().StringVar(&opts.scratchDir, "scratch-dir", "", "directory for scratch run files (default: current directory)")

	return cmd
}

func run(ctx context.Context, opts *options, inPath, outPath string) error {
	sortOpts := []xisort.Option{
		xisort.WithMemLimit(opts.memLimit),
		xisort.WithBufferElems(opts.bufferElems),
	}
	if opts.external {
		sortOpts = append(sortOpts, xisort.WithExternal())
	}
	if opts.parallel {
		sortOpts = append(sortOpts, xisort.WithParallel(0))
	}
	if opts.scratchDir != "" {
		sortOpts = append(sortOpts, xisort.WithScratchDir(opts.scratchDir))
	}
	var tr *xisort.Trace
	if opts.trace {
		tr = xisort.NewTrace()
		sortOpts = append(sortOpts, xisort.WithTrace(tr))
	}

	start := time.Now()
	if err := xisort.SortFile(ctx, inPath, outPath, sortOpts...); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "[xisort] total %.3f s\n", time.Since(start).Seconds())
	if tr != nil {
		fmt.Fprintf(os.Stderr, "[xisort] phi=%g segments=%d\n", tr.Phi(), tr.Segments())
	}
	return nil
}

// removeScratch is the best-effort cleanup hook for abnormal termination.
// Scratch naming is fixed (xisort_run_<k>.bin), so leftover files from a
// killed sort can also be removed manually.
func removeScratch(dir string) {
	if dir == "" {
		dir = "."
	}
	matches, err := filepath.Glob(filepath.Join(dir, "xisort_run_*.bin"))
	if err != nil {
		return
	}
	for _, m := range matches {
		os.Remove(m)
	}
}

func main() {
	cmd := newRootCommand()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
		scratchDir, _ := cmd.Flags().GetString("scratch-dir")
		removeScratch(scratchDir)
		fmt.Fprintln(os.Stderr, "[xisort] interrupted")
		os.Exit(1)
	}()

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "[xisort] %v\n", err)
		os.Exit(1)
	}
}
