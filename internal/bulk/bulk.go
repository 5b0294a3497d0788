// Package bulk runs an independent read-only call for many company IDs with a
// bounded worker pool.
package bulk

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mattn/go-isatty"
)

// Operation represents a bulk operation configuration
type Operation struct {
	Jobs            int
	ContinueOnError bool
	ShowProgress    bool
	// Progress receives the progress line. Nil means stderr.
	Progress io.Writer
}

// Result represents the result of a bulk operation
type Result struct {
	TotalItems int
	Succeeded  int
	Failed     int
	// Skipped counts items never started because of an earlier error.
	Skipped int
	Errors  []ItemError
}

// ItemError represents an error for a specific item
type ItemError struct {
	Index int
	Item  string
	Error error
}

// ItemFunc is the function to execute for each item
type ItemFunc func(ctx context.Context, item string) error

// Execute runs fn for every item. Errors are reported in input order.
func (op *Operation) Execute(ctx context.Context, items []string, fn ItemFunc) *Result {
	result := &Result{TotalItems: len(items)}
	if len(items) == 0 {
		return result
	}

	jobs := op.Jobs
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}
	if jobs > len(items) {
		jobs = len(items)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		completed int32
		succeeded int32
		failed    int32
		mu        sync.Mutex
	)

	stopProgress := op.startProgress(jobs, len(items), &completed, &succeeded, &failed)

	work := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < jobs; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range work {
				if ctx.Err() != nil {
					continue
				}
				err := fn(ctx, items[i])
				atomic.AddInt32(&completed, 1)
				if err == nil {
					atomic.AddInt32(&succeeded, 1)
					continue
				}
				atomic.AddInt32(&failed, 1)
				mu.Lock()
				result.Errors = append(result.Errors, ItemError{Index: i, Item: items[i], Error: err})
				mu.Unlock()
				if !op.ContinueOnError {
					cancel()
				}
			}
		}()
	}

feed:
	for i := range items {
		select {
		case work <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(work)
	wg.Wait()
	stopProgress()

	sort.Slice(result.Errors, func(a, b int) bool {
		return result.Errors[a].Index < result.Errors[b].Index
	})
	result.Succeeded = int(succeeded)
	result.Failed = int(failed)
	result.Skipped = result.TotalItems - int(completed)
	return result
}

func (op *Operation) startProgress(workers, total int, completed, succeeded, failed *int32) func() {
	out := op.Progress
	if out == nil {
		out = os.Stderr
	}
	if !op.ShowProgress || !isTerminal(out) {
		return func() {}
	}

	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			c := atomic.LoadInt32(completed)
			pct := int(float64(c) / float64(total) * 100)
			fmt.Fprintf(out, "\rChecking with %d workers... [%s] %d/%d (✓ %d ✗ %d)",
				workers, progressBar(pct, 20), c, total, atomic.LoadInt32(succeeded), atomic.LoadInt32(failed))
			select {
			case <-done:
				fmt.Fprint(out, "\r\033[K")
				return
			case <-ticker.C:
			}
		}
	}()
	return func() {
		close(done)
		<-stopped
	}
}

// ExitCode returns the appropriate exit code for the result
func (r *Result) ExitCode() int {
	if r.Failed == 0 {
		return 0 // All succeeded
	}
	if r.Succeeded > 0 {
		return 5 // Partial success
	}
	return 1 // All failed
}

// PrintSummary prints a human-readable summary of the result
func (r *Result) PrintSummary(w io.Writer) {
	switch {
	case r.Failed == 0 && r.Skipped == 0:
		fmt.Fprintf(w, "\n✓ All %d companies checked\n", r.TotalItems)
	case r.Succeeded == 0:
		fmt.Fprintf(w, "\n✗ All %d checks failed\n", r.Failed)
	default:
		fmt.Fprintf(w, "\n⚠ Partial: %d ok, %d failed, %d not checked (out of %d)\n",
			r.Succeeded, r.Failed, r.Skipped, r.TotalItems)
	}

	shown := r.Errors
	if len(shown) > 10 {
		fmt.Fprintf(w, "\nShowing first 10 errors (of %d):\n", len(shown))
		shown = shown[:10]
	} else if len(shown) > 0 {
		fmt.Fprintf(w, "\nErrors:\n")
	}
	for _, e := range shown {
		fmt.Fprintf(w, "  %s: %v\n", e.Item, e.Error)
	}
}

func progressBar(percent, width int) string {
	filled := percent * width / 100
	if filled > width {
		filled = width
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}
