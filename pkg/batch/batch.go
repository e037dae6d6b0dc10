// Package batch runs one operation over many input files on a bounded worker pool. A
// failing file is logged and recorded, and never stops the others.
package batch

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"
)

// Status is the outcome for one input.
type Status struct {
	Input   string
	Outputs []string
	Err     error
	Elapsed time.Duration
}

// OK reports whether the input was processed successfully.
func (s Status) OK() bool { return s.Err == nil }

// Func processes one input and returns the files it wrote.
type Func func(ctx context.Context, input string) ([]string, error)

// Runner executes a Func over a list of inputs.
type Runner struct {
	Workers int // <= 0 uses GOMAXPROCS
	Stage   string
	Logger  *slog.Logger
}

// NewRunner creates a runner for the named stage.
func NewRunner(stage string, workers int, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		Workers: workers,
		Stage:   stage,
		Logger:  logger.With(slog.String("stage", stage)),
	}
}

// Run processes every input and returns one Status per input, in input order. Inputs not
// started before ctx is cancelled are reported with the context error.
func (r *Runner) Run(ctx context.Context, inputs []string, fn Func) []Status {
	statuses := make([]Status, len(inputs))
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	workers := r.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(inputs) {
		workers = len(inputs)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				statuses[i] = r.runOne(ctx, logger, inputs[i], fn)
			}
		}()
	}

	for i := range inputs {
		if err := ctx.Err(); err != nil {
			statuses[i] = Status{Input: inputs[i], Err: err}
			continue
		}
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	failed := Failed(statuses)
	logger.Info("batch finished",
		slog.Int("files", len(inputs)),
		slog.Int("failed", failed),
	)
	return statuses
}

func (r *Runner) runOne(ctx context.Context, logger *slog.Logger, input string, fn Func) Status {
	start := time.Now()
	st := Status{Input: input}
	if err := ctx.Err(); err != nil {
		st.Err = err
		return st
	}

	logger.Debug("processing", slog.String("file", input))
	st.Outputs, st.Err = fn(ctx, input)
	st.Elapsed = time.Since(start)

	if st.Err != nil {
		logger.Warn("file failed",
			slog.String("file", input),
			slog.String("error", st.Err.Error()),
		)
	} else {
		logger.Info("file processed",
			slog.String("file", input),
			slog.Int("outputs", len(st.Outputs)),
			slog.Duration("elapsed", st.Elapsed),
		)
	}
	return st
}

// Failed counts the failed statuses.
func Failed(statuses []Status) int {
	n := 0
	for _, s := range statuses {
		if !s.OK() {
			n++
		}
	}
	return n
}
