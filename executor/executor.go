// Package executor provides the map-over-iterable parallelism
// primitive used to parallelize independent per-node scoring and stat
// calls. It is deliberately narrow: the only operation offered is Map,
// applying a function to a slice of inputs with results returned in no
// particular order.
package executor

import "golang.org/x/sync/errgroup"

// Executor bounds how many Map tasks run concurrently. The zero value
// runs everything inline on the calling goroutine.
type Executor struct {
	workers int
}

// Inline returns an Executor that runs Map tasks sequentially on the
// calling goroutine. This is the single-threaded fallback.
func Inline() *Executor {
	return &Executor{workers: 0}
}

// Pool returns an Executor that runs Map tasks across up to workers
// goroutines at once. A non-positive workers value yields an Inline
// executor (this mirrors the CLI's threads==0 => inline convention).
func Pool(workers int) *Executor {
	if workers <= 0 {
		return Inline()
	}
	return &Executor{workers: workers}
}

// Map applies fn to every element of inputs. With an Inline executor,
// or a single input, calls happen sequentially on the calling
// goroutine. Otherwise up to the executor's worker count run
// concurrently via a bounded errgroup.
//
// Per the safety contract this package is used under: callers must
// ensure each concurrent invocation of fn touches disjoint state, since
// Map itself performs no synchronization beyond collecting results.
//
// The first error returned by fn is propagated; other in-flight calls
// are left to finish (their results are discarded) rather than
// cancelled, since fn is not required to observe cancellation.
func Map[T, R any](e *Executor, inputs []T, fn func(T) (R, error)) ([]R, error) {
	if e == nil || e.workers == 0 || len(inputs) <= 1 {
		results := make([]R, 0, len(inputs))
		for _, in := range inputs {
			r, err := fn(in)
			if err != nil {
				return nil, err
			}
			results = append(results, r)
		}
		return results, nil
	}

	results := make([]R, len(inputs))
	g := new(errgroup.Group)
	g.SetLimit(e.workers)
	for i, in := range inputs {
		i, in := i, in
		g.Go(func() error {
			r, err := fn(in)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
