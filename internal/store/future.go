package store

import (
	"errors"
	"fmt"
)

// Future is a non-blocking completion handle for a single KVS round trip.
// The call that creates a Future dispatches the underlying work on its own
// goroutine and returns immediately; Err blocks only when the caller
// actually needs the result.
type Future struct {
	done chan struct{}
	err  error
}

// run launches fn on its own goroutine and returns a Future observing its
// completion. fn typically issues one Redis command and returns its error.
func run(fn func() error) *Future {
	f := &Future{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		f.err = fn()
	}()
	return f
}

// Err blocks until the future completes and returns its error, if any.
func (f *Future) Err() error {
	<-f.done
	return f.err
}

// labeledFuture pairs a Future with a name used for per-future error
// attribution when a FutureSet is awaited.
type labeledFuture struct {
	label  string
	future *Future
}

// FutureSet is a composite operation's independent, concurrently-dispatched
// writes. Per §5 of the spec, writes to different keys within one composite
// operation carry no mutual ordering guarantee; FutureSet.Await reflects
// that by waiting on every future regardless of whether an earlier one
// failed, and reporting every failure it finds.
type FutureSet struct {
	futures []labeledFuture
}

// NewFutureSet returns an empty FutureSet ready to accumulate futures.
func NewFutureSet() *FutureSet {
	return &FutureSet{}
}

// Add dispatches fn concurrently and tracks its Future under label.
func (fs *FutureSet) Add(label string, fn func() error) {
	fs.futures = append(fs.futures, labeledFuture{label: label, future: run(fn)})
}

// Await waits for every future to complete and returns an aggregate error
// (errors.Join) if any failed, or nil if all succeeded. No error is masked:
// every failure is represented once, annotated with the label it was added
// under.
func (fs *FutureSet) Await() error {
	var errs []error
	for _, lf := range fs.futures {
		if err := lf.future.Err(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", lf.label, err))
		}
	}
	return errors.Join(errs...)
}
