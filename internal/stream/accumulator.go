// Package stream holds the per-call state of a streaming model response.
package stream

import "strings"

// Func receives each newly available fragment together with the text
// accumulated so far, in receipt order.
type Func func(fragment, total string)

// Accumulator is a monotonic text buffer owned by exactly one in-flight call.
type Accumulator struct {
	buf       strings.Builder
	finalized bool
	sink      Func
}

// NewAccumulator returns an accumulator that forwards every append to sink.
// sink may be nil.
func NewAccumulator(sink Func) *Accumulator {
	return &Accumulator{sink: sink}
}

// Append adds fragment to the buffer and returns the running total.
// Appending to a finalized accumulator is a programming error and panics.
func (a *Accumulator) Append(fragment string) string {
	if a.finalized {
		panic("stream: append after finalize")
	}
	a.buf.WriteString(fragment)
	total := a.buf.String()
	if a.sink != nil {
		a.sink(fragment, total)
	}
	return total
}

// Finalize closes the accumulator and returns the full text.
func (a *Accumulator) Finalize() string {
	a.finalized = true
	return a.buf.String()
}

// Text returns the text accumulated so far.
func (a *Accumulator) Text() string {
	return a.buf.String()
}

// Finalized reports whether the owning call has completed.
func (a *Accumulator) Finalized() bool {
	return a.finalized
}
