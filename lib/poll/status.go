/*
Package poll drives a single remote job to completion by repeatedly querying
its status. It composes transient query failures, job level terminal failures
and a caller supplied deadline into one control flow and reports lifecycle
events to a Handler.
*/
package poll

import (
	"context"
	"time"
)

// Class is the result of classifying a raw status payload.
type Class int

const (
	Pending Class = iota
	Succeeded
	Failed
)

func (c Class) String() string {
	switch c {
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return "pending"
	}
}

// Verdict is what a Classifier makes of a raw status.
type Verdict struct {
	Class Class

	// Status is the remote name of the observed status, used in messages.
	Status string

	// Reason is a human readable failure reason, if the remote job gave one.
	Reason string
}

// Classifier maps the raw status payload of one job kind into a Verdict.
type Classifier[T any] interface {
	Classify(raw T) Verdict
}

// ClassifierFunc adapts a function to the Classifier interface.
type ClassifierFunc[T any] func(raw T) Verdict

// Classify calls f(raw).
func (f ClassifierFunc[T]) Classify(raw T) Verdict { return f(raw) }

// Query performs a single status query against the remote service.
type Query[T any] func(ctx context.Context) (T, error)

// Status is one observation of a remote job. A new Status is produced for
// every successful query and is never modified afterwards.
type Status[T any] struct {
	Raw      T
	Class    Class
	Name     string
	Reason   string
	Observed time.Time
}
