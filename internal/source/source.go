// Package source defines the participant data-source capability.
package source

import (
	"context"
	"time"
)

// Fetcher returns the ordered participant names signed up for the given
// event date. Order is submission order; the caller partitions at capacity.
type Fetcher interface {
	Participants(ctx context.Context, weekDate time.Time) ([]string, error)
}

// Func adapts a plain function to Fetcher (used by tests and fakes).
type Func func(ctx context.Context, weekDate time.Time) ([]string, error)

func (f Func) Participants(ctx context.Context, weekDate time.Time) ([]string, error) {
	return f(ctx, weekDate)
}
