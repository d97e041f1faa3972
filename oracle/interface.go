package oracle

import (
	"context"
	"errors"
)

// Failure kinds an Oracle reports. Implementations wrap one of these with %w.
var (
	ErrTimeout     = errors.New("oracle timeout")
	ErrUnavailable = errors.New("oracle unavailable")
)

// ConservativeScore is reported for both indicators when live data cannot be had.
const ConservativeScore = 0.5

// Oracle is an external risk indicator source.
type Oracle interface {
	// Name identifies the oracle in logs and metrics.
	Name() string

	// Fetch returns an indicator in [0,1]. It must honour ctx's deadline and fail
	// with ErrTimeout or ErrUnavailable.
	Fetch(ctx context.Context) (float64, error)
}

// Func adapts a plain function to the Oracle interface.
type Func struct {
	OracleName string
	Fn         func(ctx context.Context) (float64, error)
}

func (f Func) Name() string { return f.OracleName }

func (f Func) Fetch(ctx context.Context) (float64, error) { return f.Fn(ctx) }

// IsTimeout reports whether err is a timeout, including an expired context deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}
