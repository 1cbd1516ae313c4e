package usecase

import (
	"context"
	"time"

	"github.com/juju/clock"
)

// wait blocks for d on clk. It returns false if ctx is done first.
func wait(ctx context.Context, clk clock.Clock, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-clk.After(d):
		return true
	}
}
