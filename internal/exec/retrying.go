package exec

import (
	"context"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"tradecore/pkg/retry"
)

// Retrying wraps a Facade with bounded retries and a per-attempt
// timeout. It never retries forever: once the budget is exhausted the
// last error is returned and the caller decides what to do.
type Retrying struct {
	Inner       Facade
	Cfg         retry.Config
	CallTimeout time.Duration
}

// NewRetrying builds the wrapper with the default retry budget.
func NewRetrying(inner Facade, callTimeout time.Duration) *Retrying {
	cfg := retry.DefaultConfig()
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		logs.Errorf("exec: placement attempt %d failed, retrying in %s: %v", attempt, delay, err)
	}
	return &Retrying{Inner: inner, Cfg: cfg, CallTimeout: callTimeout}
}

func (r *Retrying) PlaceOrder(ctx context.Context, o Order) (Fill, error) {
	var fill Fill
	err := retry.Do(ctx, func() error {
		callCtx := ctx
		if r.CallTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, r.CallTimeout)
			defer cancel()
		}
		f, err := r.Inner.PlaceOrder(callCtx, o)
		if err != nil {
			return err
		}
		fill = f
		return nil
	}, r.Cfg)
	if err != nil {
		return Fill{}, errors.Wrap(err, "place order")
	}
	return fill, nil
}
