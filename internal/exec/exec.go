// Package exec is the thin boundary to the exchange. The core only ever
// talks to the Facade interface; dry-run and paper implementations live
// here, a real venue client is an external collaborator.
package exec

import (
	"context"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"tradecore/internal/schema"
)

// Order is a placement request. Reduce marks an exit of an existing
// position (side then names the position being reduced).
type Order struct {
	Symbol string
	Side   schema.Side
	Qty    float64
	Price  float64
	Reduce bool
}

// Buys reports whether the order takes from the ask side.
func (o Order) Buys() bool {
	if o.Reduce {
		return o.Side == schema.SideShort
	}
	return o.Side == schema.SideLong
}

// Fill is the confirmed execution of an order. The ledger records a
// position only after a fill is returned.
type Fill struct {
	Symbol string
	Qty    float64
	Price  float64
	Ts     time.Time
}

// Facade places orders on the venue. Implementations must return an
// error unless the placement is confirmed.
type Facade interface {
	PlaceOrder(ctx context.Context, o Order) (Fill, error)
}

// DryRun logs the order and fills it at the requested price.
type DryRun struct {
	Now func() time.Time
}

func (d DryRun) PlaceOrder(_ context.Context, o Order) (Fill, error) {
	if err := validate(o); err != nil {
		return Fill{}, err
	}
	now := time.Now
	if d.Now != nil {
		now = d.Now
	}
	logs.Infof("exec: dry-run %s %s qty=%.8f px=%.8f reduce=%v", o.Side, o.Symbol, o.Qty, o.Price, o.Reduce)
	return Fill{Symbol: o.Symbol, Qty: o.Qty, Price: o.Price, Ts: now()}, nil
}

// Paper fills orders with a fixed adverse slippage in basis points.
type Paper struct {
	SlippageBps float64
	Now         func() time.Time
}

func (p Paper) PlaceOrder(_ context.Context, o Order) (Fill, error) {
	if err := validate(o); err != nil {
		return Fill{}, err
	}
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	price := o.Price
	slip := o.Price * p.SlippageBps / 10000
	if o.Buys() {
		price += slip
	} else {
		price -= slip
	}
	return Fill{Symbol: o.Symbol, Qty: o.Qty, Price: price, Ts: now()}, nil
}

func validate(o Order) error {
	if o.Symbol == "" {
		return errors.New("exec: order symbol is empty")
	}
	if !o.Side.Opening() {
		return errors.New("exec: order side must be LONG or SHORT")
	}
	if o.Qty <= 0 {
		return errors.New("exec: order qty must be > 0")
	}
	if o.Price <= 0 {
		return errors.New("exec: order price must be > 0")
	}
	return nil
}
