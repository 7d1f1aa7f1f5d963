package schema

// Level is a single price+size entry in an orderbook side.
type Level struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// Orderbook is a point-in-time snapshot, best levels first on both sides.
type Orderbook struct {
	Symbol string  `json:"symbol"`
	Ts     float64 `json:"ts"`
	Bids   []Level `json:"bids"`
	Asks   []Level `json:"asks"`
}

// Best returns the top-of-book prices. ok is false when either side is empty.
func (b *Orderbook) Best() (bid, ask float64, ok bool) {
	if b == nil || len(b.Bids) == 0 || len(b.Asks) == 0 {
		return 0, 0, false
	}
	bid = b.Bids[0].Price
	ask = b.Asks[0].Price
	if bid <= 0 || ask <= 0 || ask < bid {
		return 0, 0, false
	}
	return bid, ask, true
}

// Mid returns the midpoint of the best bid/ask.
func (b *Orderbook) Mid() (float64, bool) {
	bid, ask, ok := b.Best()
	if !ok {
		return 0, false
	}
	return (bid + ask) / 2, true
}

// SpreadBps returns the top-of-book spread in basis points of the mid.
func (b *Orderbook) SpreadBps() (float64, bool) {
	bid, ask, ok := b.Best()
	if !ok {
		return 0, false
	}
	mid := (bid + ask) / 2
	if mid <= 0 {
		return 0, false
	}
	return 10000 * (ask - bid) / mid, true
}

// ConsumedSide returns the levels an order of the given side would eat:
// asks for buys (LONG), bids for sells (SHORT).
func (b *Orderbook) ConsumedSide(side Side) []Level {
	if b == nil {
		return nil
	}
	if side == SideShort {
		return b.Bids
	}
	return b.Asks
}
