package admission

import (
	"math"

	"tradecore/internal/schema"
)

// evaluateLiquidity checks spread, depth, and simulated price impact for
// an opening trade against an orderbook snapshot. ok=false carries the
// denying decision.
func evaluateLiquidity(side schema.Side, riskUSD float64, book *schema.Orderbook, lim Limits) (schema.Decision, bool) {
	mid, ok := book.Mid()
	if !ok {
		return schema.Deny(schema.ReasonNoOrderbook), false
	}

	spread, _ := book.SpreadBps()
	if lim.MaxSpreadBps > 0 && spread > lim.MaxSpreadBps {
		return schema.Deny(schema.ReasonSpreadTooWide), false
	}

	levels := book.ConsumedSide(side)
	if lim.DepthMultiplier > 0 && sideDepthUSD(levels) < riskUSD*lim.DepthMultiplier {
		return schema.Deny(schema.ReasonDepthInsufficient), false
	}

	vwap, filled := simulateFill(levels, riskUSD)
	if !filled {
		return schema.Deny(schema.ReasonDepthInsufficient), false
	}
	if lim.MaxImpactBps > 0 {
		impact := 10000 * math.Abs(vwap-mid) / mid
		if impact > lim.MaxImpactBps {
			return schema.Deny(schema.ReasonImpactTooHigh), false
		}
	}
	return schema.Decision{}, true
}

// sideDepthUSD sums the notional resting on one book side.
func sideDepthUSD(levels []schema.Level) float64 {
	var total float64
	for _, lv := range levels {
		total += lv.Price * lv.Size
	}
	return total
}

// simulateFill walks price levels consuming riskUSD of notional and
// returns the volume-weighted average fill price. filled=false when the
// book is exhausted first.
func simulateFill(levels []schema.Level, riskUSD float64) (vwap float64, filled bool) {
	if riskUSD <= 0 {
		return 0, false
	}
	remaining := riskUSD
	var qty float64
	for _, lv := range levels {
		if lv.Price <= 0 || lv.Size <= 0 {
			continue
		}
		notional := lv.Price * lv.Size
		take := notional
		if take > remaining {
			take = remaining
		}
		qty += take / lv.Price
		remaining -= take
		if remaining <= 0 {
			break
		}
	}
	if remaining > 0 || qty <= 0 {
		return 0, false
	}
	return riskUSD / qty, true
}
