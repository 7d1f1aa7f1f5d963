package schema

// Reason is a coarse reason code for admission decisions.
type Reason string

const (
	ReasonOK                Reason = "OK"
	ReasonStopFlag          Reason = "STOP_FLAG"
	ReasonDailyStop         Reason = "DAILY_STOP"
	ReasonTooManyPositions  Reason = "TOO_MANY_POSITIONS"
	ReasonPositionExists    Reason = "POSITION_EXISTS"
	ReasonSizeTooSmall      Reason = "SIZE_TOO_SMALL"
	ReasonLowEquity         Reason = "LOW_EQUITY"
	ReasonNoOrderbook       Reason = "NO_ORDERBOOK"
	ReasonSpreadTooWide     Reason = "SPREAD_TOO_WIDE"
	ReasonDepthInsufficient Reason = "DEPTH_INSUFFICIENT"
	ReasonImpactTooHigh     Reason = "IMPACT_TOO_HIGH"
)

// Reasons lists every reason code, in evaluation order.
var Reasons = []Reason{
	ReasonOK,
	ReasonStopFlag,
	ReasonDailyStop,
	ReasonTooManyPositions,
	ReasonPositionExists,
	ReasonSizeTooSmall,
	ReasonLowEquity,
	ReasonNoOrderbook,
	ReasonSpreadTooWide,
	ReasonDepthInsufficient,
	ReasonImpactTooHigh,
}

// Decision is the outcome of admitting one signal. Rejections are normal
// outcomes, not errors; the reason code is recorded for audit.
type Decision struct {
	Allow        bool    `json:"allow"`
	Reason       Reason  `json:"reason"`
	AdjustedRisk float64 `json:"adjusted_risk"`
}

// Deny builds a rejecting decision with the given reason.
func Deny(reason Reason) Decision {
	return Decision{Allow: false, Reason: reason}
}

// Allow builds an admitting decision carrying the possibly reduced risk.
func Allow(adjustedRisk float64) Decision {
	return Decision{Allow: true, Reason: ReasonOK, AdjustedRisk: adjustedRisk}
}
