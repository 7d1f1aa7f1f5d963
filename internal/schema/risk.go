package schema

// RiskSnapshot is the admission controller's persisted day state. The
// watchdog reads the same file to evaluate its circuit breaker, so the
// shape lives here rather than in either package.
type RiskSnapshot struct {
	DayOpenISO  string  `json:"day_open_iso"`
	DailyPnL    float64 `json:"daily_pnl"`
	OrdersToday int     `json:"orders_today"`
}
