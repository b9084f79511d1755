package types

import (
	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
)

// Market status labels the backend emits for the status widget.
const (
	MarketStatusBullish = "Bullish"
	MarketStatusBearish = "Bearish"
	MarketStatusNeutral = "Neutral"
)

// Session activity labels the backend emits for the session widget.
const (
	SessionActivityHigh   = "High"
	SessionActivityMedium = "Medium"
	SessionActivityLow    = "Low"
)

// DashboardSnapshot is one partial dashboard refresh. Every field is
// optional; a field the server omitted carries no value and must leave the
// corresponding widget untouched.
type DashboardSnapshot struct {
	// MarketStatus is the overall market regime label (e.g. "Bullish").
	MarketStatus optional.Option[string] `json:"market_status"`

	// BreadthPct is the percentage of tracked pairs trading above their
	// short-term mean.
	BreadthPct optional.Option[decimal.Decimal] `json:"breadth_pct"`

	// BreadthSeries is a short history of breadth readings for sparklines.
	// Nil means the field was absent from the frame.
	BreadthSeries []float64 `json:"breadth_series,omitempty"`

	// VolatilityIndex is the aggregate volatility reading.
	VolatilityIndex optional.Option[decimal.Decimal] `json:"volatility_index"`

	// VolatilityChange is the change in volatility since the prior
	// snapshot. Positive means volatility rose.
	VolatilityChange optional.Option[decimal.Decimal] `json:"volatility_change"`

	// ActiveSignals is the number of currently active trade signals.
	ActiveSignals optional.Option[int] `json:"active_signals"`

	// CurrentSession is the active trading session label (e.g. "London").
	CurrentSession optional.Option[string] `json:"current_session"`

	// SessionActivity is the expected activity level for the session.
	SessionActivity optional.Option[string] `json:"session_activity"`

	// TopMovers ranks the strongest gainers and losers. Nil means the
	// field was absent from the frame.
	TopMovers *TopMovers `json:"top_movers,omitempty"`

	// TechnicalBreadth summarizes indicator state across tracked pairs.
	// Nil means the field was absent from the frame.
	TechnicalBreadth *TechnicalBreadth `json:"technical_breadth,omitempty"`

	// Timestamp is the server's generation time for the snapshot.
	Timestamp Timestamp `json:"timestamp"`
}

// TopMovers carries the ranked movers table for one snapshot.
type TopMovers struct {
	// Gainers lists the top instruments by the ranking metric, descending.
	Gainers []Mover `json:"gainers"`

	// Losers lists the bottom instruments by the ranking metric, ascending.
	Losers []Mover `json:"losers"`

	// By names the ranking metric ("change_pct" or "range").
	By string `json:"by"`
}

// Mover is one row in the top-movers table.
type Mover struct {
	// Pair is the instrument symbol (e.g. "EURUSD").
	Pair string `json:"pair"`

	// Latest is the most recent price.
	Latest decimal.Decimal `json:"latest"`

	// ChangePct is the percentage change over the ranking window.
	ChangePct decimal.Decimal `json:"change_pct"`

	// Range is the high-low range over the ranking window.
	Range decimal.Decimal `json:"range"`
}

// TechnicalBreadth counts indicator conditions across the tracked universe.
type TechnicalBreadth struct {
	// MACDBullCross is the number of pairs with a bullish MACD crossover.
	MACDBullCross int `json:"macd_bull_cross"`

	// RSIOver70 is the number of pairs with RSI above 70.
	RSIOver70 int `json:"rsi_over_70"`

	// PairsEvaluated is the number of pairs with enough data to evaluate.
	PairsEvaluated int `json:"pairs_evaluated"`
}
