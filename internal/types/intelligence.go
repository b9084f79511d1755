package types

// AssetClass identifies a market category used to partition intelligence feeds.
type AssetClass string

const (
	AssetClassForex  AssetClass = "forex"
	AssetClassStocks AssetClass = "stocks"
	AssetClassCrypto AssetClass = "crypto"
)

// AllAssetClasses returns the supported asset classes in display order.
func AllAssetClasses() []AssetClass {
	return []AssetClass{AssetClassForex, AssetClassStocks, AssetClassCrypto}
}

// Valid reports whether the asset class is one the backend serves.
func (a AssetClass) Valid() bool {
	switch a {
	case AssetClassForex, AssetClassStocks, AssetClassCrypto:
		return true
	default:
		return false
	}
}

// Priority is the server-assigned importance of a narrative.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Valid reports whether the priority is one the backend assigns.
func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	default:
		return false
	}
}

// Narrative is a single natural-language market-intelligence item tied to a symbol.
// Narratives are immutable once received; each update fully replaces the prior
// set for its asset class.
type Narrative struct {
	// Symbol is the instrument the narrative refers to (e.g. "EURUSD").
	Symbol string `json:"symbol"`

	// Priority is the server-assigned importance (high, medium, low).
	Priority Priority `json:"priority"`

	// Text is the narrative body.
	Text string `json:"narrative"`

	// Confidence is the rule engine's confidence in [0, 1].
	Confidence float64 `json:"confidence"`

	// RuleName identifies the rule that produced the narrative, if any.
	RuleName string `json:"rule_name,omitempty"`

	// AssetClass is the market category the narrative belongs to.
	AssetClass AssetClass `json:"asset_class,omitempty"`

	// Timestamp is when the narrative was generated.
	Timestamp Timestamp `json:"timestamp"`
}

// IntelligenceUpdate carries one full per-asset-class narrative refresh.
type IntelligenceUpdate struct {
	// Classes maps each asset class to its ordered narrative sequence.
	// The order is server-determined and must be preserved by renderers.
	Classes map[AssetClass][]Narrative

	// Timestamp is the server's generation time for the update.
	Timestamp Timestamp

	// Immediate is set when the update was produced in response to a
	// manual refresh rather than the regular broadcast cadence.
	Immediate bool
}
