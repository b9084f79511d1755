package mocks

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/lunarcap/marketdeck/internal/types"
	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
)

// FeedGenerator generates realistic dashboard traffic for testing and the mock server.
type FeedGenerator struct {
	rng *rand.Rand
}

// NewFeedGenerator creates a new FeedGenerator with the given seed.
// Use a fixed seed for reproducible results in tests.
func NewFeedGenerator(seed int64) *FeedGenerator {
	return &FeedGenerator{
		rng: rand.New(rand.NewSource(seed)),
	}
}

// FeedConfig configures how dashboard traffic is generated.
type FeedConfig struct {
	// Pairs are the instruments narratives and movers draw from
	Pairs []string
	// Classes are the asset classes intelligence updates cover
	Classes []types.AssetClass
	// At stamps every generated message
	At time.Time
	// NarrativesPerClass is the number of narratives per asset class
	NarrativesPerClass int
	// BreadthPoints is the length of the breadth history series
	BreadthPoints int
	// InitialBreadth is the starting breadth percentage (0 to 100)
	InitialBreadth float64
	// BreadthSwing controls how far breadth moves between points
	BreadthSwing float64
}

// DefaultFeedConfig returns a sensible default configuration.
func DefaultFeedConfig() FeedConfig {
	return FeedConfig{
		Pairs:              []string{"EURUSD", "GBPUSD", "USDJPY", "AUDUSD", "USDCAD", "NZDUSD"},
		Classes:            types.AllAssetClasses(),
		At:                 time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC),
		NarrativesPerClass: 4,
		BreadthPoints:      30,
		InitialBreadth:     55.0,
		BreadthSwing:       6.0,
	}
}

// narrativeRules pairs each rule name with the narrative text it produces.
// A slice keeps selection order stable for a fixed seed.
var narrativeRules = []struct {
	Name string
	Text string
}{
	{"breakout", "%s broke above its 20-day range on rising volume"},
	{"macd_crossover", "%s MACD crossed bullish with momentum building"},
	{"rsi_reversal", "%s RSI left oversold territory after a sharp pullback"},
	{"range_compression", "%s trading in a tightening range ahead of the session open"},
	{"trend_continuation", "%s holding above trend support on steady flows"},
}

// Narrative generates a single narrative for the given pair and asset class.
func (g *FeedGenerator) Narrative(class types.AssetClass, pair string, at time.Time) types.Narrative {
	rule := narrativeRules[g.rng.Intn(len(narrativeRules))]

	return types.Narrative{
		Symbol:     pair,
		Priority:   g.priority(),
		Text:       fmt.Sprintf(rule.Text, pair),
		Confidence: roundToDecimals(0.5+g.rng.Float64()*0.49, 2),
		RuleName:   rule.Name,
		AssetClass: class,
		Timestamp:  types.NewTimestamp(at),
	}
}

// Intelligence generates an intelligence update covering every configured class.
func (g *FeedGenerator) Intelligence(config FeedConfig) types.IntelligenceUpdate {
	classes := make(map[types.AssetClass][]types.Narrative, len(config.Classes))

	for _, class := range config.Classes {
		narratives := make([]types.Narrative, 0, config.NarrativesPerClass)
		for i := 0; i < config.NarrativesPerClass; i++ {
			pair := config.Pairs[g.rng.Intn(len(config.Pairs))]
			narratives = append(narratives, g.Narrative(class, pair, config.At))
		}

		classes[class] = narratives
	}

	return types.IntelligenceUpdate{
		Classes:   classes,
		Timestamp: types.NewTimestamp(config.At),
		Immediate: false,
	}
}

// Snapshot generates a dashboard snapshot. The breadth series follows a
// bounded random walk so sparklines look like real market breadth.
func (g *FeedGenerator) Snapshot(config FeedConfig) types.DashboardSnapshot {
	series := make([]float64, config.BreadthPoints)
	breadth := config.InitialBreadth

	for i := range series {
		breadth += (g.rng.Float64()*2 - 1) * config.BreadthSwing
		breadth = math.Max(5, math.Min(95, breadth))
		series[i] = roundToDecimals(breadth, 1)
	}

	status := types.MarketStatusNeutral

	switch {
	case breadth >= 60:
		status = types.MarketStatusBullish
	case breadth <= 40:
		status = types.MarketStatusBearish
	}

	gainers := make([]types.Mover, 0, 3)
	losers := make([]types.Mover, 0, 3)

	for i := 0; i < 3 && i < len(config.Pairs); i++ {
		gainers = append(gainers, g.mover(config.Pairs[i], 1))
	}

	for i := len(config.Pairs) - 1; i >= len(config.Pairs)-3 && i >= 0; i-- {
		losers = append(losers, g.mover(config.Pairs[i], -1))
	}

	return types.DashboardSnapshot{
		MarketStatus:     optional.Some(status),
		BreadthPct:       optional.Some(decimal.NewFromFloat(roundToDecimals(breadth, 1))),
		VolatilityIndex:  optional.Some(decimal.NewFromFloat(roundToDecimals(12+g.rng.Float64()*18, 2))),
		VolatilityChange: optional.Some(decimal.NewFromFloat(roundToDecimals((g.rng.Float64()*2-1)*3, 2))),
		BreadthSeries:    series,
		ActiveSignals:    optional.Some(g.rng.Intn(12)),
		CurrentSession:   optional.Some(sessionAt(config.At)),
		SessionActivity:  optional.Some(g.activity()),
		TopMovers: &types.TopMovers{
			Gainers: gainers,
			Losers:  losers,
			By:      "change_pct",
		},
		TechnicalBreadth: &types.TechnicalBreadth{
			MACDBullCross:  g.rng.Intn(len(config.Pairs) + 1),
			RSIOver70:      g.rng.Intn(len(config.Pairs) + 1),
			PairsEvaluated: len(config.Pairs),
		},
		Timestamp: types.NewTimestamp(config.At),
	}
}

// priority picks a priority weighted toward the low end, matching how often
// real rules fire at each level.
func (g *FeedGenerator) priority() types.Priority {
	switch roll := g.rng.Float64(); {
	case roll < 0.2:
		return types.PriorityHigh
	case roll < 0.5:
		return types.PriorityMedium
	default:
		return types.PriorityLow
	}
}

func (g *FeedGenerator) activity() string {
	switch g.rng.Intn(3) {
	case 0:
		return types.SessionActivityHigh
	case 1:
		return types.SessionActivityMedium
	default:
		return types.SessionActivityLow
	}
}

func (g *FeedGenerator) mover(pair string, direction float64) types.Mover {
	latest := roundToDecimals(0.5+g.rng.Float64()*1.5, 5)
	change := roundToDecimals(direction*(0.1+g.rng.Float64()*1.4), 2)
	spread := roundToDecimals(latest*(0.002+g.rng.Float64()*0.01), 5)

	return types.Mover{
		Pair:      pair,
		Latest:    decimal.NewFromFloat(latest),
		ChangePct: decimal.NewFromFloat(change),
		Range:     decimal.NewFromFloat(spread),
	}
}

// sessionAt names the trading session active at the given time.
func sessionAt(at time.Time) string {
	switch hour := at.UTC().Hour(); {
	case hour >= 22 || hour < 7:
		return "Sydney/Tokyo"
	case hour < 12:
		return "London"
	case hour < 17:
		return "London/New York"
	default:
		return "New York"
	}
}

// GenerateFeed is a convenience function producing one intelligence update and
// one snapshot with default settings and a fixed seed.
func GenerateFeed() (types.IntelligenceUpdate, types.DashboardSnapshot) {
	gen := NewFeedGenerator(42)
	config := DefaultFeedConfig()

	return gen.Intelligence(config), gen.Snapshot(config)
}

// roundToDecimals rounds a float64 to the specified number of decimal places.
func roundToDecimals(val float64, decimals int) float64 {
	pow := math.Pow(10, float64(decimals))
	return math.Round(val*pow) / pow
}
