package exposure

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portlight/portlight/internal/domain"
)

func pos(id string, class domain.AssetClass, value float64) Position {
	return Position{
		SecurityID:  id,
		AssetClass:  class,
		Currency:    "USD",
		Country:     "US",
		MarketValue: decimal.NewFromFloat(value),
	}
}

func newTestAggregator() *Aggregator {
	return NewAggregator(zerolog.Nop())
}

func sumValues(m map[string]float64) float64 {
	total := 0.0
	for _, v := range m {
		total += v
	}
	return total
}

func TestHerfindahlSixtyForty(t *testing.T) {
	res := newTestAggregator().Calculate([]Position{
		pos("A", domain.AssetClassEquity, 60),
		pos("B", domain.AssetClassEquity, 40),
	})

	assert.InDelta(t, 0.52, res.Herfindahl, 1e-9)
	assert.InDelta(t, 1/0.52, res.EffectivePositions, 1e-9)
	assert.InDelta(t, 60, res.LargestWeight, 1e-9)
}

func TestAllocationsSumToHundred(t *testing.T) {
	positions := []Position{
		pos("A", domain.AssetClassEquity, 1234.56),
		pos("B", domain.AssetClassBond, 789.01),
		pos("C", domain.AssetClassCash, 55.5),
		pos("D", domain.AssetClassETF, 3000),
	}
	positions[1].Currency = "EUR"
	positions[1].Country = "DE"

	res := newTestAggregator().Calculate(positions)
	assert.InDelta(t, 100, sumValues(res.ByAssetClass), 0.01)
	assert.InDelta(t, 100, sumValues(res.ByCountry), 0.01)
	assert.InDelta(t, 100, sumValues(res.ByRegion), 0.01)
	assert.InDelta(t, 100, sumValues(res.ByCurrency), 0.01)
}

func TestSectorCoversOnlyEquityAndETF(t *testing.T) {
	equity := pos("A", domain.AssetClassEquity, 50)
	equity.Sector = "Technology"
	etf := pos("B", domain.AssetClassETF, 30)
	etf.Sector = "Technology"
	bond := pos("C", domain.AssetClassBond, 20)
	bond.Sector = "Government"

	res := newTestAggregator().Calculate([]Position{equity, etf, bond})
	require.Len(t, res.BySector, 1)
	assert.InDelta(t, 80, res.BySector["Technology"], 1e-9)
}

func TestZeroTotalValueYieldsEmptyResult(t *testing.T) {
	res := newTestAggregator().Calculate([]Position{
		pos("A", domain.AssetClassEquity, 0),
	})
	assert.Empty(t, res.ByAssetClass)
	assert.Zero(t, res.TotalValue)
	assert.Zero(t, res.Herfindahl)
	assert.Zero(t, res.EffectivePositions)
	assert.Empty(t, res.TopHoldings)
}

func TestTopWeightsAndStableTieBreak(t *testing.T) {
	positions := []Position{
		pos("ZZZ", domain.AssetClassEquity, 100),
		pos("AAA", domain.AssetClassEquity, 100),
		pos("MMM", domain.AssetClassEquity, 50),
	}

	res := newTestAggregator().Calculate(positions)
	require.Len(t, res.TopHoldings, 3)
	// Equal values rank by security_id
	assert.Equal(t, "AAA", res.TopHoldings[0].SecurityID)
	assert.Equal(t, "ZZZ", res.TopHoldings[1].SecurityID)
	assert.Equal(t, "MMM", res.TopHoldings[2].SecurityID)

	assert.InDelta(t, 100, res.Top5Weight, 1e-9)
	assert.InDelta(t, 100, res.Top10Weight, 1e-9)
	assert.InDelta(t, 100, res.Top20Weight, 1e-9)
	assert.InDelta(t, 40, res.LargestWeight, 1e-9)
}

func TestRegionMapping(t *testing.T) {
	us := pos("A", domain.AssetClassEquity, 50)
	jp := pos("B", domain.AssetClassEquity, 30)
	jp.Country = "JP"
	unknown := pos("C", domain.AssetClassEquity, 20)
	unknown.Country = "ZA"

	res := newTestAggregator().Calculate([]Position{us, jp, unknown})
	assert.InDelta(t, 50, res.ByRegion["North America"], 1e-9)
	assert.InDelta(t, 30, res.ByRegion["Asia Pacific"], 1e-9)
	assert.InDelta(t, 20, res.ByRegion["Other"], 1e-9)
}

func TestNegativePositionsIgnored(t *testing.T) {
	short := pos("S", domain.AssetClassEquity, -100)
	long := pos("L", domain.AssetClassEquity, 100)

	res := newTestAggregator().Calculate([]Position{short, long})
	assert.Equal(t, 1, res.PositionCount)
	assert.InDelta(t, 100, res.LargestWeight, 1e-9)
}

func TestTopHoldingsCappedAtTen(t *testing.T) {
	positions := make([]Position, 15)
	for i := range positions {
		positions[i] = pos(string(rune('A'+i)), domain.AssetClassEquity, float64(100-i))
	}

	res := newTestAggregator().Calculate(positions)
	assert.Len(t, res.TopHoldings, 10)
	assert.Equal(t, 15, res.PositionCount)
}
