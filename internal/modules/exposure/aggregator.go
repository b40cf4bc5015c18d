// Package exposure computes allocation breakdowns and concentration metrics
// from a current holdings snapshot joined with security reference data.
package exposure

import (
	"sort"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/portlight/portlight/internal/domain"
)

// Position is one valued holding joined with its security metadata.
type Position struct {
	SecurityID  string
	Name        string
	AssetClass  domain.AssetClass
	Sector      string
	Country     string
	Currency    domain.Currency
	MarketValue decimal.Decimal
}

// TopHolding is one row of the top-holdings table.
type TopHolding struct {
	SecurityID  string  `json:"security_id" msgpack:"security_id"`
	Name        string  `json:"name" msgpack:"name"`
	WeightPct   float64 `json:"weight_pct" msgpack:"weight_pct"`
	MarketValue float64 `json:"market_value" msgpack:"market_value"`
}

// Result holds allocation percentages per dimension plus concentration
// metrics. Allocation maps sum to 100 within tolerance, or are empty when
// the total market value is zero.
type Result struct {
	ByAssetClass map[string]float64
	BySector     map[string]float64
	ByCountry    map[string]float64
	ByRegion     map[string]float64
	ByCurrency   map[string]float64

	Top5Weight    float64
	Top10Weight   float64
	Top20Weight   float64
	LargestWeight float64

	// Herfindahl uses fractional weights; EffectivePositions is its inverse.
	Herfindahl         float64
	EffectivePositions float64

	TopHoldings   []TopHolding
	PositionCount int
	TotalValue    float64
}

// regionByCountry maps ISO country names to coarse regions. Unknown
// countries land in "Other".
var regionByCountry = map[string]string{
	"US": "North America",
	"CA": "North America",
	"MX": "North America",
	"GB": "Europe",
	"DE": "Europe",
	"FR": "Europe",
	"NL": "Europe",
	"CH": "Europe",
	"IT": "Europe",
	"ES": "Europe",
	"SE": "Europe",
	"GR": "Europe",
	"JP": "Asia Pacific",
	"CN": "Asia Pacific",
	"HK": "Asia Pacific",
	"KR": "Asia Pacific",
	"TW": "Asia Pacific",
	"IN": "Asia Pacific",
	"AU": "Asia Pacific",
	"SG": "Asia Pacific",
	"BR": "Latin America",
	"AR": "Latin America",
	"CL": "Latin America",
}

// Aggregator computes exposure breakdowns.
type Aggregator struct {
	log zerolog.Logger
}

func NewAggregator(log zerolog.Logger) *Aggregator {
	return &Aggregator{log: log.With().Str("service", "exposure").Logger()}
}

// Calculate aggregates the positions into allocation and concentration
// metrics. Positions with non-positive market value are ignored.
func (a *Aggregator) Calculate(positions []Position) *Result {
	valued := make([]Position, 0, len(positions))
	total := decimal.Zero
	for _, p := range positions {
		if p.MarketValue.IsPositive() {
			valued = append(valued, p)
			total = total.Add(p.MarketValue)
		}
	}

	res := &Result{
		ByAssetClass: map[string]float64{},
		BySector:     map[string]float64{},
		ByCountry:    map[string]float64{},
		ByRegion:     map[string]float64{},
		ByCurrency:   map[string]float64{},
	}
	if total.IsZero() {
		return res
	}

	totalF, _ := total.Float64()
	res.TotalValue = totalF
	res.PositionCount = len(valued)

	// Descending by market value, stable on security_id for exact ties.
	sort.Slice(valued, func(i, j int) bool {
		if !valued[i].MarketValue.Equal(valued[j].MarketValue) {
			return valued[i].MarketValue.GreaterThan(valued[j].MarketValue)
		}
		return valued[i].SecurityID < valued[j].SecurityID
	})

	weights := make([]float64, len(valued))
	for i, p := range valued {
		mv, _ := p.MarketValue.Float64()
		w := mv / totalF
		weights[i] = w
		pct := w * 100

		res.ByAssetClass[string(p.AssetClass)] += pct
		res.ByCurrency[string(p.Currency)] += pct

		if p.AssetClass == domain.AssetClassEquity || p.AssetClass == domain.AssetClassETF {
			sector := p.Sector
			if sector == "" {
				sector = "Unknown"
			}
			res.BySector[sector] += pct
		}

		country := p.Country
		if country == "" {
			country = "Unknown"
		}
		res.ByCountry[country] += pct

		region, ok := regionByCountry[p.Country]
		if !ok {
			region = "Other"
		}
		res.ByRegion[region] += pct

		res.Herfindahl += w * w
	}

	res.LargestWeight = weights[0] * 100
	res.Top5Weight = topWeight(weights, 5)
	res.Top10Weight = topWeight(weights, 10)
	res.Top20Weight = topWeight(weights, 20)
	if res.Herfindahl > 0 {
		res.EffectivePositions = 1 / res.Herfindahl
	}

	limit := 10
	if len(valued) < limit {
		limit = len(valued)
	}
	res.TopHoldings = make([]TopHolding, 0, limit)
	for i := 0; i < limit; i++ {
		mv, _ := valued[i].MarketValue.Float64()
		res.TopHoldings = append(res.TopHoldings, TopHolding{
			SecurityID:  valued[i].SecurityID,
			Name:        valued[i].Name,
			WeightPct:   weights[i] * 100,
			MarketValue: mv,
		})
	}

	return res
}

func topWeight(sortedWeights []float64, n int) float64 {
	if n > len(sortedWeights) {
		n = len(sortedWeights)
	}
	sum := 0.0
	for _, w := range sortedWeights[:n] {
		sum += w
	}
	return sum * 100
}
