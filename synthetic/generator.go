// Package synthetic manufactures plausible stand-in series and watchlist
// records for when live data cannot be fetched. Output has the same shape as
// live data; provenance is tracked by the caller.
package synthetic

import (
	"math/rand/v2"
	"strings"
	"time"

	"marketpulse/models"
	"marketpulse/processor"
)

const (
	// WarmupDays is the history generated ahead of the visible window so the
	// first visible index point already carries every moving average.
	WarmupDays = 120

	// MonthsBack is how far back the monthly macro series reach.
	MonthsBack = 120

	// HistoryDays is the span of a stock detail's daily history.
	HistoryDays = 30

	treasuryAnchor = 4.231
	treasuryNoise  = 0.25

	m2ChangeMin = -20.0
	m2ChangeMax = 60.0
)

var basePrices = map[string]float64{
	"AAPL":  230,
	"NVDA":  145,
	"TSLA":  350,
	"MSFT":  420,
	"GOOGL": 180,
}

var techSymbols = map[string]struct{}{
	"AAPL":  {},
	"NVDA":  {},
	"TSLA":  {},
	"MSFT":  {},
	"GOOGL": {},
}

// IsTech reports whether symbol is classified as a technology ticker.
func IsTech(symbol string) bool {
	_, ok := techSymbols[strings.ToUpper(symbol)]
	return ok
}

// Generator draws from a seeded source so output is reproducible. It is not
// safe for concurrent use; give each goroutine its own Stream.
type Generator struct {
	seed uint64
	rng  *rand.Rand
	now  func() time.Time
}

// New returns a generator on stream zero of seed. A nil clock means time.Now.
func New(seed uint64, now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{
		seed: seed,
		rng:  rand.New(rand.NewPCG(seed, 0)),
		now:  now,
	}
}

// Stream returns an independent generator sharing the seed and clock. Equal
// ids always yield equal sequences.
func (g *Generator) Stream(id uint64) *Generator {
	return &Generator{
		seed: g.seed,
		rng:  rand.New(rand.NewPCG(g.seed, id)),
		now:  g.now,
	}
}

// Seed returns the seed the generator was created with.
func (g *Generator) Seed() uint64 { return g.seed }

func (g *Generator) uniform(lo, hi float64) float64 {
	return lo + g.rng.Float64()*(hi-lo)
}

// IndexSeries walks from base in steps drawn from U(-volatility/2, +volatility/2)
// over days+WarmupDays daily points ending today, computes the moving averages
// and drops the warm-up. The result has days+1 points.
func (g *Generator) IndexSeries(base, volatility float64, days int) []models.IndexPoint {
	if days < 0 {
		days = 0
	}
	today := g.now()
	current := base
	raw := make([]models.Observation, 0, days+WarmupDays+1)
	for i := days + WarmupDays; i >= 0; i-- {
		current += g.uniform(-volatility/2, volatility/2)
		raw = append(raw, models.Observation{
			Date:  today.AddDate(0, 0, -i).Format(models.DateLayout),
			Value: processor.Round2(current),
		})
	}
	return processor.CalculateSMAs(raw)[WarmupDays:]
}

// TreasurySeries returns monthly yields scattered around the 10Y anchor.
func (g *Generator) TreasurySeries() []models.MacroPoint {
	today := g.now()
	out := make([]models.MacroPoint, 0, MonthsBack+1)
	for i := MonthsBack; i >= 0; i-- {
		out = append(out, models.MacroPoint{
			Date:  subMonths(today, i).Format(models.DateLayout),
			Value: processor.Round2(treasuryAnchor + g.uniform(-treasuryNoise, treasuryNoise)),
		})
	}
	return out
}

// M2ChangeSeries returns independent monthly money-supply changes in billions.
// The range is biased positive.
func (g *Generator) M2ChangeSeries() []models.MacroPoint {
	today := g.now()
	out := make([]models.MacroPoint, 0, MonthsBack+1)
	for i := MonthsBack; i >= 0; i-- {
		out = append(out, models.MacroPoint{
			Date:  subMonths(today, i).Format(models.DateLayout),
			Value: processor.Round2(g.uniform(m2ChangeMin, m2ChangeMax)),
		})
	}
	return out
}

// StockDetail synthesizes a watchlist record whose daily history ends exactly
// at the symbol's base price.
func (g *Generator) StockDetail(symbol string) models.StockDetail {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	tech := IsTech(symbol)

	base, ok := basePrices[symbol]
	if !ok {
		if tech {
			base = g.uniform(100, 600)
		} else {
			base = g.uniform(30, 180)
		}
	}

	today := g.now()
	history := make([]models.Observation, 0, HistoryDays+1)
	current := base * 0.95
	for i := HistoryDays; i >= 0; i-- {
		current += g.uniform(-base*0.01, base*0.01)
		if i == 0 {
			current = base
		}
		history = append(history, models.Observation{
			Date:  today.AddDate(0, 0, -i).Format(models.DateLayout),
			Value: processor.Round2(current),
		})
	}

	first := history[0].Value
	last := history[len(history)-1].Value
	change := processor.Round2(last - first)

	detail := models.StockDetail{
		Symbol:        symbol,
		Name:          symbol + " Corp",
		Price:         last,
		Change:        change,
		ChangePercent: processor.Round2(change / first * 100),
		History:       history,
	}
	if tech {
		detail.PER = processor.Round2(g.uniform(30, 60))
		detail.PBR = processor.Round2(g.uniform(10, 25))
		detail.DividendYield = processor.Round2(g.uniform(0, 1))
	} else {
		detail.PER = processor.Round2(g.uniform(10, 25))
		detail.PBR = processor.Round2(g.uniform(1, 4))
		detail.DividendYield = processor.Round2(g.uniform(1, 5))
	}
	return detail
}

// subMonths moves t back n calendar months, clamping the day to the end of the
// target month (Mar 31 minus one month is the last day of February).
func subMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	target := time.Date(y, m-time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := daysIn(target.Year(), target.Month(), t.Location()); d > last {
		d = last
	}
	return target.AddDate(0, 0, d-1)
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}
