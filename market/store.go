// Package market owns the dashboard's market state: it refreshes the four
// macro series concurrently, substitutes synthetic data for anything that
// cannot be fetched, and serves copies and range-windowed projections.
package market

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"marketpulse/config"
	"marketpulse/internal/metrics"
	"marketpulse/internal/symbols"
	"marketpulse/logger"
	"marketpulse/models"
	"marketpulse/processor"
	"marketpulse/synthetic"
)

const component = "market_store"

// ErrEmptySymbol is returned when a watchlist symbol is blank after trimming.
var ErrEmptySymbol = errors.New("symbol is empty")

// Fetcher retrieves an ascending observation history for an upstream series.
type Fetcher interface {
	Fetch(ctx context.Context, seriesID string) ([]models.Observation, error)
}

// Sink receives every freshly swapped state. Errors are logged only.
type Sink interface {
	Export(ctx context.Context, state models.MarketState) error
}

// Settings are the store's static inputs.
type Settings struct {
	SeriesIDs config.SeriesIDConfig
	SP500     config.IndexWalkConfig
	Nasdaq    config.IndexWalkConfig
	Defaults  []string
	Ranges    map[models.SeriesKey]models.TimeRange
}

// SettingsFromConfig extracts the store settings from the application config.
func SettingsFromConfig(cfg *config.Config) (Settings, error) {
	ranges, err := cfg.Ranges.Parsed()
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		SeriesIDs: cfg.Fred.Series,
		SP500:     cfg.Synthetic.SP500,
		Nasdaq:    cfg.Synthetic.Nasdaq,
		Defaults:  cfg.Watchlist.Defaults,
		Ranges:    ranges,
	}, nil
}

// Option customises a Store.
type Option func(*Store)

// WithSink registers a post-refresh exporter.
func WithSink(sink Sink) Option {
	return func(s *Store) { s.sink = sink }
}

// WithCollectors attaches Prometheus collectors.
func WithCollectors(c *metrics.Collectors) Option {
	return func(s *Store) { s.collectors = c }
}

// WithClock replaces time.Now for range filtering and refresh timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Store holds the current MarketState behind a mutex that guards only the
// pointer swap and reads. No lock is held while a refresh is in flight, so a
// refresh and an analysis may each work from their own snapshot.
type Store struct {
	settings   Settings
	fetcher    Fetcher
	gen        *synthetic.Generator
	sink       Sink
	collectors *metrics.Collectors
	now        func() time.Time
	log        *logger.Log

	rounds atomic.Uint64

	mu     sync.RWMutex
	state  models.MarketState
	ranges map[models.SeriesKey]models.TimeRange
	adds   *synthetic.Generator
}

// Stream ids for the synthetic generator. Each refresh round gets its own
// block so repeated refreshes differ while staying reproducible for a seed.
const (
	streamSP500 uint64 = iota
	streamNasdaq
	streamTreasury
	streamM2
	streamWatchlist
	streamsPerRound = 8
	streamAdds      = 1<<63 - 1
)

// NewStore returns a store in the loading state.
func NewStore(settings Settings, fetcher Fetcher, gen *synthetic.Generator, opts ...Option) *Store {
	ranges := models.DefaultRanges()
	for k, r := range settings.Ranges {
		ranges[k] = r
	}
	s := &Store{
		settings: settings,
		fetcher:  fetcher,
		gen:      gen,
		now:      time.Now,
		log:      logger.GetLogger(),
		state:    models.NewMarketState(),
		ranges:   ranges,
		adds:     gen.Stream(streamAdds),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Refresh re-acquires all four macro series concurrently, resynthesizes the
// watchlist and atomically replaces the state. It always runs to completion:
// caller cancellation is ignored and every failure becomes synthetic data.
func (s *Store) Refresh(ctx context.Context) models.MarketState {
	ctx = context.WithoutCancel(ctx)
	start := time.Now()
	round := s.rounds.Add(1)
	base := round * streamsPerRound

	var (
		sp500    Result[models.IndexPoint]
		nasdaq   Result[models.IndexPoint]
		treasury Result[models.MacroPoint]
		m2       Result[models.MacroPoint]
	)

	var g errgroup.Group
	g.Go(func() error {
		sp500 = s.indexSeries(ctx, models.SeriesSP500, s.settings.SP500, s.gen.Stream(base+streamSP500))
		return nil
	})
	g.Go(func() error {
		nasdaq = s.indexSeries(ctx, models.SeriesNasdaq, s.settings.Nasdaq, s.gen.Stream(base+streamNasdaq))
		return nil
	})
	g.Go(func() error {
		treasury = s.treasurySeries(ctx, s.gen.Stream(base+streamTreasury))
		return nil
	})
	g.Go(func() error {
		m2 = s.m2Series(ctx, s.gen.Stream(base+streamM2))
		return nil
	})
	_ = g.Wait()

	watchGen := s.gen.Stream(base + streamWatchlist)
	refreshID := uuid.NewString()

	s.mu.Lock()
	tracked := s.state.Symbols()
	if len(tracked) == 0 {
		tracked = s.settings.Defaults
	}
	watchlist := make([]models.StockDetail, 0, len(tracked))
	seen := make(map[string]struct{}, len(tracked))
	for _, sym := range tracked {
		sym = symbols.Normalize(sym)
		if _, dup := seen[sym]; dup || sym == "" {
			continue
		}
		seen[sym] = struct{}{}
		watchlist = append(watchlist, watchGen.StockDetail(sym))
	}

	refreshedAt := s.now().UTC()
	next := models.MarketState{
		SP500:       sp500.Points,
		Nasdaq:      nasdaq.Points,
		Treasury10Y: treasury.Points,
		M2Supply:    m2.Points,
		Watchlist:   watchlist,
		Loading:     false,
		Provenance: models.Provenance{
			SP500:       sp500.Live(),
			Nasdaq:      nasdaq.Live(),
			Treasury10Y: treasury.Live(),
			M2Supply:    m2.Live(),
		},
		RefreshID:   refreshID,
		RefreshedAt: &refreshedAt,
	}
	s.state = next
	snapshot := next.Clone()
	s.mu.Unlock()

	metrics.ReportRefresh(s.log, s.collectors, metrics.RefreshStats{
		RefreshID:  refreshID,
		DurationMs: float64(time.Since(start).Nanoseconds()) / 1e6,
		Live: map[string]bool{
			string(models.SeriesSP500):    sp500.Live(),
			string(models.SeriesNasdaq):   nasdaq.Live(),
			string(models.SeriesTreasury): treasury.Live(),
			string(models.SeriesM2Supply): m2.Live(),
		},
		Watchlist: len(watchlist),
	})

	if s.sink != nil {
		if err := s.sink.Export(ctx, snapshot); err != nil {
			s.log.WithComponent(component).WithRefresh(refreshID).WithError(err).Warn("snapshot export failed")
		}
	}

	return snapshot
}

func (s *Store) indexSeries(ctx context.Context, key models.SeriesKey, walk config.IndexWalkConfig, gen *synthetic.Generator) Result[models.IndexPoint] {
	obs, err := s.fetch(ctx, key)
	if err == nil {
		return Result[models.IndexPoint]{Key: key, Points: processor.CalculateSMAs(obs), Source: SourceLive}
	}
	s.substituted(key, err)
	return Result[models.IndexPoint]{
		Key:    key,
		Points: gen.IndexSeries(walk.Base, walk.Volatility, walk.Days),
		Source: SourceSynthetic,
		Err:    err,
	}
}

func (s *Store) treasurySeries(ctx context.Context, gen *synthetic.Generator) Result[models.MacroPoint] {
	key := models.SeriesTreasury
	obs, err := s.fetch(ctx, key)
	if err == nil {
		return Result[models.MacroPoint]{Key: key, Points: obs, Source: SourceLive}
	}
	s.substituted(key, err)
	return Result[models.MacroPoint]{Key: key, Points: gen.TreasurySeries(), Source: SourceSynthetic, Err: err}
}

func (s *Store) m2Series(ctx context.Context, gen *synthetic.Generator) Result[models.MacroPoint] {
	key := models.SeriesM2Supply
	obs, err := s.fetch(ctx, key)
	if err == nil {
		deltas, derr := processor.DeriveDeltas(obs)
		if derr == nil {
			return Result[models.MacroPoint]{Key: key, Points: deltas, Source: SourceLive}
		}
		err = derr
	}
	s.substituted(key, err)
	return Result[models.MacroPoint]{Key: key, Points: gen.M2ChangeSeries(), Source: SourceSynthetic, Err: err}
}

func (s *Store) fetch(ctx context.Context, key models.SeriesKey) ([]models.Observation, error) {
	if s.fetcher == nil {
		return nil, fmt.Errorf("%s: no fetcher configured: %w", key, models.ErrFetchFailure)
	}
	id := s.settings.SeriesIDs.ID(key)
	if id == "" {
		return nil, fmt.Errorf("%s: no upstream series id: %w", key, models.ErrFetchFailure)
	}
	return s.fetcher.Fetch(ctx, id)
}

func (s *Store) substituted(key models.SeriesKey, err error) {
	s.log.WithComponent(component).WithSeries(string(key)).WithError(err).Warn("using synthetic series")
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() models.MarketState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// Loading reports whether the first refresh has not completed yet.
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Loading
}

// AddSymbol synthesizes a record for symbol and prepends it to the watchlist.
// Adding a symbol that is already tracked is a no-op and reports false.
func (s *Store) AddSymbol(symbol string) (models.StockDetail, bool, error) {
	symbol = symbols.Normalize(symbol)
	if symbol == "" {
		return models.StockDetail{}, false, ErrEmptySymbol
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range s.state.Watchlist {
		if d.Symbol == symbol {
			return d, false, nil
		}
	}

	detail := s.adds.StockDetail(symbol)
	watchlist := make([]models.StockDetail, 0, len(s.state.Watchlist)+1)
	watchlist = append(watchlist, detail)
	watchlist = append(watchlist, s.state.Watchlist...)
	s.state.Watchlist = watchlist

	s.log.WithComponent(component).WithSymbol(symbol).WithFields(logger.Fields{"watchlist": len(watchlist)}).Info("symbol added")
	return detail, true, nil
}

// RemoveSymbol drops symbol from the watchlist and reports whether it was present.
func (s *Store) RemoveSymbol(symbol string) bool {
	symbol = symbols.Normalize(symbol)

	s.mu.Lock()
	defer s.mu.Unlock()

	watchlist := make([]models.StockDetail, 0, len(s.state.Watchlist))
	for _, d := range s.state.Watchlist {
		if d.Symbol != symbol {
			watchlist = append(watchlist, d)
		}
	}
	if len(watchlist) == len(s.state.Watchlist) {
		return false
	}
	s.state.Watchlist = watchlist

	s.log.WithComponent(component).WithSymbol(symbol).WithFields(logger.Fields{"watchlist": len(watchlist)}).Info("symbol removed")
	return true
}

// SetRange changes the window tag stored for key.
func (s *Store) SetRange(key models.SeriesKey, r models.TimeRange) {
	s.mu.Lock()
	s.ranges[key] = r
	s.mu.Unlock()
}

// Ranges returns a copy of every series' window tag.
func (s *Store) Ranges() map[models.SeriesKey]models.TimeRange {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[models.SeriesKey]models.TimeRange, len(s.ranges))
	for k, v := range s.ranges {
		out[k] = v
	}
	return out
}

// SeriesView is one series restricted to a window.
type SeriesView struct {
	Key    models.SeriesKey `json:"key"`
	Range  models.TimeRange `json:"range"`
	Live   bool             `json:"live"`
	Points any              `json:"points"`
}

// Series projects key onto window r; an empty r uses the stored tag.
func (s *Store) Series(key models.SeriesKey, r models.TimeRange) (SeriesView, error) {
	s.mu.RLock()
	state := s.state
	if r == "" {
		r = s.ranges[key]
	}
	s.mu.RUnlock()

	now := s.now()
	view := SeriesView{Key: key, Range: r, Live: state.Provenance.Live(key)}
	switch key {
	case models.SeriesSP500:
		view.Points = processor.FilterByRange(state.SP500, r, now)
	case models.SeriesNasdaq:
		view.Points = processor.FilterByRange(state.Nasdaq, r, now)
	case models.SeriesTreasury:
		view.Points = processor.FilterByRange(state.Treasury10Y, r, now)
	case models.SeriesM2Supply:
		view.Points = processor.FilterByRange(state.M2Supply, r, now)
	default:
		return SeriesView{}, fmt.Errorf("unknown series %q", key)
	}
	return view, nil
}
