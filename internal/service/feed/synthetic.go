package feed

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"
	xutil "MarketPulse/pkg/util"
)

const syntheticName = "synthetic"

// Rand is the subset of *rand.Rand the simulators use.
type Rand interface {
	Float64() float64
	IntN(n int) int
}

// LockedRand makes a Rand safe for concurrent use.
type LockedRand struct {
	mu sync.Mutex
	r  Rand
}

func NewLockedRand(r Rand) *LockedRand { return &LockedRand{r: r} }

// NewSeededRand returns a locked PCG source; seed 0 means time-based.
func NewSeededRand(seed int64) *LockedRand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return NewLockedRand(rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15)))
}

func (l *LockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

func (l *LockedRand) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.IntN(n)
}

// basePrices anchors the walk for the majors; anything else starts in [0, 100).
var basePrices = map[string]struct{ base, spread float64 }{
	"BTC":  {42000, 1000},
	"ETH":  {2200, 100},
	"BNB":  {300, 20},
	"SOL":  {90, 10},
	"XRP":  {0.5, 0.1},
	"ADA":  {0.4, 0.05},
	"DOGE": {0.08, 0.01},
}

type walkState struct {
	base      float64
	price     float64
	change24h float64
	volume    float64
}

type SyntheticConfig struct {
	Volatility float64 // relative step size, 0.002 by default
	Now        func() time.Time
}

// SyntheticFeed is a mean-reverting random-walk price source. Each call
// advances the walk of the requested instrument by one step.
type SyntheticFeed struct {
	cfg   SyntheticConfig
	rng   Rand
	mu    sync.Mutex
	state map[string]*walkState
}

func NewSyntheticFeed(cfg SyntheticConfig, rng Rand) *SyntheticFeed {
	if cfg.Volatility <= 0 {
		cfg.Volatility = 0.002
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &SyntheticFeed{cfg: cfg, rng: rng, state: make(map[string]*walkState)}
}

func (f *SyntheticFeed) Name() string { return syntheticName }

// FetchSeries returns limit candles ending at the current bucket. The first
// open and last close are chosen so the series carries the walk's 24h change,
// and candle volumes add up to the walk's volume.
func (f *SyntheticFeed) FetchSeries(ctx context.Context, inst models.Instrument, interval models.Interval, limit int) (models.Series, error) {
	if err := ctx.Err(); err != nil {
		return nil, domrepo.NewFeedError(domrepo.FailNetwork, syntheticName, inst.Symbol, err)
	}
	if inst.Symbol == "" {
		return nil, domrepo.NewFeedError(domrepo.FailInvalidSymbol, syntheticName, inst.Symbol, nil)
	}
	if limit <= 0 {
		limit = 1
	}

	step, ok := xutil.IntervalDuration(string(interval))
	if !ok {
		step = time.Hour
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	st := f.advance(inst)
	end := xutil.AlignTo(f.cfg.Now(), string(interval))
	first := st.price / (1 + st.change24h/100)
	growth := math.Pow(st.price/first, 1/float64(limit))
	perCandleVolume := st.volume / float64(limit)

	series := make(models.Series, limit)
	open := first
	for i := 0; i < limit; i++ {
		cl := open * growth
		if i < limit-1 {
			cl *= 1 + (f.rng.Float64()-0.5)*f.cfg.Volatility
		} else {
			cl = st.price
		}
		wick := f.rng.Float64() * f.cfg.Volatility / 2
		vol := perCandleVolume
		series[i] = models.Snapshot{
			Time:   end.Add(-time.Duration(limit-1-i) * step),
			Open:   round4(open),
			High:   round4(math.Max(open, cl) * (1 + wick)),
			Low:    round4(math.Min(open, cl) * (1 - wick)),
			Close:  round4(cl),
			Volume: &vol,
		}
		open = cl
	}
	return series, nil
}

func (f *SyntheticFeed) FetchLatest(ctx context.Context, inst models.Instrument) (models.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return models.Snapshot{}, domrepo.NewFeedError(domrepo.FailNetwork, syntheticName, inst.Symbol, err)
	}
	if inst.Symbol == "" {
		return models.Snapshot{}, domrepo.NewFeedError(domrepo.FailInvalidSymbol, syntheticName, inst.Symbol, nil)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	st := f.advance(inst)
	vol := st.volume
	p := round4(st.price)
	return models.Snapshot{Time: f.cfg.Now().UTC(), Open: p, High: p, Low: p, Close: p, Volume: &vol}, nil
}

// advance moves one instrument's walk a step; caller holds mu.
func (f *SyntheticFeed) advance(inst models.Instrument) *walkState {
	key := inst.CacheKey()
	st, ok := f.state[key]
	if !ok {
		base := f.basePrice(inst)
		st = &walkState{
			base:      base,
			price:     base,
			change24h: (f.rng.Float64() - 0.5) * 20,
			volume:    f.rng.Float64() * 1e9,
		}
		f.state[key] = st
		return st
	}

	// random step, pulled back toward the anchor so long runs stay plausible
	st.price *= 1 + (f.rng.Float64()-0.5)*f.cfg.Volatility
	st.price += (st.base - st.price) * 0.05
	st.change24h += (f.rng.Float64() - 0.5) * 0.5
	// keep the series math well defined
	st.change24h = math.Max(st.change24h, -90)
	st.volume *= 1 + (f.rng.Float64()-0.5)*0.1
	return st
}

func (f *SyntheticFeed) basePrice(inst models.Instrument) float64 {
	if inst.Segment == models.SegmentCrypto {
		if bp, ok := basePrices[inst.Base()]; ok {
			return bp.base + f.rng.Float64()*bp.spread
		}
		return math.Max(f.rng.Float64()*100, 0.0001)
	}
	if inst.Segment == models.SegmentForex {
		return 1.0
	}
	return 100
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
