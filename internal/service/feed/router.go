package feed

import (
	"context"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"
)

// Router picks a feed per market segment, falling back to a default.
type Router struct {
	routes   map[models.Segment]domrepo.PriceFeed
	fallback domrepo.PriceFeed
}

func NewRouter(fallback domrepo.PriceFeed) *Router {
	return &Router{routes: make(map[models.Segment]domrepo.PriceFeed), fallback: fallback}
}

// Route sends every instrument of seg to f.
func (r *Router) Route(seg models.Segment, f domrepo.PriceFeed) *Router {
	r.routes[seg] = f
	return r
}

func (r *Router) Name() string { return "router" }

func (r *Router) For(inst models.Instrument) domrepo.PriceFeed {
	if f, ok := r.routes[inst.Segment]; ok {
		return f
	}
	return r.fallback
}

func (r *Router) FetchSeries(ctx context.Context, inst models.Instrument, interval models.Interval, limit int) (models.Series, error) {
	return r.For(inst).FetchSeries(ctx, inst, interval, limit)
}

func (r *Router) FetchLatest(ctx context.Context, inst models.Instrument) (models.Snapshot, error) {
	return r.For(inst).FetchLatest(ctx, inst)
}
