package agent

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/aqua777/go-callrag/router"
)

// DefaultConcurrency bounds parallel agent calls in DispatchAll.
const DefaultConcurrency = 4

// Dispatcher routes records and hands each one to the agent for its category.
type Dispatcher struct {
	router      *router.Router
	agents      map[router.Category]Agent
	none        Agent
	concurrency int
	logger      *slog.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithAgent registers a for its category, replacing the default agent.
func WithAgent(a Agent) DispatcherOption {
	return func(d *Dispatcher) {
		d.agents[a.Category()] = a
	}
}

// WithConcurrency sets how many records DispatchAll handles at once.
func WithConcurrency(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

// WithDispatcherLogger sets the logger.
func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// NewDispatcher pairs r with the canned network, VDI and log agents.
// A nil router uses the default decision table.
func NewDispatcher(r *router.Router, opts ...DispatcherOption) *Dispatcher {
	if r == nil {
		r = router.NewRouter()
	}
	d := &Dispatcher{
		router: r,
		agents: map[router.Category]Agent{
			router.CategoryNetwork: NewNetworkAgent(),
			router.CategoryVDI:     NewVDIAgent(),
			router.CategoryLog:     NewLogAgent(),
		},
		none:        NewNoneAgent(),
		concurrency: DefaultConcurrency,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Agent returns the agent registered for category.
func (d *Dispatcher) Agent(category router.Category) (Agent, bool) {
	if category == router.CategoryNone {
		return d.none, true
	}
	a, ok := d.agents[category]
	return a, ok
}

// Dispatch routes rec and returns the handling agent's report.
// Records that trip no rule get a report from the none agent.
func (d *Dispatcher) Dispatch(ctx context.Context, rec router.Record) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	decision := d.router.Route(rec)
	a, ok := d.Agent(decision.Category)
	if !ok {
		return nil, fmt.Errorf("no agent registered for category %q", decision.Category)
	}
	d.logger.Info("dispatching record", "record", recordID(rec), "category", decision.Category, "agent", a.Name())
	return a.Handle(ctx, rec, decision)
}

// DispatchAll dispatches every record and counts reports per category.
// Reports keep the order of recs. The first error cancels the remaining work.
func (d *Dispatcher) DispatchAll(ctx context.Context, recs []router.Record) ([]*Report, map[router.Category]int, error) {
	reports := make([]*Report, len(recs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for i, rec := range recs {
		g.Go(func() error {
			r, err := d.Dispatch(ctx, rec)
			if err != nil {
				return fmt.Errorf("record %d: %w", i, err)
			}
			reports[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	counts := map[router.Category]int{
		router.CategoryNetwork: 0,
		router.CategoryVDI:     0,
		router.CategoryLog:     0,
		router.CategoryNone:    0,
	}
	for _, r := range reports {
		counts[r.Category]++
	}
	return reports, counts, nil
}
