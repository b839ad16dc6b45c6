// Package dispatch fans batches of completion requests out across
// backends and reassembles the results in request order. The round
// engine hands it one batch per round; the dispatcher owns backend
// lifecycle and the guarantee that every request produces a result
// slot, errored or not.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/richardspicer/questionable-ai/internal/backend"
	"github.com/richardspicer/questionable-ai/internal/domain"
	"github.com/richardspicer/questionable-ai/internal/pkg/config"
)

// Option configures the dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger used for dispatch diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

// Dispatcher routes requests to opened backends. Backends are opened
// once at assembly time and shared across rounds; the map is read-only
// after construction.
type Dispatcher struct {
	backends map[domain.Vendor]backend.Backend
	logger   *slog.Logger
}

// New creates a dispatcher over an explicit backend set. Tests use this
// directly; production assembly goes through FromConfig.
func New(backends map[domain.Vendor]backend.Backend, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		backends: backends,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// FromConfig opens a backend for every credentialed vendor and returns
// a dispatcher over them. Vendors whose adapter package was not linked
// in are skipped with a warning; their requests fail per slot at
// dispatch time. Open failures tear down anything already opened.
func FromConfig(cfg *config.Config, opts ...Option) (*Dispatcher, error) {
	d := New(make(map[domain.Vendor]backend.Backend), opts...)

	credentials := cfg.Credentials()
	for _, v := range domain.Vendors {
		if !credentials.Has(v) {
			continue
		}
		if !backend.IsRegistered(v) {
			d.logger.Warn("credential present but no backend implementation registered",
				"vendor", v)
			continue
		}
		b, err := backend.Open(v, cfg.Backend(v))
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("opening %s backend: %w", v, err)
		}
		d.backends[v] = b
	}
	return d, nil
}

// Backends lists the vendors this dispatcher can reach.
func (d *Dispatcher) Backends() []domain.Vendor {
	vendors := make([]domain.Vendor, 0, len(d.backends))
	for _, v := range domain.Vendors {
		if _, ok := d.backends[v]; ok {
			vendors = append(vendors, v)
		}
	}
	return vendors
}

// Close releases every opened backend.
func (d *Dispatcher) Close() error {
	var errs []error
	for v, b := range d.backends {
		if err := b.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s backend: %w", v, err))
		}
	}
	return errors.Join(errs...)
}

// slot ties a request to its position in the batch so partition results
// can be written back without reordering.
type slot struct {
	index int
	req   *backend.Request
}

// Dispatch sends one batch. Requests are partitioned by the backend
// their routing decision selects, partitions run concurrently, and the
// returned slice matches the request order exactly: len(results) ==
// len(reqs) with no nil entries, whatever fails.
func (d *Dispatcher) Dispatch(ctx context.Context, reqs []*backend.Request) []*domain.RoundResult {
	results := make([]*domain.RoundResult, len(reqs))
	if len(reqs) == 0 {
		return results
	}

	partitions := make(map[domain.Vendor][]slot)
	var order []domain.Vendor
	for i, req := range reqs {
		v := req.Routing.Backend()
		if _, seen := partitions[v]; !seen {
			order = append(order, v)
		}
		partitions[v] = append(partitions[v], slot{index: i, req: req})
	}

	var wg sync.WaitGroup
	for _, v := range order {
		slots := partitions[v]
		b, ok := d.backends[v]
		if !ok {
			for _, s := range slots {
				results[s.index] = backend.FailedResult(s.req,
					fmt.Errorf("No provider available for %s (no %s backend configured)", s.req.ModelID, v))
			}
			d.logger.Warn("dropping partition with no backend",
				"vendor", v, "requests", len(slots))
			continue
		}

		wg.Add(1)
		go func(b backend.Backend, slots []slot) {
			defer wg.Done()
			batch := make([]*backend.Request, len(slots))
			for i, s := range slots {
				batch[i] = s.req
			}
			out := backend.CompleteParallel(ctx, b, batch)
			for i, s := range slots {
				results[s.index] = out[i]
			}
		}(b, slots)
	}
	wg.Wait()

	return results
}
