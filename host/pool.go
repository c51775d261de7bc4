package host

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/wippyai/wasm-transform/errors"
)

// Pool holds a fixed set of instances of one module. Each instance serves
// one caller at a time; concurrency comes from distinct instances.
type Pool struct {
	module    *Module
	instances []*Instance
	free      chan *Instance
}

// NewPool instantiates size instances of m.
func NewPool(ctx context.Context, m *Module, size int) (*Pool, error) {
	if size <= 0 {
		return nil, errors.InvalidInput(errors.PhaseRuntime, "pool size must be positive")
	}

	p := &Pool{
		module:    m,
		instances: make([]*Instance, 0, size),
		free:      make(chan *Instance, size),
	}
	for range size {
		inst, err := m.Instantiate(ctx)
		if err != nil {
			p.Close(ctx)
			return nil, err
		}
		p.instances = append(p.instances, inst)
		p.free <- inst
	}
	return p, nil
}

// Size returns the number of instances.
func (p *Pool) Size() int {
	return len(p.instances)
}

// Do runs fn with an idle instance, waiting for one if all are in use.
func (p *Pool) Do(ctx context.Context, fn func(*Instance) error) error {
	var inst *Instance
	select {
	case inst = <-p.free:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { p.free <- inst }()
	return fn(inst)
}

// ApplyVectors runs each vector through ApplyVector on the pool's instances
// and returns the results in input order.
func (p *Pool) ApplyVectors(ctx context.Context, vectors [][]float64) ([][]float64, error) {
	out := make([][]float64, len(vectors))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.Size())
	for idx, values := range vectors {
		g.Go(func() error {
			return p.Do(ctx, func(inst *Instance) error {
				res, err := inst.ApplyVector(ctx, values)
				out[idx] = res
				return err
			})
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Close closes every instance.
func (p *Pool) Close(ctx context.Context) error {
	var first error
	for _, inst := range p.instances {
		if err := inst.Close(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}
