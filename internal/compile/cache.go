package compile

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/mitchellh/hashstructure/v2"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"github.com/san-kum/hydrosim/internal/decl"
	"github.com/san-kum/hydrosim/internal/resolve"
	"github.com/san-kum/hydrosim/internal/telemetry"
)

// Cache maps a unit's structural fingerprint to its compiled program.
// Entries are written once and never invalidated.
type Cache struct {
	mu    sync.RWMutex
	progs map[uint64]*Program
	group singleflight.Group
}

func NewCache() *Cache {
	return &Cache{progs: make(map[uint64]*Program)}
}

// Default is the process-wide cache used by units that are not given one.
var Default = NewCache()

type fluxShape struct {
	Name    string
	Inputs  []string
	Params  []string
	Outputs []string
	Exprs   []string
	Blob    string
	Coupled bool
}

type unitShape struct {
	Unit   string
	Given  []string
	Fluxes []fluxShape
}

// Fingerprint hashes the structure of a unit. Kernel-backed fluxes carry
// code the hash cannot see, so ok is false for them and the unit is not
// cached.
func Fingerprint(unit string, fluxes []decl.Flux, given []string) (hash uint64, ok bool, err error) {
	shape := unitShape{Unit: unit, Given: given}
	for _, f := range fluxes {
		if f.Kernel != nil {
			return 0, false, nil
		}
		fs := fluxShape{
			Name:    f.Name,
			Inputs:  f.Inputs,
			Params:  f.Params,
			Outputs: f.Outputs,
			Blob:    f.Blob,
			Coupled: f.Coupled,
		}
		for _, e := range f.Exprs {
			fs.Exprs = append(fs.Exprs, e.String())
		}
		shape.Fluxes = append(shape.Fluxes, fs)
	}
	h, err := hashstructure.Hash(shape, hashstructure.FormatV2, nil)
	if err != nil {
		return 0, false, fmt.Errorf("fingerprint unit %q: %w", unit, err)
	}
	return h, true, nil
}

// Build orders fluxes and compiles them, reusing an earlier program with
// the same fingerprint. Concurrent builds of one fingerprint compile once.
func (c *Cache) Build(ctx context.Context, unit string, fluxes []decl.Flux, given []string) (*Program, error) {
	_, span := telemetry.Tracer().Start(ctx, "compile.Build")
	span.SetAttributes(attribute.String("hydrosim.unit", unit))

	hash, ok, err := Fingerprint(unit, fluxes, given)
	if err != nil {
		telemetry.EndSpan(span, err)
		return nil, err
	}
	if !ok {
		telemetry.CompileCache.WithLabelValues("bypass").Inc()
		p, err := build(unit, fluxes, given)
		telemetry.EndSpan(span, err)
		return p, err
	}

	key := strconv.FormatUint(hash, 16)
	c.mu.RLock()
	p, hit := c.progs[hash]
	c.mu.RUnlock()
	if hit {
		telemetry.CompileCache.WithLabelValues("hit").Inc()
		span.SetAttributes(attribute.Bool("cache_hit", true))
		telemetry.EndSpan(span, nil)
		return p, nil
	}

	resultI, err, _ := c.group.Do(key, func() (any, error) {
		c.mu.RLock()
		p, hit := c.progs[hash]
		c.mu.RUnlock()
		if hit {
			return p, nil
		}
		p, err := build(unit, fluxes, given)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.progs[hash] = p
		c.mu.Unlock()
		return p, nil
	})
	telemetry.CompileCache.WithLabelValues("miss").Inc()
	span.SetAttributes(attribute.Bool("cache_hit", false))
	telemetry.EndSpan(span, err)
	if err != nil {
		return nil, err
	}
	p, ok = resultI.(*Program)
	if !ok {
		return nil, fmt.Errorf("unexpected type from compile cache: got %T", resultI)
	}
	return p, nil
}

// Len returns the number of cached programs.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.progs)
}

func build(unit string, fluxes []decl.Flux, given []string) (*Program, error) {
	plan, err := resolve.Fluxes(unit, fluxes)
	if err != nil {
		return nil, err
	}
	return Compile(unit, plan.Order, given)
}
