// Package dexasm assembles Dalvik method bodies into DEX code items.
//
// A Unit owns the constant pool shared by a batch of methods. AssembleAll
// collects every method's constants, prepares the pool and then assembles
// the methods in parallel:
//
//	unit := dexasm.NewUnit(dexasm.WithValidation(true))
//	items, err := unit.AssembleAll(ctx, methods)
package dexasm

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/deepnoodle-ai/dexasm/codeitem"
	"github.com/deepnoodle-ai/dexasm/cst"
	"github.com/deepnoodle-ai/dexasm/errz"
	"github.com/deepnoodle-ai/dexasm/internal/dexio"
	"github.com/deepnoodle-ai/dexasm/section"
)

// Method is one method body to assemble.
type Method = codeitem.Method

// ErrUnitUsed is returned when a unit is asked to assemble a second batch.
var ErrUnitUsed = errors.New("dexasm: unit already assembled")

// Unit is one output unit: a constant pool, the code items assembled
// against it and their debug information.
type Unit struct {
	id    uuid.UUID
	cfg   *config
	log   zerolog.Logger
	pool  *section.Pool
	mu    sync.Mutex
	used  bool
	debug *dexio.Writer
}

// NewUnit returns an empty unit.
func NewUnit(opts ...Option) *Unit {
	cfg := collectOptions(opts...)
	id := uuid.Must(uuid.NewV4())
	return &Unit{
		id:    id,
		cfg:   cfg,
		log:   cfg.logger.With().Str("unit", id.String()).Logger(),
		pool:  section.NewPool(),
		debug: dexio.NewWriter(),
	}
}

// ID returns the unit's identifier, which tags its log lines.
func (u *Unit) ID() uuid.UUID { return u.id }

// Pool returns the unit's constant pool.
func (u *Unit) Pool() *section.Pool { return u.pool }

// DebugInfo returns the concatenated debug_info_items of the assembled
// methods. Item headers point into it, offset by the debug base.
func (u *Unit) DebugInfo() []byte { return u.debug.Bytes() }

func (u *Unit) codeItemConfig() codeitem.Config {
	return codeitem.Config{
		Align64Bits: u.cfg.align64,
		Positions:   u.cfg.positions,
		Validate:    u.cfg.validate,
		Logger:      u.log,
	}
}

// PlaceDebugInfo appends data to the unit's debug blob and returns its
// file offset.
func (u *Unit) PlaceDebugInfo(_ cst.MethodRef, data []byte) uint32 {
	off := u.cfg.debugBase + uint32(u.debug.Len())
	_, _ = u.debug.Write(data)
	return off
}

// AssembleAll assembles methods into code items, returned in input order.
// The first failure cancels the methods not yet started and is returned.
func (u *Unit) AssembleAll(ctx context.Context, methods []Method) ([]*codeitem.Item, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.used {
		return nil, ErrUnitUsed
	}
	u.used = true

	assemblers := make([]*codeitem.Assembler, len(methods))
	for i, m := range methods {
		assemblers[i] = codeitem.New(m, u.codeItemConfig())
	}

	// Collect runs concurrently; the pool serializes interning.
	g, gctx := errgroup.WithContext(ctx)
	u.limit(g)
	for _, a := range assemblers {
		g.Go(func() error {
			return guard(func() error {
				a.Collect(u.pool)
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	u.pool.Prepare()
	u.log.Debug().Str("pool", u.pool.Describe()).Msg("prepared constant pool")

	items := make([]*codeitem.Item, len(methods))
	g, gctx = errgroup.WithContext(ctx)
	u.limit(g)
	for i, a := range assemblers {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return guard(func() error {
				item, err := a.Assemble(u.pool)
				if err != nil {
					return err
				}
				items[i] = item
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		u.log.Error().Err(err).Msg("assembly failed")
		return nil, err
	}

	// Debug information is placed in input order so offsets do not depend
	// on scheduling.
	for _, item := range items {
		item.PlaceDebugInfo(u)
	}
	u.log.Info().
		Int("methods", len(items)).
		Int("debug_bytes", u.debug.Len()).
		Msg("assembled unit")
	return items, nil
}

func (u *Unit) limit(g *errgroup.Group) {
	if u.cfg.concurrency > 0 {
		g.SetLimit(u.cfg.concurrency)
	}
}

// guard turns an invariant panic raised while assembling into an error, so
// a worker goroutine does not take the process down.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if ae, ok := r.(*errz.AssemblyError); ok {
				err = ae
				return
			}
			panic(r)
		}
	}()
	return fn()
}

// Assemble assembles methods in a new unit and returns the unit with its
// code items.
func Assemble(ctx context.Context, methods []Method, opts ...Option) (*Unit, []*codeitem.Item, error) {
	u := NewUnit(opts...)
	items, err := u.AssembleAll(ctx, methods)
	if err != nil {
		return nil, nil, err
	}
	return u, items, nil
}

// CodeItems serializes items back to back, each aligned to four bytes as
// in a DEX data section, and returns the bytes with each item's offset.
func CodeItems(items []*codeitem.Item) ([]byte, []int) {
	w := dexio.NewWriter()
	offsets := make([]int, len(items))
	for i, item := range items {
		for w.Len()%4 != 0 {
			_ = w.WriteByte(0)
		}
		offsets[i] = w.Len()
		item.WriteTo(w)
	}
	return w.Bytes(), offsets
}

// Describe returns a one-line summary of an item.
func Describe(item *codeitem.Item) string {
	return fmt.Sprintf("%s: registers=%d ins=%d outs=%d tries=%d insns=%d debug=%d",
		item.Method, item.RegistersSize, item.InsSize, item.OutsSize, item.TriesSize,
		item.InsnsSize, len(item.DebugInfo))
}
