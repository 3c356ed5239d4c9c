package dexasm

import (
	"github.com/rs/zerolog"

	"github.com/deepnoodle-ai/dexasm/code"
)

// Option configures a Unit.
type Option func(*config)

type config struct {
	align64     bool
	positions   code.PositionPolicy
	validate    bool
	logger      zerolog.Logger
	debugBase   uint32
	concurrency int
}

func collectOptions(opts ...Option) *config {
	cfg := &config{
		positions: code.PositionsLines,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	return cfg
}

// WithAlign64Bits enables the register alignment pass, which shifts
// registers by one when that makes most wide register accesses
// even-numbered.
func WithAlign64Bits(enabled bool) Option {
	return func(cfg *config) {
		cfg.align64 = enabled
	}
}

// WithPositions selects which source positions are written to the debug
// information. The default is code.PositionsLines.
func WithPositions(policy code.PositionPolicy) Option {
	return func(cfg *config) {
		cfg.positions = policy
	}
}

// WithValidation decodes every debug stream after encoding it and fails the
// method if it does not match its input.
func WithValidation(enabled bool) Option {
	return func(cfg *config) {
		cfg.validate = enabled
	}
}

// WithLogger sets the logger. By default nothing is logged.
func WithLogger(logger zerolog.Logger) Option {
	return func(cfg *config) {
		cfg.logger = logger
	}
}

// WithDebugBase sets the file offset at which the unit's debug information
// blob starts. Debug offsets in code item headers are relative to it.
func WithDebugBase(offset uint32) Option {
	return func(cfg *config) {
		cfg.debugBase = offset
	}
}

// WithConcurrency limits how many methods are assembled at once. Zero or
// less means no limit.
func WithConcurrency(n int) Option {
	return func(cfg *config) {
		cfg.concurrency = n
	}
}
