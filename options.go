package fschema

import (
	"runtime"
	"time"
)

// Option sets fields of an Options value.
type Option func(*Options)

// Options holds the configuration read by validate.Validator (passed with
// validate.WithOptions). The Converter does not take Options. The
// Performance and Cache size fields are carried as settings only: no
// package in this module reads them.
type Options struct {
	// Validation behavior
	ValidateConstraints    bool
	ValidateUnknownElements bool
	ValidateMetaProfiles   bool
	StrictMode             bool
	MaxDepth               int

	// Performance
	MaxErrors      int
	ParallelPhases bool
	WorkerCount    int
	PhaseTimeout   time.Duration
	EnablePooling  bool

	// Cache sizes
	SchemaCacheSize     int
	ExpressionCacheSize int
}

// DefaultOptions returns the default configuration.
func DefaultOptions() *Options {
	return &Options{
		ValidateConstraints:     true,
		ValidateUnknownElements: true,
		ValidateMetaProfiles:    true,
		MaxDepth:                64,

		MaxErrors:      0, // unlimited
		ParallelPhases: true,
		WorkerCount:    runtime.NumCPU(),
		PhaseTimeout:   0, // no timeout
		EnablePooling:  true,

		SchemaCacheSize:     1000,
		ExpressionCacheSize: 2000,
	}
}

// --- Validation Options ---

// WithConstraints enables constraint expression evaluation (§4.8).
func WithConstraints(enable bool) Option {
	return func(o *Options) {
		o.ValidateConstraints = enable
	}
}

// WithUnknownElements enables reporting of elements absent from every
// applicable schema.
func WithUnknownElements(enable bool) Option {
	return func(o *Options) {
		o.ValidateUnknownElements = enable
	}
}

// WithMetaProfiles enables collection of schemas declared in meta.profile.
func WithMetaProfiles(enable bool) Option {
	return func(o *Options) {
		o.ValidateMetaProfiles = enable
	}
}

// WithStrictMode enforces unknown-element reporting regardless of
// WithUnknownElements. Warning-severity issues keep their severity and do
// not make a Result invalid.
func WithStrictMode(enable bool) Option {
	return func(o *Options) {
		o.StrictMode = enable
	}
}

// WithMaxDepth bounds how many levels structural descent goes into a nested
// value (including descent through content references); values nested deeper
// than this are not validated.
func WithMaxDepth(depth int) Option {
	return func(o *Options) {
		if depth > 0 {
			o.MaxDepth = depth
		}
	}
}

// --- Performance Options ---

// WithMaxErrors sets Options.MaxErrors (0 for unlimited). The validator does
// not read it and does not stop after any number of errors; a per-job cap is
// set with worker.JobOptions.MaxErrors instead.
func WithMaxErrors(max int) Option {
	return func(o *Options) {
		o.MaxErrors = max
	}
}

// WithParallelPhases sets Options.ParallelPhases; no package reads it.
func WithParallelPhases(enable bool) Option {
	return func(o *Options) {
		o.ParallelPhases = enable
	}
}

// WithWorkerCount sets Options.WorkerCount (default runtime.NumCPU()); no
// package reads it. worker.NewPool and stream.BundleValidator take their own
// worker counts.
func WithWorkerCount(count int) Option {
	return func(o *Options) {
		if count > 0 {
			o.WorkerCount = count
		}
	}
}

// WithPhaseTimeout sets Options.PhaseTimeout (0 for none); no package reads
// it, so no timeout is applied.
func WithPhaseTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		o.PhaseTimeout = timeout
	}
}

// WithPooling sets Options.EnablePooling; no package reads it. The validator
// always returns pooled Results (fschema.AcquireResult), which callers hand
// back with Release().
func WithPooling(enable bool) Option {
	return func(o *Options) {
		o.EnablePooling = enable
	}
}

// --- Cache Options ---

// WithCacheSize sets both Options.SchemaCacheSize and
// Options.ExpressionCacheSize; no package reads either.
func WithCacheSize(schemas, expressions int) Option {
	return func(o *Options) {
		if schemas > 0 {
			o.SchemaCacheSize = schemas
		}
		if expressions > 0 {
			o.ExpressionCacheSize = expressions
		}
	}
}

// WithSchemaCache sets Options.SchemaCacheSize; no package reads it.
func WithSchemaCache(size int) Option {
	return func(o *Options) {
		if size > 0 {
			o.SchemaCacheSize = size
		}
	}
}

// WithExpressionCache sets Options.ExpressionCacheSize; no package reads it.
func WithExpressionCache(size int) Option {
	return func(o *Options) {
		if size > 0 {
			o.ExpressionCacheSize = size
		}
	}
}

// --- Presets ---

// FastOptions returns options with constraint evaluation disabled. The
// parallelism, cache-size and pooling settings it also makes are not read.
func FastOptions() []Option {
	return []Option{
		WithConstraints(false),
		WithParallelPhases(true),
		WithCacheSize(2000, 5000),
		WithPooling(true),
	}
}

// StrictOptions returns options for strict validation: constraints, meta
// profiles and unknown-element reporting enabled. Warnings keep their
// severity.
func StrictOptions() []Option {
	return []Option{
		WithConstraints(true),
		WithUnknownElements(true),
		WithMetaProfiles(true),
		WithStrictMode(true),
	}
}

// DebugOptions returns options with EnablePooling off and MaxErrors at 100.
// Neither field is read, so Results are still pooled and validation is not
// capped.
func DebugOptions() []Option {
	return []Option{
		WithPooling(false),
		WithMaxErrors(100),
	}
}
