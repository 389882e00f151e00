/*
SPDX-License-Identifier: Apache-2.0
*/

// Package controller declares the controller declaration surface: the
// labeled record that wires a callback into a running operator, with
// exactly three recognized options. Defaulting follows the same
// fill-in-place style as other options-pattern constructors in this
// codebase.
package controller

// Config is immutable per controller instance once returned by New.
type Config struct {
	// CRDName is the custom resource kind this controller handles.
	// Required.
	CRDName string
	// FinalizerName is the finalizer added to managed resources. Defaults
	// to CRDName when unset.
	FinalizerName string
	// GenerationAware enables the generation gate, which skips reconcile
	// events whose generation was already successfully processed. Defaults
	// to true.
	GenerationAware bool
}

// Option customizes a Config at construction time.
type Option func(*Config)

// WithFinalizerName overrides the default finalizer name (CRDName).
func WithFinalizerName(name string) Option {
	return func(c *Config) { c.FinalizerName = name }
}

// WithGenerationAware overrides whether the generation gate is enabled.
func WithGenerationAware(enabled bool) Option {
	return func(c *Config) { c.GenerationAware = enabled }
}

// New builds a Config for crdName, applying defaults and then options.
// Panics if crdName is empty: it is a required, compile-time-knowable
// programming input, not a runtime condition a caller can recover from.
func New(crdName string, opts ...Option) Config {
	if crdName == "" {
		panic("controller: CRDName is required")
	}
	c := Config{
		CRDName:         crdName,
		FinalizerName:   crdName,
		GenerationAware: true,
	}
	for _, opt := range opts {
		opt(&c)
	}
	if c.FinalizerName == "" {
		c.FinalizerName = c.CRDName
	}
	return c
}
