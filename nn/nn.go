// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"math/rand"

	"github.com/born-ml/scs/internal/nn"
	"github.com/born-ml/scs/internal/tensor"
)

// Module is the interface implemented by SCS layers.
type Module = nn.Module

// Parameter is a named learnable tensor.
type Parameter = nn.Parameter

// ParameterSet holds the kernel, sharpness and noise threshold of one layer.
type ParameterSet = nn.ParameterSet

// Backend is the set of tensor primitives the engines are written against.
type Backend = nn.Backend

// Engine computes the SCS forward pass for one kernel layout.
type Engine = nn.Engine

// Config describes an SCS layer.
type Config = nn.Config

// DefaultEpsilon is the numerical epsilon used by DefaultConfig.
const DefaultEpsilon = nn.DefaultEpsilon

// DefaultConfig returns a config with stride 1, no padding and the default epsilon.
func DefaultConfig(inChannels, outChannels, kernelSize int) Config {
	return nn.DefaultConfig(inChannels, outChannels, kernelSize)
}

// Engines

// PatchEngine computes SCS by extracting patches and contracting with einsum.
type PatchEngine = nn.PatchEngine

// ConvEngine computes SCS with a convolution and a sum-pooled input norm.
type ConvEngine = nn.ConvEngine

// EpsilonPlacement selects where ConvEngine adds epsilon to the input norm.
type EpsilonPlacement = nn.EpsilonPlacement

// Epsilon placements.
const (
	EpsilonInRoot  = nn.EpsilonInRoot
	EpsilonOnInput = nn.EpsilonOnInput
)

// Layouts

// Layout identifies how the kernel tensor is shaped.
type Layout = nn.Layout

// Kernel layouts.
const (
	EinsumLayout = nn.EinsumLayout
	ConvLayout   = nn.ConvLayout
)

// ParseLayout parses "einsum" or "conv".
func ParseLayout(s string) (Layout, error) {
	return nn.ParseLayout(s)
}

// ToConvLayout reshapes a [out, in, K²] kernel to [out, in, K, K].
func ToConvLayout(kernel *tensor.Tensor) (*tensor.Tensor, error) {
	return nn.ToConvLayout(kernel)
}

// ToEinsumLayout reshapes a [out, in, K, K] kernel to [out, in, K²].
func ToEinsumLayout(kernel *tensor.Tensor) (*tensor.Tensor, error) {
	return nn.ToEinsumLayout(kernel)
}

// AdaptStateDict rewrites the kernel entry of dict in place to the target layout.
//
// Example:
//
//	dict := patchLayer.StateDict()
//	if err := nn.AdaptStateDict(dict, nn.ConvLayout); err != nil { ... }
//	err = convLayer.LoadStateDict(dict)
func AdaptStateDict(dict map[string]*tensor.Tensor, target Layout) error {
	return nn.AdaptStateDict(dict, target)
}

// Layer

// SCS is a Sharpened Cosine Similarity layer.
type SCS = nn.SCS

// NewSCS creates an SCS layer with Xavier-initialised kernel, sharpness
// sqrt(2)*10 and noise threshold 10. A nil rng uses the global source.
func NewSCS(cfg Config, engine Engine, backend Backend, rng *rand.Rand) (*SCS, error) {
	return nn.NewSCS(cfg, engine, backend, rng)
}

// NewSCSWithParams creates an SCS layer over an existing parameter set.
func NewSCSWithParams(cfg Config, params *ParameterSet, engine Engine, backend Backend) (*SCS, error) {
	return nn.NewSCSWithParams(cfg, params, engine, backend)
}

// NewParameterSet draws a fresh parameter set in the given layout.
func NewParameterSet(cfg Config, layout Layout, rng *rand.Rand) (*ParameterSet, error) {
	return nn.NewParameterSet(cfg, layout, rng)
}

// Load reads a bundle written by (*SCS).Save and builds a layer on engine.
func Load(path string, engine Engine, backend Backend) (*SCS, error) {
	return nn.Load(path, engine, backend)
}

// State dict entry names.
const (
	KernelName         = nn.KernelName
	SharpnessName      = nn.SharpnessName
	NoiseThresholdName = nn.NoiseThresholdName
)

// Errors

// ShapeError describes an input or parameter with an unusable shape.
type ShapeError = nn.ShapeError

// Sentinel errors, matched with errors.Is.
var (
	ErrInvalidShape      = nn.ErrInvalidShape
	ErrParameterMismatch = nn.ErrParameterMismatch
	ErrInvalidConfig     = nn.ErrInvalidConfig
)
