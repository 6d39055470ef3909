// Package nn implements the Sharpened Cosine Similarity (SCS) operator.
//
// This package provides:
//   - ParameterSet: kernel, sharpness and noise threshold shared by all engines
//   - Engine: computational strategies (PatchEngine, ConvEngine)
//   - Layout adapter: conversion between flattened and 4D kernels
//   - SCS: the layer that combines a config, a parameter set and an engine
//
// SCS computes, for every sliding patch of the input, the cosine similarity
// between the patch and each kernel and sharpens its magnitude with a learned
// per-channel exponent while keeping the sign.
package nn

import (
	"github.com/born-ml/scs/internal/tensor"
)

// Module is the base interface for layers in this package.
//
//	layer, _ := nn.NewSCS(nn.DefaultConfig(5, 5, 3), nn.PatchEngine{}, backend, rng)
//	var m nn.Module = layer
//	y, err := m.Forward(x)
type Module interface {
	// Forward computes the output of the module given an input tensor.
	Forward(input *tensor.Tensor) (*tensor.Tensor, error)

	// Parameters returns all parameters of this module.
	Parameters() []*Parameter
}
