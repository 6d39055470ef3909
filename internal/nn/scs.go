package nn

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/scs/internal/tensor"
)

// SCS is a Sharpened Cosine Similarity layer.
//
// It combines a Config, a ParameterSet and an Engine. The engine decides how
// the output is computed; the parameters are created in the engine's native
// layout.
//
// Input shape:  [batch, in_channels, height, width]
// Kernel shape: [out_channels, in_channels, k*k] or [out_channels, in_channels, k, k]
// Output shape: [batch, out_channels, out_h, out_w]
//
// Example:
//
//	backend := cpu.New()
//	rng := rand.New(rand.NewSource(1))
//	layer, err := nn.NewSCS(nn.DefaultConfig(5, 5, 3), nn.PatchEngine{}, backend, rng)
//	y, err := layer.Forward(x) // x: [1, 5, 32, 32] -> y: [1, 5, 30, 30]
type SCS struct {
	config  Config
	params  *ParameterSet
	engine  Engine
	backend Backend
}

// NewSCS creates an SCS layer with freshly initialised parameters.
//
// A nil rng uses the global math/rand source; pass a seeded one for
// reproducible kernels.
func NewSCS(cfg Config, engine Engine, backend Backend, rng *rand.Rand) (*SCS, error) {
	if engine == nil || backend == nil {
		return nil, fmt.Errorf("%w: engine and backend are required", ErrInvalidConfig)
	}
	params, err := NewParameterSet(cfg, engine.Layout(), rng)
	if err != nil {
		return nil, fmt.Errorf("scs: %w", err)
	}
	return &SCS{config: cfg, params: params, engine: engine, backend: backend}, nil
}

// NewSCSWithParams creates an SCS layer over an existing parameter set.
// The parameter set is shared, not copied.
func NewSCSWithParams(cfg Config, params *ParameterSet, engine Engine, backend Backend) (*SCS, error) {
	if engine == nil || backend == nil || params == nil {
		return nil, fmt.Errorf("%w: params, engine and backend are required", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("scs: %w", err)
	}
	if err := params.checkAgainst(cfg); err != nil {
		return nil, fmt.Errorf("scs: %w", err)
	}
	return &SCS{config: cfg, params: params, engine: engine, backend: backend}, nil
}

// Forward computes the SCS output for x [N, I, H, W].
//
// Returns ErrInvalidShape if x is not 4D, has the wrong channel count, or
// yields a non-integral output size.
func (l *SCS) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	return l.engine.Forward(l.backend, l.config, l.params, x)
}

// Parameters returns kernel, sharpness and noise threshold.
func (l *SCS) Parameters() []*Parameter {
	return l.params.Parameters()
}

// Params returns the parameter set.
func (l *SCS) Params() *ParameterSet {
	return l.params
}

// Config returns the layer configuration.
func (l *SCS) Config() Config {
	return l.config
}

// Engine returns the engine computing the forward pass.
func (l *SCS) Engine() Engine {
	return l.engine
}

// StateDict returns the parameters by name.
func (l *SCS) StateDict() map[string]*tensor.Tensor {
	return l.params.StateDict()
}

// LoadStateDict loads parameters saved by StateDict.
//
// Shapes must match this layer's layout exactly. Use AdaptStateDict to move
// a bundle between einsum and conv layouts first.
func (l *SCS) LoadStateDict(dict map[string]*tensor.Tensor) error {
	if err := l.params.LoadStateDict(dict); err != nil {
		return fmt.Errorf("scs: load state dict: %w", err)
	}
	return nil
}

// String returns a short description of the layer.
func (l *SCS) String() string {
	c := l.config
	return fmt.Sprintf("SCS(in=%d, out=%d, kernel=%d, stride=%d, padding=%d, eps=%g, engine=%s)",
		c.InChannels, c.OutChannels, c.KernelSize, c.Stride, c.Padding, c.Epsilon, l.engine.Name())
}
