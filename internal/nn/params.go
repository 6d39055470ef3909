package nn

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/born-ml/scs/internal/tensor"
)

// State dict entry names.
const (
	KernelName         = "kernel"
	SharpnessName      = "sharpness"
	NoiseThresholdName = "noise_threshold"
)

// Parameter scales. Sharpness and noise threshold are stored pre-scaled so
// their effective values are (p/PScale)^2 and (q/QScale)^2.
const (
	PScale = 10.0
	QScale = 100.0
)

// Initial raw values: effective exponent 2 and additive threshold 0.01.
var (
	InitSharpness      = math.Sqrt2 * PScale
	InitNoiseThreshold = 10.0
)

// ParameterSet holds the learned state of an SCS layer.
//
//   - kernel: [O, I, K*K] (EinsumLayout) or [O, I, K, K] (ConvLayout)
//   - sharpness: [O], raw p, effective exponent (p/PScale)^2
//   - noise_threshold: [1], raw q, additive term (q/QScale)^2, shared by all
//     output channels
//
// Parameter sets returned by WithLayout share storage with their source, so
// a LoadStateDict on either is visible through both. Concurrent reads are
// safe; LoadStateDict must be synchronised by the caller.
type ParameterSet struct {
	kernel         *Parameter
	sharpness      *Parameter
	noiseThreshold *Parameter
	layout         Layout
}

// NewParameterSet creates parameters for cfg in the given layout.
//
// The kernel is Xavier-uniform initialised with fan_in = I*K*K and
// fan_out = O*K*K, sharpness is InitSharpness and the noise threshold is
// InitNoiseThreshold.
func NewParameterSet(cfg Config, layout Layout, rng *rand.Rand) (*ParameterSet, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Draw in conv layout and view in the requested one, so a given seed
	// yields the same numbers for both layouts.
	kernel := Xavier(cfg.KernelFanIn(), cfg.KernelFanOut(), ConvLayout.KernelShape(cfg), rng)
	kernel, err := toLayout(kernel, layout)
	if err != nil {
		return nil, err
	}

	return &ParameterSet{
		kernel:         NewParameter(KernelName, kernel),
		sharpness:      NewParameter(SharpnessName, tensor.Full(tensor.Shape{cfg.OutChannels}, InitSharpness)),
		noiseThreshold: NewParameter(NoiseThresholdName, tensor.Full(tensor.Shape{1}, InitNoiseThreshold)),
		layout:         layout,
	}, nil
}

// Kernel returns the kernel parameter.
func (ps *ParameterSet) Kernel() *Parameter { return ps.kernel }

// Sharpness returns the raw per-channel sharpness parameter.
func (ps *ParameterSet) Sharpness() *Parameter { return ps.sharpness }

// NoiseThreshold returns the raw scalar noise threshold parameter.
func (ps *ParameterSet) NoiseThreshold() *Parameter { return ps.noiseThreshold }

// Layout returns the kernel storage layout.
func (ps *ParameterSet) Layout() Layout { return ps.layout }

// Parameters returns kernel, sharpness and noise threshold.
func (ps *ParameterSet) Parameters() []*Parameter {
	return []*Parameter{ps.kernel, ps.sharpness, ps.noiseThreshold}
}

// Exponent returns (p/PScale)^2 with shape [O]. It is never negative.
func (ps *ParameterSet) Exponent(b Backend) *tensor.Tensor {
	return b.Square(b.DivScalar(ps.sharpness.Tensor(), PScale))
}

// Threshold returns (q/QScale)^2 with shape [1]. It is never negative.
func (ps *ParameterSet) Threshold(b Backend) *tensor.Tensor {
	return b.Square(b.DivScalar(ps.noiseThreshold.Tensor(), QScale))
}

// KernelAs returns the kernel viewed in the given layout.
func (ps *ParameterSet) KernelAs(layout Layout) (*tensor.Tensor, error) {
	return toLayout(ps.kernel.Tensor(), layout)
}

// WithLayout returns a parameter set whose kernel is viewed in layout.
// Sharpness and noise threshold are shared with ps.
func (ps *ParameterSet) WithLayout(layout Layout) (*ParameterSet, error) {
	kernel, err := ps.KernelAs(layout)
	if err != nil {
		return nil, err
	}
	return &ParameterSet{
		kernel:         NewParameter(KernelName, kernel),
		sharpness:      ps.sharpness,
		noiseThreshold: ps.noiseThreshold,
		layout:         layout,
	}, nil
}

// StateDict returns the parameters by name. Tensors are shared, not copied.
func (ps *ParameterSet) StateDict() map[string]*tensor.Tensor {
	dict := make(map[string]*tensor.Tensor, 3)
	for _, p := range ps.Parameters() {
		dict[p.Name()] = p.Tensor()
	}
	return dict
}

// LoadStateDict copies the tensors of dict into the existing parameter
// storage.
//
// Every entry must be present with exactly the current shape; a flattened
// kernel is not accepted by a conv-layout set (see AdaptStateDict). Unknown
// entries are rejected. Nothing is modified when an error is returned.
func (ps *ParameterSet) LoadStateDict(dict map[string]*tensor.Tensor) error {
	params := ps.Parameters()
	known := make(map[string]bool, len(params))
	for _, p := range params {
		known[p.Name()] = true
		t, ok := dict[p.Name()]
		if !ok {
			return fmt.Errorf("%w: missing %q", ErrParameterMismatch, p.Name())
		}
		if !t.Shape().Equal(p.Tensor().Shape()) {
			return fmt.Errorf("%w: %q has shape %v, want %v",
				ErrParameterMismatch, p.Name(), t.Shape(), p.Tensor().Shape())
		}
	}

	var unexpected []string
	for name := range dict {
		if !known[name] {
			unexpected = append(unexpected, name)
		}
	}
	if len(unexpected) > 0 {
		sort.Strings(unexpected)
		return fmt.Errorf("%w: unexpected entries %v", ErrParameterMismatch, unexpected)
	}

	for _, p := range params {
		if err := p.Tensor().CopyFrom(dict[p.Name()]); err != nil {
			return fmt.Errorf("%w: %q: %w", ErrParameterMismatch, p.Name(), err)
		}
	}
	return nil
}

// checkAgainst verifies that the parameter shapes match cfg.
func (ps *ParameterSet) checkAgainst(cfg Config) error {
	if got, want := ps.kernel.Tensor().Shape(), ps.layout.KernelShape(cfg); !got.Equal(want) {
		return fmt.Errorf("%w: kernel shape %v does not match %v for %s layout",
			ErrParameterMismatch, got, want, ps.layout)
	}
	if got := ps.sharpness.Tensor().Shape(); !got.Equal(tensor.Shape{cfg.OutChannels}) {
		return fmt.Errorf("%w: sharpness shape %v, want [%d]", ErrParameterMismatch, got, cfg.OutChannels)
	}
	if got := ps.noiseThreshold.Tensor().Shape(); !got.Equal(tensor.Shape{1}) {
		return fmt.Errorf("%w: noise threshold shape %v, want [1]", ErrParameterMismatch, got)
	}
	return nil
}
