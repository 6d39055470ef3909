// Package equivalence checks that the SCS engines compute the same function.
//
// Run builds a patch-engine layer from a seed (or a supplied parameter
// bundle), transfers its parameters to conv-engine layers through the
// layout adapter, evaluates every engine on one standard-normal input and
// reports how far the outputs diverge.
package equivalence

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/born-ml/scs/internal/nn"
	"github.com/born-ml/scs/internal/tensor"
)

// ErrNotEquivalent is returned by Report.Err when an engine pair diverges
// beyond the tolerance.
var ErrNotEquivalent = errors.New("engines are not equivalent")

// DefaultTolerance is the largest accepted absolute difference.
const DefaultTolerance = 1e-5

// Config controls a harness run.
type Config struct {
	Layer     nn.Config // Operator configuration shared by every engine
	Batch     int       // Input batch size
	Height    int       // Input height
	Width     int       // Input width
	Seed      int64     // Seeds the kernel (Seed) and the input (Seed+1)
	Tolerance float64   // Max accepted absolute difference, >= 0

	// Params, when set, replaces the seeded initialisation. The kernel may
	// be in either layout.
	Params map[string]*tensor.Tensor
}

// DefaultConfig returns the reference scenario: a [1, in, 32, 32] input,
// stride 1, no padding and tolerance 1e-5.
func DefaultConfig(inChannels, outChannels, kernelSize int) Config {
	return Config{
		Layer:     nn.DefaultConfig(inChannels, outChannels, kernelSize),
		Batch:     1,
		Height:    32,
		Width:     32,
		Seed:      1,
		Tolerance: DefaultTolerance,
	}
}

// Validate checks the run configuration.
func (c Config) Validate() error {
	if err := c.Layer.Validate(); err != nil {
		return err
	}
	if c.Batch <= 0 || c.Height <= 0 || c.Width <= 0 {
		return fmt.Errorf("%w: input [%d, %d, %d, %d] must be positive",
			nn.ErrInvalidConfig, c.Batch, c.Layer.InChannels, c.Height, c.Width)
	}
	if !(c.Tolerance >= 0) {
		return fmt.Errorf("%w: tolerance must be non-negative, got %g", nn.ErrInvalidConfig, c.Tolerance)
	}
	if _, _, err := c.Layer.OutputSize(c.Height, c.Width); err != nil {
		return err
	}
	return nil
}

// Divergence compares one engine against another on the same input.
type Divergence struct {
	Reference string  // Engine whose output is the reference
	Candidate string  // Engine compared against it
	Max       float64 // max |ref - cand|
	Mean      float64 // mean |ref - cand|
	RMS       float64 // sqrt(mean (ref - cand)^2)
	Relative  float64 // Max / max |ref|
}

// Report is the outcome of Run.
type Report struct {
	OutputShape tensor.Shape
	Tolerance   float64
	Pairs       []Divergence
}

// MaxDivergence returns the largest Max over all pairs.
func (r *Report) MaxDivergence() float64 {
	m := 0.0
	for _, p := range r.Pairs {
		m = math.Max(m, p.Max)
	}
	return m
}

// Passed reports whether every pair is within tolerance.
func (r *Report) Passed() bool {
	for _, p := range r.Pairs {
		if !(p.Max <= r.Tolerance) {
			return false
		}
	}
	return true
}

// Err returns nil when the report passed, otherwise an error wrapping
// ErrNotEquivalent that names the failing pairs.
func (r *Report) Err() error {
	var failing []string
	for _, p := range r.Pairs {
		if !(p.Max <= r.Tolerance) {
			failing = append(failing, fmt.Sprintf("%s vs %s: max %.3g", p.Reference, p.Candidate, p.Max))
		}
	}
	if len(failing) == 0 {
		return nil
	}
	return fmt.Errorf("%w (tolerance %g): %s", ErrNotEquivalent, r.Tolerance, strings.Join(failing, "; "))
}

// String renders the report as a small table.
func (r *Report) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "output %v, tolerance %g\n", []int(r.OutputShape), r.Tolerance)
	for _, p := range r.Pairs {
		status := "ok"
		if !(p.Max <= r.Tolerance) {
			status = "FAIL"
		}
		fmt.Fprintf(&sb, "  %-6s vs %-14s max=%.3e mean=%.3e rms=%.3e rel=%.3e %s\n",
			p.Reference, p.Candidate, p.Max, p.Mean, p.RMS, p.Relative, status)
	}
	return sb.String()
}

// Run evaluates PatchEngine, ConvEngine and the EpsilonOnInput ConvEngine on
// the same parameters and input and reports their pairwise divergence.
//
// Errors are configuration or shape errors; divergence is reported through
// the Report, not as an error. Use Report.Err to turn it into one.
func Run(cfg Config, backend nn.Backend) (*Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("equivalence: %w", err)
	}

	//nolint:gosec // G404: reproducible test weights, not security-critical
	reference, err := nn.NewSCS(cfg.Layer, nn.PatchEngine{}, backend, rand.New(rand.NewSource(cfg.Seed)))
	if err != nil {
		return nil, fmt.Errorf("equivalence: %w", err)
	}
	if cfg.Params != nil {
		dict := copyDict(cfg.Params)
		if err := nn.AdaptStateDict(dict, nn.EinsumLayout); err != nil {
			return nil, fmt.Errorf("equivalence: %w", err)
		}
		if err := reference.LoadStateDict(dict); err != nil {
			return nil, fmt.Errorf("equivalence: %w", err)
		}
	}

	layers := []*nn.SCS{reference}
	for _, engine := range []nn.Engine{nn.ConvEngine{}, nn.ConvEngine{Placement: nn.EpsilonOnInput}} {
		layer, err := transfer(reference, engine, backend)
		if err != nil {
			return nil, fmt.Errorf("equivalence: %s: %w", engine.Name(), err)
		}
		layers = append(layers, layer)
	}

	//nolint:gosec // G404: reproducible test input
	x := tensor.Randn(tensor.Shape{cfg.Batch, cfg.Layer.InChannels, cfg.Height, cfg.Width},
		rand.New(rand.NewSource(cfg.Seed+1)))

	outputs := make([]*tensor.Tensor, len(layers))
	for i, layer := range layers {
		y, err := layer.Forward(x)
		if err != nil {
			return nil, fmt.Errorf("equivalence: %s: %w", layer.Engine().Name(), err)
		}
		outputs[i] = y
	}

	report := &Report{OutputShape: outputs[0].Shape(), Tolerance: cfg.Tolerance}
	for i := 0; i < len(layers); i++ {
		for j := i + 1; j < len(layers); j++ {
			d, err := diverge(outputs[i], outputs[j])
			if err != nil {
				return nil, fmt.Errorf("equivalence: %w", err)
			}
			d.Reference = layers[i].Engine().Name()
			d.Candidate = layers[j].Engine().Name()
			report.Pairs = append(report.Pairs, d)
		}
	}
	return report, nil
}

// transfer builds a layer for engine loaded with src's parameters, adapting
// the kernel layout through the state dict.
func transfer(src *nn.SCS, engine nn.Engine, backend nn.Backend) (*nn.SCS, error) {
	//nolint:gosec // G404: placeholder weights, overwritten below
	dst, err := nn.NewSCS(src.Config(), engine, backend, rand.New(rand.NewSource(0)))
	if err != nil {
		return nil, err
	}
	dict := src.StateDict()
	if err := nn.AdaptStateDict(dict, engine.Layout()); err != nil {
		return nil, err
	}
	if err := dst.LoadStateDict(dict); err != nil {
		return nil, err
	}
	return dst, nil
}

// diverge computes the divergence metrics between two outputs.
func diverge(ref, cand *tensor.Tensor) (Divergence, error) {
	if !ref.Shape().Equal(cand.Shape()) {
		return Divergence{}, fmt.Errorf("output shapes differ: %v vs %v", ref.Shape(), cand.Shape())
	}
	a, b := ref.Data(), cand.Data()
	n := float64(len(a))

	d := Divergence{
		Max:  floats.Distance(a, b, math.Inf(1)),
		Mean: floats.Distance(a, b, 1) / n,
		RMS:  floats.Distance(a, b, 2) / math.Sqrt(n),
	}
	if scale := floats.Norm(a, math.Inf(1)); scale > 0 {
		d.Relative = d.Max / scale
	}
	return d, nil
}

func copyDict(dict map[string]*tensor.Tensor) map[string]*tensor.Tensor {
	out := make(map[string]*tensor.Tensor, len(dict))
	for k, v := range dict {
		out[k] = v
	}
	return out
}
