package nn

import (
	"fmt"
	"math/rand"
	"strconv"

	"github.com/born-ml/scs/internal/serialization"
)

// Bundle metadata keys written by Save.
const (
	MetaLayout      = "layout"
	MetaInChannels  = "in_channels"
	MetaOutChannels = "out_channels"
	MetaKernelSize  = "kernel_size"
	MetaStride      = "stride"
	MetaPadding     = "padding"
	MetaEpsilon     = "epsilon"
	MetaEngine      = "engine"
)

// Metadata returns the bundle metadata describing cfg and layout.
func (c Config) Metadata(layout Layout) map[string]string {
	return map[string]string{
		MetaLayout:      layout.String(),
		MetaInChannels:  strconv.Itoa(c.InChannels),
		MetaOutChannels: strconv.Itoa(c.OutChannels),
		MetaKernelSize:  strconv.Itoa(c.KernelSize),
		MetaStride:      strconv.Itoa(c.Stride),
		MetaPadding:     strconv.Itoa(c.Padding),
		MetaEpsilon:     strconv.FormatFloat(c.Epsilon, 'g', -1, 64),
	}
}

// ConfigFromMetadata rebuilds a Config from bundle metadata.
//
// Channels and kernel size are required. Stride, padding and epsilon fall
// back to their defaults when absent.
func ConfigFromMetadata(meta map[string]string) (Config, error) {
	var cfg Config
	required := []struct {
		key string
		dst *int
	}{
		{MetaInChannels, &cfg.InChannels},
		{MetaOutChannels, &cfg.OutChannels},
		{MetaKernelSize, &cfg.KernelSize},
	}
	for _, r := range required {
		s, ok := meta[r.key]
		if !ok {
			return Config{}, fmt.Errorf("%w: metadata has no %q", ErrParameterMismatch, r.key)
		}
		v, err := strconv.Atoi(s)
		if err != nil {
			return Config{}, fmt.Errorf("%w: metadata %q: %w", ErrInvalidConfig, r.key, err)
		}
		*r.dst = v
	}

	cfg = DefaultConfig(cfg.InChannels, cfg.OutChannels, cfg.KernelSize)
	for key, dst := range map[string]*int{MetaStride: &cfg.Stride, MetaPadding: &cfg.Padding} {
		s, ok := meta[key]
		if !ok {
			continue
		}
		v, err := strconv.Atoi(s)
		if err != nil {
			return Config{}, fmt.Errorf("%w: metadata %q: %w", ErrInvalidConfig, key, err)
		}
		*dst = v
	}
	if s, ok := meta[MetaEpsilon]; ok {
		eps, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Config{}, fmt.Errorf("%w: metadata %q: %w", ErrInvalidConfig, MetaEpsilon, err)
		}
		cfg.Epsilon = eps
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Save writes the layer's parameters and configuration to a SafeTensors file.
//
// The kernel is stored in the layer's own layout and the layout is recorded
// in the metadata, so Load can adapt it for any engine.
func (l *SCS) Save(path string) error {
	meta := l.config.Metadata(l.params.Layout())
	meta[MetaEngine] = l.engine.Name()
	if err := serialization.WriteSafeTensors(path, l.StateDict(), meta); err != nil {
		return fmt.Errorf("scs: save %s: %w", path, err)
	}
	return nil
}

// Load reads a bundle written by Save (or any SafeTensors file with the
// same entries and metadata) and builds a layer running on engine.
//
// The kernel is adapted to the engine's layout, so a bundle saved from a
// PatchEngine layer loads into a ConvEngine layer and vice versa.
func Load(path string, engine Engine, backend Backend) (*SCS, error) {
	bundle, err := serialization.ReadSafeTensors(path)
	if err != nil {
		return nil, fmt.Errorf("scs: load: %w", err)
	}
	cfg, err := ConfigFromMetadata(bundle.Metadata)
	if err != nil {
		return nil, fmt.Errorf("scs: load %s: %w", path, err)
	}

	// The kernel drawn here is overwritten by the bundle.
	layer, err := NewSCS(cfg, engine, backend, rand.New(rand.NewSource(0))) //nolint:gosec // G404: placeholder weights
	if err != nil {
		return nil, err
	}
	if err := AdaptStateDict(bundle.Tensors, engine.Layout()); err != nil {
		return nil, fmt.Errorf("scs: load %s: %w", path, err)
	}
	if err := layer.LoadStateDict(bundle.Tensors); err != nil {
		return nil, fmt.Errorf("scs: load %s: %w", path, err)
	}
	return layer, nil
}
