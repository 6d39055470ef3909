package nn_test

import (
	"errors"
	"math"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/scs/internal/backend/cpu"
	"github.com/born-ml/scs/internal/nn"
	"github.com/born-ml/scs/internal/tensor"
)

func newLayer(t *testing.T, cfg nn.Config, engine nn.Engine, seed int64) *nn.SCS {
	t.Helper()
	layer, err := nn.NewSCS(cfg, engine, cpu.New(), rand.New(rand.NewSource(seed)))
	require.NoError(t, err)
	return layer
}

// transfer loads src's parameters into a fresh layer running engine.
func transfer(t *testing.T, src *nn.SCS, engine nn.Engine) *nn.SCS {
	t.Helper()
	dst := newLayer(t, src.Config(), engine, 99)
	dict := src.StateDict()
	require.NoError(t, nn.AdaptStateDict(dict, engine.Layout()))
	require.NoError(t, dst.LoadStateDict(dict))
	return dst
}

func maxDiff(t *testing.T, a, b *tensor.Tensor) float64 {
	t.Helper()
	d, err := tensor.MaxAbsDiff(a, b)
	require.NoError(t, err)
	return d
}

func TestSCS_EnginesAgree(t *testing.T) {
	cfg := nn.DefaultConfig(5, 5, 3)
	patch := newLayer(t, cfg, nn.PatchEngine{}, 1)
	conv := transfer(t, patch, nn.ConvEngine{})
	annotated := transfer(t, patch, nn.ConvEngine{Placement: nn.EpsilonOnInput})

	x := tensor.Randn(tensor.Shape{1, 5, 32, 32}, rand.New(rand.NewSource(2)))

	yPatch, err := patch.Forward(x)
	require.NoError(t, err)
	yConv, err := conv.Forward(x)
	require.NoError(t, err)
	yAnnot, err := annotated.Forward(x)
	require.NoError(t, err)

	assert.Equal(t, tensor.Shape{1, 5, 30, 30}, yPatch.Shape())
	assert.LessOrEqual(t, maxDiff(t, yPatch, yConv), 1e-5)
	assert.LessOrEqual(t, maxDiff(t, yPatch, yAnnot), 1e-5)
	assert.LessOrEqual(t, maxDiff(t, yConv, yAnnot), 1e-5)
}

func TestSCS_EnginesAgreeWithStrideAndPadding(t *testing.T) {
	cfg := nn.DefaultConfig(3, 4, 3)
	cfg.Stride = 2
	cfg.Padding = 1
	patch := newLayer(t, cfg, nn.PatchEngine{}, 3)
	conv := transfer(t, patch, nn.ConvEngine{})

	x := tensor.Randn(tensor.Shape{2, 3, 9, 7}, rand.New(rand.NewSource(4)))

	yPatch, err := patch.Forward(x)
	require.NoError(t, err)
	yConv, err := conv.Forward(x)
	require.NoError(t, err)

	// (9 + 2 - 3)/2 + 1 = 5, (7 + 2 - 3)/2 + 1 = 4
	assert.Equal(t, tensor.Shape{2, 4, 5, 4}, yPatch.Shape())
	assert.LessOrEqual(t, maxDiff(t, yPatch, yConv), 1e-9)
}

// The conv engine runs directly on flattened parameters, reshaping inside
// the forward pass.
func TestSCS_ConvEngineOnEinsumParams(t *testing.T) {
	cfg := nn.DefaultConfig(2, 3, 3)
	patch := newLayer(t, cfg, nn.PatchEngine{}, 5)
	shared, err := nn.NewSCSWithParams(cfg, patch.Params(), nn.ConvEngine{}, cpu.New())
	require.NoError(t, err)

	x := tensor.Randn(tensor.Shape{1, 2, 6, 6}, rand.New(rand.NewSource(6)))
	a, err := patch.Forward(x)
	require.NoError(t, err)
	b, err := shared.Forward(x)
	require.NoError(t, err)
	assert.LessOrEqual(t, maxDiff(t, a, b), 1e-9)

	// And the patch engine on conv-layout parameters.
	convParams, err := patch.Params().WithLayout(nn.ConvLayout)
	require.NoError(t, err)
	patchOnConv, err := nn.NewSCSWithParams(cfg, convParams, nn.PatchEngine{}, cpu.New())
	require.NoError(t, err)
	c, err := patchOnConv.Forward(x)
	require.NoError(t, err)
	assert.True(t, tensor.Equal(a, c))
}

func TestSCS_SignConsistency(t *testing.T) {
	backend := cpu.New()
	cfg := nn.DefaultConfig(3, 4, 3)
	cfg.Padding = 1
	x := tensor.Randn(tensor.Shape{1, 3, 8, 8}, rand.New(rand.NewSource(7)))

	for _, engine := range []nn.Engine{nn.PatchEngine{}, nn.ConvEngine{}, nn.ConvEngine{Placement: nn.EpsilonOnInput}} {
		t.Run(engine.Name(), func(t *testing.T) {
			layer := newLayer(t, cfg, engine, 8)
			y, err := layer.Forward(x)
			require.NoError(t, err)

			w, err := layer.Params().KernelAs(nn.ConvLayout)
			require.NoError(t, err)
			raw := backend.Conv2D(x, w, cfg.Stride, cfg.Padding)

			assert.Equal(t, backend.Sign(raw).Data(), backend.Sign(y).Data())
		})
	}
}

func TestSCS_OutputRange(t *testing.T) {
	cfg := nn.DefaultConfig(2, 6, 3)
	layer := newLayer(t, cfg, nn.PatchEngine{}, 9)

	// Spread the exponents: some below 1, some above.
	sharpness := layer.Params().Sharpness().Tensor()
	for i, p := range []float64{1, 5, 10, 14.142, 20, 30} {
		sharpness.Set(p, i)
	}

	x := tensor.Randn(tensor.Shape{2, 2, 10, 10}, rand.New(rand.NewSource(10)))
	y, err := layer.Forward(x)
	require.NoError(t, err)

	for _, v := range y.Data() {
		assert.False(t, math.IsNaN(v))
		assert.LessOrEqual(t, math.Abs(v), 1+1e-9)
	}
}

func TestSCS_NegativeSharpnessIsSquared(t *testing.T) {
	cfg := nn.DefaultConfig(2, 3, 3)
	x := tensor.Randn(tensor.Shape{1, 2, 5, 5}, rand.New(rand.NewSource(11)))

	for _, engine := range []nn.Engine{nn.PatchEngine{}, nn.ConvEngine{}} {
		t.Run(engine.Name(), func(t *testing.T) {
			pos := newLayer(t, cfg, engine, 12)
			neg := newLayer(t, cfg, engine, 12)
			for i, p := range []float64{7, 13, 25} {
				pos.Params().Sharpness().Tensor().Set(p, i)
				neg.Params().Sharpness().Tensor().Set(-p, i)
			}

			exponent := neg.Params().Exponent(cpu.New())
			for _, e := range exponent.Data() {
				assert.GreaterOrEqual(t, e, 0.0)
			}

			yPos, err := pos.Forward(x)
			require.NoError(t, err)
			yNeg, err := neg.Forward(x)
			require.NoError(t, err)
			assert.True(t, tensor.Equal(yPos, yNeg))
		})
	}
}

// A 1x1 kernel of 1.0 against a uniform input: with zero threshold the
// cosine similarity is exactly 1.
func TestSCS_UnitScenario(t *testing.T) {
	cfg := nn.DefaultConfig(1, 1, 1)
	x := tensor.Full(tensor.Shape{1, 1, 3, 3}, 2.0)

	for _, engine := range []nn.Engine{nn.PatchEngine{}, nn.ConvEngine{}, nn.ConvEngine{Placement: nn.EpsilonOnInput}} {
		t.Run(engine.Name(), func(t *testing.T) {
			layer := newLayer(t, cfg, engine, 13)
			kernel := layer.Params().Kernel().Tensor()
			kernel.Data()[0] = 1.0

			// Default threshold: ((2/2.01) * (1/1.01))^2.
			y, err := layer.Forward(x)
			require.NoError(t, err)
			want := math.Pow((2/2.01)*(1/1.01), 2)
			for _, v := range y.Data() {
				assert.InDelta(t, want, v, 1e-9)
			}

			layer.Params().NoiseThreshold().Tensor().Set(0, 0)
			y, err = layer.Forward(x)
			require.NoError(t, err)
			assert.Equal(t, tensor.Shape{1, 1, 3, 3}, y.Shape())
			for _, v := range y.Data() {
				assert.InDelta(t, 1.0, v, 1e-9)
			}
		})
	}
}

func TestSCS_ZeroInput(t *testing.T) {
	cfg := nn.DefaultConfig(2, 2, 3)
	cfg.Padding = 1
	x := tensor.Zeros(1, 2, 4, 4)

	for _, engine := range []nn.Engine{nn.PatchEngine{}, nn.ConvEngine{}, nn.ConvEngine{Placement: nn.EpsilonOnInput}} {
		t.Run(engine.Name(), func(t *testing.T) {
			y, err := newLayer(t, cfg, engine, 14).Forward(x)
			require.NoError(t, err)
			for _, v := range y.Data() {
				assert.Zero(t, v)
			}
		})
	}
}

func TestSCS_InvalidInput(t *testing.T) {
	cfg := nn.DefaultConfig(3, 2, 3)
	cfg.Stride = 2

	tests := []struct {
		name  string
		shape tensor.Shape
	}{
		{"rank", tensor.Shape{3, 7, 7}},
		{"channels", tensor.Shape{1, 4, 7, 7}},
		{"non-integral height", tensor.Shape{1, 3, 8, 7}},
		{"non-integral width", tensor.Shape{1, 3, 7, 6}},
		{"smaller than kernel", tensor.Shape{1, 3, 2, 7}},
	}

	for _, engine := range []nn.Engine{nn.PatchEngine{}, nn.ConvEngine{}} {
		layer := newLayer(t, cfg, engine, 15)
		for _, tt := range tests {
			t.Run(engine.Name()+"/"+tt.name, func(t *testing.T) {
				_, err := layer.Forward(tensor.Zeros(tt.shape...))
				require.Error(t, err)
				assert.ErrorIs(t, err, nn.ErrInvalidShape)

				var shapeErr *nn.ShapeError
				require.True(t, errors.As(err, &shapeErr))
				assert.Equal(t, tt.shape, shapeErr.Got)
			})
		}
	}

	y, err := newLayer(t, cfg, nn.PatchEngine{}, 15).Forward(tensor.Zeros(1, 3, 7, 7))
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 2, 3, 3}, y.Shape())
}

func TestSCS_UnknownPlacement(t *testing.T) {
	layer := newLayer(t, nn.DefaultConfig(1, 1, 1), nn.ConvEngine{Placement: nn.EpsilonPlacement(7)}, 16)
	_, err := layer.Forward(tensor.Zeros(1, 1, 2, 2))
	assert.ErrorIs(t, err, nn.ErrInvalidConfig)
}

func TestEngine_ForwardRejectsBadArguments(t *testing.T) {
	backend := cpu.New()
	x := tensor.Zeros(1, 1, 6, 6)

	k2, err := nn.NewParameterSet(nn.DefaultConfig(1, 1, 2), nn.ConvLayout, rand.New(rand.NewSource(30)))
	require.NoError(t, err)
	k3, err := nn.NewParameterSet(nn.DefaultConfig(1, 1, 3), nn.EinsumLayout, rand.New(rand.NewSource(31)))
	require.NoError(t, err)
	twoOut, err := nn.NewParameterSet(nn.DefaultConfig(1, 2, 3), nn.EinsumLayout, rand.New(rand.NewSource(32)))
	require.NoError(t, err)

	zeroStride := nn.DefaultConfig(1, 1, 3)
	zeroStride.Stride = 0
	zeroEps := nn.DefaultConfig(1, 1, 3)
	zeroEps.Epsilon = 0

	tests := []struct {
		name   string
		cfg    nn.Config
		params *nn.ParameterSet
		want   error
	}{
		{"zero stride", zeroStride, k3, nn.ErrInvalidConfig},
		{"zero epsilon", zeroEps, k3, nn.ErrInvalidConfig},
		{"nil params", nn.DefaultConfig(1, 1, 3), nil, nn.ErrInvalidConfig},
		{"kernel size mismatch", nn.DefaultConfig(1, 1, 3), k2, nn.ErrParameterMismatch},
		{"out channels mismatch", nn.DefaultConfig(1, 1, 3), twoOut, nn.ErrParameterMismatch},
	}
	for _, engine := range []nn.Engine{nn.PatchEngine{}, nn.ConvEngine{}, nn.ConvEngine{Placement: nn.EpsilonOnInput}} {
		for _, tt := range tests {
			t.Run(engine.Name()+"/"+tt.name, func(t *testing.T) {
				var y *tensor.Tensor
				require.NotPanics(t, func() {
					y, err = engine.Forward(backend, tt.cfg, tt.params, x)
				})
				assert.Nil(t, y)
				assert.ErrorIs(t, err, tt.want)
			})
		}

		y, err := engine.Forward(backend, nn.DefaultConfig(1, 1, 3), k3, x)
		require.NoError(t, err)
		assert.Equal(t, tensor.Shape{1, 1, 4, 4}, y.Shape())
	}
}

// With a zero threshold and padding >= kernel size some windows see only
// padding; every engine outputs 0 there.
func TestSCS_PaddingOnlyWindows(t *testing.T) {
	cfg := nn.DefaultConfig(1, 1, 1)
	cfg.Padding = 1
	x := tensor.Full(tensor.Shape{1, 1, 2, 2}, 2.0)

	var outputs []*tensor.Tensor
	for _, engine := range []nn.Engine{nn.PatchEngine{}, nn.ConvEngine{}, nn.ConvEngine{Placement: nn.EpsilonOnInput}} {
		layer := newLayer(t, cfg, engine, 33)
		layer.Params().Kernel().Tensor().Data()[0] = 0.5
		layer.Params().NoiseThreshold().Tensor().Set(0, 0)

		y, err := layer.Forward(x)
		require.NoError(t, err)
		require.Equal(t, tensor.Shape{1, 1, 4, 4}, y.Shape())
		for _, v := range y.Data() {
			require.False(t, math.IsNaN(v), engine.Name())
		}
		assert.Zero(t, y.At(0, 0, 0, 0), engine.Name())
		assert.InDelta(t, 1.0, y.At(0, 0, 1, 1), 1e-9, engine.Name())
		outputs = append(outputs, y)
	}
	for _, y := range outputs[1:] {
		assert.LessOrEqual(t, maxDiff(t, outputs[0], y), 1e-9)
	}
}

func TestNewSCS_Errors(t *testing.T) {
	backend := cpu.New()

	_, err := nn.NewSCS(nn.DefaultConfig(0, 1, 1), nn.PatchEngine{}, backend, nil)
	assert.ErrorIs(t, err, nn.ErrInvalidConfig)

	_, err = nn.NewSCS(nn.DefaultConfig(1, 1, 1), nil, backend, nil)
	assert.ErrorIs(t, err, nn.ErrInvalidConfig)

	_, err = nn.NewSCS(nn.DefaultConfig(1, 1, 1), nn.PatchEngine{}, nil, nil)
	assert.ErrorIs(t, err, nn.ErrInvalidConfig)

	params, err := nn.NewParameterSet(nn.DefaultConfig(2, 3, 3), nn.EinsumLayout, nil)
	require.NoError(t, err)
	_, err = nn.NewSCSWithParams(nn.DefaultConfig(2, 4, 3), params, nn.PatchEngine{}, backend)
	assert.ErrorIs(t, err, nn.ErrParameterMismatch)
}

func TestSCS_Accessors(t *testing.T) {
	cfg := nn.DefaultConfig(5, 4, 3)
	cfg.Padding = 1
	layer := newLayer(t, cfg, nn.ConvEngine{Placement: nn.EpsilonOnInput}, 17)

	assert.Equal(t, cfg, layer.Config())
	assert.Equal(t, "conv-annotated", layer.Engine().Name())
	assert.Equal(t, nn.ConvLayout, layer.Params().Layout())
	assert.Len(t, layer.Parameters(), 3)
	assert.Equal(t,
		"SCS(in=5, out=4, kernel=3, stride=1, padding=1, eps=1e-12, engine=conv-annotated)",
		layer.String())

	var m nn.Module = layer
	assert.NotNil(t, m)
}

func TestSCS_SaveLoad(t *testing.T) {
	cfg := nn.DefaultConfig(3, 4, 3)
	cfg.Stride = 2
	cfg.Padding = 1
	patch := newLayer(t, cfg, nn.PatchEngine{}, 18)

	path := filepath.Join(t.TempDir(), "scs.safetensors")
	require.NoError(t, patch.Save(path))

	x := tensor.Randn(tensor.Shape{1, 3, 9, 9}, rand.New(rand.NewSource(19)))
	want, err := patch.Forward(x)
	require.NoError(t, err)

	samePatch, err := nn.Load(path, nn.PatchEngine{}, cpu.New())
	require.NoError(t, err)
	assert.Equal(t, cfg, samePatch.Config())
	got, err := samePatch.Forward(x)
	require.NoError(t, err)
	assert.True(t, tensor.Equal(want, got))

	conv, err := nn.Load(path, nn.ConvEngine{}, cpu.New())
	require.NoError(t, err)
	assert.Equal(t, nn.ConvLayout, conv.Params().Layout())
	got, err = conv.Forward(x)
	require.NoError(t, err)
	assert.LessOrEqual(t, maxDiff(t, want, got), 1e-9)

	// Conv-layout bundles load back into the patch engine.
	convPath := filepath.Join(t.TempDir(), "conv.safetensors")
	require.NoError(t, conv.Save(convPath))
	back, err := nn.Load(convPath, nn.PatchEngine{}, cpu.New())
	require.NoError(t, err)
	assert.True(t, tensor.Equal(patch.Params().Kernel().Tensor(), back.Params().Kernel().Tensor()))
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := nn.Load(filepath.Join(t.TempDir(), "missing.safetensors"), nn.PatchEngine{}, cpu.New())
	assert.Error(t, err)
}
