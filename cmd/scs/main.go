// Package main provides the scs command-line tool.
//
// Usage:
//
//	scs check   [flags]            compare the engines on a random input
//	scs init    [flags] -o FILE    write a freshly initialised layer bundle
//	scs convert -layout L IN OUT   rewrite a bundle's kernel layout
//	scs version
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"os"

	"github.com/born-ml/scs/internal/backend/cpu"
	"github.com/born-ml/scs/internal/equivalence"
	"github.com/born-ml/scs/internal/nn"
	"github.com/born-ml/scs/internal/serialization"
)

const version = "v0.1.0-dev"

func main() {
	log.SetFlags(0)
	log.SetPrefix("scs: ")
	if err := run(os.Args[1:], os.Stdout); err != nil {
		log.Fatal(err)
	}
}

func run(args []string, stdout io.Writer) error {
	if len(args) == 0 {
		usage(stdout)
		return nil
	}
	switch args[0] {
	case "check":
		return runCheck(args[1:], stdout)
	case "init":
		return runInit(args[1:], stdout)
	case "convert":
		return runConvert(args[1:], stdout)
	case "version":
		fmt.Fprintf(stdout, "scs %s\n", version)
		return nil
	case "help", "-h", "--help":
		usage(stdout)
		return nil
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "scs - Sharpened Cosine Similarity tools")
	fmt.Fprintf(w, "Version: %s\n\n", version)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  check      Compare the patch and conv engines on a random input")
	fmt.Fprintln(w, "  init       Write a freshly initialised layer bundle")
	fmt.Fprintln(w, "  convert    Rewrite a bundle's kernel layout")
	fmt.Fprintln(w, "  version    Show version")
}

// layerFlags registers the operator configuration flags on fs.
func layerFlags(fs *flag.FlagSet) *nn.Config {
	cfg := nn.DefaultConfig(5, 5, 3)
	fs.IntVar(&cfg.InChannels, "in", cfg.InChannels, "Input channels")
	fs.IntVar(&cfg.OutChannels, "out", cfg.OutChannels, "Output channels")
	fs.IntVar(&cfg.KernelSize, "k", cfg.KernelSize, "Kernel size")
	fs.IntVar(&cfg.Stride, "stride", cfg.Stride, "Stride")
	fs.IntVar(&cfg.Padding, "padding", cfg.Padding, "Zero padding")
	fs.Float64Var(&cfg.Epsilon, "eps", cfg.Epsilon, "Numerical epsilon")
	return &cfg
}

func runCheck(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(stdout)
	layer := layerFlags(fs)
	def := equivalence.DefaultConfig(5, 5, 3)
	batch := fs.Int("batch", def.Batch, "Input batch size")
	height := fs.Int("height", def.Height, "Input height")
	width := fs.Int("width", def.Width, "Input width")
	seed := fs.Int64("seed", def.Seed, "Seed for the kernel and the input")
	tol := fs.Float64("tol", def.Tolerance, "Max accepted absolute difference")
	load := fs.String("load", "", "Take parameters (and layer config) from a bundle")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := equivalence.Config{
		Layer:     *layer,
		Batch:     *batch,
		Height:    *height,
		Width:     *width,
		Seed:      *seed,
		Tolerance: *tol,
	}
	if *load != "" {
		bundle, err := serialization.ReadSafeTensors(*load)
		if err != nil {
			return err
		}
		if cfg.Layer, err = nn.ConfigFromMetadata(bundle.Metadata); err != nil {
			return fmt.Errorf("%s: %w", *load, err)
		}
		cfg.Params = bundle.Tensors
	}

	report, err := equivalence.Run(cfg, cpu.New())
	if err != nil {
		return err
	}
	fmt.Fprint(stdout, report)
	return report.Err()
}

func runInit(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	fs.SetOutput(stdout)
	cfg := layerFlags(fs)
	layoutName := fs.String("layout", nn.EinsumLayout.String(), "Kernel layout: einsum or conv")
	seed := fs.Int64("seed", 1, "Initialisation seed")
	out := fs.String("o", "", "Output bundle path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *out == "" {
		return errors.New("init: -o is required")
	}

	engine, err := engineFor(*layoutName)
	if err != nil {
		return err
	}
	//nolint:gosec // G404: reproducible weights, not security-critical
	layer, err := nn.NewSCS(*cfg, engine, cpu.New(), rand.New(rand.NewSource(*seed)))
	if err != nil {
		return err
	}
	if err := layer.Save(*out); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "wrote %s to %s\n", layer, *out)
	return nil
}

func runConvert(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("convert", flag.ContinueOnError)
	fs.SetOutput(stdout)
	layoutName := fs.String("layout", nn.ConvLayout.String(), "Target kernel layout: einsum or conv")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return errors.New("convert: expected IN and OUT paths")
	}
	src, dst := fs.Arg(0), fs.Arg(1)

	engine, err := engineFor(*layoutName)
	if err != nil {
		return err
	}
	layer, err := nn.Load(src, engine, cpu.New())
	if err != nil {
		return err
	}
	if err := layer.Save(dst); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "converted %s to %s layout: %s\n", src, engine.Layout(), dst)
	return nil
}

// engineFor returns the engine whose native layout is name.
func engineFor(name string) (nn.Engine, error) {
	layout, err := nn.ParseLayout(name)
	if err != nil {
		return nil, err
	}
	if layout == nn.ConvLayout {
		return nn.ConvEngine{}, nil
	}
	return nn.PatchEngine{}, nil
}
