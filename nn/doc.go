// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides the Sharpened Cosine Similarity (SCS) operator.
//
// # Overview
//
// SCS replaces the dot product of a convolution with a cosine similarity
// between every input patch and every kernel, then sharpens it:
//
//	y = sign(s) * (|s| + eps)^(p/10)^2,  s = <x, w> / ((‖x‖ + q²) (‖w‖ + q²))
//
// where p is a learnable per-output-channel sharpness and q a learnable
// noise threshold scaled by 1/100.
//
// # Engines
//
// Two interchangeable engines compute the same function:
//   - PatchEngine: explicit patch extraction and einsum, kernel [out, in, K²]
//   - ConvEngine: conv2d plus a sum-pooled input norm, kernel [out, in, K, K]
//
// ConvEngine{Placement: EpsilonOnInput} adds epsilon to the input before
// squaring instead of inside the root.
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/scs/backend/cpu"
//	    "github.com/born-ml/scs/nn"
//	)
//
//	func main() {
//	    backend := cpu.New()
//	    layer, err := nn.NewSCS(nn.DefaultConfig(5, 5, 3), nn.ConvEngine{}, backend, nil)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    y, err := layer.Forward(x)  // x: [N, 5, H, W]
//	}
//
// # Persistence
//
// Save writes a SafeTensors file with the kernel in the layer's layout and
// the configuration in the metadata. Load adapts the kernel to whichever
// engine it is given, so bundles move freely between engines.
package nn
