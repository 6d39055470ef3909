// Package serialization saves and loads SCS parameter bundles in the
// SafeTensors format.
//
//	Format Structure:
//	  [8 bytes: Header Size (uint64 LE)]
//	  [Header: JSON, tensor name -> {dtype, shape, data_offsets}, plus "__metadata__"]
//	  [Tensor data: raw little-endian bytes, in name order]
//
// Tensors are written as F64. F32 and F64 are accepted on read, so bundles
// exported by other tools can be loaded. The writer records a SHA-256 of the
// data section in the metadata; the reader verifies it when present.
//
// Example usage:
//
//	err := serialization.WriteSafeTensors("scs.safetensors", layer.StateDict(),
//	    map[string]string{"layout": "einsum"})
//
//	bundle, err := serialization.ReadSafeTensors("scs.safetensors")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = layer.LoadStateDict(bundle.Tensors)
package serialization
