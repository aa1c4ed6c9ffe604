// Package engine defines the compute resource served by infersockd.
//
// An Engine is an opaque, synchronous, non-reentrant inference unit: it
// consumes a fixed-size input buffer and fills a fixed-size output buffer.
// Engines are described by a TOML manifest and built by a named backend:
//
//	name = "resnet50_fp32"
//	backend = "meanpool"
//
//	[input]
//	name = "input"
//	dims = [1, 3, 224, 224]
//	dtype = "float32"
//
//	[output]
//	name = "output"
//	dims = [1, 1000]
//	dtype = "float32"
//
// Accelerator backends register themselves with Register from their own
// package; the built-in backends (identity, reverse, meanpool) run on the CPU.
package engine
