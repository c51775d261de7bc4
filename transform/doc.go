// Package transform implements metadata negotiation and the in-place
// transform engine of a shared-buffer plugin.
//
// A Plugin owns one buffer.Buffer and one Kernel. The host fills the buffer,
// reads the Descriptor, calls Apply, and reads the buffer back:
//
//	p, _ := transform.New(transform.NegateHalf[float64]("neg"), 1024)
//	_ = p.Resize(3)
//	_ = buffer.Copy(p.Buffer(), []float64{4, -3, 0})
//	_ = p.Apply()                         // [-2 1.5 -0]
//
// Two kernel families are provided. Elementwise maps a pure function over an
// instant vector. WindowedAverage reduces each series of a range vector to an
// exponential moving average written into the series' last slot.
package transform
