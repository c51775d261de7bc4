// Package host runs transform plugins in wazero.
//
// A Runtime compiles plugin binaries and checks that they export the
// shared-buffer protocol. Each Module.Instantiate negotiates the plugin's
// element type, shape, scalar argument count and capacity once, then the
// Instance drives the lock-step cycle:
//
//	rt, _ := host.New(ctx, host.Config{})
//	mod, _ := rt.Load(ctx, "negate-half-f64", wasm)
//	inst, _ := mod.Instantiate(ctx)
//	out, _ := inst.ApplyVector(ctx, []float64{4, -3, 0})
//
// Guest traps surface as errors of kind trap. Calls are counted in the
// wasm_transform_invocations_total metric and every Apply, ApplyVector and
// ApplyMatrix call records a span.
package host
