//go:build wasip1

// Command plugin compiles a reference kernel into a wasip1 reactor module
// that exports the shared-buffer protocol.
//
//	GOOS=wasip1 GOARCH=wasm go build -buildmode=c-shared \
//	    -ldflags "-X main.kernelName=exp-avg-f64 -X main.maxLength=1024" \
//	    -o exp-avg-f64.wasm ./cmd/plugin
//
// Failures inside an export panic, which terminates the module; the host
// sees the call fail and must discard the instance.
package main

import (
	"strconv"

	"github.com/wippyai/wasm-transform/guest"
	"github.com/wippyai/wasm-transform/transform"
)

// Set with -ldflags -X.
var (
	kernelName = transform.NegateHalfF64
	maxLength  = "512"
)

var exports *guest.Exports

func init() {
	k, err := transform.Lookup(kernelName)
	if err != nil {
		panic(err)
	}
	n, err := strconv.Atoi(maxLength)
	if err != nil {
		panic(err)
	}
	p, err := transform.New(k, n)
	if err != nil {
		panic(err)
	}
	exports = guest.New(p)
}

func main() {}

//go:wasmexport length
func length() int32 { return exports.Length() }

//go:wasmexport resize
func resize(n int32) { exports.Resize(n) }

//go:wasmexport set_dimensions
func setDimensions(n, m int32) { exports.SetDimensions(n, m) }

//go:wasmexport get_buffer_pointer
func bufferPointer() uint32 { return exports.BufferPointer() }

//go:wasmexport get_wasm_memory_buffer_ptr
func legacyBufferPointer() uint32 { return exports.BufferPointer() }

//go:wasmexport input_type
func inputType() int32 { return exports.InputType() }

//go:wasmexport shape_tag
func shapeTag() int32 { return exports.InputType() }

//go:wasmexport element_type_tag
func elementTypeTag() int32 { return exports.ElementTypeTag() }

//go:wasmexport user_level_type
func userLevelType() int32 { return exports.ElementTypeTag() }

//go:wasmexport scalar_args_count
func scalarArgsCount() int32 { return exports.ScalarArgsCount() }

//go:wasmexport capacity
func capacity() int32 { return exports.Capacity() }

//go:wasmexport series_layout
func seriesLayout() int32 { return exports.SeriesLayout() }

//go:wasmexport apply
func apply() { exports.Apply() }
