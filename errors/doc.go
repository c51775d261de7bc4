// Package errors provides structured error types for shared-buffer plugins and their host.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type includes context: export path, Go/WIT element type names, and cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseEncode, errors.KindOverflow).
//		Path("square-u32", "write").
//		GoType("float64").
//		WitType("u32").
//		Detail("value %v does not fit", v).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.Capacity(errors.PhaseResize, 513, 512)
//	err := errors.ShapeMismatch(errors.PhaseApply, 2, 3, 5)
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
