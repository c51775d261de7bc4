// Package protocol names the entry points of the shared-buffer plugin
// protocol and describes their types.
//
// Every entry point takes and returns i32 at the core level. Exports lists
// them with the legacy aliases a host also accepts:
//
//	get_buffer_pointer   get_wasm_memory_buffer_ptr
//	input_type           shape_tag
//	element_type_tag     user_level_type
//
// set_dimensions, scalar_args_count and capacity are optional. A plugin must
// also export its linear memory as "memory".
package protocol
