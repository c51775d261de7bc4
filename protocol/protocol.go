package protocol

import (
	"go.bytecodealliance.org/wit"
)

// Core export names of the shared-buffer protocol.
const (
	Memory          = "memory"
	Length          = "length"
	Resize          = "resize"
	SetDimensions   = "set_dimensions"
	BufferPointer   = "get_buffer_pointer"
	InputType       = "input_type"
	ElementTypeTag  = "element_type_tag"
	ScalarArgsCount = "scalar_args_count"
	Capacity        = "capacity"
	SeriesLayout    = "series_layout"
	Apply           = "apply"
)

// WIT describes the entry points. Function names are the kebab-case form of
// the core export names.
const WIT = `package wasm-transform:plugin@0.1.0;

interface transform {
    length: func() -> s32;
    resize: func(new-length: s32);
    set-dimensions: func(n: s32, m: s32);
    get-buffer-pointer: func() -> u32;
    input-type: func() -> s32;
    element-type-tag: func() -> s32;
    scalar-args-count: func() -> s32;
    capacity: func() -> s32;
    series-layout: func() -> s32;
    apply: func();
}

world plugin {
    export transform;
}
`

// Export is one protocol entry point.
type Export struct {
	Name     string
	Aliases  []string
	Required bool
	Params   []wit.Type
	Results  []wit.Type
}

// Resolve returns the first of Name and Aliases for which has reports true.
func (e Export) Resolve(has func(string) bool) (string, bool) {
	if has(e.Name) {
		return e.Name, true
	}
	for _, alias := range e.Aliases {
		if has(alias) {
			return alias, true
		}
	}
	return "", false
}

// Exports lists every entry point in negotiation order.
var Exports = []Export{
	{Name: Length, Required: true},
	{Name: Resize, Required: true},
	{Name: SetDimensions},
	{Name: BufferPointer, Aliases: []string{"get_wasm_memory_buffer_ptr"}, Required: true},
	{Name: InputType, Aliases: []string{"shape_tag"}, Required: true},
	{Name: ElementTypeTag, Aliases: []string{"user_level_type"}, Required: true},
	{Name: ScalarArgsCount},
	{Name: Capacity},
	{Name: SeriesLayout},
	{Name: Apply, Required: true},
}

func init() {
	sigs, err := ParseWIT(WIT)
	if err != nil {
		panic(err)
	}
	for i := range Exports {
		sig := sigs[Exports[i].Name]
		Exports[i].Params, Exports[i].Results = sig.Params, sig.Results
	}
}

// Lookup returns the entry point registered under a primary name or alias.
func Lookup(name string) (Export, bool) {
	for _, e := range Exports {
		if e.Name == name {
			return e, true
		}
		for _, alias := range e.Aliases {
			if alias == name {
				return e, true
			}
		}
	}
	return Export{}, false
}

// Missing returns the primary names of required entry points that has
// reports absent under every name.
func Missing(has func(string) bool) []string {
	var missing []string
	for _, e := range Exports {
		if _, ok := e.Resolve(has); !ok && e.Required {
			missing = append(missing, e.Name)
		}
	}
	return missing
}
