package protocol

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasm-transform/errors"
)

// Signature holds the WIT parameter and result types of one function.
type Signature struct {
	Params  []wit.Type
	Results []wit.Type
}

var funcPattern = regexp.MustCompile(`(?:export\s+)?([a-zA-Z_][a-zA-Z0-9_-]*)\s*:\s*func\s*\(([^)]*)\)(?:\s*->\s*([^;]+))?`)

// ParseWIT extracts function signatures from WIT text, keyed by core export
// name (kebab-case converted to snake_case).
// Pattern: [export] name: func(params) -> result;
func ParseWIT(witText string) (map[string]Signature, error) {
	funcs := make(map[string]Signature)

	for _, match := range funcPattern.FindAllStringSubmatch(witText, -1) {
		name := strings.ReplaceAll(match[1], "-", "_")
		paramsStr := strings.TrimSpace(match[2])
		resultStr := strings.TrimSpace(match[3])

		var sig Signature
		for _, p := range splitParams(paramsStr) {
			typStr := p
			if idx := strings.LastIndex(p, ":"); idx != -1 {
				typStr = p[idx+1:]
			}
			t, err := parseWitType(typStr)
			if err != nil {
				return nil, errors.Wrap(errors.PhaseLoad, errors.KindInvalidData, err, "parse param type "+typStr)
			}
			sig.Params = append(sig.Params, t)
		}

		if resultStr != "" && resultStr != "()" {
			parts := []string{resultStr}
			if strings.HasPrefix(resultStr, "(") && strings.HasSuffix(resultStr, ")") {
				parts = splitParams(resultStr[1 : len(resultStr)-1])
			}
			for _, part := range parts {
				t, err := parseWitType(part)
				if err != nil {
					return nil, errors.Wrap(errors.PhaseLoad, errors.KindInvalidData, err, "parse result type "+part)
				}
				sig.Results = append(sig.Results, t)
			}
		}

		funcs[name] = sig
	}

	if len(funcs) == 0 {
		return nil, errors.InvalidInput(errors.PhaseLoad, "no functions found in WIT text")
	}
	return funcs, nil
}

// splitParams splits a parameter list, handling nested parens.
func splitParams(s string) []string {
	var result []string
	var current strings.Builder
	depth := 0

	for _, ch := range s {
		switch ch {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				if str := strings.TrimSpace(current.String()); str != "" {
					result = append(result, str)
				}
				current.Reset()
				continue
			}
		}
		current.WriteRune(ch)
	}

	if str := strings.TrimSpace(current.String()); str != "" {
		result = append(result, str)
	}
	return result
}

func parseWitType(s string) (wit.Type, error) {
	return wit.ParseType(strings.TrimSpace(s))
}

// CoreType returns the core wasm value type a WIT primitive lowers to.
// Only the primitives that can appear in this protocol are accepted.
func CoreType(t wit.Type) (api.ValueType, error) {
	switch t.(type) {
	case wit.Bool, wit.U8, wit.S8, wit.U16, wit.S16, wit.U32, wit.S32, wit.Char:
		return api.ValueTypeI32, nil
	case wit.U64, wit.S64:
		return api.ValueTypeI64, nil
	case wit.F32:
		return api.ValueTypeF32, nil
	case wit.F64:
		return api.ValueTypeF64, nil
	}
	return 0, errors.New(errors.PhaseLoad, errors.KindTypeMismatch).
		WitType(fmt.Sprintf("%T", t)).
		Detail("no core lowering for a single value").
		Build()
}

// CoreTypes lowers each type with CoreType.
func CoreTypes(ts []wit.Type) ([]api.ValueType, error) {
	out := make([]api.ValueType, 0, len(ts))
	for _, t := range ts {
		vt, err := CoreType(t)
		if err != nil {
			return nil, err
		}
		out = append(out, vt)
	}
	return out, nil
}

// FormatCore renders a core signature as "(i32,i32)->(i32)".
func FormatCore(params, results []api.ValueType) string {
	var b strings.Builder
	writeList := func(ts []api.ValueType) {
		b.WriteByte('(')
		for i, t := range ts {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(api.ValueTypeName(t))
		}
		b.WriteByte(')')
	}
	writeList(params)
	b.WriteString("->")
	writeList(results)
	return b.String()
}
