package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:   PhaseEncode,
				Kind:    KindOverflow,
				Path:    []string{"square-u32", "write"},
				GoType:  "float64",
				WitType: "u32",
				Detail:  "value does not fit",
			},
			contains: []string{"[encode]", "overflow", "square-u32.write", "float64", "u32", "value does not fit"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseDecode,
				Kind:  KindOutOfBounds,
			},
			contains: []string{"[decode]", "out_of_bounds"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseApply,
				Kind:   KindTrap,
				Detail: "guest trapped",
				Cause:  errors.New("unreachable"),
			},
			contains: []string{"[apply]", "trap", "guest trapped", "caused by", "unreachable"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{
		Phase: PhaseRuntime,
		Kind:  KindInvalidData,
		Cause: cause,
	}

	if !errors.Is(errors.Unwrap(err), cause) {
		t.Error("errors.Unwrap did not return cause")
	}
}

func TestError_Is(t *testing.T) {
	err := Capacity(PhaseResize, 513, 512)

	if !errors.Is(err, &Error{Phase: PhaseResize, Kind: KindCapacity}) {
		t.Error("errors.Is should match same phase and kind")
	}
	if errors.Is(err, &Error{Phase: PhaseApply, Kind: KindCapacity}) {
		t.Error("Is should not match different phase")
	}
	if errors.Is(err, &Error{Phase: PhaseResize, Kind: KindOutOfBounds}) {
		t.Error("Is should not match different kind")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseEncode, KindOverflow).
		Path("negate-half-i64", "write").
		GoType("float64").
		WitType("s64").
		Value(1e300).
		Cause(cause).
		Detail("value %g out of range", 1e300).
		Build()

	if err.Phase != PhaseEncode {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseEncode)
	}
	if err.Kind != KindOverflow {
		t.Errorf("Kind = %v, want %v", err.Kind, KindOverflow)
	}
	if len(err.Path) != 2 || err.Path[0] != "negate-half-i64" {
		t.Errorf("Path = %v", err.Path)
	}
	if err.GoType != "float64" || err.WitType != "s64" {
		t.Errorf("GoType=%v WitType=%v", err.GoType, err.WitType)
	}
	if err.Value != 1e300 {
		t.Errorf("Value = %v", err.Value)
	}
	if !errors.Is(err, cause) {
		t.Errorf("cause not reachable through errors.Is")
	}
	if err.Detail != "value 1e+300 out of range" {
		t.Errorf("Detail = %q", err.Detail)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		kind Kind
	}{
		{"Capacity", Capacity(PhaseResize, 10, 4), KindCapacity},
		{"ShapeMismatch", ShapeMismatch(PhaseApply, 2, 3, 5), KindShapeMismatch},
		{"OutOfBounds", OutOfBounds(PhaseDecode, nil, 9, 8), KindOutOfBounds},
		{"TypeMismatch", TypeMismatch(PhaseDecode, nil, "int64", "f64"), KindTypeMismatch},
		{"InvalidEnum", InvalidEnum(PhaseNegotiate, nil, 11, "element-type"), KindInvalidEnum},
		{"Overflow", Overflow(PhaseEncode, nil, 300, "u8"), KindOverflow},
		{"Busy", Busy(PhaseApply, "apply"), KindBusy},
		{"NotFound", NotFound(PhaseRuntime, "plugin", "x"), KindNotFound},
		{"InvalidInput", InvalidInput(PhaseRuntime, "bad"), KindInvalidInput},
		{"Signature", Signature("apply", "() -> ()", "(i32) -> ()"), KindSignature},
		{"Trap", Trap(PhaseApply, "apply", errors.New("unreachable")), KindTrap},
		{"Instantiation", Instantiation(errors.New("x")), KindInstantiation},
		{"Load", Load("compile", errors.New("x")), KindInvalidData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Kind != tt.kind {
				t.Errorf("Kind = %v, want %v", tt.err.Kind, tt.kind)
			}
			if tt.err.Error() == "" {
				t.Error("empty message")
			}
		})
	}

	if got := ShapeMismatch(PhaseApply, 2, 3, 5).Detail; got != "dimensions 2x3 do not match length 5" {
		t.Errorf("ShapeMismatch detail = %q", got)
	}
	if got := Capacity(PhaseResize, 513, 512).Value; got != 513 {
		t.Errorf("Capacity value = %v", got)
	}
}

func TestMissingExportsError(t *testing.T) {
	err := NewMissingExportsError("expavg", []string{"resize", "apply"})

	msg := err.Error()
	if !strings.Contains(msg, `module "expavg"`) {
		t.Errorf("message %q lacks module name", msg)
	}
	if strings.Index(msg, "apply") > strings.Index(msg, "resize") {
		t.Errorf("exports not sorted: %q", msg)
	}
	if !errors.Is(err, &MissingExportsError{}) {
		t.Error("errors.Is should match MissingExportsError")
	}

	var target *MissingExportsError
	if !errors.As(error(err), &target) || len(target.Exports) != 2 {
		t.Errorf("errors.As = %v", target)
	}

	empty := NewMissingExportsError("", nil)
	if !strings.Contains(empty.Error(), "no exports") {
		t.Errorf("empty message = %q", empty.Error())
	}
}
