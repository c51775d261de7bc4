package codec

import (
	"github.com/wippyai/wasm-transform/errors"
)

// SeriesLayout maps (series m, sample t) of a range vector onto a linear
// buffer index.
type SeriesLayout uint8

const (
	// StrideByDim0 is the reference layout: i = m*dim0 + t.
	// It agrees with the row-major layout only when dim0 == dim1.
	StrideByDim0 SeriesLayout = iota
	// StrideByDim1 is the row-major layout: i = m*dim1 + t.
	StrideByDim1
)

// ParseSeriesLayout accepts "dim0" (alias "reference") and "dim1" (alias "rows").
func ParseSeriesLayout(s string) (SeriesLayout, error) {
	switch s {
	case "", "dim0", "reference":
		return StrideByDim0, nil
	case "dim1", "rows":
		return StrideByDim1, nil
	}
	return StrideByDim0, errors.InvalidEnum(errors.PhaseNegotiate, nil, s, "series-layout")
}

// SeriesLayoutFromTag decodes the series_layout export: 1 is dim0, 2 is dim1.
func SeriesLayoutFromTag(tag int32) (SeriesLayout, error) {
	switch tag {
	case 1:
		return StrideByDim0, nil
	case 2:
		return StrideByDim1, nil
	}
	return StrideByDim0, errors.InvalidEnum(errors.PhaseNegotiate, nil, tag, "series-layout")
}

// Tag returns the boundary encoding of the layout.
func (l SeriesLayout) Tag() int32 {
	return int32(l) + 1
}

// Index returns the linear index of sample t of series m.
func (l SeriesLayout) Index(m, t, dim0, dim1 int) int {
	if l == StrideByDim1 {
		return m*dim1 + t
	}
	return m*dim0 + t
}

// MaxIndex returns the largest linear index touched for a dim0×dim1 range
// vector, or -1 when either dimension is zero.
func (l SeriesLayout) MaxIndex(dim0, dim1 int) int {
	if dim0 <= 0 || dim1 <= 0 {
		return -1
	}
	return l.Index(dim0-1, dim1-1, dim0, dim1)
}

// Injective reports whether distinct (m, t) pairs map to distinct indices.
func (l SeriesLayout) Injective(dim0, dim1 int) bool {
	if l == StrideByDim1 || dim0 <= 1 {
		return true
	}
	return dim1 <= dim0
}

func (l SeriesLayout) String() string {
	if l == StrideByDim1 {
		return "dim1"
	}
	return "dim0"
}
