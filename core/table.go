package core

// Table2D is a one-axis lookup table with linear interpolation between bins.
// Bins must be ascending. Inputs outside the bin range clamp to the end
// values.
type Table2D struct {
	Bins   []int16 `yaml:"bins,omitempty"`
	Values []int16 `yaml:"values,omitempty"`
}

// Lookup returns the interpolated value at x. An empty table returns 0.
func (t *Table2D) Lookup(x int16) int16 {
	n := len(t.Bins)
	if len(t.Values) < n {
		n = len(t.Values)
	}
	if n == 0 {
		return 0
	}
	if x <= t.Bins[0] {
		return t.Values[0]
	}
	if x >= t.Bins[n-1] {
		return t.Values[n-1]
	}

	i := 1
	for i < n && t.Bins[i] < x {
		i++
	}
	x0, x1 := int32(t.Bins[i-1]), int32(t.Bins[i])
	y0, y1 := int32(t.Values[i-1]), int32(t.Values[i])
	if x1 == x0 {
		return int16(y1)
	}
	return int16(y0 + (y1-y0)*(int32(x)-x0)/(x1-x0))
}

// Valid reports whether the table has matching, ascending bins.
func (t *Table2D) Valid() bool {
	if len(t.Bins) == 0 || len(t.Bins) != len(t.Values) {
		return false
	}
	for i := 1; i < len(t.Bins); i++ {
		if t.Bins[i] < t.Bins[i-1] {
			return false
		}
	}
	return true
}
