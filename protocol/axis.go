package protocol

import "strconv"

// Axis is an optional per-axis value. The zero value is unset, meaning the
// axis is left unconstrained by a command.
type Axis struct {
	Value int32
	Set   bool
}

// At returns an axis set to v.
func At(v int32) Axis {
	return Axis{Value: v, Set: true}
}

// Or returns the axis value, or def when the axis is unset.
func (a Axis) Or(def int32) int32 {
	if !a.Set {
		return def
	}
	return a.Value
}

// Add returns the axis offset by d. An unset axis stays unset.
func (a Axis) Add(d int32) Axis {
	if !a.Set {
		return a
	}
	return At(a.Value + d)
}

func (a Axis) String() string {
	if !a.Set {
		return "-"
	}
	return strconv.FormatInt(int64(a.Value), 10)
}
