package semver

// Interval is a contiguous version range. A nil bound is unbounded on that side.
type Interval struct {
	Lower *Bound
	Upper *Bound
}

func emptyInterval() Interval {
	zero := NewVersion(0, 0, 0)
	return Interval{
		Lower: &Bound{Op: OpGreater, Version: zero},
		Upper: &Bound{Op: OpLess, Version: zero},
	}
}

// Contains reports whether v lies within the interval.
func (in Interval) Contains(v Version) bool {
	if in.Lower != nil {
		cmp := Compare(v, in.Lower.Version)
		if cmp < 0 || (cmp == 0 && !in.Lower.Inclusive()) {
			return false
		}
	}
	if in.Upper != nil {
		cmp := Compare(v, in.Upper.Version)
		if cmp > 0 || (cmp == 0 && !in.Upper.Inclusive()) {
			return false
		}
	}
	return true
}

// Empty reports whether no version can lie within the interval.
func (in Interval) Empty() bool {
	if in.Lower == nil || in.Upper == nil {
		return false
	}
	cmp := Compare(in.Lower.Version, in.Upper.Version)
	if cmp != 0 {
		return cmp > 0
	}
	return !in.Lower.Inclusive() || !in.Upper.Inclusive()
}

// Intersect returns the versions admitted by both in and other.
func (in Interval) Intersect(other Interval) Interval {
	return Interval{
		Lower: tighterLower(in.Lower, other.Lower),
		Upper: tighterUpper(in.Upper, other.Upper),
	}
}

func tighterLower(a, b *Bound) *Bound {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	switch cmp := Compare(a.Version, b.Version); {
	case cmp > 0:
		return a
	case cmp < 0:
		return b
	case !a.Inclusive():
		return a
	default:
		return b
	}
}

func tighterUpper(a, b *Bound) *Bound {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	switch cmp := Compare(a.Version, b.Version); {
	case cmp < 0:
		return a
	case cmp > 0:
		return b
	case !a.Inclusive():
		return a
	default:
		return b
	}
}

// CanSatisfyAll reports whether a single version could satisfy every constraint
// in cs. All constraints are assumed to apply to the same extension.
func CanSatisfyAll(cs []Constraint) bool {
	acc := Interval{}
	for _, c := range cs {
		acc = acc.Intersect(c.Interval())
		if acc.Empty() {
			return false
		}
	}
	return true
}
