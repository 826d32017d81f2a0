// Package index normalizes NumPy-style index expressions into one selector
// per array axis.
//
// An expression is a list of tokens: Int, Slice, Ellipsis, List and
// NewAxis. Parse resolves negative indices, clamps slice bounds, expands the
// ellipsis and pads missing trailing axes so that the resulting Plan has
// exactly one Selector for every axis of the indexed shape. NewAxis tokens
// consume no axis; they are recorded as output positions.
package index

import (
	"errors"
	"fmt"
)

// ErrIndex is returned for malformed or out-of-range index expressions
var ErrIndex = errors.New("index error")

// Token is one element of an index expression
type Token interface {
	token()
}

// Int selects one element and collapses the axis
type Int int

// Slice selects a strided range. Nil fields take their Python defaults.
type Slice struct {
	Start, Stop, Step *int
}

// Ellipsis stands for as many full slices as needed to index every axis
type Ellipsis struct{}

// List selects the given elements in order, duplicates included
type List []int

// NewAxis inserts a length-1 axis into the output (NumPy's None)
type NewAxis struct{}

func (Int) token()      {}
func (Slice) token()    {}
func (Ellipsis) token() {}
func (List) token()     {}
func (NewAxis) token()  {}

// Full is the slice ":"
func Full() Slice { return Slice{} }

// Span is the slice "start:stop"
func Span(start, stop int) Slice { return Slice{Start: &start, Stop: &stop} }

// From is the slice "start:"
func From(start int) Slice { return Slice{Start: &start} }

// To is the slice ":stop"
func To(stop int) Slice { return Slice{Stop: &stop} }

// Step is the slice "::step"
func Step(step int) Slice { return Slice{Step: &step} }

// Stepped is the slice "start:stop:step"
func Stepped(start, stop, step int) Slice {
	return Slice{Start: &start, Stop: &stop, Step: &step}
}

func (s Slice) String() string {
	part := func(p *int) string {
		if p == nil {
			return ""
		}
		return fmt.Sprint(*p)
	}
	if s.Step == nil {
		return part(s.Start) + ":" + part(s.Stop)
	}
	return part(s.Start) + ":" + part(s.Stop) + ":" + part(s.Step)
}

// Kind classifies a Selector
type Kind int

const (
	KindAll Kind = iota
	KindSingle
	KindRange
	KindFancy
)

func (k Kind) String() string {
	switch k {
	case KindAll:
		return "all"
	case KindSingle:
		return "single"
	case KindRange:
		return "range"
	case KindFancy:
		return "fancy"
	default:
		return "unknown"
	}
}

// Selector is the normalized indexing of a single axis. Indices are
// absolute and in range for an axis of length Size.
type Selector struct {
	Kind Kind
	Size int // length of the indexed axis

	Index int // KindSingle

	Start, Stop, Step int // KindRange, normalized
	length            int

	Indices []int // KindFancy
}

// All selects the whole axis
func All(size int) Selector { return Selector{Kind: KindAll, Size: size} }

// Len returns the number of elements the selector yields. Single yields one.
func (s Selector) Len() int {
	switch s.Kind {
	case KindAll:
		return s.Size
	case KindSingle:
		return 1
	case KindRange:
		return s.length
	case KindFancy:
		return len(s.Indices)
	}
	return 0
}

// Collapses reports whether the axis is removed from the output shape
func (s Selector) Collapses() bool { return s.Kind == KindSingle }

// Positions expands the selector to absolute indices in output order
func (s Selector) Positions() []int {
	switch s.Kind {
	case KindAll:
		p := make([]int, s.Size)
		for i := range p {
			p[i] = i
		}
		return p
	case KindSingle:
		return []int{s.Index}
	case KindRange:
		p := make([]int, s.length)
		for i := range p {
			p[i] = s.Start + i*s.Step
		}
		return p
	case KindFancy:
		return append([]int(nil), s.Indices...)
	}
	return nil
}

// Identity reports whether the selector keeps the axis unchanged
func (s Selector) Identity() bool {
	switch s.Kind {
	case KindAll:
		return true
	case KindRange:
		return s.Step == 1 && s.Start == 0 && s.length == s.Size
	}
	return false
}

func (s Selector) String() string {
	switch s.Kind {
	case KindAll:
		return ":"
	case KindSingle:
		return fmt.Sprint(s.Index)
	case KindRange:
		return fmt.Sprintf("%d:%d:%d", s.Start, s.Stop, s.Step)
	case KindFancy:
		return fmt.Sprint(s.Indices)
	}
	return "?"
}

// Plan holds one selector per axis
type Plan struct {
	Axes []Selector

	// NewAxes lists, in ascending order, the output positions of length-1
	// axes inserted by NewAxis tokens
	NewAxes []int
}

// Shape returns the output shape produced by applying the plan
func (p Plan) Shape() []int {
	shape := make([]int, 0, len(p.Axes)+len(p.NewAxes))
	for _, s := range p.Axes {
		if !s.Collapses() {
			shape = append(shape, s.Len())
		}
	}
	for _, pos := range p.NewAxes {
		shape = append(shape, 0)
		copy(shape[pos+1:], shape[pos:])
		shape[pos] = 1
	}
	return shape
}

// Parse normalizes tokens against shape
func Parse(tokens []Token, shape []int) (Plan, error) {
	ellipses, newAxes := 0, 0
	for _, t := range tokens {
		switch t.(type) {
		case Ellipsis:
			ellipses++
		case NewAxis:
			newAxes++
		}
	}
	if ellipses > 1 {
		return Plan{}, fmt.Errorf("%w: an index can only have a single ellipsis ('...')", ErrIndex)
	}
	explicit := len(tokens) - ellipses - newAxes
	if explicit > len(shape) {
		return Plan{}, fmt.Errorf("%w: too many indices: array is %d-dimensional, but %d were indexed",
			ErrIndex, len(shape), explicit)
	}

	plan := Plan{Axes: make([]Selector, 0, len(shape))}
	out := 0 // output axes produced so far
	for _, t := range tokens {
		if t == nil {
			return Plan{}, fmt.Errorf("%w: nil index token", ErrIndex)
		}
		switch t.(type) {
		case NewAxis:
			plan.NewAxes = append(plan.NewAxes, out)
			out++
			continue
		case Ellipsis:
			for n := len(shape) - explicit; n > 0; n-- {
				plan.Axes = append(plan.Axes, All(shape[len(plan.Axes)]))
				out++
			}
			continue
		}
		axis := len(plan.Axes)
		sel, err := normalize(t, axis, shape[axis])
		if err != nil {
			return Plan{}, err
		}
		plan.Axes = append(plan.Axes, sel)
		if !sel.Collapses() {
			out++
		}
	}
	for len(plan.Axes) < len(shape) {
		plan.Axes = append(plan.Axes, All(shape[len(plan.Axes)]))
	}

	if len(plan.Axes) > 0 && plan.Axes[0].Kind == KindFancy {
		for axis, s := range plan.Axes[1:] {
			if s.Kind == KindFancy {
				return Plan{}, fmt.Errorf("%w: fancy indexing on the frame axis cannot be combined with fancy indexing on axis %d",
					ErrIndex, axis+1)
			}
		}
	}
	return plan, nil
}

func normalize(t Token, axis, size int) (Selector, error) {
	switch v := t.(type) {
	case Int:
		i, err := bound(int(v), axis, size)
		if err != nil {
			return Selector{}, err
		}
		return Selector{Kind: KindSingle, Size: size, Index: i}, nil

	case Slice:
		if v.Start == nil && v.Stop == nil && (v.Step == nil || *v.Step == 1) {
			return All(size), nil
		}
		start, stop, step, n, err := indices(v, size)
		if err != nil {
			return Selector{}, err
		}
		return Selector{Kind: KindRange, Size: size, Start: start, Stop: stop, Step: step, length: n}, nil

	case List:
		out := make([]int, len(v))
		for k, x := range v {
			i, err := bound(x, axis, size)
			if err != nil {
				return Selector{}, err
			}
			out[k] = i
		}
		return Selector{Kind: KindFancy, Size: size, Indices: out}, nil
	}
	return Selector{}, fmt.Errorf("%w: unsupported index token %T", ErrIndex, t)
}

func bound(i, axis, size int) (int, error) {
	if i < -size || i >= size {
		return 0, fmt.Errorf("%w: index %d is out of bounds for axis %d with size %d", ErrIndex, i, axis, size)
	}
	if i < 0 {
		i += size
	}
	return i, nil
}

// indices mirrors Python's slice.indices followed by len(range(...))
func indices(s Slice, size int) (start, stop, step, n int, err error) {
	step = 1
	if s.Step != nil {
		step = *s.Step
	}
	if step == 0 {
		return 0, 0, 0, 0, fmt.Errorf("%w: slice step cannot be zero", ErrIndex)
	}

	lower, upper := 0, size
	if step < 0 {
		lower, upper = -1, size-1
	}
	clamp := func(p *int, def int) int {
		if p == nil {
			return def
		}
		v := *p
		if v < 0 {
			v += size
			if v < lower {
				v = lower
			}
		} else if v > upper {
			v = upper
		}
		return v
	}

	if step > 0 {
		start, stop = clamp(s.Start, lower), clamp(s.Stop, upper)
		if start < stop {
			n = (stop-start-1)/step + 1
		}
	} else {
		start, stop = clamp(s.Start, upper), clamp(s.Stop, lower)
		if stop < start {
			n = (start-stop-1)/(-step) + 1
		}
	}
	return start, stop, step, n, nil
}
