package objective

import (
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/cwbudde/gradascent/internal/ascent"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize/functions"
)

// Spec describes a named objective that can be built for a given dimension.
type Spec struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	// Dim is the required dimension, 0 if any dimension accepted by Check works.
	Dim int `json:"dim"`

	check   func(dim int) error
	fn      func(x []float64) float64
	maximum func(dim int) []float64
}

// DimensionError is returned when an objective is built or evaluated with a
// point of unsupported dimension.
type DimensionError struct {
	Name   string
	Got    int
	Reason string
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("objective %s: dimension %d %s", e.Name, e.Got, e.Reason)
}

// Check reports whether the objective accepts points of the given dimension.
func (s Spec) Check(dim int) error {
	if dim <= 0 {
		return &DimensionError{Name: s.Name, Got: dim, Reason: "must be positive"}
	}
	if s.Dim != 0 && dim != s.Dim {
		return &DimensionError{Name: s.Name, Got: dim, Reason: fmt.Sprintf("not supported, expected %d", s.Dim)}
	}
	if s.check != nil {
		return s.check(dim)
	}
	return nil
}

// Build returns the objective for points of dimension dim. Evaluating it with a
// point of any other dimension returns a *DimensionError.
func (s Spec) Build(dim int) (ascent.Objective, error) {
	if err := s.Check(dim); err != nil {
		return nil, err
	}
	return ascent.ErrFunc(func(x []float64) (float64, error) {
		if len(x) != dim {
			return 0, &DimensionError{Name: s.Name, Got: len(x), Reason: fmt.Sprintf("not supported, expected %d", dim)}
		}
		return s.fn(x), nil
	}), nil
}

// Maximum returns the known maximizer for dimension dim, or nil.
func (s Spec) Maximum(dim int) []float64 {
	if s.maximum == nil || s.Check(dim) != nil {
		return nil
	}
	return s.maximum(dim)
}

// Negate turns a function to minimize into one to maximize.
func Negate(f func(x []float64) float64) func(x []float64) float64 {
	return func(x []float64) float64 {
		return -f(x)
	}
}

// Distance is the Euclidean distance between two points of equal dimension.
func Distance(a, b []float64) float64 {
	return floats.Distance(a, b, 2)
}

func filled(dim int, v float64) []float64 {
	x := make([]float64, dim)
	for i := range x {
		x[i] = v
	}
	return x
}

var registry = map[string]Spec{
	"paraboloid": {
		Name:        "paraboloid",
		Description: "-((x-1)^2 + (y-2)^2), maximum 0 at (1, 2)",
		Dim:         2,
		fn: func(x []float64) float64 {
			dx, dy := x[0]-1, x[1]-2
			return -(dx*dx + dy*dy)
		},
		maximum: func(int) []float64 { return []float64{1, 2} },
	},
	"sphere": {
		Name:        "sphere",
		Description: "-sum(x_i^2), maximum 0 at the origin",
		fn: func(x []float64) float64 {
			return -floats.Dot(x, x)
		},
		maximum: func(dim int) []float64 { return make([]float64, dim) },
	},
	"rosenbrock": {
		Name:        "rosenbrock",
		Description: "negated extended Rosenbrock, maximum 0 at (1, ..., 1)",
		check: func(dim int) error {
			if dim < 2 {
				return &DimensionError{Name: "rosenbrock", Got: dim, Reason: "must be at least 2"}
			}
			return nil
		},
		fn:      Negate(functions.ExtendedRosenbrock{}.Func),
		maximum: func(dim int) []float64 { return filled(dim, 1) },
	},
	"beale": {
		Name:        "beale",
		Description: "negated Beale function, maximum 0 at (3, 0.5)",
		Dim:         2,
		fn:          Negate(functions.Beale{}.Func),
		maximum:     func(int) []float64 { return []float64{3, 0.5} },
	},
	"powell": {
		Name:        "powell",
		Description: "negated extended Powell singular function, maximum 0 at the origin",
		check: func(dim int) error {
			if dim%4 != 0 {
				return &DimensionError{Name: "powell", Got: dim, Reason: "must be a multiple of 4"}
			}
			return nil
		},
		fn:      Negate(functions.ExtendedPowellSingular{}.Func),
		maximum: func(dim int) []float64 { return make([]float64, dim) },
	},
}

// Lookup returns the objective registered under name.
func Lookup(name string) (Spec, error) {
	spec, ok := registry[name]
	if !ok {
		return Spec{}, fmt.Errorf("unknown objective: %s", name)
	}
	return spec, nil
}

// Names returns the registered objective names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Counter wraps an objective and counts its evaluations. Safe for concurrent use.
type Counter struct {
	Objective ascent.Objective
	n         atomic.Int64
}

// Evaluate implements ascent.Objective.
func (c *Counter) Evaluate(x []float64) (float64, error) {
	c.n.Add(1)
	return c.Objective.Evaluate(x)
}

// Count returns the number of evaluations so far.
func (c *Counter) Count() int64 {
	return c.n.Load()
}
