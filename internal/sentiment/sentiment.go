// Package sentiment provides deterministic per-round price bias curves.
package sentiment

import (
	"errors"
	"fmt"
	"math"
)

// ErrMalformed is returned for curve parameters that cannot describe a curve.
var ErrMalformed = errors.New("malformed sentiment curve")

// Source returns the sentiment bias for a round. Implementations are pure.
type Source interface {
	ValueAt(day int) float64
}

// None is a flat zero curve.
type None struct{}

func (None) ValueAt(int) float64 { return 0 }

// Step switches to Magnitude from StartDay onward.
type Step struct {
	StartDay  int
	Magnitude float64
}

func (s Step) ValueAt(day int) float64 {
	if day >= s.StartDay {
		return s.Magnitude
	}
	return 0
}

// Pulse is Magnitude within Width/2 rounds of CenterDay, inclusive.
type Pulse struct {
	CenterDay int
	Width     int
	Magnitude float64
}

func (p Pulse) ValueAt(day int) float64 {
	half := p.Width / 2
	if day >= p.CenterDay-half && day <= p.CenterDay+half {
		return p.Magnitude
	}
	return 0
}

// Series replays an external curve. Values[0] applies to day Offset+1;
// days outside the series read as zero.
type Series struct {
	Values []float64
	Offset int
}

func (s Series) ValueAt(day int) float64 {
	i := day - s.Offset - 1
	if i < 0 || i >= len(s.Values) {
		return 0
	}
	return s.Values[i]
}

// Spec describes a curve in configuration terms.
type Spec struct {
	Mode      string    `yaml:"mode"`  // none | external_curve
	Curve     string    `yaml:"curve"` // step | pulse | series
	StartDay  int       `yaml:"start_day"`
	CenterDay int       `yaml:"center_day"`
	Width     int       `yaml:"width"`
	Magnitude float64   `yaml:"magnitude"`
	Values    []float64 `yaml:"values"`
	Offset    int       `yaml:"offset"`
}

// FromSpec validates a curve description and builds its Source.
func FromSpec(s Spec) (Source, error) {
	switch s.Mode {
	case "", "none":
		return None{}, nil
	case "external_curve":
	default:
		return nil, fmt.Errorf("%w: unknown mode %q", ErrMalformed, s.Mode)
	}

	if math.IsNaN(s.Magnitude) || math.IsInf(s.Magnitude, 0) {
		return nil, fmt.Errorf("%w: magnitude %v", ErrMalformed, s.Magnitude)
	}

	switch s.Curve {
	case "step":
		if s.StartDay < 1 {
			return nil, fmt.Errorf("%w: step start_day must be >= 1", ErrMalformed)
		}
		return Step{StartDay: s.StartDay, Magnitude: s.Magnitude}, nil
	case "pulse":
		if s.CenterDay < 1 || s.Width < 0 {
			return nil, fmt.Errorf("%w: pulse needs center_day >= 1 and width >= 0", ErrMalformed)
		}
		return Pulse{CenterDay: s.CenterDay, Width: s.Width, Magnitude: s.Magnitude}, nil
	case "series":
		if len(s.Values) == 0 {
			return nil, fmt.Errorf("%w: series has no values", ErrMalformed)
		}
		for i, v := range s.Values {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: series value %d is %v", ErrMalformed, i, v)
			}
		}
		if s.Offset < 0 {
			return nil, fmt.Errorf("%w: series offset must be >= 0", ErrMalformed)
		}
		return Series{Values: append([]float64(nil), s.Values...), Offset: s.Offset}, nil
	default:
		return nil, fmt.Errorf("%w: unknown curve %q", ErrMalformed, s.Curve)
	}
}
