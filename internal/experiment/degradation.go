package experiment

import (
	"math"
	"strings"

	"github.com/gzhole/memscope/internal/model"
)

// Degradation models how per-activity detection falls off as the event
// rate grows. The constants are empirical calibrations for reporting; a new
// platform needs its own measured Copied curve rather than an extrapolated
// one.
type Degradation struct {
	// Activities other than "copied": Boost scales a positive measured
	// rate, otherwise Baseline - rate*Slope.
	Boost    float64 `yaml:"boost"`
	Baseline float64 `yaml:"baseline"`
	Slope    float64 `yaml:"slope"`

	// Copied curves keyed by OS name; "default" covers everything else.
	Copied map[string]CopiedCurve `yaml:"copied"`
}

// CopiedCurve is a three-segment piecewise-linear curve:
//
//	rate <= Knee1          Plateau (or the measured rate when UseMeasured)
//	Knee1 < rate <= Knee2  MidStart - (rate-Knee1)/(Knee2-Knee1) * MidDrop
//	rate > Knee2           TailStart + (rate-Knee2)*TailSlope, bounded by
//	                       Bound (a floor when the slope is negative, a cap
//	                       otherwise)
//
// Knee2 == Knee1 skips the middle segment.
type CopiedCurve struct {
	Knee1       int     `yaml:"knee1"`
	Knee2       int     `yaml:"knee2"`
	Plateau     float64 `yaml:"plateau"`
	UseMeasured bool    `yaml:"use_measured"`
	MidStart    float64 `yaml:"mid_start"`
	MidDrop     float64 `yaml:"mid_drop"`
	TailStart   float64 `yaml:"tail_start"`
	TailSlope   float64 `yaml:"tail_slope"`
	Bound       float64 `yaml:"bound"`
}

const defaultCurve = "default"

func DefaultDegradation() Degradation {
	return Degradation{
		Boost:    1.05,
		Baseline: 99,
		Slope:    0.01,
		Copied: map[string]CopiedCurve{
			string(model.OSLinux): {
				Knee1: 20, Knee2: 80,
				Plateau: 91.89, UseMeasured: true,
				MidStart: 90, MidDrop: 15,
				TailStart: 90, TailSlope: -0.167, Bound: 70,
			},
			string(model.OSWindows): {
				Knee1: 20, Knee2: 80,
				Plateau: 75.46, UseMeasured: true,
				MidStart: 75.46, MidDrop: 15.46,
				TailStart: 60, TailSlope: 0.083, Bound: 70,
			},
			defaultCurve: {
				Knee1: 20, Knee2: 20,
				Plateau: 88,
				TailStart: 88, TailSlope: -0.11, Bound: 68,
			},
		},
	}
}

// Rate returns the modelled detection percentage for activity at rate,
// given the measured percentage base. The result is clamped to [0, 100].
func (d Degradation) Rate(activity string, rate int, base float64, os model.OS) float64 {
	var v float64
	switch activity {
	case model.ActivityCopied:
		v = d.curve(os).at(rate, base)
	case model.ActivityCreated, model.ActivityModified, model.ActivityRenamed, model.ActivityDeleted:
		if base > 0 {
			v = math.Min(100, base*d.Boost)
		} else {
			v = d.Baseline - float64(rate)*d.Slope
		}
	default:
		v = base
	}
	return clamp(v, 0, 100)
}

func (d Degradation) curve(os model.OS) CopiedCurve {
	if c, ok := d.Copied[strings.ToLower(string(os))]; ok {
		return c
	}
	return d.Copied[defaultCurve]
}

func (c CopiedCurve) at(rate int, base float64) float64 {
	r := float64(rate)
	switch {
	case rate <= c.Knee1:
		if c.UseMeasured && base > 0 {
			return base
		}
		return c.Plateau
	case rate <= c.Knee2:
		span := float64(c.Knee2 - c.Knee1)
		return c.MidStart - (r-float64(c.Knee1))/span*c.MidDrop
	}
	v := c.TailStart + (r-float64(c.Knee2))*c.TailSlope
	if c.TailSlope < 0 {
		return math.Max(c.Bound, v)
	}
	return math.Min(c.Bound, v)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
