package descriptor

import (
	"fmt"

	"github.com/jo-hoe/opticderm/internal/catalog"
)

// Classification is the result of comparing a descriptor value to its reference range
type Classification string

const (
	Normal   Classification = "normal"
	Elevated Classification = "elevated"
	Reduced  Classification = "reduced"
)

// Phrase returns the plain-language form used in explanations
func (c Classification) Phrase() string {
	switch c {
	case Elevated:
		return "above normal range"
	case Reduced:
		return "below normal range"
	default:
		return "within normal range"
	}
}

// Classify compares value against r. Numeric bounds are inclusive. A categorical level
// is elevated when it is ordered after every normal level and reduced when before.
func Classify(d catalog.Descriptor, value catalog.Value, r catalog.ReferenceRange) (Classification, error) {
	if d.Kind != catalog.KindCategorical {
		if value.Categorical {
			return "", fmt.Errorf("descriptor %q expects a number, got level %q", d.Name, value.Level)
		}
		switch {
		case value.Number > r.High:
			return Elevated, nil
		case value.Number < r.Low:
			return Reduced, nil
		default:
			return Normal, nil
		}
	}

	if !value.Categorical {
		return "", fmt.Errorf("descriptor %q expects a level, got %v", d.Name, value.Number)
	}
	idx := d.LevelIndex(value.Level)
	if idx < 0 {
		return "", fmt.Errorf("descriptor %q has no level %q", d.Name, value.Level)
	}
	lowest, highest, err := normalSpan(d, r)
	if err != nil {
		return "", err
	}
	for _, level := range r.Normal {
		if level == value.Level {
			return Normal, nil
		}
	}
	switch {
	case idx > highest:
		return Elevated, nil
	case idx < lowest:
		return Reduced, nil
	default:
		// a gap inside the normal set is not ordered against it
		return "", fmt.Errorf("level %q of %q lies between normal levels", value.Level, d.Name)
	}
}

// normalSpan returns the lowest and highest level index in the normal set
func normalSpan(d catalog.Descriptor, r catalog.ReferenceRange) (int, int, error) {
	lowest, highest := -1, -1
	for _, level := range r.Normal {
		idx := d.LevelIndex(level)
		if idx < 0 {
			return 0, 0, fmt.Errorf("reference range for %q uses unknown level %q", d.Name, level)
		}
		if lowest < 0 || idx < lowest {
			lowest = idx
		}
		if idx > highest {
			highest = idx
		}
	}
	if lowest < 0 {
		return 0, 0, fmt.Errorf("reference range for %q has no normal levels", d.Name)
	}
	return lowest, highest, nil
}

// Deviation places value relative to r: 0 at the lower bound, 1 at the upper bound.
// Values outside the range fall below 0 or above 1. Categorical levels are placed by ordinal.
func Deviation(d catalog.Descriptor, value catalog.Value, r catalog.ReferenceRange) float64 {
	var low, high, v float64
	if d.Kind == catalog.KindCategorical {
		lowest, highest, err := normalSpan(d, r)
		if err != nil {
			return 0.5
		}
		// widen by half a level so a single normal level spans a visible interval
		low, high = float64(lowest)-0.5, float64(highest)+0.5
		v = float64(d.LevelIndex(value.Level))
	} else {
		low, high, v = r.Low, r.High, value.Number
	}
	if high <= low {
		return 0.5
	}
	return (v - low) / (high - low)
}

// Position is Deviation clamped to [0,1], suitable for a progress bar
func Position(d catalog.Descriptor, value catalog.Value, r catalog.ReferenceRange) float64 {
	p := Deviation(d, value, r)
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}
