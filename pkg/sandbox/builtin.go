package sandbox

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/scottdavis/metatool/pkg/errors"
)

// Builtins returns a registry with native versions of common calculators
// and unit conversions, keyed by their catalog function names.
func Builtins() *Registry {
	return NewRegistry().
		Register("calc_bmi", calcBMI).
		Register("calc_crcl", calcCrCl).
		Register("calc_cha2ds2_vasc", calcCHA2DS2VASc).
		Register("convert_height", convertHeight).
		Register("convert_weight", convertWeight)
}

// calcBMI takes weight in kg and height in cm.
func calcBMI(ctx context.Context, args map[string]any) (any, error) {
	weight, err := Float(args, "weight")
	if err != nil {
		return nil, err
	}
	height, err := Float(args, "height")
	if err != nil {
		return nil, err
	}
	if height <= 0 {
		return nil, invalid("height must be positive", "height", height)
	}
	m := height / 100
	return round(weight/(m*m), 4), nil
}

// calcCrCl is the Cockcroft-Gault estimate in mL/min.
func calcCrCl(ctx context.Context, args map[string]any) (any, error) {
	age, err := Float(args, "age")
	if err != nil {
		return nil, err
	}
	weight, err := Float(args, "weight")
	if err != nil {
		return nil, err
	}
	creatinine, err := Float(args, "creatinine")
	if err != nil {
		return nil, err
	}
	if creatinine <= 0 {
		return nil, invalid("creatinine must be positive", "creatinine", creatinine)
	}
	crcl := (140 - age) * weight / (72 * creatinine)
	if sex, err := String(args, "sex"); err == nil && isFemale(sex) {
		crcl *= 0.85
	}
	return round(crcl, 2), nil
}

func calcCHA2DS2VASc(ctx context.Context, args map[string]any) (any, error) {
	age, err := Float(args, "age")
	if err != nil {
		return nil, err
	}
	score := 0
	switch {
	case age >= 75:
		score += 2
	case age >= 65:
		score++
	}
	if sex, err := String(args, "sex"); err == nil && isFemale(sex) {
		score++
	}
	for name, points := range map[string]int{
		"chf": 1, "hypertension": 1, "diabetes": 1, "vascular": 1, "stroke": 2,
	} {
		if b, err := Bool(args, name); err == nil && b {
			score += points
		}
	}
	return score, nil
}

var heightFactors = map[string]float64{"m": 100, "cm": 1, "in": 2.54, "ft": 30.48}

var weightFactors = map[string]float64{"kg": 1, "g": 0.001, "lb": 0.45359237}

func convertHeight(ctx context.Context, args map[string]any) (any, error) {
	return convert(args, heightFactors)
}

func convertWeight(ctx context.Context, args map[string]any) (any, error) {
	return convert(args, weightFactors)
}

// convert scales value through the common base unit of factors.
func convert(args map[string]any, factors map[string]float64) (any, error) {
	value, err := Float(args, "value")
	if err != nil {
		return nil, err
	}
	from, err := String(args, "from_unit")
	if err != nil {
		return nil, err
	}
	to, err := String(args, "to_unit")
	if err != nil {
		return nil, err
	}
	fromFactor, ok := factors[strings.ToLower(strings.TrimSpace(from))]
	if !ok {
		return nil, invalid("unsupported unit", "from_unit", from)
	}
	toFactor, ok := factors[strings.ToLower(strings.TrimSpace(to))]
	if !ok {
		return nil, invalid("unsupported unit", "to_unit", to)
	}
	return round(value*fromFactor/toFactor, 4), nil
}

func isFemale(sex string) bool {
	s := strings.ToLower(strings.TrimSpace(sex))
	return s == "f" || s == "female" || s == "woman"
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func invalid(msg, name string, value any) error {
	return errors.WithFields(
		errors.New(errors.InvalidInput, msg),
		errors.Fields{"argument": name, "value": fmt.Sprint(value)})
}
