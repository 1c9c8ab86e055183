// Package dosing implements the bolus dose suggestion formula: linear
// carbohydrate counting plus a proportional correction for above-target
// glucose. It is pure computation with no storage or transport dependencies.
package dosing

import (
	"fmt"
	"math"
)

// Built-in personalization defaults, applied when an optional parameter is
// absent from the request and no stored profile overrides it.
const (
	DefaultCarbRatio         = 10.0  // grams covered by one unit of insulin
	DefaultSensitivityFactor = 50.0  // mg/dL drop per unit of insulin
	DefaultTargetGlucose     = 100.0 // mg/dL correction baseline
)

// Input holds the five scalar inputs of a suggestion request. Carbs and
// CurrentGlucose are required. The three personalization parameters are
// pointers so absence is distinguishable from an explicit zero: nil means
// "absent, use the default", while a supplied zero or negative value is a
// validation error, never silently replaced.
type Input struct {
	Carbs             float64  `json:"carbs"`
	CurrentGlucose    float64  `json:"current_glucose"`
	CarbRatio         *float64 `json:"carb_ratio"`
	SensitivityFactor *float64 `json:"sensitivity_factor"`
	TargetGlucose     *float64 `json:"target_glucose"`
}

// Result is the suggestion outcome. CarbUnits and CorrectionUnits are
// independently rounded for display, so SuggestedBolus may differ from their
// sum by up to 0.01; SuggestedBolus is the authoritative value.
type Result struct {
	SuggestedBolus    float64 `json:"suggested_bolus"`
	CarbUnits         float64 `json:"carb_units"`
	CorrectionUnits   float64 `json:"correction_units"`
	CarbRatio         float64 `json:"carb_ratio"`
	SensitivityFactor float64 `json:"sensitivity_factor"`
	TargetGlucose     float64 `json:"target_glucose"`
}

// ValidationError reports a single rejected input field. No computation runs
// and no partial result is produced once validation fails.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func requirePositive(field string, value float64) *ValidationError {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return &ValidationError{Field: field, Reason: "must be a finite number"}
	}
	if value <= 0 {
		return &ValidationError{Field: field, Reason: "must be greater than 0"}
	}
	return nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func orDefault(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}

// Suggest computes a recommended insulin bolus. Absent (nil) optional
// parameters are defaulted before validation; explicitly supplied values are
// validated as given, so a supplied zero fails rather than being defaulted.
// The correction component is floored at zero: glucose at or below target
// contributes nothing, and the formula never recommends subtracting insulin.
func Suggest(in Input) (*Result, error) {
	carbRatio := orDefault(in.CarbRatio, DefaultCarbRatio)
	sensitivity := orDefault(in.SensitivityFactor, DefaultSensitivityFactor)
	target := orDefault(in.TargetGlucose, DefaultTargetGlucose)

	checks := []struct {
		field string
		value float64
	}{
		{"carbs", in.Carbs},
		{"current_glucose", in.CurrentGlucose},
		{"carb_ratio", carbRatio},
		{"sensitivity_factor", sensitivity},
		{"target_glucose", target},
	}
	for _, c := range checks {
		if err := requirePositive(c.field, c.value); err != nil {
			return nil, err
		}
	}

	carbUnits := in.Carbs / carbRatio

	correctionUnits := 0.0
	if diff := in.CurrentGlucose - target; diff > 0 {
		correctionUnits = diff / sensitivity
	}

	return &Result{
		SuggestedBolus:    round2(carbUnits + correctionUnits),
		CarbUnits:         round2(carbUnits),
		CorrectionUnits:   round2(correctionUnits),
		CarbRatio:         carbRatio,
		SensitivityFactor: sensitivity,
		TargetGlucose:     target,
	}, nil
}
