// Package materials holds the material calculations used by resource
// analysts and design support.
package materials

import (
	"math"

	"github.com/ahmadzakiakmal/weldledger/apperr"
	"github.com/ahmadzakiakmal/weldledger/repository/models"
)

// elasticityTolerance is the largest accepted gap between the declared
// Young's modulus and stress/strain.
const elasticityTolerance = 5

type field struct {
	name  string
	value *float64
}

func requireFields(fields ...field) error {
	var missing []string
	for _, f := range fields {
		if f.value == nil {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return apperr.MissingFields(missing...)
	}
	return nil
}

// ProcessInput is a tensile test result.
type ProcessInput struct {
	TensileStrength *float64 `json:"tensileStrength"`
	YoungsModulus   *float64 `json:"youngsModulus"`
	Stress          *float64 `json:"stress"`
	Strain          *float64 `json:"strain"`
}

type Processed struct {
	YieldStrength      float64 `json:"yieldStrength"`
	Hardness           float64 `json:"hardness"`
	ElasticityVerified bool    `json:"elasticityVerified"`
}

// ProcessMaterial derives yield strength and hardness from tensile strength
// and checks the declared modulus against stress/strain.
func ProcessMaterial(in ProcessInput) (Processed, error) {
	if err := requireFields(
		field{"tensileStrength", in.TensileStrength},
		field{"youngsModulus", in.YoungsModulus},
		field{"stress", in.Stress},
		field{"strain", in.Strain},
	); err != nil {
		return Processed{}, err
	}
	if *in.Strain == 0 {
		return Processed{}, apperr.Validation("strain must not be zero")
	}
	return Processed{
		YieldStrength:      *in.TensileStrength * 0.9,
		Hardness:           *in.TensileStrength * 3,
		ElasticityVerified: math.Abs(*in.YoungsModulus-(*in.Stress / *in.Strain)) < elasticityTolerance,
	}, nil
}

// Sample is a measured material.
type Sample struct {
	Density             *float64 `json:"density"`
	FlexuralStrength    *float64 `json:"flexuralStrength"`
	TensileStrength     *float64 `json:"tensileStrength"`
	Porosity            *float64 `json:"porosity"`
	ThermalConductivity *float64 `json:"thermalConductivity"`
}

// Check is one property compared with its threshold.
type Check struct {
	Property  string  `json:"property"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
	Rule      string  `json:"rule"`
	Passed    bool    `json:"passed"`
}

type Validation struct {
	Passed bool    `json:"passed"`
	Checks []Check `json:"checks"`
}

// Threshold rules.
const (
	RuleMin = "min"
	RuleMax = "max"
)

// ValidateMaterial compares a sample with an analyst's criteria. Porosity
// must not exceed its threshold; every other property must reach it.
func ValidateMaterial(criteria *models.QualityCriteria, s Sample) (Validation, error) {
	if criteria == nil {
		return Validation{}, apperr.NotFound("Quality criteria not set")
	}
	if err := requireFields(
		field{"density", s.Density},
		field{"flexuralStrength", s.FlexuralStrength},
		field{"tensileStrength", s.TensileStrength},
		field{"porosity", s.Porosity},
		field{"thermalConductivity", s.ThermalConductivity},
	); err != nil {
		return Validation{}, err
	}

	checks := []Check{
		{Property: "density", Value: *s.Density, Threshold: criteria.DensityThreshold, Rule: RuleMin},
		{Property: "flexuralStrength", Value: *s.FlexuralStrength, Threshold: criteria.FlexuralStrengthThreshold, Rule: RuleMin},
		{Property: "tensileStrength", Value: *s.TensileStrength, Threshold: criteria.TensileStrengthThreshold, Rule: RuleMin},
		{Property: "porosity", Value: *s.Porosity, Threshold: criteria.PorosityThreshold, Rule: RuleMax},
		{Property: "thermalConductivity", Value: *s.ThermalConductivity, Threshold: criteria.ThermalConductivityThreshold, Rule: RuleMin},
	}
	v := Validation{Passed: true, Checks: checks}
	for i := range v.Checks {
		c := &v.Checks[i]
		if c.Rule == RuleMax {
			c.Passed = c.Value <= c.Threshold
		} else {
			c.Passed = c.Value >= c.Threshold
		}
		v.Passed = v.Passed && c.Passed
	}
	return v, nil
}

// EvaluateInput lists the candidate loads for a cross section.
type EvaluateInput struct {
	TensileStrength  *float64  `json:"tensileStrength"`
	FlexuralStrength *float64  `json:"flexuralStrength"`
	Area             *float64  `json:"area"`
	Forces           []float64 `json:"forces"`
}

type ForceResult struct {
	Force        float64 `json:"force"`
	Stress       float64 `json:"stress"`
	WithinLimits bool    `json:"withinLimits"`
}

type Evaluation struct {
	Results       []ForceResult `json:"results"`
	OptimalForce  *float64      `json:"optimalForce"`
	OptimalStress *float64      `json:"optimalStress"`
}

// EvaluateMaterial computes stress = force/area for each candidate. The
// optimal force is the largest one whose stress stays within both tensile
// and flexural strength; it is nil when no candidate qualifies.
func EvaluateMaterial(in EvaluateInput) (Evaluation, error) {
	if err := requireFields(
		field{"tensileStrength", in.TensileStrength},
		field{"flexuralStrength", in.FlexuralStrength},
		field{"area", in.Area},
	); err != nil {
		return Evaluation{}, err
	}
	if len(in.Forces) == 0 {
		return Evaluation{}, apperr.MissingFields("forces")
	}
	if *in.Area <= 0 {
		return Evaluation{}, apperr.Validation("area must be greater than zero")
	}

	limit := math.Min(*in.TensileStrength, *in.FlexuralStrength)
	ev := Evaluation{Results: make([]ForceResult, 0, len(in.Forces))}
	for _, f := range in.Forces {
		r := ForceResult{Force: f, Stress: f / *in.Area}
		r.WithinLimits = r.Stress <= limit
		ev.Results = append(ev.Results, r)
		if r.WithinLimits && (ev.OptimalForce == nil || f > *ev.OptimalForce) {
			force, stress := r.Force, r.Stress
			ev.OptimalForce, ev.OptimalStress = &force, &stress
		}
	}
	return ev, nil
}

// WeldingInput describes an arc welding pass. TravelSpeed is in mm/min.
type WeldingInput struct {
	Voltage     *float64 `json:"voltage"`
	Current     *float64 `json:"current"`
	TravelSpeed *float64 `json:"travelSpeed"`
	Efficiency  *float64 `json:"efficiency"`
}

type WeldingResult struct {
	HeatInput float64 `json:"heatInput"`
	Unit      string  `json:"unit"`
}

// WeldingParameters computes heat input in kJ/mm:
//
//	V * I * 60 / (1000 * speed) * efficiency
func WeldingParameters(in WeldingInput) (WeldingResult, error) {
	if err := requireFields(
		field{"voltage", in.Voltage},
		field{"current", in.Current},
		field{"travelSpeed", in.TravelSpeed},
		field{"efficiency", in.Efficiency},
	); err != nil {
		return WeldingResult{}, err
	}
	if *in.TravelSpeed <= 0 {
		return WeldingResult{}, apperr.Validation("travelSpeed must be greater than zero")
	}
	if *in.Efficiency <= 0 || *in.Efficiency > 1 {
		return WeldingResult{}, apperr.Validation("efficiency must be in (0, 1]")
	}
	heat := *in.Voltage * *in.Current * 60 / (1000 * *in.TravelSpeed) * *in.Efficiency
	return WeldingResult{HeatInput: math.Round(heat*1000) / 1000, Unit: "kJ/mm"}, nil
}
