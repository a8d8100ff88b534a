package workflow

import (
	"math"

	"github.com/ahmadzakiakmal/weldledger/apperr"
)

// Feasibility bands.
const (
	StatusFeasible    = "Feasible"
	StatusNotFeasible = "Not Feasible"

	optimalThreshold  = 80
	feasibleThreshold = 50
)

// FeasibilityInput holds the four required properties. Nil means absent.
type FeasibilityInput struct {
	TensileStrength *float64 `json:"tensileStrength"`
	Density         *float64 `json:"density"`
	WeldingStrength *float64 `json:"weldingStrength"`
	Porosity        *float64 `json:"porosity"`
}

// Feasibility is the outcome of Evaluate.
type Feasibility struct {
	Score    float64 `json:"feasibilityScore"`
	Status   string  `json:"status"`
	Comments string  `json:"comments"`
}

// Evaluate scores a material for production:
//
//	score = (tensileStrength/density)*10 + weldingStrength*0.5 - porosity*100
//
// rounded to two decimals.
func Evaluate(in FeasibilityInput) (Feasibility, error) {
	var missing []string
	if in.TensileStrength == nil {
		missing = append(missing, "tensileStrength")
	}
	if in.Density == nil {
		missing = append(missing, "density")
	}
	if in.WeldingStrength == nil {
		missing = append(missing, "weldingStrength")
	}
	if in.Porosity == nil {
		missing = append(missing, "porosity")
	}
	if len(missing) > 0 {
		return Feasibility{}, apperr.MissingFields(missing...)
	}
	if *in.Density <= 0 {
		return Feasibility{}, apperr.Validation("density must be greater than zero")
	}

	raw := (*in.TensileStrength / *in.Density * 10) + (*in.WeldingStrength * 0.5) - (*in.Porosity * 100)
	score := math.Round(raw*100) / 100

	f := Feasibility{Score: score, Status: StatusNotFeasible}
	switch {
	case score > optimalThreshold:
		f.Comments = "Material properties and welding parameters are optimal. Ready for production."
	case score > feasibleThreshold:
		f.Comments = "Material is feasible, but minor improvements in welding strength or cooling time may enhance quality."
	default:
		f.Comments = "Material is not feasible for production. Consider increasing tensile strength or adjusting welding parameters."
	}
	if score > feasibleThreshold {
		f.Status = StatusFeasible
	}
	return f, nil
}
