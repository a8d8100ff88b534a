package srvreg

import (
	"net/http"
	"strings"

	"github.com/ahmadzakiakmal/weldledger/apperr"
	"github.com/ahmadzakiakmal/weldledger/materials"
	"github.com/ahmadzakiakmal/weldledger/repository/models"
)

var analystOnly = []string{models.RoleResourceAnalyst}

func (sr *ServiceRegistry) registerAnalyst() {
	sr.RegisterHandler(http.MethodPost, "/api/analyst/set-quality-criteria/:employeeId", analystOnly, sr.SetCriteriaHandler)
	sr.RegisterHandler(http.MethodGet, "/api/analyst/get-quality-criteria", analystOnly, sr.GetCriteriaHandler)
	sr.RegisterHandler(http.MethodPut, "/api/analyst/update-quality-criteria", analystOnly, sr.UpdateCriteriaHandler)
	sr.RegisterHandler(http.MethodDelete, "/api/analyst/delete-quality-criteria", analystOnly, sr.DeleteCriteriaHandler)

	sr.RegisterHandler(http.MethodPost, "/api/analyst/validate-material", analystOnly, sr.ValidateMaterialHandler)
	sr.RegisterHandler(http.MethodPost, "/api/analyst/evaluate-material", analystOnly, sr.EvaluateMaterialHandler)
	sr.RegisterHandler(http.MethodPost, "/api/analyst/welding-parameters", analystOnly, sr.WeldingParametersHandler)
	sr.RegisterHandler(http.MethodPost, "/api/analyst/submit-final/:productId", analystOnly, sr.FinalSubmissionHandler)

	// Product reads need an active access grant from an admin.
	sr.RegisterHandler(http.MethodGet, "/api/analyst/get-products-data", analystOnly, sr.withAccess(sr.ProductsHandler))
	sr.RegisterHandler(http.MethodGet, "/api/analyst/get-product/:productId", analystOnly, sr.withAccess(sr.ProductHandler))

	sr.RegisterHandler(http.MethodPost, "/api/analyst/save-analysis/:productId", analystOnly, sr.SaveAnalysisHandler)
	sr.RegisterHandler(http.MethodGet, "/api/analyst/get-analysis", analystOnly, sr.AnalysesHandler)
	sr.RegisterHandler(http.MethodGet, "/api/analyst/get-analysis/:txnHash", analystOnly, sr.AnalysisHandler)
	sr.RegisterHandler(http.MethodPut, "/api/analyst/update-analysis/:txnHash", analystOnly, sr.UpdateAnalysisHandler)
	sr.RegisterHandler(http.MethodDelete, "/api/analyst/delete-analysis/:txnHash", analystOnly, sr.DeleteAnalysisHandler)

	sr.registerGrantors("/api/analyst", analystOnly)
}

// withAccess runs next only when the caller holds an active access grant.
func (sr *ServiceRegistry) withAccess(next HandlerFunc) HandlerFunc {
	return func(req *Request) (*Response, error) {
		if _, err := sr.svc.Access.CheckAccess(req.Context(), req.caller()); err != nil {
			return nil, err
		}
		return next(req)
	}
}

type criteriaBody struct {
	DensityThreshold             *float64 `json:"densityThreshold"`
	FlexuralStrengthThreshold    *float64 `json:"flexuralStrengthThreshold"`
	TensileStrengthThreshold     *float64 `json:"tensileStrengthThreshold"`
	PorosityThreshold            *float64 `json:"porosityThreshold"`
	ThermalConductivityThreshold *float64 `json:"thermalConductivityThreshold"`
}

func (b criteriaBody) criteria(employeeID string) (*models.QualityCriteria, error) {
	var missing []string
	fields := []struct {
		name string
		v    *float64
	}{
		{"densityThreshold", b.DensityThreshold},
		{"flexuralStrengthThreshold", b.FlexuralStrengthThreshold},
		{"tensileStrengthThreshold", b.TensileStrengthThreshold},
		{"porosityThreshold", b.PorosityThreshold},
		{"thermalConductivityThreshold", b.ThermalConductivityThreshold},
	}
	for _, f := range fields {
		if f.v == nil {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return nil, apperr.MissingFields(missing...)
	}
	return &models.QualityCriteria{
		EmployeeID:                   employeeID,
		DensityThreshold:             *b.DensityThreshold,
		FlexuralStrengthThreshold:    *b.FlexuralStrengthThreshold,
		TensileStrengthThreshold:     *b.TensileStrengthThreshold,
		PorosityThreshold:            *b.PorosityThreshold,
		ThermalConductivityThreshold: *b.ThermalConductivityThreshold,
	}, nil
}

func (req *Request) criteria() (*models.QualityCriteria, error) {
	var b criteriaBody
	if err := req.Decode(&b); err != nil {
		return nil, err
	}
	return b.criteria(req.caller())
}

// SetCriteriaHandler stores the thresholds of the analyst in the path, who
// must be the caller.
func (sr *ServiceRegistry) SetCriteriaHandler(req *Request) (*Response, error) {
	if req.Params["employeeId"] != req.caller() {
		return nil, apperr.Forbidden("You may only set your own quality criteria")
	}
	c, err := req.criteria()
	if err != nil {
		return nil, err
	}
	if err := sr.svc.Repo.CreateCriteria(req.Context(), c); err != nil {
		return nil, err
	}
	return created(map[string]any{"message": "Quality Criteria set successfully", "criteria": c})
}

func (sr *ServiceRegistry) GetCriteriaHandler(req *Request) (*Response, error) {
	c, err := sr.svc.Repo.GetCriteria(req.Context(), req.caller())
	if err != nil {
		return nil, err
	}
	return ok(map[string]any{"message": "Quality criteria fetched successfully", "criteria": c})
}

func (sr *ServiceRegistry) UpdateCriteriaHandler(req *Request) (*Response, error) {
	c, err := req.criteria()
	if err != nil {
		return nil, err
	}
	if err := sr.svc.Repo.UpdateCriteria(req.Context(), c); err != nil {
		return nil, err
	}
	return ok(map[string]any{"message": "Quality criteria updated successfully", "criteria": c})
}

func (sr *ServiceRegistry) DeleteCriteriaHandler(req *Request) (*Response, error) {
	if err := sr.svc.Repo.DeleteCriteria(req.Context(), req.caller()); err != nil {
		return nil, err
	}
	return message("Quality criteria deleted successfully")
}

func (sr *ServiceRegistry) validate(req *Request) (materials.Sample, materials.Validation, error) {
	var s materials.Sample
	if err := req.Decode(&s); err != nil {
		return s, materials.Validation{}, err
	}
	c, err := sr.svc.Repo.GetCriteria(req.Context(), req.caller())
	if err != nil {
		return s, materials.Validation{}, err
	}
	v, err := materials.ValidateMaterial(c, s)
	return s, v, err
}

func (sr *ServiceRegistry) ValidateMaterialHandler(req *Request) (*Response, error) {
	_, v, err := sr.validate(req)
	if err != nil {
		return nil, err
	}
	text := "Material meets the quality criteria"
	if !v.Passed {
		text = "Material does not meet the quality criteria"
	}
	return ok(map[string]any{"message": text, "validation": v})
}

func (sr *ServiceRegistry) EvaluateMaterialHandler(req *Request) (*Response, error) {
	var in materials.EvaluateInput
	if err := req.Decode(&in); err != nil {
		return nil, err
	}
	e, err := materials.EvaluateMaterial(in)
	if err != nil {
		return nil, err
	}
	return ok(map[string]any{"message": "Material evaluated successfully", "evaluation": e})
}

func (sr *ServiceRegistry) WeldingParametersHandler(req *Request) (*Response, error) {
	var in materials.WeldingInput
	if err := req.Decode(&in); err != nil {
		return nil, err
	}
	w, err := materials.WeldingParameters(in)
	if err != nil {
		return nil, err
	}
	return ok(map[string]any{"message": "Welding parameters calculated successfully", "welding": w})
}

// FinalSubmissionHandler validates a sample against the caller's criteria
// and, when it passes, stores the analysis on the ledger.
func (sr *ServiceRegistry) FinalSubmissionHandler(req *Request) (*Response, error) {
	s, v, err := sr.validate(req)
	if err != nil {
		return nil, err
	}
	if !v.Passed {
		var failed []string
		for _, c := range v.Checks {
			if !c.Passed {
				failed = append(failed, c.Property)
			}
		}
		return nil, apperr.Validation("Material does not meet the quality criteria").WithDetail(strings.Join(failed, ", "))
	}
	id, err := sr.svc.Analyses.SaveRecord(req.Context(), map[string]any{
		"resourceAnalystId": req.caller(),
		"productId":         req.Params["productId"],
		"sample":            s,
		"validation":        v,
		"finalSubmission":   true,
	})
	if err != nil {
		return nil, err
	}
	return created(map[string]any{"message": "Final analysis submitted successfully", "transactionId": id})
}

func (sr *ServiceRegistry) SaveAnalysisHandler(req *Request) (*Response, error) {
	doc, err := req.object()
	if err != nil {
		return nil, err
	}
	doc["resourceAnalystId"] = req.caller()
	doc["productId"] = req.Params["productId"]
	id, err := sr.svc.Analyses.SaveRecord(req.Context(), doc)
	if err != nil {
		return nil, err
	}
	return created(map[string]any{"message": "Analysis saved successfully", "transactionId": id})
}

func (sr *ServiceRegistry) AnalysesHandler(req *Request) (*Response, error) {
	return sr.page(req, sr.svc.Analyses, "analyses")
}

func (sr *ServiceRegistry) AnalysisHandler(req *Request) (*Response, error) {
	return sr.one(req, sr.svc.Analyses, "txnHash")
}

func (sr *ServiceRegistry) UpdateAnalysisHandler(req *Request) (*Response, error) {
	return sr.update(req, sr.svc.Analyses, "txnHash")
}

func (sr *ServiceRegistry) DeleteAnalysisHandler(req *Request) (*Response, error) {
	return sr.remove(req, sr.svc.Analyses, "txnHash")
}
