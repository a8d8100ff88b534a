package srvreg

import (
	"net/http"

	"github.com/ahmadzakiakmal/weldledger/repository/models"
	"github.com/ahmadzakiakmal/weldledger/workflow"
)

var (
	productionOnly = []string{models.RoleProductionAssembly}
	qualityOnly    = []string{models.RoleQualityControl}
)

func (sr *ServiceRegistry) registerProduction() {
	sr.registerRecordReaders("/api/production", productionOnly)
	sr.RegisterHandler(http.MethodGet, "/api/production/evaluate-for-production", productionOnly, sr.EvaluateProductionHandler)
	sr.RegisterHandler(http.MethodPost, "/api/production/evaluate-for-production", productionOnly, sr.EvaluateProductionHandler)
	sr.RegisterHandler(http.MethodPost, "/api/production/reject-product", productionOnly, sr.RejectProductHandler)
	sr.RegisterHandler(http.MethodPost, "/api/production/start-production", productionOnly, sr.StartProductionHandler)
	sr.RegisterHandler(http.MethodGet, "/api/production/getProduction", productionOnly, sr.ProductionsHandler)
	sr.RegisterHandler(http.MethodPut, "/api/production/send-quality-check/:productionId", productionOnly, sr.SendQualityCheckHandler)
	sr.RegisterHandler(http.MethodPut, "/api/production/restart-production/:productionId", productionOnly, sr.RestartProductionHandler)
	sr.RegisterHandler(http.MethodGet, "/api/production/generate-production-report/:productionId", productionOnly, sr.ProductionReportHandler)
}

func (sr *ServiceRegistry) EvaluateProductionHandler(req *Request) (*Response, error) {
	var in workflow.FeasibilityInput
	if err := req.floatParams(&in, "tensileStrength", "density", "weldingStrength", "porosity"); err != nil {
		return nil, err
	}
	f, err := workflow.Evaluate(in)
	if err != nil {
		return nil, err
	}
	return ok(map[string]any{"message": "Production evaluated successfully", "evaluation": f})
}

func (sr *ServiceRegistry) RejectProductHandler(req *Request) (*Response, error) {
	var in workflow.RejectInput
	if err := req.Decode(&in); err != nil {
		return nil, err
	}
	p, err := sr.svc.Workflow.RejectProduct(req.Context(), req.caller(), in)
	if err != nil {
		return nil, err
	}
	return created(map[string]any{"message": "Product rejected successfully", "rejectedProduct": p})
}

func (sr *ServiceRegistry) StartProductionHandler(req *Request) (*Response, error) {
	var in workflow.StartInput
	if err := req.Decode(&in); err != nil {
		return nil, err
	}
	job, err := sr.svc.Workflow.StartProduction(req.Context(), req.caller(), in)
	if err != nil {
		return nil, err
	}
	return created(map[string]any{"message": "Production started successfully", "production": job})
}

func (sr *ServiceRegistry) ProductionsHandler(req *Request) (*Response, error) {
	jobs, err := sr.svc.Workflow.ListProductions(req.Context(), req.caller(), req.Query.Get("productionStatus"))
	if err != nil {
		return nil, err
	}
	return ok(map[string]any{"message": "Production data fetched successfully", "productions": jobs})
}

func (sr *ServiceRegistry) SendQualityCheckHandler(req *Request) (*Response, error) {
	var in workflow.ReportInput
	if err := req.Decode(&in); err != nil {
		return nil, err
	}
	job, qa, err := sr.svc.Workflow.SendToQualityCheck(req.Context(), req.caller(), req.Params["productionId"], in)
	if err != nil {
		return nil, err
	}
	return ok(map[string]any{"message": "Production sent to quality check", "production": job, "qualityAssessment": qa})
}

func (sr *ServiceRegistry) RestartProductionHandler(req *Request) (*Response, error) {
	job, err := sr.svc.Workflow.RestartProduction(req.Context(), req.caller(), req.Params["productionId"])
	if err != nil {
		return nil, err
	}
	return ok(map[string]any{"message": "Production restarted", "production": job})
}

func (sr *ServiceRegistry) registerQuality() {
	sr.registerRecordReaders("/api/quality", qualityOnly)
	sr.RegisterHandler(http.MethodGet, "/api/quality/get-status", qualityOnly, sr.QualityStatusHandler)
	sr.RegisterHandler(http.MethodPost, "/api/quality/submit-report/:productionId", qualityOnly, sr.SubmitAssessmentHandler)
	sr.RegisterHandler(http.MethodGet, "/api/quality/report/:productionId", qualityOnly, sr.QualityReportHandler)
	sr.RegisterHandler(http.MethodGet, "/api/quality/getProduction", qualityOnly, sr.PendingOptionsHandler)
	sr.RegisterHandler(http.MethodGet, "/api/quality/getReportOptions", qualityOnly, sr.ReportOptionsHandler)
}

func (sr *ServiceRegistry) QualityStatusHandler(req *Request) (*Response, error) {
	rows, err := sr.svc.Workflow.QualityStatuses(req.Context(), req.Query.Get("qualityStatus"))
	if err != nil {
		return nil, err
	}
	return ok(map[string]any{"message": "Quality data fetched successfully", "qualityData": rows})
}

func (sr *ServiceRegistry) SubmitAssessmentHandler(req *Request) (*Response, error) {
	var in workflow.AssessmentInput
	if err := req.Decode(&in); err != nil {
		return nil, err
	}
	job, err := sr.svc.Workflow.SubmitAssessment(req.Context(), req.caller(), req.Params["productionId"], in)
	if err != nil {
		return nil, err
	}
	return ok(map[string]any{"message": "Quality assessment submitted successfully", "production": job})
}

func (sr *ServiceRegistry) PendingOptionsHandler(req *Request) (*Response, error) {
	ids, err := sr.svc.Workflow.PendingProductionOptions(req.Context())
	if err != nil {
		return nil, err
	}
	return ok(map[string]any{"message": "Production options fetched successfully", "productionIds": ids})
}

func (sr *ServiceRegistry) ReportOptionsHandler(req *Request) (*Response, error) {
	jobs, err := sr.svc.Workflow.CompletedReportOptions(req.Context())
	if err != nil {
		return nil, err
	}
	return ok(map[string]any{"message": "Report options fetched successfully", "productions": jobs})
}
