package srvreg

import (
	"net/http"

	"github.com/ahmadzakiakmal/weldledger/apperr"
	"github.com/ahmadzakiakmal/weldledger/materials"
	"github.com/ahmadzakiakmal/weldledger/repository/models"
)

var designOnly = []string{models.RoleDesignSupport}

func (sr *ServiceRegistry) registerDesign() {
	// Analysis reads need an active access grant from a resource analyst.
	sr.RegisterHandler(http.MethodGet, "/api/design/get-data", designOnly, sr.withAccess(sr.AnalysesHandler))
	sr.RegisterHandler(http.MethodGet, "/api/design/get-single-data/:txnHash", designOnly, sr.withAccess(sr.AnalysisHandler))

	sr.RegisterHandler(http.MethodPost, "/api/design/process-material", designOnly, sr.ProcessMaterialHandler)
	sr.RegisterHandler(http.MethodPost, "/api/design/predict-welding", designOnly, sr.PredictWeldingHandler)

	sr.RegisterHandler(http.MethodPost, "/api/design/save-data/:productId", designOnly, sr.SaveDesignHandler)
	sr.RegisterHandler(http.MethodGet, "/api/design/get-design-data", designOnly, sr.DesignsHandler)
	sr.RegisterHandler(http.MethodGet, "/api/design/get-design-data/:txnHash", designOnly, sr.DesignHandler)
	sr.RegisterHandler(http.MethodPut, "/api/design/update-design/:txnHash", designOnly, sr.UpdateDesignHandler)
	sr.RegisterHandler(http.MethodDelete, "/api/design/delete-design/:txnHash", designOnly, sr.DeleteDesignHandler)

	sr.registerRecordGrantors("/api/design", designOnly)
}

func (sr *ServiceRegistry) ProcessMaterialHandler(req *Request) (*Response, error) {
	var in materials.ProcessInput
	if err := req.Decode(&in); err != nil {
		return nil, err
	}
	p, err := materials.ProcessMaterial(in)
	if err != nil {
		return nil, err
	}
	return ok(map[string]any{"message": "Material processed successfully", "processedData": p})
}

func (sr *ServiceRegistry) PredictWeldingHandler(req *Request) (*Response, error) {
	if sr.svc.Predictor == nil {
		return nil, apperr.New(apperr.CodeInternal, "Welding predictor is not configured")
	}
	var in materials.PredictInput
	if err := req.Decode(&in); err != nil {
		return nil, err
	}
	p, err := sr.svc.Predictor.Predict(req.Context(), in)
	if err != nil {
		return nil, err
	}
	return ok(map[string]any{"message": "Welding parameters predicted successfully", "prediction": p})
}

// SaveDesignHandler stores the body as a design document of the product in
// the path, stamped with the designer.
func (sr *ServiceRegistry) SaveDesignHandler(req *Request) (*Response, error) {
	doc, err := req.object()
	if err != nil {
		return nil, err
	}
	doc["designerSupportId"] = req.caller()
	doc["productId"] = req.Params["productId"]
	id, err := sr.svc.Designs.SaveRecord(req.Context(), doc)
	if err != nil {
		return nil, err
	}
	return created(map[string]any{"message": "Data saved successfully", "transactionId": id})
}

func (sr *ServiceRegistry) DesignsHandler(req *Request) (*Response, error) {
	return sr.page(req, sr.svc.Designs, "designs")
}

func (sr *ServiceRegistry) DesignHandler(req *Request) (*Response, error) {
	return sr.one(req, sr.svc.Designs, "txnHash")
}

func (sr *ServiceRegistry) UpdateDesignHandler(req *Request) (*Response, error) {
	return sr.update(req, sr.svc.Designs, "txnHash")
}

func (sr *ServiceRegistry) DeleteDesignHandler(req *Request) (*Response, error) {
	return sr.remove(req, sr.svc.Designs, "txnHash")
}
