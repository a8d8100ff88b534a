package srvreg

import (
	"net/http"

	"github.com/ahmadzakiakmal/weldledger/access"
	"github.com/ahmadzakiakmal/weldledger/apperr"
)

// registerRecordReaders mounts the per record access flow over design data:
// a listing annotated with the caller's request status, the request itself
// and the read of a granted record.
func (sr *ServiceRegistry) registerRecordReaders(prefix string, roles []string) {
	sr.RegisterHandler(http.MethodGet, prefix+"/get-request-data", roles, sr.RequestDataHandler)
	sr.RegisterHandler(http.MethodPost, prefix+"/make-request", roles, sr.MakeRequestHandler)
	sr.RegisterHandler(http.MethodGet, prefix+"/get-data/:txnHash", roles, sr.GrantedRecordHandler)
	sr.RegisterHandler(http.MethodGet, prefix+"/my-requests", roles, sr.MyRequestsHandler)
}

func (sr *ServiceRegistry) registerRecordGrantors(prefix string, roles []string) {
	sr.RegisterHandler(http.MethodGet, prefix+"/get-record-requests", roles, sr.RecordRequestsHandler)
	sr.RegisterHandler(http.MethodPut, prefix+"/grant-record/:employeeId/:txnHash", roles, sr.GrantRecordHandler)
	sr.RegisterHandler(http.MethodPut, prefix+"/deny-record/:employeeId/:txnHash", roles, sr.DenyRecordHandler)
}

// designSummary is the part of a design document shown in listings.
type designSummary struct {
	ProductID           string `json:"productId"`
	ProductName         string `json:"productName"`
	FinalApprovalStatus string `json:"finalApprovalStatus"`
}

type requestRow struct {
	TransactionHash             string `json:"transactionHash"`
	Timestamp                   int64  `json:"timestamp"`
	ProductID                   string `json:"productId"`
	ProductName                 string `json:"productName"`
	DesignSupportApprovalStatus string `json:"designSupportApprovalStatus"`
	AccessStatus                string `json:"accessStatus"`
}

func (sr *ServiceRegistry) RequestDataHandler(req *Request) (*Response, error) {
	ctx := req.Context()
	page, err := sr.svc.Designs.FetchPage(ctx, req.QueryInt("page", defaultPage), req.QueryInt("limit", defaultLimit))
	if err != nil {
		return nil, err
	}
	statuses, err := sr.svc.Access.StatusFor(ctx, req.caller())
	if err != nil {
		return nil, err
	}

	rows := make([]requestRow, 0, len(page.Items))
	for _, item := range page.Items {
		var d designSummary
		if err := item.Decode(&d); err != nil {
			return nil, apperr.Wrap(err, apperr.CodeDecrypt, apperr.StageDecrypt, "Design record is not a JSON object")
		}
		rows = append(rows, requestRow{
			TransactionHash:             item.TransactionID,
			Timestamp:                   item.Timestamp,
			ProductID:                   d.ProductID,
			ProductName:                 d.ProductName,
			DesignSupportApprovalStatus: d.FinalApprovalStatus,
			AccessStatus:                statuses.For(item.TransactionID),
		})
	}
	text := "Data fetched successfully"
	if page.TotalItems == 0 {
		text = "No products found"
	}
	return ok(map[string]any{"message": text, "products": rows, "pagination": pagination(page)})
}

type makeRequestBody struct {
	ProductID       string `json:"productId"`
	ProductName     string `json:"productName"`
	TransactionHash string `json:"transactionHash"`
}

func (sr *ServiceRegistry) MakeRequestHandler(req *Request) (*Response, error) {
	var b makeRequestBody
	if err := req.Decode(&b); err != nil {
		return nil, err
	}
	r, err := sr.svc.Access.RequestRecord(req.Context(), req.caller(), access.RecordRef{
		TransactionID: b.TransactionHash,
		ProductID:     b.ProductID,
		ProductName:   b.ProductName,
	})
	if err != nil {
		return nil, err
	}
	return created(map[string]any{"message": "Request sent successfully", "request": r})
}

func (sr *ServiceRegistry) GrantedRecordHandler(req *Request) (*Response, error) {
	txID := req.Params["txnHash"]
	if _, err := sr.svc.Access.CheckRecord(req.Context(), req.caller(), txID); err != nil {
		return nil, err
	}
	return sr.one(req, sr.svc.Designs, "txnHash")
}

func (sr *ServiceRegistry) MyRequestsHandler(req *Request) (*Response, error) {
	reqs, err := sr.svc.Access.ListRecordRequests(req.Context(), req.caller(), req.Query.Get("status"))
	if err != nil {
		return nil, err
	}
	return ok(map[string]any{"message": "Access requests fetched successfully", "accessRequests": reqs})
}

// RecordRequestsHandler lists every employee's per record requests.
func (sr *ServiceRegistry) RecordRequestsHandler(req *Request) (*Response, error) {
	reqs, err := sr.svc.Access.ListRecordRequests(req.Context(), req.Query.Get("employeeId"), req.Query.Get("status"))
	if err != nil {
		return nil, err
	}
	return ok(map[string]any{"message": "Access requests fetched successfully", "accessRequests": reqs})
}

func (sr *ServiceRegistry) GrantRecordHandler(req *Request) (*Response, error) {
	days, err := req.days()
	if err != nil {
		return nil, err
	}
	r, err := sr.svc.Access.GrantRecord(req.Context(), *req.Identity, req.Params["employeeId"], req.Params["txnHash"], days)
	if err != nil {
		return nil, err
	}
	return ok(map[string]any{"message": "Access granted successfully", "request": r})
}

func (sr *ServiceRegistry) DenyRecordHandler(req *Request) (*Response, error) {
	r, err := sr.svc.Access.DenyRecord(req.Context(), *req.Identity, req.Params["employeeId"], req.Params["txnHash"])
	if err != nil {
		return nil, err
	}
	return ok(map[string]any{"message": "Access denied successfully", "request": r})
}
