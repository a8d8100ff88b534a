package srvreg

import (
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/ahmadzakiakmal/weldledger/apperr"
	"github.com/ahmadzakiakmal/weldledger/repository/models"
)

// defaultHistory is the number of ledger transactions listed when no
// limit is given.
const defaultHistory = 50

var adminOnly = []string{models.RoleAdmin}

func (sr *ServiceRegistry) registerAdmin() {
	sr.RegisterHandler(http.MethodPost, "/api/admin/upload-csv", adminOnly, sr.UploadCSVHandler)
	sr.RegisterHandler(http.MethodGet, "/api/admin/get-products-data", adminOnly, sr.ProductsHandler)
	sr.RegisterHandler(http.MethodGet, "/api/admin/export-csv", adminOnly, sr.ExportCSVHandler)
	sr.RegisterHandler(http.MethodPost, "/api/admin/add-product", adminOnly, sr.AddProductHandler)
	sr.RegisterHandler(http.MethodGet, "/api/admin/get-product/:productId", adminOnly, sr.ProductHandler)
	sr.RegisterHandler(http.MethodDelete, "/api/admin/delete-product/:productId", adminOnly, sr.DeleteProductHandler)
	sr.RegisterHandler(http.MethodDelete, "/api/admin/delete-all-products", adminOnly, sr.DeleteAllProductsHandler)
	sr.RegisterHandler(http.MethodPut, "/api/admin/update-product/:productId", adminOnly, sr.UpdateProductHandler)

	sr.RegisterHandler(http.MethodPut, "/api/admin/approve-employee/:employeeId", adminOnly, sr.ApproveEmployeeHandler)
	sr.RegisterHandler(http.MethodPut, "/api/admin/deny-employee/:employeeId", adminOnly, sr.DenyEmployeeHandler)
	sr.RegisterHandler(http.MethodGet, "/api/admin/get-all-employee-data", adminOnly, sr.EmployeesHandler)
	sr.RegisterHandler(http.MethodDelete, "/api/admin/delete-employee/:employeeId", adminOnly, sr.DeleteEmployeeHandler)
	sr.RegisterHandler(http.MethodGet, "/api/admin/logged-in-users", adminOnly, sr.LoggedInUsersHandler)

	sr.registerGrantors("/api/admin", adminOnly)
	sr.registerRecordGrantors("/api/admin", adminOnly)

	sr.RegisterHandler(http.MethodGet, "/api/admin/transaction-history", adminOnly, sr.HistoryHandler)
	sr.RegisterHandler(http.MethodGet, "/api/admin/rejected-products", adminOnly, sr.RejectedProductsHandler)
	sr.RegisterHandler(http.MethodGet, "/api/admin/production-report/:productionId", adminOnly, sr.ProductionReportHandler)
	sr.RegisterHandler(http.MethodGet, "/api/admin/quality-report/:productionId", adminOnly, sr.QualityReportHandler)
}

// parseCSV turns a CSV document with a header row into one object per row.
func parseCSV(body string) ([]any, error) {
	r := csv.NewReader(strings.NewReader(body))
	r.TrimLeadingSpace = true
	header, err := r.Read()
	if err == io.EOF {
		return nil, apperr.Validation("CSV file is empty")
	}
	if err != nil {
		return nil, apperr.Validation("Invalid CSV: %s", err.Error())
	}
	for i := range header {
		header[i] = strings.TrimPrefix(strings.TrimSpace(header[i]), "\ufeff")
	}

	var rows []any
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, apperr.Validation("Invalid CSV: %s", err.Error())
		}
		row := make(map[string]any, len(header))
		for i, name := range header {
			if i < len(record) {
				row[name] = record[i]
			}
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, apperr.Validation("CSV file has no rows")
	}
	return rows, nil
}

func (sr *ServiceRegistry) UploadCSVHandler(req *Request) (*Response, error) {
	if strings.TrimSpace(req.Body) == "" {
		return nil, apperr.Validation("No file uploaded")
	}
	rows, err := parseCSV(req.Body)
	if err != nil {
		return nil, err
	}
	ids, err := sr.svc.Products.SaveRecords(req.Context(), rows)
	if err != nil {
		return nil, err
	}
	sr.logger.Info("CSV uploaded", "rows", len(ids), "by", req.caller())
	return created(map[string]any{"message": "CSV data uploaded successfully", "transactionIds": ids})
}

// ExportCSVHandler writes every product as one CSV row. Columns are the
// union of product fields, sorted, after transactionId.
func (sr *ServiceRegistry) ExportCSVHandler(req *Request) (*Response, error) {
	items, err := sr.svc.Products.FetchAll(req.Context())
	if err != nil {
		return nil, err
	}
	rows := make([]map[string]any, len(items))
	columns := map[string]bool{}
	for i, item := range items {
		if err := item.Decode(&rows[i]); err != nil {
			return nil, err
		}
		for name := range rows[i] {
			columns[name] = true
		}
	}
	delete(columns, "transactionId")
	header := make([]string, 0, len(columns)+1)
	for name := range columns {
		header = append(header, name)
	}
	sort.Strings(header)
	header = append([]string{"transactionId"}, header...)

	var b strings.Builder
	w := csv.NewWriter(&b)
	_ = w.Write(header)
	for i, row := range rows {
		record := make([]string, len(header))
		record[0] = items[i].TransactionID
		for j, name := range header[1:] {
			if v, ok := row[name]; ok && v != nil {
				record[j+1] = fmt.Sprint(v)
			}
		}
		_ = w.Write(record)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "", "Failed to encode CSV")
	}
	return &Response{
		StatusCode: http.StatusOK,
		Headers: map[string]string{
			"Content-Type":        "text/csv",
			"Content-Disposition": `attachment; filename="products.csv"`,
		},
		Body: b.String(),
	}, nil
}

// AddProductHandler stores one product object or a batch when the body is
// an array.
func (sr *ServiceRegistry) AddProductHandler(req *Request) (*Response, error) {
	if strings.HasPrefix(strings.TrimSpace(req.Body), "[") {
		var batch []map[string]any
		if err := req.Decode(&batch); err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			return nil, apperr.Validation("No products given")
		}
		payloads := make([]any, len(batch))
		for i := range batch {
			payloads[i] = batch[i]
		}
		ids, err := sr.svc.Products.SaveRecords(req.Context(), payloads)
		if err != nil {
			return nil, err
		}
		return created(map[string]any{"message": "Products added successfully", "transactionIds": ids})
	}

	doc, err := req.object()
	if err != nil {
		return nil, err
	}
	id, err := sr.svc.Products.SaveRecord(req.Context(), doc)
	if err != nil {
		return nil, err
	}
	return created(map[string]any{"message": "Product added successfully", "transactionId": id})
}

func (sr *ServiceRegistry) ProductsHandler(req *Request) (*Response, error) {
	return sr.page(req, sr.svc.Products, "products")
}

func (sr *ServiceRegistry) ProductHandler(req *Request) (*Response, error) {
	return sr.one(req, sr.svc.Products, "productId")
}

func (sr *ServiceRegistry) UpdateProductHandler(req *Request) (*Response, error) {
	return sr.update(req, sr.svc.Products, "productId")
}

func (sr *ServiceRegistry) DeleteProductHandler(req *Request) (*Response, error) {
	return sr.remove(req, sr.svc.Products, "productId")
}

func (sr *ServiceRegistry) DeleteAllProductsHandler(req *Request) (*Response, error) {
	n, err := sr.svc.Products.DeleteAll(req.Context())
	if err != nil {
		return nil, err
	}
	return ok(map[string]any{"message": "All products deleted successfully", "deleted": n})
}

func (sr *ServiceRegistry) ApproveEmployeeHandler(req *Request) (*Response, error) {
	e, err := sr.svc.Accounts.Approve(req.Context(), req.Params["employeeId"])
	if err != nil {
		return nil, err
	}
	return ok(map[string]any{"message": "Employee approved successfully", "employee": e})
}

func (sr *ServiceRegistry) DenyEmployeeHandler(req *Request) (*Response, error) {
	e, err := sr.svc.Accounts.Deny(req.Context(), req.Params["employeeId"])
	if err != nil {
		return nil, err
	}
	return ok(map[string]any{"message": "Employee denied successfully", "employee": e})
}

func (sr *ServiceRegistry) EmployeesHandler(req *Request) (*Response, error) {
	list, err := sr.svc.Accounts.List(req.Context(), req.Query.Get("status"))
	if err != nil {
		return nil, err
	}
	return ok(map[string]any{
		"message":       "Employee data fetched successfully",
		"employees":     list.Employees,
		"counts":        list.Counts,
		"currentStatus": list.CurrentStatus,
	})
}

func (sr *ServiceRegistry) DeleteEmployeeHandler(req *Request) (*Response, error) {
	if req.Params["employeeId"] == req.caller() {
		return nil, apperr.Validation("You cannot delete your own account")
	}
	if err := sr.svc.Accounts.Delete(req.Context(), req.Params["employeeId"]); err != nil {
		return nil, err
	}
	return message("Employee deleted successfully")
}

func (sr *ServiceRegistry) LoggedInUsersHandler(req *Request) (*Response, error) {
	users, err := sr.svc.Accounts.LoggedIn(req.Context())
	if err != nil {
		return nil, err
	}
	return ok(map[string]any{"message": "Logged in users fetched successfully", "users": users.Users, "counts": users.Counts})
}

func (sr *ServiceRegistry) AccessRequestsHandler(req *Request) (*Response, error) {
	views, err := sr.svc.Access.ListRequests(req.Context(), *req.Identity, req.Query.Get("role"), req.Query.Get("status"))
	if err != nil {
		return nil, err
	}
	return ok(map[string]any{"message": "Access requests fetched successfully", "accessRequests": views})
}

func (sr *ServiceRegistry) GrantAccessHandler(req *Request) (*Response, error) {
	days, err := req.days()
	if err != nil {
		return nil, err
	}
	grant, err := sr.svc.Access.GrantAccess(req.Context(), *req.Identity, req.Params["employeeId"], days)
	if err != nil {
		return nil, err
	}
	return ok(map[string]any{"message": "Access granted successfully", "accessRequest": grant})
}

func (sr *ServiceRegistry) DenyAccessHandler(req *Request) (*Response, error) {
	grant, err := sr.svc.Access.DenyAccess(req.Context(), *req.Identity, req.Params["employeeId"])
	if err != nil {
		return nil, err
	}
	return ok(map[string]any{"message": "Access denied successfully", "accessRequest": grant})
}

func (sr *ServiceRegistry) HistoryHandler(req *Request) (*Response, error) {
	history, err := sr.svc.Ledger.History(req.Context(), req.QueryInt("limit", defaultHistory))
	if err != nil {
		return nil, err
	}
	return ok(map[string]any{"message": "Transaction history fetched successfully", "transactions": history})
}

func (sr *ServiceRegistry) RejectedProductsHandler(req *Request) (*Response, error) {
	rejected, err := sr.svc.Workflow.ListRejected(req.Context())
	if err != nil {
		return nil, err
	}
	return ok(map[string]any{"message": "Rejected products fetched successfully", "rejectedProducts": rejected})
}

func (sr *ServiceRegistry) ProductionReportHandler(req *Request) (*Response, error) {
	job, err := sr.svc.Workflow.Report(req.Context(), req.Params["productionId"])
	if err != nil {
		return nil, err
	}
	return ok(map[string]any{"message": "Production report generated successfully", "production": job})
}

func (sr *ServiceRegistry) QualityReportHandler(req *Request) (*Response, error) {
	view, err := sr.svc.Workflow.QualityReport(req.Context(), req.Params["productionId"])
	if err != nil {
		return nil, err
	}
	return ok(map[string]any{"message": "Quality report generated successfully", "report": view})
}

// registerGrantors mounts the access request endpoints under prefix. The
// access service narrows what each grantor role may see and change.
func (sr *ServiceRegistry) registerGrantors(prefix string, roles []string) {
	sr.RegisterHandler(http.MethodGet, prefix+"/get-access-requests", roles, sr.AccessRequestsHandler)
	sr.RegisterHandler(http.MethodPut, prefix+"/grant-access/:employeeId", roles, sr.GrantAccessHandler)
	sr.RegisterHandler(http.MethodPut, prefix+"/deny-access/:employeeId", roles, sr.DenyAccessHandler)
}
