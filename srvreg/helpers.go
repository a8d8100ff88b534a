package srvreg

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/ahmadzakiakmal/weldledger/apperr"
	"github.com/ahmadzakiakmal/weldledger/recordstore"
)

const (
	defaultPage  = 1
	defaultLimit = 10
)

func ok(v map[string]any) (*Response, error)      { return jsonResponse(http.StatusOK, v) }
func created(v map[string]any) (*Response, error) { return jsonResponse(http.StatusCreated, v) }

func message(text string) (*Response, error) {
	return ok(map[string]any{"message": text})
}

// caller is the employee id of an authenticated request.
func (req *Request) caller() string { return req.Identity.EmployeeID }

// durationBody is the payload of every grant endpoint.
type durationBody struct {
	Duration *int `json:"duration"`
}

func (req *Request) days() (int, error) {
	var b durationBody
	if err := req.Decode(&b); err != nil {
		return 0, err
	}
	if b.Duration == nil {
		return 0, apperr.MissingFields("duration")
	}
	return *b.Duration, nil
}

// object decodes a JSON object body; records are stored as free form
// documents.
func (req *Request) object() (map[string]any, error) {
	var doc map[string]any
	if err := req.Decode(&doc); err != nil {
		return nil, err
	}
	if len(doc) == 0 {
		return nil, apperr.Validation("Request body must be a non empty JSON object")
	}
	return doc, nil
}

// floatParams decodes the JSON body when one is sent, otherwise the named
// numeric query parameters.
func (req *Request) floatParams(dst any, names ...string) error {
	if req.Body != "" {
		return req.Decode(dst)
	}
	doc := make(map[string]float64, len(names))
	for _, name := range names {
		raw := req.Query.Get(name)
		if raw == "" {
			continue
		}
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return apperr.Validation("%s must be a number", name)
		}
		doc[name] = f
	}
	b, _ := json.Marshal(doc)
	return json.Unmarshal(b, dst)
}

func (sr *ServiceRegistry) page(req *Request, store *recordstore.Store, key string) (*Response, error) {
	page, err := store.FetchPage(req.Context(), req.QueryInt("page", defaultPage), req.QueryInt("limit", defaultLimit))
	if err != nil {
		return nil, err
	}
	text := "Data fetched successfully"
	if page.TotalItems == 0 {
		text = "No data found"
	}
	return ok(map[string]any{"message": text, key: page.Items, "pagination": pagination(page)})
}

func pagination(p *recordstore.Page) map[string]any {
	return map[string]any{
		"currentPage":  p.CurrentPage,
		"totalPages":   p.TotalPages,
		"totalItems":   p.TotalItems,
		"itemsPerPage": p.ItemsPerPage,
		"hasNextPage":  p.HasNextPage,
		"hasPrevPage":  p.HasPrevPage,
	}
}

func (sr *ServiceRegistry) one(req *Request, store *recordstore.Store, param string) (*Response, error) {
	item, err := store.FetchOne(req.Context(), req.Params[param])
	if err != nil {
		return nil, err
	}
	return ok(map[string]any{"message": "Data fetched successfully", "data": item})
}

func (sr *ServiceRegistry) update(req *Request, store *recordstore.Store, param string) (*Response, error) {
	doc, err := req.object()
	if err != nil {
		return nil, err
	}
	if err := store.UpdateRecord(req.Context(), req.Params[param], doc); err != nil {
		return nil, err
	}
	return ok(map[string]any{"message": "Data updated successfully", "transactionId": req.Params[param]})
}

func (sr *ServiceRegistry) remove(req *Request, store *recordstore.Store, param string) (*Response, error) {
	if err := store.DeleteRecord(req.Context(), req.Params[param]); err != nil {
		return nil, err
	}
	return ok(map[string]any{"message": "Data deleted successfully", "transactionId": req.Params[param]})
}
