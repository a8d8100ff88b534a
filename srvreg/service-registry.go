package srvreg

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ahmadzakiakmal/weldledger/access"
	"github.com/ahmadzakiakmal/weldledger/account"
	"github.com/ahmadzakiakmal/weldledger/apperr"
	"github.com/ahmadzakiakmal/weldledger/dashboard"
	"github.com/ahmadzakiakmal/weldledger/ledger/gateway"
	"github.com/ahmadzakiakmal/weldledger/materials"
	"github.com/ahmadzakiakmal/weldledger/recordstore"
	"github.com/ahmadzakiakmal/weldledger/repository"
	"github.com/ahmadzakiakmal/weldledger/repository/models"
	"github.com/ahmadzakiakmal/weldledger/workflow"
	cmtlog "github.com/cometbft/cometbft/libs/log"
)

// Request represents an incoming API request
type Request struct {
	Method      string
	Path        string
	Body        string
	ContentType string
	Query       url.Values
	Params      map[string]string
	Identity    *models.Identity
	// AuthErr is why a presented bearer token did not resolve.
	AuthErr     error

	ctx context.Context
}

// NewRequest builds a request bound to ctx.
func NewRequest(ctx context.Context, method, path, body string) *Request {
	return &Request{Method: method, Path: path, Body: body, Query: url.Values{}, Params: map[string]string{}, ctx: ctx}
}

// Context returns the request context, never nil.
func (req *Request) Context() context.Context {
	if req.ctx == nil {
		return context.Background()
	}
	return req.ctx
}

// Decode unmarshals the JSON body into v.
func (req *Request) Decode(v any) error {
	if strings.TrimSpace(req.Body) == "" {
		return apperr.Validation("Request body is required")
	}
	if err := json.Unmarshal([]byte(req.Body), v); err != nil {
		return apperr.Validation("Invalid request body: %s", err.Error())
	}
	return nil
}

// QueryInt reads an integer query parameter, fallback when absent or
// malformed.
func (req *Request) QueryInt(name string, fallback int) int {
	n, err := strconv.Atoi(req.Query.Get(name))
	if err != nil {
		return fallback
	}
	return n
}

// Response represents an HTTP response
type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       string
}

// HandlerFunc is a function that handles a request
type HandlerFunc func(*Request) (*Response, error)

// Public marks a route that needs no identity.
var Public []string

// AnyRole admits every authenticated caller.
var AnyRole = []string{"*"}

type route struct {
	pattern string
	roles   []string
	handler HandlerFunc
}

func (rt route) public() bool { return rt.roles == nil }

func (rt route) admits(role string) bool {
	for _, r := range rt.roles {
		if r == "*" || r == role {
			return true
		}
	}
	return false
}

// Services are the components handlers call into.
type Services struct {
	Repo      *repository.Repository
	Accounts  *account.Service
	Access    *access.Service
	Workflow  *workflow.Service
	Dashboard *dashboard.Registry
	Products  *recordstore.Store
	Designs   *recordstore.Store
	Analyses  *recordstore.Store
	Ledger    *gateway.Client
	Predictor materials.Predictor
}

// ServiceRegistry manages all route handlers
type ServiceRegistry struct {
	routes map[string][]route
	svc    Services
	logger cmtlog.Logger
}

var defaultHeaders = map[string]string{
	"Content-Type": "application/json",
}

func NewServiceRegistry(svc Services, logger cmtlog.Logger) *ServiceRegistry {
	return &ServiceRegistry{
		routes: make(map[string][]route),
		svc:    svc,
		logger: logger.With("module", "srvreg"),
	}
}

// RegisterHandler registers a handler for method and pattern. roles lists
// who may call it; Public (nil) needs no identity.
func (sr *ServiceRegistry) RegisterHandler(method, pattern string, roles []string, handler HandlerFunc) {
	sr.routes[method] = append(sr.routes[method], route{pattern: pattern, roles: roles, handler: handler})
	sr.logger.Debug("Registered handler", "method", method, "path", pattern)
}

// Routes lists every registered "METHOD pattern".
func (sr *ServiceRegistry) Routes() []string {
	var out []string
	for method, routes := range sr.routes {
		for _, rt := range routes {
			out = append(out, method+" "+rt.pattern)
		}
	}
	return out
}

// lookup finds the route for method and path. Exact patterns win over
// parameterised ones.
func (sr *ServiceRegistry) lookup(method, path string) (route, map[string]string, bool) {
	routes := sr.routes[method]
	for _, rt := range routes {
		if rt.pattern == path {
			return rt, map[string]string{}, true
		}
	}
	for _, rt := range routes {
		if params, ok := matchPath(rt.pattern, path); ok {
			return rt, params, true
		}
	}
	return route{}, nil, false
}

// matchPath checks if a path matches a pattern with parameters
// It supports patterns like "/grant-access/:employeeId"
func matchPath(pattern, path string) (map[string]string, bool) {
	patternParts := strings.Split(pattern, "/")
	pathParts := strings.Split(path, "/")

	if len(patternParts) != len(pathParts) {
		return nil, false
	}

	params := make(map[string]string)
	for i := 0; i < len(patternParts); i++ {
		if strings.HasPrefix(patternParts[i], ":") {
			if pathParts[i] == "" {
				return nil, false
			}
			value, err := url.PathUnescape(pathParts[i])
			if err != nil {
				return nil, false
			}
			params[patternParts[i][1:]] = value
			continue
		}
		if patternParts[i] != pathParts[i] {
			return nil, false
		}
	}
	return params, true
}

// GenerateResponse routes the request, enforces the route's roles and runs
// the handler. Handler errors are rendered as JSON with the status of their
// code.
func (req *Request) GenerateResponse(sr *ServiceRegistry) (*Response, error) {
	rt, params, found := sr.lookup(req.Method, req.Path)
	if !found {
		return &Response{
			StatusCode: http.StatusNotFound,
			Headers:    defaultHeaders,
			Body:       fmt.Sprintf(`{"error":"Service not found for %s %s"}`, req.Method, req.Path),
		}, nil
	}
	req.Params = params

	if !rt.public() {
		if req.Identity == nil {
			if req.AuthErr != nil {
				return errorResponse(req.AuthErr), nil
			}
			return errorResponse(apperr.New(apperr.CodeUnauthorized, "Please login to access this resource")), nil
		}
		if !rt.admits(req.Identity.Role) {
			return errorResponse(apperr.Forbidden("Role %s may not call %s %s", req.Identity.Role, req.Method, rt.pattern)), nil
		}
	}

	response, err := rt.handler(req)
	if err != nil {
		if _, tagged := apperr.As(err); !tagged {
			sr.logger.Error("Handler failed", "method", req.Method, "path", rt.pattern, "err", err)
		}
		return errorResponse(err), nil
	}
	return response, nil
}

// RegisterDefaultServices sets up every API route.
func (sr *ServiceRegistry) RegisterDefaultServices() {
	sr.registerAuth()
	sr.registerAdmin()
	sr.registerAnalyst()
	sr.registerDesign()
	sr.registerProduction()
	sr.registerQuality()
	sr.RegisterHandler(http.MethodGet, "/api/dashboard", AnyRole, sr.DashboardHandler)
	sr.logger.Info("All services registered", "routes", len(sr.Routes()))
}

func (sr *ServiceRegistry) DashboardHandler(req *Request) (*Response, error) {
	data, err := sr.svc.Dashboard.Summarize(req.Context(), *req.Identity)
	if err != nil {
		return nil, err
	}
	return jsonResponse(http.StatusOK, map[string]any{"message": "Dashboard data fetched successfully", "dashboardData": data})
}

func jsonResponse(status int, v any) (*Response, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "", "Failed to encode response")
	}
	return &Response{StatusCode: status, Headers: defaultHeaders, Body: string(body)}, nil
}

type errorBody struct {
	Error  string      `json:"error"`
	Code   apperr.Code `json:"code"`
	Stage  string      `json:"stage,omitempty"`
	Detail string      `json:"detail,omitempty"`
}

// errorResponse renders err. Untagged errors become a generic 500 so their
// text never reaches the caller.
func errorResponse(err error) *Response {
	e, ok := apperr.As(err)
	if !ok {
		e = apperr.New(apperr.CodeInternal, "Internal server error")
	}
	b := errorBody{Error: e.Message, Code: e.Code, Stage: e.Stage}
	if e.Code == apperr.CodeMissingFields || e.Code == apperr.CodePageOutOfRange || e.Code == apperr.CodeValidation {
		b.Detail = e.Detail
	}
	body, _ := json.Marshal(b)
	return &Response{StatusCode: apperr.HTTPStatus(e.Code), Headers: defaultHeaders, Body: string(body)}
}
