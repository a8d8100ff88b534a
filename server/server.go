package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ahmadzakiakmal/weldledger/repository/models"
	"github.com/ahmadzakiakmal/weldledger/srvreg"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	ctypes "github.com/cometbft/cometbft/rpc/core/types"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxUpload bounds request bodies, CSV uploads included.
const maxUpload = 10 << 20

// Authenticator resolves a bearer token to an identity.
type Authenticator interface {
	Authenticate(token string) (models.Identity, error)
}

// NodeStatus is the part of the CometBFT RPC surface shown on /debug.
type NodeStatus interface {
	Status(ctx context.Context) (*ctypes.ResultStatus, error)
	ABCIInfo(ctx context.Context) (*ctypes.ResultABCIInfo, error)
}

// Options configure a WebServer. Node and Gatherer may be nil.
type Options struct {
	Addr     string
	Registry *srvreg.ServiceRegistry
	Auth     Authenticator
	Node     NodeStatus
	Gatherer prometheus.Gatherer
	Metrics  *Metrics
	Logger   cmtlog.Logger
}

// WebServer serves the role scoped API
type WebServer struct {
	httpAddr        string
	server          *http.Server
	serviceRegistry *srvreg.ServiceRegistry
	auth            Authenticator
	node            NodeStatus
	metrics         *Metrics
	logger          cmtlog.Logger
	startTime       time.Time
}

// NewWebServer builds the router and the http.Server around it.
func NewWebServer(opts Options) *WebServer {
	ws := &WebServer{
		httpAddr:        opts.Addr,
		serviceRegistry: opts.Registry,
		auth:            opts.Auth,
		node:            opts.Node,
		metrics:         opts.Metrics,
		logger:          opts.Logger.With("module", "server"),
		startTime:       time.Now(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)

	r.Get("/", ws.handleRoot)
	r.Get("/health", ws.handleHealth)
	r.Get("/debug", ws.handleDebug)
	if opts.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}
	r.HandleFunc("/api/*", ws.handleAPI)

	ws.server = &http.Server{
		Addr:              opts.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return ws
}

// Handler exposes the router, used by tests.
func (ws *WebServer) Handler() http.Handler { return ws.server.Handler }

// Start serves in the background.
func (ws *WebServer) Start() error {
	ws.logger.Info("Starting web server", "addr", ws.httpAddr)
	go func() {
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			ws.logger.Error("Web server error", "err", err)
		}
	}()
	return nil
}

// Shutdown gracefully shuts down the web server
func (ws *WebServer) Shutdown(ctx context.Context) error {
	ws.logger.Info("Shutting down web server")
	return ws.server.Shutdown(ctx)
}

// handleRoot lists the registered API routes.
func (ws *WebServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	routes := ws.serviceRegistry.Routes()
	sort.Strings(routes)

	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head><title>weldledger</title></head>\n<body>\n")
	b.WriteString("<h1>weldledger</h1>\n")
	fmt.Fprintf(&b, "<p>Uptime: %s</p>\n<h3>Endpoints</h3>\n<ul>\n", time.Since(ws.startTime).Round(time.Second))
	for _, route := range routes {
		fmt.Fprintf(&b, "<li><code>%s</code></li>\n", route)
	}
	b.WriteString("</ul>\n</body>\n</html>\n")

	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(b.String()))
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "uptime": time.Since(ws.startTime).String()})
}

// handleDebug reports ledger node status
func (ws *WebServer) handleDebug(w http.ResponseWriter, r *http.Request) {
	info := map[string]any{
		"uptime": time.Since(ws.startTime).String(),
		"routes": len(ws.serviceRegistry.Routes()),
	}
	if ws.node == nil {
		info["node_status"] = "detached"
		writeJSON(w, http.StatusOK, info)
		return
	}

	status, err := ws.node.Status(r.Context())
	if err != nil {
		info["node_status"] = "offline"
		info["consensus_error"] = err.Error()
	} else {
		info["node_status"] = "online"
		if status.SyncInfo.CatchingUp {
			info["node_status"] = "syncing"
		}
		info["node_id"] = string(status.NodeInfo.ID())
		info["latest_block_height"] = status.SyncInfo.LatestBlockHeight
		info["latest_block_time"] = status.SyncInfo.LatestBlockTime
	}

	abciInfo, err := ws.node.ABCIInfo(r.Context())
	if err != nil {
		info["abci_error"] = err.Error()
	} else {
		info["abci_version"] = abciInfo.Response.Version
		info["last_block_height"] = abciInfo.Response.LastBlockHeight
		info["last_block_app_hash"] = fmt.Sprintf("%X", abciInfo.Response.LastBlockAppHash)
	}
	writeJSON(w, http.StatusOK, info)
}

// handleAPI converts the HTTP request and dispatches it through the
// service registry.
func (ws *WebServer) handleAPI(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	req, err := ws.convert(w, r)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	response, err := req.GenerateResponse(ws.serviceRegistry)
	if err != nil {
		ws.logger.Error("Failed to generate response", "err", err)
		jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if id := middleware.GetReqID(r.Context()); id != "" {
		w.Header().Set("X-Request-Id", id)
	}
	writeResponse(w, response)

	role := "anonymous"
	if req.Identity != nil {
		role = req.Identity.Role
	}
	ws.metrics.observe(r.Method, role, response.StatusCode, start)
	ws.logger.Debug("API request processed", "method", req.Method, "path", req.Path, "status", response.StatusCode)
}

func (ws *WebServer) convert(w http.ResponseWriter, r *http.Request) (*srvreg.Request, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
	var body string
	contentType := r.Header.Get("Content-Type")

	if strings.HasPrefix(contentType, "multipart/form-data") {
		file, _, err := r.FormFile("file")
		switch {
		case err == http.ErrMissingFile:
		case err != nil:
			return nil, fmt.Errorf("failed to read upload: %w", err)
		default:
			defer file.Close()
			raw, err := io.ReadAll(file)
			if err != nil {
				return nil, fmt.Errorf("failed to read upload: %w", err)
			}
			body = string(raw)
			contentType = "text/csv"
		}
	} else {
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read request body: %w", err)
		}
		body = string(raw)
	}

	req := srvreg.NewRequest(r.Context(), r.Method, r.URL.Path, body)
	req.ContentType = contentType
	req.Query = r.URL.Query()

	if token, ok := bearer(r); ok && ws.auth != nil {
		who, err := ws.auth.Authenticate(token)
		if err != nil {
			req.AuthErr = err
		} else {
			req.Identity = &who
		}
	}
	return req, nil
}

func bearer(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(h, "Bearer ")
	token = strings.TrimSpace(token)
	return token, found && token != ""
}

// writeResponse writes a Response to http.ResponseWriter
func writeResponse(w http.ResponseWriter, resp *srvreg.Response) {
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(resp.Body)))
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write([]byte(resp.Body))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(v)
}

// jsonError writes a JSON error response
func jsonError(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}
