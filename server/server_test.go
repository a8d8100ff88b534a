package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ahmadzakiakmal/weldledger/access"
	"github.com/ahmadzakiakmal/weldledger/account"
	"github.com/ahmadzakiakmal/weldledger/dashboard"
	"github.com/ahmadzakiakmal/weldledger/encryption"
	"github.com/ahmadzakiakmal/weldledger/ledger"
	"github.com/ahmadzakiakmal/weldledger/ledger/gateway"
	"github.com/ahmadzakiakmal/weldledger/ledger/ledgertest"
	"github.com/ahmadzakiakmal/weldledger/notify"
	"github.com/ahmadzakiakmal/weldledger/recordstore"
	"github.com/ahmadzakiakmal/weldledger/repository"
	"github.com/ahmadzakiakmal/weldledger/server"
	"github.com/ahmadzakiakmal/weldledger/srvreg"
	"github.com/ahmadzakiakmal/weldledger/workflow"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T) (*httptest.Server, *account.Service) {
	t.Helper()
	ctx := context.Background()
	logger := cmtlog.NewNopLogger()

	repo, err := repository.OpenSQLite(ctx, filepath.Join(t.TempDir(), "server_test.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	codec, err := encryption.NewCodec(bytes.Repeat([]byte{5}, encryption.KeySize))
	require.NoError(t, err)
	reg := prometheus.NewRegistry()
	client := gateway.NewClient(ledgertest.New(t), gateway.DefaultConfig(), logger, gateway.NewMetrics(reg))
	designs := recordstore.New(codec, client.Table(ledger.DesignData))

	accounts := account.NewService(repo, account.NewSigner("access", "refresh"), notify.NewLogNotifier(logger), logger)
	registry := srvreg.NewServiceRegistry(srvreg.Services{
		Repo:      repo,
		Accounts:  accounts,
		Access:    access.NewService(repo, nil, logger),
		Workflow:  workflow.NewService(repo, logger),
		Dashboard: dashboard.NewRegistry(dashboard.Sources{Repo: repo, Designs: designs}),
		Products:  recordstore.New(codec, client.Table(ledger.Products)),
		Designs:   designs,
		Analyses:  recordstore.New(codec, client.Table(ledger.AnalysisData)),
		Ledger:    client,
	}, logger)
	registry.RegisterDefaultServices()

	ws := server.NewWebServer(server.Options{
		Registry: registry,
		Auth:     accounts,
		Gatherer: reg,
		Metrics:  server.NewMetrics(reg),
		Logger:   logger,
	})
	ts := httptest.NewServer(ws.Handler())
	t.Cleanup(ts.Close)
	return ts, accounts
}

func do(t *testing.T, req *http.Request) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp, out
}

func login(t *testing.T, ts *httptest.Server, accounts *account.Service) string {
	t.Helper()
	admin, err := accounts.EnsureAdmin(context.Background(), "Admin", "admin@example.com", "bootstrap")
	require.NoError(t, err)

	body := strings.NewReader(`{"username":"` + admin.ID + `","password":"bootstrap"}`)
	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/auth/login", body)
	req.Header.Set("Content-Type", "application/json")
	resp, out := do(t, req)
	require.Equal(t, http.StatusOK, resp.StatusCode, out)
	return out["accesstoken"].(string)
}

func TestBearerResolution(t *testing.T) {
	ts, accounts := newServer(t)

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/dashboard", nil)
	resp, out := do(t, req)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "UNAUTHORIZED", out["code"])

	req, _ = http.NewRequest(http.MethodGet, ts.URL+"/api/dashboard", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	resp, out = do(t, req)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Invalid token", out["error"])

	token := login(t, ts, accounts)
	req, _ = http.NewRequest(http.MethodGet, ts.URL+"/api/dashboard", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, out = do(t, req)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, out, "dashboardData")
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))
}

func TestMultipartCSVUpload(t *testing.T) {
	ts, accounts := newServer(t)
	token := login(t, ts, accounts)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "products.csv")
	require.NoError(t, err)
	_, err = fw.Write([]byte("productId,productName\nP-1,Frame\nP-2,Axle\n"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/admin/upload-csv", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp, out := do(t, req)
	require.Equal(t, http.StatusCreated, resp.StatusCode, out)
	assert.Len(t, out["transactionIds"], 2)

	req, _ = http.NewRequest(http.MethodGet, ts.URL+"/api/admin/get-products-data?limit=1", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, out = do(t, req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(2), out["pagination"].(map[string]any)["totalPages"])
}

func TestOperationalEndpoints(t *testing.T) {
	ts, _ := newServer(t)

	resp, out := do(t, mustGet(t, ts.URL+"/health"))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", out["status"])

	resp, out = do(t, mustGet(t, ts.URL+"/debug"))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "detached", out["node_status"])

	// One API call so the request counter has a sample.
	do(t, mustGet(t, ts.URL+"/api/dashboard"))

	r, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer r.Body.Close()
	metrics, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	assert.Contains(t, string(metrics), "weldledger_api_requests_total")

	r2, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer r2.Body.Close()
	page, err := io.ReadAll(r2.Body)
	require.NoError(t, err)
	assert.Contains(t, string(page), "POST /api/auth/login")
}

func mustGet(t *testing.T, url string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	return req
}
