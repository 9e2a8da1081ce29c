package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/shopdeploy/internal/pipeline"
	"github.com/artpar/shopdeploy/internal/shell/git"
	"github.com/artpar/shopdeploy/internal/shell/store"
)

// =============================================================================
// Test Helpers
// =============================================================================

type stubDeployer struct {
	mu      sync.Mutex
	calls   []DeployRequest
	summary *pipeline.Summary
	err     error
	block   chan struct{}
	started chan struct{}
}

func (d *stubDeployer) Deploy(ctx context.Context, from, to string, dryRun bool) (*pipeline.Summary, error) {
	d.mu.Lock()
	d.calls = append(d.calls, DeployRequest{From: from, To: to, DryRun: dryRun})
	d.mu.Unlock()
	if d.started != nil {
		close(d.started)
	}
	if d.block != nil {
		<-d.block
	}
	if d.err != nil {
		return nil, d.err
	}
	if d.summary != nil {
		return d.summary, nil
	}
	return &pipeline.Summary{Operation: pipeline.OpDeploy, DryRun: dryRun}, nil
}

func setupTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func doRequest(t *testing.T, h http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// =============================================================================
// Health Tests
// =============================================================================

func TestHealth(t *testing.T) {
	h := NewHandler(&stubDeployer{}, HandlerConfig{}, nil).Routes()

	rec := doRequest(t, h, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}

// =============================================================================
// Deploy Tests
// =============================================================================

func TestDeploy_ReturnsSummary(t *testing.T) {
	d := &stubDeployer{summary: &pipeline.Summary{
		RunID:     "run-1",
		Operation: pipeline.OpDeploy,
		Outcomes: []pipeline.Outcome{
			{Name: "acme/production", Kind: pipeline.KindDeploy, Shop: "acme", Environment: "production", Files: []string{"a.liquid"}},
			{Name: "shop10/production", Kind: pipeline.KindDeploy, Shop: "shop10", Environment: "production", ExitCode: 2, Err: errors.New("exit code 2"), Duration: 1500 * time.Millisecond},
		},
		Unmatched: []string{"other/theme/x"},
	}}
	h := NewHandler(d, HandlerConfig{}, nil).Routes()

	rec := doRequest(t, h, http.MethodPost, "/api/v1/deploy", `{"from":"abc","to":"def","dry_run":true}`)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, d.calls, 1)
	assert.Equal(t, DeployRequest{From: "abc", To: "def", DryRun: true}, d.calls[0])

	var resp SummaryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "run-1", resp.RunID)
	assert.Equal(t, 1, resp.ExitCode)
	require.Len(t, resp.Outcomes, 2)
	assert.Empty(t, resp.Outcomes[0].Error)
	assert.Equal(t, "exit code 2", resp.Outcomes[1].Error)
	assert.Equal(t, int64(1500), resp.Outcomes[1].DurationMS)
	assert.Equal(t, []string{"other/theme/x"}, resp.Unmatched)
}

func TestDeploy_EmptyBodyUsesDefaults(t *testing.T) {
	d := &stubDeployer{}
	h := NewHandler(d, HandlerConfig{}, nil).Routes()

	rec := doRequest(t, h, http.MethodPost, "/api/v1/deploy", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, d.calls, 1)
	assert.Equal(t, DeployRequest{}, d.calls[0])
}

func TestDeploy_InvalidJSON(t *testing.T) {
	d := &stubDeployer{}
	h := NewHandler(d, HandlerConfig{}, nil).Routes()

	rec := doRequest(t, h, http.MethodPost, "/api/v1/deploy", "{nope")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, d.calls)
}

func TestDeploy_RejectsOptionLikeRevision(t *testing.T) {
	d := &stubDeployer{}
	h := NewHandler(d, HandlerConfig{}, nil).Routes()

	rec := doRequest(t, h, http.MethodPost, "/api/v1/deploy", `{"from":"--output=/tmp/x"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, d.calls)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "validation_error", resp.Code)
	assert.Equal(t, "from", resp.Field)
}

func TestDeploy_RejectsBodyNotMatchingDocument(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantField string
	}{
		{"wrong type", `{"dry_run":"yes"}`, "dry_run"},
		{"revision too long", `{"to":"` + strings.Repeat("a", 257) + `"}`, "to"},
		{"unknown property", `{"branch":"main"}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &stubDeployer{}
			h := NewHandler(d, HandlerConfig{}, nil).Routes()

			rec := doRequest(t, h, http.MethodPost, "/api/v1/deploy", tt.body, "Content-Type", "application/json")

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, d.calls)
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, "validation_error", resp.Code)
			if tt.wantField != "" {
				assert.Equal(t, tt.wantField, resp.Field)
			}
		})
	}
}

func TestDeploy_SourceUnavailable(t *testing.T) {
	d := &stubDeployer{err: fmt.Errorf("%w: bad revision", git.ErrSourceUnavailable)}
	h := NewHandler(d, HandlerConfig{}, nil).Routes()

	rec := doRequest(t, h, http.MethodPost, "/api/v1/deploy", "{}")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "source_unavailable", resp.Code)
}

func TestDeploy_OtherError(t *testing.T) {
	d := &stubDeployer{err: errors.New("registry broken")}
	h := NewHandler(d, HandlerConfig{}, nil).Routes()

	rec := doRequest(t, h, http.MethodPost, "/api/v1/deploy", "{}")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestDeploy_ConcurrentRequestConflicts(t *testing.T) {
	d := &stubDeployer{block: make(chan struct{}), started: make(chan struct{})}
	h := NewHandler(d, HandlerConfig{}, nil).Routes()

	done := make(chan int)
	go func() {
		done <- doRequest(t, h, http.MethodPost, "/api/v1/deploy", "{}").Code
	}()
	<-d.started

	rec := doRequest(t, h, http.MethodPost, "/api/v1/deploy", "{}")
	assert.Equal(t, http.StatusConflict, rec.Code)

	close(d.block)
	assert.Equal(t, http.StatusOK, <-done)
}

func TestDeploy_RequiresToken(t *testing.T) {
	d := &stubDeployer{}
	h := NewHandler(d, HandlerConfig{Token: "s3cret"}, nil).Routes()

	rec := doRequest(t, h, http.MethodPost, "/api/v1/deploy", "{}")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(t, h, http.MethodPost, "/api/v1/deploy", "{}", "Authorization", "Bearer s3cret")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, d.calls, 1)

	rec = doRequest(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code, "token only guards deploy")
}

// =============================================================================
// Run Tests
// =============================================================================

func TestRuns_HistoryDisabled(t *testing.T) {
	h := NewHandler(&stubDeployer{}, HandlerConfig{}, nil).Routes()

	rec := doRequest(t, h, http.MethodGet, "/api/v1/runs", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, h, http.MethodGet, "/api/v1/runs/abc", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListRuns(t *testing.T) {
	history := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, op := range []string{pipeline.OpDeploy, pipeline.OpLintAll, pipeline.OpDeploy} {
		run := store.NewRun(op, "", "", false)
		run.StartedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, history.CreateRun(ctx, run))
	}
	h := NewHandler(&stubDeployer{}, HandlerConfig{History: history}, nil).Routes()

	rec := doRequest(t, h, http.MethodGet, "/api/v1/runs?operation=plan-and-deploy&limit=1", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp ListRunsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Limit)
	require.Len(t, resp.Runs, 1)
	assert.Equal(t, pipeline.OpDeploy, resp.Runs[0].Operation)
	assert.True(t, base.Add(2*time.Minute).Equal(resp.Runs[0].StartedAt))
}

func TestListRuns_InvalidQuery(t *testing.T) {
	h := NewHandler(&stubDeployer{}, HandlerConfig{History: setupTestStore(t)}, nil).Routes()

	rec := doRequest(t, h, http.MethodGet, "/api/v1/runs?limit=abc", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "limit", resp.Field)
}

func TestGetRun(t *testing.T) {
	history := setupTestStore(t)
	ctx := context.Background()
	run := store.NewRun(pipeline.OpDeploy, "HEAD^", "HEAD", false)
	require.NoError(t, history.CreateRun(ctx, run))
	require.NoError(t, history.AddJobRecord(ctx, &store.JobRecord{
		RunID: run.ID, Name: "acme/production", Kind: "deploy", Shop: "acme",
		Environment: "production", Files: []string{"a.liquid"}, Duration: time.Second,
	}))
	require.NoError(t, history.FinishRun(ctx, run.ID, store.RunStatusSucceeded, 0, "", time.Now()))
	h := NewHandler(&stubDeployer{}, HandlerConfig{History: history}, nil).Routes()

	rec := doRequest(t, h, http.MethodGet, "/api/v1/runs/"+run.ID, "")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp RunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, run.ID, resp.ID)
	assert.Equal(t, "succeeded", resp.Status)
	require.Len(t, resp.Jobs, 1)
	assert.Equal(t, []string{"a.liquid"}, resp.Jobs[0].Files)
	assert.Equal(t, int64(1000), resp.Jobs[0].DurationMS)
}

func TestGetRun_NotFound(t *testing.T) {
	h := NewHandler(&stubDeployer{}, HandlerConfig{History: setupTestStore(t)}, nil).Routes()

	rec := doRequest(t, h, http.MethodGet, "/api/v1/runs/missing", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "run_not_found", resp.Code)
}

// =============================================================================
// OpenAPI Tests
// =============================================================================

func TestOpenAPIDocument(t *testing.T) {
	h := NewHandler(&stubDeployer{}, HandlerConfig{Token: "s3cret"}, nil).Routes()

	rec := doRequest(t, h, http.MethodGet, OpenAPIPath, "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	doc, err := openapi3.NewLoader().LoadFromData(rec.Body.Bytes())
	require.NoError(t, err)
	require.NoError(t, doc.Validate(context.Background()))
	for _, path := range []string{"/health", "/api/v1/deploy", "/api/v1/runs", "/api/v1/runs/{id}"} {
		assert.NotNil(t, doc.Paths.Value(path), path)
	}
	deploy := doc.Paths.Value("/api/v1/deploy").Post
	require.NotNil(t, deploy)
	require.NotNil(t, deploy.Security)
	assert.Contains(t, doc.Components.SecuritySchemes, "bearerAuth")
	assert.Equal(t, uint64(256), *doc.Components.Schemas["DeployRequest"].Value.Properties["from"].Value.MaxLength)
}

// =============================================================================
// Metrics Tests
// =============================================================================

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "shopdeploy_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()
	h := NewHandler(&stubDeployer{}, HandlerConfig{Gatherer: reg}, nil).Routes()

	rec := doRequest(t, h, http.MethodGet, "/metrics", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "shopdeploy_test_total 1")
	assert.NotEqual(t, "application/json", rec.Header().Get("Content-Type"))
}
