package api

import (
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/artpar/shopdeploy/internal/core/validation"
	"github.com/artpar/shopdeploy/internal/shell/api/openapi"
)

// OpenAPIPath serves the API document.
const OpenAPIPath = "/api/v1/openapi.json"

// newGenerator describes the routes served by Routes.
func newGenerator(secured bool) *openapi.Generator {
	g := openapi.NewGenerator(
		openapi.WithTitle("shopdeploy API"),
		openapi.WithVersion("1.0.0"),
		openapi.WithDescription("Trigger theme deploys and read run history"),
		openapi.WithBearerAuth(secured),
	)

	deployReq := g.Schema("DeployRequest", DeployRequest{})
	deployReq.Value.AdditionalProperties = openapi3.AdditionalProperties{Has: openapi3.BoolPtr(false)}
	for _, name := range []string{"from", "to"} {
		deployReq.Value.Properties[name].Value.MaxLength = openapi3.Uint64Ptr(validation.MaxRevisionLength)
	}

	errResp := g.Schema("ErrorResponse", ErrorResponse{})
	summary := g.Schema("SummaryResponse", SummaryResponse{})
	runs := g.Schema("ListRunsResponse", ListRunsResponse{})
	run := g.Schema("RunResponse", RunResponse{})
	health := g.Schema("HealthResponse", HealthResponse{})

	g.Operation(http.MethodGet, "/health", &openapi3.Operation{
		OperationID: "health",
		Summary:     "Liveness check",
		Responses: openapi.JSONResponses(map[string]openapi.ResponseSpec{
			"200": {Description: "Healthy", Schema: health},
		}),
	})

	g.Operation(http.MethodPost, "/api/v1/deploy", openapi.Secured(&openapi3.Operation{
		OperationID: "deploy",
		Summary:     "Plan and deploy changed files",
		RequestBody: openapi.JSONBody(deployReq),
		Responses: openapi.JSONResponses(map[string]openapi.ResponseSpec{
			"200": {Description: "Deploy summary; exit_code is 1 if any job failed", Schema: summary},
			"400": {Description: "Invalid request", Schema: errResp},
			"401": {Description: "Missing bearer token", Schema: errResp},
			"403": {Description: "Invalid bearer token", Schema: errResp},
			"409": {Description: "A deploy is already running", Schema: errResp},
			"500": {Description: "Deploy could not run", Schema: errResp},
			"503": {Description: "Changed files unavailable", Schema: errResp},
		}),
	}))

	g.Operation(http.MethodGet, "/api/v1/runs", &openapi3.Operation{
		OperationID: "listRuns",
		Summary:     "List recorded runs, newest first",
		Parameters: openapi3.Parameters{
			openapi.QueryInt("limit", 0),
			openapi.QueryInt("offset", 0),
			openapi.QueryString("operation"),
		},
		Responses: openapi.JSONResponses(map[string]openapi.ResponseSpec{
			"200": {Description: "Runs", Schema: runs},
			"400": {Description: "Invalid query", Schema: errResp},
			"404": {Description: "Run history is disabled", Schema: errResp},
		}),
	})

	g.Operation(http.MethodGet, "/api/v1/runs/{id}", &openapi3.Operation{
		OperationID: "getRun",
		Summary:     "Get one run with its jobs",
		Responses: openapi.JSONResponses(map[string]openapi.ResponseSpec{
			"200": {Description: "Run", Schema: run},
			"404": {Description: "Run not found or history disabled", Schema: errResp},
		}),
	})

	return g
}

// writeValidationError reports a request rejected by the API document.
func (h *Handler) writeValidationError(w http.ResponseWriter, r *http.Request, field, message string) {
	h.logger.Debug("request failed validation",
		"path", r.URL.Path,
		"field", field,
		"error", message,
	)
	h.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: message, Code: "validation_error", Field: field})
}
