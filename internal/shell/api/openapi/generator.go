// Package openapi builds the OpenAPI 3.0 document of the shopdeploy API by
// reflecting on its request and response types, and validates incoming
// requests against it.
package openapi

import (
	"encoding/json"
	"net/http"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
)

// =============================================================================
// Generator
// =============================================================================

// Generator produces an OpenAPI 3.0 document from registered schemas and
// operations. The document is built once and cached.
type Generator struct {
	title       string
	version     string
	description string
	servers     []string
	bearerAuth  bool

	schemas    map[string]*openapi3.SchemaRef
	operations []operation

	mu         sync.RWMutex
	cachedSpec *openapi3.T
}

type operation struct {
	method string
	path   string
	op     *openapi3.Operation
	params openapi3.Parameters
}

// Option configures the generator.
type Option func(*Generator)

// WithTitle sets the API title.
func WithTitle(title string) Option {
	return func(g *Generator) {
		g.title = title
	}
}

// WithVersion sets the API version.
func WithVersion(version string) Option {
	return func(g *Generator) {
		g.version = version
	}
}

// WithDescription sets the API description.
func WithDescription(description string) Option {
	return func(g *Generator) {
		g.description = description
	}
}

// WithServer adds a server URL.
func WithServer(url string) Option {
	return func(g *Generator) {
		g.servers = append(g.servers, url)
	}
}

// WithBearerAuth declares the bearerAuth security scheme. Operations opt in
// with Secured.
func WithBearerAuth(enabled bool) Option {
	return func(g *Generator) {
		g.bearerAuth = enabled
	}
}

// NewGenerator creates a new OpenAPI generator.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		title:   "shopdeploy API",
		version: "1.0.0",
		schemas: make(map[string]*openapi3.SchemaRef),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Schema registers the schema of model under name and returns a reference to
// it. The reference carries the resolved value so it can validate directly.
func (g *Generator) Schema(name string, model any) *openapi3.SchemaRef {
	g.mu.Lock()
	defer g.mu.Unlock()

	schema, ok := g.schemas[name]
	if !ok {
		schema = extractSchema(reflect.TypeOf(model))
		g.schemas[name] = schema
		g.cachedSpec = nil
	}
	return &openapi3.SchemaRef{Ref: "#/components/schemas/" + name, Value: schema.Value}
}

// Operation registers op under method and path. Path parameters written as
// {name} are declared automatically.
func (g *Generator) Operation(method, path string, op *openapi3.Operation) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.operations = append(g.operations, operation{
		method: method,
		path:   path,
		op:     op,
		params: pathParameters(path),
	})
	g.cachedSpec = nil
}

// Generate produces the complete OpenAPI 3.0 document.
func (g *Generator) Generate() *openapi3.T {
	g.mu.RLock()
	if g.cachedSpec != nil {
		spec := g.cachedSpec
		g.mu.RUnlock()
		return spec
	}
	g.mu.RUnlock()

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.cachedSpec != nil {
		return g.cachedSpec
	}

	spec := &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:       g.title,
			Version:     g.version,
			Description: g.description,
		},
		Servers: make(openapi3.Servers, 0, len(g.servers)),
		Paths:   &openapi3.Paths{},
		Components: &openapi3.Components{
			Schemas: make(openapi3.Schemas, len(g.schemas)),
		},
	}

	for _, url := range g.servers {
		spec.Servers = append(spec.Servers, &openapi3.Server{URL: url})
	}
	for name, schema := range g.schemas {
		spec.Components.Schemas[name] = schema
	}
	if g.bearerAuth {
		spec.Components.SecuritySchemes = openapi3.SecuritySchemes{
			"bearerAuth": &openapi3.SecuritySchemeRef{
				Value: openapi3.NewJWTSecurityScheme().WithBearerFormat("opaque"),
			},
		}
	}

	for _, o := range g.operations {
		item := spec.Paths.Value(o.path)
		if item == nil {
			item = &openapi3.PathItem{Parameters: o.params}
			spec.Paths.Set(o.path, item)
		}
		op := o.op
		if !g.bearerAuth {
			op.Security = nil
		}
		item.SetOperation(o.method, op)
	}

	g.cachedSpec = spec
	return spec
}

// Handler returns an HTTP handler that serves the document as JSON.
func (g *Generator) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		spec := g.Generate()

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(spec); err != nil {
			http.Error(w, "Failed to encode OpenAPI spec", http.StatusInternalServerError)
		}
	}
}

// Secured marks op as requiring the bearerAuth scheme.
func Secured(op *openapi3.Operation) *openapi3.Operation {
	op.Security = &openapi3.SecurityRequirements{openapi3.NewSecurityRequirement().Authenticate("bearerAuth")}
	return op
}

// =============================================================================
// Operation Helpers
// =============================================================================

// JSONResponses builds a Responses object mapping status codes to JSON
// bodies described by schema.
func JSONResponses(byStatus map[string]ResponseSpec) *openapi3.Responses {
	codes := make([]string, 0, len(byStatus))
	for code := range byStatus {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	responses := &openapi3.Responses{}
	for _, code := range codes {
		spec := byStatus[code]
		resp := openapi3.NewResponse().WithDescription(spec.Description)
		if spec.Schema != nil {
			resp = resp.WithJSONSchemaRef(spec.Schema)
		}
		responses.Set(code, &openapi3.ResponseRef{Value: resp})
	}
	return responses
}

// ResponseSpec describes one response of an operation.
type ResponseSpec struct {
	Description string
	Schema      *openapi3.SchemaRef
}

// JSONBody builds an optional JSON request body.
func JSONBody(schema *openapi3.SchemaRef) *openapi3.RequestBodyRef {
	return &openapi3.RequestBodyRef{
		Value: openapi3.NewRequestBody().WithJSONSchemaRef(schema),
	}
}

// QueryInt declares an optional integer query parameter with a lower bound.
func QueryInt(name string, min float64) *openapi3.ParameterRef {
	schema := openapi3.NewIntegerSchema().WithMin(min)
	return &openapi3.ParameterRef{Value: openapi3.NewQueryParameter(name).WithSchema(schema)}
}

// QueryString declares an optional string query parameter.
func QueryString(name string) *openapi3.ParameterRef {
	return &openapi3.ParameterRef{Value: openapi3.NewQueryParameter(name).WithSchema(openapi3.NewStringSchema())}
}

func pathParameters(path string) openapi3.Parameters {
	var params openapi3.Parameters
	for _, seg := range strings.Split(path, "/") {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			name := strings.TrimSuffix(strings.TrimPrefix(seg, "{"), "}")
			params = append(params, &openapi3.ParameterRef{
				Value: openapi3.NewPathParameter(name).WithSchema(openapi3.NewStringSchema()),
			})
		}
	}
	return params
}

// =============================================================================
// Schema Generation
// =============================================================================

// extractSchema converts a Go struct type to an object schema. Fields without
// omitempty are required.
func extractSchema(t reflect.Type) *openapi3.SchemaRef {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	schema := &openapi3.Schema{
		Type:       &openapi3.Types{"object"},
		Properties: make(openapi3.Schemas),
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		jsonTag := field.Tag.Get("json")
		if jsonTag == "-" {
			continue
		}

		name := field.Name
		omitempty := false
		if jsonTag != "" {
			parts := strings.Split(jsonTag, ",")
			if parts[0] != "" {
				name = parts[0]
			}
			for _, p := range parts[1:] {
				if p == "omitempty" {
					omitempty = true
				}
			}
		}

		if propSchema := goTypeToSchema(field.Type); propSchema != nil {
			schema.Properties[name] = propSchema
			if !omitempty {
				schema.Required = append(schema.Required, name)
			}
		}
	}

	return &openapi3.SchemaRef{Value: schema}
}

// goTypeToSchema converts a Go type to an OpenAPI schema.
func goTypeToSchema(t reflect.Type) *openapi3.SchemaRef {
	switch t.Kind() {
	case reflect.String:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}}

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int32"}}

	case reflect.Int64:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int64"}}

	case reflect.Bool:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"boolean"}}}

	case reflect.Slice, reflect.Array:
		return &openapi3.SchemaRef{
			Value: &openapi3.Schema{
				Type:  &openapi3.Types{"array"},
				Items: goTypeToSchema(t.Elem()),
			},
		}

	case reflect.Ptr:
		schema := goTypeToSchema(t.Elem())
		if schema != nil && schema.Value != nil {
			schema.Value.Nullable = true
		}
		return schema

	case reflect.Struct:
		if t == reflect.TypeOf(time.Time{}) {
			return &openapi3.SchemaRef{
				Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "date-time"},
			}
		}
		return extractSchema(t)

	default:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"object"}}}
	}
}
