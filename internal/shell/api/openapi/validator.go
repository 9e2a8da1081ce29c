package openapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
)

// ErrorFunc writes the response for a request that failed validation.
// field names the offending parameter or body property, if known.
type ErrorFunc func(w http.ResponseWriter, r *http.Request, field, message string)

// Validator checks requests against the generated document.
type Validator struct {
	router  routers.Router
	onError ErrorFunc
}

// NewValidator builds a validator over the document of g.
func NewValidator(g *Generator, onError ErrorFunc) (*Validator, error) {
	router, err := gorillamux.NewRouter(g.Generate())
	if err != nil {
		return nil, err
	}
	return &Validator{router: router, onError: onError}, nil
}

// Middleware validates parameters and JSON bodies of documented routes.
// Requests for routes the document does not describe pass through.
// A body sent without a Content-Type is treated as JSON.
// Authentication is left to the route's own middleware.
func (v *Validator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route, pathParams, err := v.router.FindRoute(r)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		if r.Header.Get("Content-Type") == "" {
			r.Header.Set("Content-Type", "application/json")
		}

		input := &openapi3filter.RequestValidationInput{
			Request:    r,
			PathParams: pathParams,
			Route:      route,
			Options: &openapi3filter.Options{
				AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
			},
		}
		if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
			v.onError(w, r, Field(err), Message(err))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Field returns the parameter name or dotted body property path that
// failed validation, or "".
func Field(err error) string {
	var schemaErr *openapi3.SchemaError
	if errors.As(err, &schemaErr) {
		if ptr := schemaErr.JSONPointer(); len(ptr) > 0 {
			return strings.Join(ptr, ".")
		}
	}
	var reqErr *openapi3filter.RequestError
	if errors.As(err, &reqErr) && reqErr.Parameter != nil {
		return reqErr.Parameter.Name
	}
	return ""
}

// Message returns a short description of a validation error.
func Message(err error) string {
	var schemaErr *openapi3.SchemaError
	if errors.As(err, &schemaErr) && schemaErr.Reason != "" {
		return schemaErr.Reason
	}
	var reqErr *openapi3filter.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.Reason != "" {
			return reqErr.Reason
		}
		if reqErr.Err != nil {
			return reqErr.Err.Error()
		}
	}
	return err.Error()
}
