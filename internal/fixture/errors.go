package fixture

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/multierr"
)

// APIError is a non-2xx API response.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
	Errors     []Reason
}

// Reason is one entry of the API's errors array.
type Reason struct {
	Field  string `json:"field,omitempty"`
	Reason string `json:"reason"`
}

func newAPIError(method, path string, status int, body []byte) *APIError {
	e := &APIError{Method: method, Path: path, StatusCode: status, Body: string(body)}
	var parsed struct {
		Errors []Reason `json:"errors"`
	}
	if json.Unmarshal(body, &parsed) == nil {
		e.Errors = parsed.Errors
	}
	return e
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode))
	if len(e.Errors) == 0 {
		return msg
	}
	reasons := make([]string, len(e.Errors))
	for i, r := range e.Errors {
		if r.Field != "" {
			reasons[i] = r.Field + ": " + r.Reason
		} else {
			reasons[i] = r.Reason
		}
	}
	return msg + ": " + strings.Join(reasons, "; ")
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// CleanupError is one resource that could not be removed.
type CleanupError struct {
	Kind  Kind
	ID    string
	Label string
	Err   error
}

func (e *CleanupError) Error() string {
	if e.Label != "" {
		return fmt.Sprintf("cleanup %s %s (%s): %v", e.Kind, e.ID, e.Label, e.Err)
	}
	return fmt.Sprintf("cleanup %s %s: %v", e.Kind, e.ID, e.Err)
}

func (e *CleanupError) Unwrap() error {
	return e.Err
}

// Result is the outcome of removing one resource.
type Result struct {
	Resource Resource
	Err      error
}

// CleanupReport collects the outcome of a cleanup run. Cleanup never
// stops at the first failure.
type CleanupReport struct {
	Results []Result
}

func (r *CleanupReport) add(res Resource, err error) {
	r.Results = append(r.Results, Result{Resource: res, Err: err})
}

// Merge appends o's results to r.
func (r *CleanupReport) Merge(o CleanupReport) {
	r.Results = append(r.Results, o.Results...)
}

// Removed returns the resources that were deleted.
func (r CleanupReport) Removed() []Resource {
	var out []Resource
	for _, res := range r.Results {
		if res.Err == nil {
			out = append(out, res.Resource)
		}
	}
	return out
}

// Errors returns one CleanupError per failed resource.
func (r CleanupReport) Errors() []*CleanupError {
	var out []*CleanupError
	for _, res := range r.Results {
		if res.Err == nil {
			continue
		}
		out = append(out, &CleanupError{
			Kind:  res.Resource.Kind,
			ID:    res.Resource.ID,
			Label: res.Resource.Label,
			Err:   res.Err,
		})
	}
	return out
}

// Err combines every failure, or returns nil.
func (r CleanupReport) Err() error {
	var err error
	for _, ce := range r.Errors() {
		err = multierr.Append(err, ce)
	}
	return err
}
