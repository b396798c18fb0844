package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/odyssey-erp/cascade/internal/shared"
)

// APIError is an RFC7807 problem returned by the API.
type APIError struct {
	Status int    `json:"status"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("api: %d %s: %s", e.Status, e.Title, e.Detail)
	}
	return fmt.Sprintf("api: %d %s", e.Status, e.Title)
}

// Unwrap maps the status back onto the shared error taxonomy so callers can
// use errors.Is(err, shared.ErrNotFound) and friends.
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusNotFound:
		return shared.ErrNotFound
	case http.StatusConflict:
		switch e.Title {
		case "Invalid Transition":
			return shared.ErrInvalidTransition
		case "Version Conflict":
			return shared.ErrVersionConflict
		}
		return shared.ErrConflict
	case http.StatusUnprocessableEntity:
		return shared.ErrInsufficientStock
	case http.StatusBadRequest:
		return shared.ErrValidation
	case http.StatusUnauthorized:
		return shared.ErrUnauthorized
	}
	return nil
}

func decodeProblem(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode, Title: http.StatusText(resp.StatusCode)}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var problem APIError
	if json.Unmarshal(body, &problem) == nil && problem.Title != "" {
		apiErr.Title = problem.Title
		apiErr.Detail = problem.Detail
	}
	return apiErr
}
