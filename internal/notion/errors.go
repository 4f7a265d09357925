package notion

import (
	"errors"
	"fmt"
)

// ErrNoToken is returned when a request is attempted without an integration token.
var ErrNoToken = errors.New("notion: integration token not configured")

// APIError is a non-2xx response. Notion error bodies look like
// {"object":"error","status":404,"code":"object_not_found","message":"..."}.
type APIError struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("notion: http %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("notion: %s (%d): %s", e.Code, e.Status, e.Message)
}

// IsNotFound reports whether err is a Notion 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == 404
}
