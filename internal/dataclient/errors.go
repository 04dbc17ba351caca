package dataclient

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNoCredentials is returned when an operation needs tokens the client
// does not hold.
var ErrNoCredentials = errors.New("dataclient: not signed in")

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("dataclient: server returned %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("dataclient: server returned %d %s: %s", e.Status, e.Code, e.Message)
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

func isUnauthorized(err error) bool {
	return IsStatus(err, http.StatusUnauthorized)
}
