package towns

import (
	"errors"
	"fmt"
	"net/http"
)

// FetchError describes a failed call to the Towns API: transport failure,
// non-2xx status or an undecodable body.
type FetchError struct {
	Op         string
	Method     string
	URL        string
	StatusCode int    // 0 when no response was received
	Body       string // truncated response body, if any
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Body != "":
		return fmt.Sprintf("towns %s: %s %s: status %d: %s", e.Op, e.Method, e.URL, e.StatusCode, e.Body)
	case e.StatusCode != 0:
		return fmt.Sprintf("towns %s: %s %s: status %d", e.Op, e.Method, e.URL, e.StatusCode)
	default:
		return fmt.Sprintf("towns %s: %s %s: %v", e.Op, e.Method, e.URL, e.Err)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

// Temporary reports whether retrying later may succeed: no response at all,
// 429, or a 5xx status.
func (e *FetchError) Temporary() bool {
	return e.StatusCode == 0 || e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// IsFetchError reports whether err (or anything it wraps) is a *FetchError.
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}
