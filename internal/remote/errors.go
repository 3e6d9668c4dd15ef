package remote

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failed request.
type Kind int

const (
	KindNetwork Kind = iota + 1
	KindAuth
	KindConflictOrNotFound
	KindValidation
	KindServer
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindAuth:
		return "auth"
	case KindConflictOrNotFound:
		return "conflict_or_not_found"
	case KindValidation:
		return "validation"
	case KindServer:
		return "server"
	}
	return "unknown"
}

// Error is returned by every Client call that fails.
type Error struct {
	Kind   Kind
	Status int
	Method string
	Path   string
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s %s: %s (status %d): %v", e.Method, e.Path, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s %s: %s: %v", e.Method, e.Path, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func kindOf(status int) Kind {
	switch {
	case status == http.StatusUnauthorized:
		return KindAuth
	case status == http.StatusNotFound, status == http.StatusConflict, status == http.StatusGone:
		return KindConflictOrNotFound
	case status >= 500:
		return KindServer
	}
	return KindValidation
}

func isKind(err error, k Kind) bool {
	var re *Error
	return errors.As(err, &re) && re.Kind == k
}

// IsAuth reports whether err is an authentication failure that survived a refresh.
func IsAuth(err error) bool { return isKind(err, KindAuth) }

// IsNotFound reports whether the server said the resource is gone or conflicting.
func IsNotFound(err error) bool { return isKind(err, KindConflictOrNotFound) }

// IsNetwork reports whether the request never got an HTTP response.
func IsNetwork(err error) bool { return isKind(err, KindNetwork) }
