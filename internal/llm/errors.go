package llm

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a reasoning-call failure
type Kind string

const (
	// KindTransient covers network failures and 5xx responses. The next
	// loop tick may succeed.
	KindTransient Kind = "transient"
	// KindRegionalBlock is an HTTP 451. The affected component switches
	// permanently to its synthetic path.
	KindRegionalBlock Kind = "regional_block"
	// KindBadRequest covers 4xx responses other than auth
	KindBadRequest Kind = "bad_request"
	// KindAuth covers 401 and 403 responses
	KindAuth Kind = "auth"
)

// Error is a classified reasoning-call failure
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("llm %s (status %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("llm %s: %s", e.Kind, e.Message)
}

// Unwrap exposes the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether a later attempt could succeed
func (e *Error) IsRetryable() bool {
	return e.Kind == KindTransient
}

// classifyStatus maps an HTTP status to an error kind
func classifyStatus(status int) Kind {
	switch {
	case status == http.StatusUnavailableForLegalReasons:
		return KindRegionalBlock
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status >= 400 && status < 500:
		return KindBadRequest
	default:
		return KindTransient
	}
}

// IsRegionalBlock reports whether err is a regional-block failure
func IsRegionalBlock(err error) bool {
	var llmErr *Error
	return errors.As(err, &llmErr) && llmErr.Kind == KindRegionalBlock
}
