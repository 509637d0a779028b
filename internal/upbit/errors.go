package upbit

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrorKind buckets exchange failures into the retry/fatal taxonomy.
type ErrorKind int

const (
	KindAuthentication ErrorKind = iota + 1
	KindPermission
	KindNotFound
	KindRateLimit
	KindInvalidRequest
	KindExchange
)

func (k ErrorKind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication"
	case KindPermission:
		return "permission"
	case KindNotFound:
		return "not_found"
	case KindRateLimit:
		return "rate_limit"
	case KindInvalidRequest:
		return "invalid_request"
	case KindExchange:
		return "exchange"
	}
	return "unknown"
}

// ErrRetryExhausted is returned when a transient failure outlives the retry
// budget.
var ErrRetryExhausted = errors.New("upbit: request exceeded retry limit")

// APIError is a classified, non-retryable exchange failure.
type APIError struct {
	Kind    ErrorKind
	Status  int
	Name    string
	Message string
}

func (e *APIError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("upbit: %s (%d %s): %s", e.Kind, e.Status, e.Name, e.Message)
	}
	return fmt.Sprintf("upbit: %s (%d): %s", e.Kind, e.Status, e.Message)
}

// Fatal reports whether the failure cannot self-heal and must halt the run.
func (e *APIError) Fatal() bool {
	return e.Kind == KindAuthentication || e.Kind == KindPermission
}

type errorBody struct {
	Error struct {
		Name    json.RawMessage `json:"name"`
		Message string          `json:"message"`
	} `json:"error"`
}

// classifyStatus maps an HTTP status plus response body into the taxonomy.
func classifyStatus(status int, body []byte) *APIError {
	name, message := "", ""
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		name = string(eb.Error.Name)
		message = eb.Error.Message
	}
	if message == "" {
		message = string(body)
	}
	kind := KindExchange
	switch {
	case status == 401:
		kind = KindAuthentication
	case status == 403:
		kind = KindPermission
	case status == 404:
		kind = KindNotFound
	case status == 429:
		kind = KindRateLimit
	case status >= 400 && status < 500:
		kind = KindInvalidRequest
	}
	return &APIError{Kind: kind, Status: status, Name: name, Message: message}
}
