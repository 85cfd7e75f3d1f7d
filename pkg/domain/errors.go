package domain

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

var (
	ErrNotConfigured    = NewErr("CONFIG_ERROR", "store not configured", http.StatusInternalServerError)
	ErrInvalidKey       = NewErr("AUTH_ERROR", "invalid deleteKey", http.StatusForbidden)
	ErrNotFound         = NewErr("NOT_FOUND", "not found", http.StatusNotFound)
	ErrRateLimited      = NewErr("RATE_LIMITED", "rate limited", http.StatusTooManyRequests)
	ErrConflict         = NewErr("CONFLICT", "entry changed, retry", http.StatusConflict)
	ErrIDRequired       = Validation("id required")
	ErrKeyRequired      = NewErr("AUTH_ERROR", "deleteKey required", http.StatusForbidden)
	ErrPromptMismatch   = Validation("promptId mismatch")
	ErrKindChanged      = Validation("entry kind cannot change")
	ErrInternal         = NewErr("INTERNAL_ERROR", "internal error", http.StatusInternalServerError)
	ErrBodyTooLarge     = NewErr("PAYLOAD_TOO_LARGE", "request body too large", http.StatusRequestEntityTooLarge)
	ErrMethodNotAllowed = NewErr("METHOD_NOT_ALLOWED", "method not allowed", http.StatusMethodNotAllowed)
)

type Err struct {
	Code   string `json:"code"`
	Msg    string `json:"message"`
	Status int    `json:"-"`
}

func (e *Err) Error() string { return e.Msg }
func NewErr(code, msg string, status int) *Err {
	return &Err{Code: code, Msg: msg, Status: status}
}

// Validation builds a 400 error whose message is shown to the caller as is.
func Validation(msg string) *Err {
	return NewErr("VALIDATION_ERROR", msg, http.StatusBadRequest)
}

// StoreError is any non-success reply from the backing list/counter store.
type StoreError struct {
	Op     string
	Msg    string
	Status int
}

func (e *StoreError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("store %s: %s (status %d)", e.Op, e.Msg, e.Status)
	}
	return fmt.Sprintf("store %s: %s", e.Op, e.Msg)
}

func NewStoreError(op string, err error) *StoreError {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return se
	}
	return &StoreError{Op: op, Msg: err.Error()}
}

func Status(err error) int {
	if e, ok := errors.Cause(err).(*Err); ok {
		return e.Status
	}
	var se *StoreError
	if errors.As(err, &se) {
		return http.StatusInternalServerError
	}
	var e *Err
	if errors.As(err, &e) {
		return e.Status
	}
	return http.StatusInternalServerError
}

// Message is the text returned to clients. Store failures pass their message
// through; anything unclassified is reported generically.
func Message(err error) string {
	if e, ok := errors.Cause(err).(*Err); ok {
		return e.Msg
	}
	var se *StoreError
	if errors.As(err, &se) {
		return se.Error()
	}
	var e *Err
	if errors.As(err, &e) {
		return e.Msg
	}
	return ErrInternal.Msg
}
