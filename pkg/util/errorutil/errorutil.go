package errorutil

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind groups error codes into the categories callers branch on.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindNotFound          Kind = "not_found"
	KindConflict          Kind = "conflict"
	KindAuth              Kind = "auth"
	KindAuthorization     Kind = "authorization"
	KindInvalidTransition Kind = "invalid_transition"
	KindRateLimited       Kind = "rate_limited"
	KindInternal          Kind = "internal"
)

// Machine-readable error codes.
const (
	CodeValidation         = "VALIDATION_FAILED"
	CodeNotFound           = "NOT_FOUND"
	CodeSlotTaken          = "SLOT_TAKEN"
	CodeEmailTaken         = "EMAIL_TAKEN"
	CodeAlreadyApplied     = "ALREADY_APPLIED"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeInvalidToken       = "INVALID_TOKEN"
	CodeTokenExpired       = "TOKEN_EXPIRED"
	CodeUnknownIdentity    = "UNKNOWN_IDENTITY"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeForbidden          = "FORBIDDEN"
	CodeInvalidTransition  = "INVALID_TRANSITION"
	CodeRateLimited        = "RATE_LIMITED"
	CodeInternal           = "INTERNAL_ERROR"
)

// DomainError standardizes application errors.
type DomainError struct {
	Kind       Kind
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(kind Kind, code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Kind: kind, Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(KindValidation, CodeValidation, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Kind:       KindNotFound,
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError(KindAuth, CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

// NewAuthError builds an authentication failure with a specific code.
func NewAuthError(code, message string) error {
	return NewDomainError(KindAuth, code, message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(KindAuthorization, CodeForbidden, message, http.StatusForbidden, nil)
}

// NewConflict builds a conflict error; code distinguishes SLOT_TAKEN, EMAIL_TAKEN and ALREADY_APPLIED.
func NewConflict(code, message string, details map[string]any) error {
	return NewDomainError(KindConflict, code, message, http.StatusConflict, details)
}

func NewSlotTaken(details map[string]any) error {
	return NewConflict(CodeSlotTaken, "slot already booked", details)
}

func NewEmailTaken(email string) error {
	return NewConflict(CodeEmailTaken, "email already in use", map[string]any{"email": email})
}

func NewAlreadyApplied(identityID string) error {
	return NewConflict(CodeAlreadyApplied, "practitioner application already exists", map[string]any{"identity_id": identityID})
}

func NewInvalidTransition(message string, details map[string]any) error {
	return NewDomainError(KindInvalidTransition, CodeInvalidTransition, message, http.StatusUnprocessableEntity, details)
}

func NewRateLimited(message string) error {
	return NewDomainError(KindRateLimited, CodeRateLimited, message, http.StatusTooManyRequests, nil)
}

func NewInternalError(err error) error {
	return &DomainError{
		Kind:       KindInternal,
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return NewInternalError(err).(*DomainError)
}

func MapError(err error) error {
	return ToDomainError(err)
}

// KindOf returns the category of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	return ToDomainError(err).Kind
}

// HasCode reports whether err is a DomainError carrying code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}
