package errors

import "fmt"

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

const (
	CodeValidation          = "E100"
	CodeNotAuthenticated    = "E110"
	CodeAlreadyClaimed      = "E120"
	CodeNotFound            = "E130"
	CodeDuplicateMembership = "E140"
	CodeBoxLocked           = "E150"
	CodeTransientStore      = "E200"
	CodeExternalService     = "E300"
	CodeRateLimited         = "E500"
)

// Sentinels for errors.Is. Matching is by Code, so any AppError built by the
// constructors below matches the sentinel of its kind.
var (
	ErrValidation          = &AppError{Code: CodeValidation}
	ErrNotAuthenticated    = &AppError{Code: CodeNotAuthenticated}
	ErrAlreadyClaimed      = &AppError{Code: CodeAlreadyClaimed}
	ErrNotFound            = &AppError{Code: CodeNotFound}
	ErrDuplicateMembership = &AppError{Code: CodeDuplicateMembership}
	ErrBoxLocked           = &AppError{Code: CodeBoxLocked}
	ErrTransientStore      = &AppError{Code: CodeTransientStore}
	ErrExternalService     = &AppError{Code: CodeExternalService}
	ErrRateLimited         = &AppError{Code: CodeRateLimited}
)

type AppError struct {
	Code       string
	Message    string
	MessageKey string
	Args       []any
	Severity   Severity
	Retryable  bool
	cause      error
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}

	return e.Message
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.cause
}

func (e *AppError) Cause() error {
	return e.Unwrap()
}

func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok || e == nil || t == nil {
		return false
	}

	return e.Code == t.Code
}

func NewValidationError(msg string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    msg,
		MessageKey: "errors.validation",
		Args:       []any{msg},
		Severity:   SeverityLow,
	}
}

func NewNotAuthenticatedError() *AppError {
	return &AppError{
		Code:       CodeNotAuthenticated,
		Message:    "not authenticated",
		MessageKey: "errors.not_authenticated",
		Severity:   SeverityLow,
	}
}

func NewAlreadyClaimedError(day string) *AppError {
	return &AppError{
		Code:       CodeAlreadyClaimed,
		Message:    fmt.Sprintf("daily reward already claimed for %s", day),
		MessageKey: "errors.already_claimed",
		Severity:   SeverityLow,
	}
}

func NewNotFoundError(entity, id string) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s %q not found", entity, id),
		MessageKey: "errors.not_found." + entity,
		Args:       []any{id},
		Severity:   SeverityLow,
	}
}

func NewDuplicateMembershipError(msg string) *AppError {
	return &AppError{
		Code:       CodeDuplicateMembership,
		Message:    msg,
		MessageKey: "errors.duplicate_membership",
		Severity:   SeverityLow,
	}
}

func NewBoxLockedError(kind string, have, need int64) *AppError {
	return &AppError{
		Code:       CodeBoxLocked,
		Message:    fmt.Sprintf("%s box needs %d daily clicks, have %d", kind, need, have),
		MessageKey: "errors.box_locked",
		Args:       []any{need - have},
		Severity:   SeverityLow,
	}
}

func NewStoreError(cause error) *AppError {
	var underlyingMsg string
	if cause != nil {
		underlyingMsg = cause.Error()
	}

	return &AppError{
		Code:       CodeTransientStore,
		Message:    fmt.Sprintf("store error: %s", underlyingMsg),
		MessageKey: "errors.transient",
		Severity:   SeverityHigh,
		Retryable:  true,
		cause:      cause,
	}
}

func NewExternalServiceError(name string, cause error) *AppError {
	return &AppError{
		Code:       CodeExternalService,
		Message:    fmt.Sprintf("external service error: %s", name),
		MessageKey: "errors.transient",
		Severity:   SeverityMedium,
		Retryable:  true,
		cause:      cause,
	}
}

func NewRateLimitError(retryAfter int) *AppError {
	return &AppError{
		Code:       CodeRateLimited,
		Message:    fmt.Sprintf("rate limit exceeded: retry after %d seconds", retryAfter),
		MessageKey: "errors.rate_limited",
		Args:       []any{retryAfter},
		Severity:   SeverityLow,
	}
}
