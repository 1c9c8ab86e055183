package errors

import "fmt"

type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(code, message string, cause ...error) *AppError {
	var c error
	if len(cause) > 0 {
		c = cause[0]
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   c,
	}
}

var (
	ErrConfigNotFound = &AppError{Code: "CONFIG_001", Message: "configuration not found"}
	ErrConfigInvalid  = &AppError{Code: "CONFIG_002", Message: "invalid configuration"}

	ErrInvalidInput    = &AppError{Code: "DOSE_001", Message: "invalid dosing input"}
	ErrProfileNotFound = &AppError{Code: "DOSE_002", Message: "dosing profile not found"}

	ErrEntryNotFound    = &AppError{Code: "ENTRY_001", Message: "entry not found"}
	ErrUnknownEntryType = &AppError{Code: "ENTRY_002", Message: "unknown entry type"}

	ErrSyncUnavailable = &AppError{Code: "SYNC_001", Message: "nightscout server unavailable"}
	ErrSyncRejected    = &AppError{Code: "SYNC_002", Message: "nightscout rejected the request"}

	ErrUnauthorized = &AppError{Code: "AUTH_001", Message: "unauthorized"}
	ErrForbidden    = &AppError{Code: "AUTH_002", Message: "forbidden"}

	ErrNotFound         = &AppError{Code: "GEN_001", Message: "resource not found"}
	ErrBadRequest       = &AppError{Code: "GEN_002", Message: "bad request"}
	ErrInternal         = &AppError{Code: "GEN_003", Message: "internal error"}
	ErrMethodNotAllowed = &AppError{Code: "GEN_004", Message: "method not allowed"}
)

func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

func GetCode(err error) string {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}
	return "UNKNOWN"
}

func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}
