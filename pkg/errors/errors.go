package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Is matches errors by code so clones and wraps compare equal to their
// predeclared variant.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e != nil && e.Code == t.Code
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrNotFound     = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden    = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict     = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation   = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal     = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss    = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// Verification engine error taxonomy. Every public engine operation returns
// one of these (or an infrastructure wrap) rather than a generic error.
var (
	ErrSessionNotFound           = New("SESSION_NOT_FOUND", http.StatusNotFound, "qr session not found")
	ErrSessionExpired            = New("SESSION_EXPIRED", http.StatusGone, "qr session has expired")
	ErrSessionExhausted          = New("SESSION_EXHAUSTED", http.StatusConflict, "qr session usage limit reached")
	ErrSessionRevoked            = New("SESSION_REVOKED", http.StatusGone, "qr session has been revoked")
	ErrEncryptionKeyMismatch     = New("ENCRYPTION_KEY_MISMATCH", http.StatusUnauthorized, "qr encryption key does not match")
	ErrPayloadTampered           = New("PAYLOAD_TAMPERED", http.StatusUnauthorized, "qr payload integrity check failed")
	ErrGeofenceViolation         = New("GEOFENCE_VIOLATION", http.StatusUnprocessableEntity, "position is outside the room geofence")
	ErrAltitudeMismatch          = New("ALTITUDE_MISMATCH", http.StatusUnprocessableEntity, "altitude is outside the room band")
	ErrInvalidFaceScore          = New("INVALID_FACE_SCORE", http.StatusBadRequest, "face score must be between 0 and 1")
	ErrDuplicateAttendance       = New("DUPLICATE_ATTENDANCE", http.StatusConflict, "attendance record already exists for this student and lecture")
	ErrLectureNotEligible        = New("LECTURE_NOT_ELIGIBLE", http.StatusPreconditionFailed, "lecture does not allow qr generation")
	ErrConcurrentSessionConflict = New("CONCURRENT_SESSION_CONFLICT", http.StatusConflict, "another session creation is in progress for this lecture")
	ErrAttendanceWindowClosed    = New("ATTENDANCE_WINDOW_CLOSED", http.StatusPreconditionFailed, "attendance window for this lecture has closed")
	ErrIPNotAllowed              = New("IP_NOT_ALLOWED", http.StatusForbidden, "client address is not on the session allow-list")
	ErrInfrastructure            = New("INFRASTRUCTURE_ERROR", http.StatusInternalServerError, "infrastructure failure")
)

// Infrastructure wraps persistence or cache failures so callers can apply
// retry policy to them and only them.
func Infrastructure(err error, message string) *Error {
	return Wrap(err, ErrInfrastructure.Code, ErrInfrastructure.Status, message)
}

// IsInfrastructure reports whether err is an infrastructure failure.
func IsInfrastructure(err error) bool {
	e := FromError(err)
	return e != nil && e.Code == ErrInfrastructure.Code
}

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}
