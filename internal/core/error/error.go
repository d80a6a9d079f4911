package errx

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
	// RedisNotFoundMessage is returned when a Redis key does not exist.
	RedisNotFoundMessage = "record not found"
	// ConfigErrorMessage is returned when a provider or dialect cannot be resolved.
	ConfigErrorMessage = "configuration error"
	// ValidationErrorMessage is returned for incomplete or malformed input.
	ValidationErrorMessage = "invalid input"
	// UpstreamErrorMessage describes failures of an external provider call.
	UpstreamErrorMessage = "provider request failed"
	// ConnectionErrorMessage describes a failed database connection attempt.
	ConnectionErrorMessage = "database connection failed"
	// NoResultMessage is shown when the analysis agent produced nothing usable.
	NoResultMessage = "unable to retrieve result"
)

var (
	ErrUnknownProvider = errors.New("unknown provider")
	ErrUnknownDialect  = errors.New("unknown dialect")
	ErrIncomplete      = errors.New("incomplete input")
	ErrNoResult        = errors.New("no result")
	ErrNotSignedIn     = errors.New("not signed in")
	ErrNoDatasets      = errors.New("no datasets loaded")
)

// AppError wraps an underlying error with an HTTP status and safe message.
type AppError struct {
	Err     error
	Status  int
	Message string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the provided information.
func New(err error, status int, message string) *AppError {
	return &AppError{
		Err:     err,
		Status:  status,
		Message: message,
	}
}

// Is reports whether the target matches the underlying error or the AppError itself.
func (e *AppError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// As allows casting to AppError or the wrapped error in a chain.
func (e *AppError) As(target any) bool {
	if errors.As(e.Err, target) {
		return true
	}
	if t, ok := target.(**AppError); ok {
		*t = e
		return true
	}
	return false
}

// WrapRedis maps Redis errors to AppError with appropriate status codes.
func WrapRedis(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, redis.Nil) {
		return New(err, http.StatusNotFound, RedisNotFoundMessage)
	}
	return New(err, http.StatusBadGateway, RedisErrorMessage)
}

// Config marks err as a configuration error (unknown provider, dialect, ...).
func Config(err error) error {
	if err == nil {
		return nil
	}
	return New(err, http.StatusBadRequest, ConfigErrorMessage)
}

// Validation marks err as a rejected user input.
func Validation(err error) error {
	if err == nil {
		return nil
	}
	return New(err, http.StatusUnprocessableEntity, ValidationErrorMessage)
}

// Upstream marks err as a failed call to an external provider.
func Upstream(err error) error {
	if err == nil {
		return nil
	}
	return New(err, http.StatusBadGateway, UpstreamErrorMessage)
}

// Connection marks err as a failed database connection attempt.
func Connection(err error) error {
	if err == nil {
		return nil
	}
	return New(err, http.StatusBadGateway, ConnectionErrorMessage)
}

// NoResult is returned when the agent finished without a usable answer.
func NoResult(err error) error {
	if err == nil {
		err = ErrNoResult
	}
	return New(err, http.StatusUnprocessableEntity, NoResultMessage)
}

// Status returns the HTTP status carried by err, or 500.
func Status(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Status != 0 {
		return appErr.Status
	}
	return http.StatusInternalServerError
}

// Message returns a message safe to show to users.
func Message(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		if appErr.Err != nil && appErr.Status < http.StatusInternalServerError {
			return fmt.Sprintf("%s: %v", appErr.Message, appErr.Err)
		}
		return appErr.Message
	}
	return SystemErrorMessage
}
