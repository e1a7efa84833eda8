package models

import (
	"errors"
	"fmt"
)

// ValidationError reports bad operator input. Nothing was changed.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotFoundError reports an unknown sale, line or catalog code
type NotFoundError struct {
	Kind string
	ID   string
	// Suggestion carries a catalog entry from another shop that can prefill a registration
	Suggestion *CatalogEntry
	// ConfirmRead asks for a second scan before registering, the code may be a misread
	ConfirmRead bool
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// GatewayError is what a gateway adapter returns for a failed call
type GatewayError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *GatewayError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("gateway %s: status %d: %s", e.Op, e.StatusCode, e.Body)
	default:
		return "gateway " + e.Op + " failed"
	}
}

func (e *GatewayError) Unwrap() error { return e.Err }

// GatewayTransientError wraps a poll failure; polling goes on
type GatewayTransientError struct {
	Err error
}

func (e *GatewayTransientError) Error() string { return "transient gateway error: " + e.Err.Error() }
func (e *GatewayTransientError) Unwrap() error { return e.Err }

// GatewayFatalError wraps a creation failure; the payment session fails
type GatewayFatalError struct {
	Err error
}

func (e *GatewayFatalError) Error() string { return "payment request failed: " + e.Err.Error() }
func (e *GatewayFatalError) Unwrap() error { return e.Err }

// PersistenceError reports a failed history write. The sale stays open for a retry.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *PersistenceError) Unwrap() error { return e.Err }

// IsValidation reports whether err is (or wraps) a ValidationError
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsGateway reports whether err comes from the payment gateway
func IsGateway(err error) bool {
	var gw *GatewayError
	var fatal *GatewayFatalError
	var transient *GatewayTransientError
	return errors.As(err, &gw) || errors.As(err, &fatal) || errors.As(err, &transient)
}

// IsPersistence reports whether err is (or wraps) a PersistenceError
func IsPersistence(err error) bool {
	var target *PersistenceError
	return errors.As(err, &target)
}
