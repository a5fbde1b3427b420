// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrNotAuthenticated  = errors.New("not authenticated")
	ErrCredentialExpired = errors.New("broker credentials expired")
	ErrQuoteUnavailable  = errors.New("quote unavailable")
	ErrPreviewRejected   = errors.New("order preview rejected")
	ErrPlacementFailed   = errors.New("order placement failed")
	ErrOrderNotFound     = errors.New("order not found in broker order list")
	ErrFillNotFound      = errors.New("pending fill not found")
	ErrNoAccounts        = errors.New("no brokerage accounts available")
	ErrUserBusy          = errors.New("user has another task in progress")
	ErrNoConfirmation    = errors.New("no confirmation pending for user")
)

// BrokerError represents an error from the broker API.
type BrokerError struct {
	Code    int
	Message string
	Err     error
}

func (e *BrokerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("broker error [%d]: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("broker error [%d]: %s", e.Code, e.Message)
}

func (e *BrokerError) Unwrap() error {
	return e.Err
}

// NewBrokerError creates a new BrokerError.
func NewBrokerError(code int, message string, err error) *BrokerError {
	return &BrokerError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// OrderError represents an error related to order operations.
type OrderError struct {
	OrderID string
	Symbol  string
	Action  string
	Reason  string
	Err     error
}

func (e *OrderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("order error [%s] %s %s: %s: %v", e.OrderID, e.Action, e.Symbol, e.Reason, e.Err)
	}
	return fmt.Sprintf("order error [%s] %s %s: %s", e.OrderID, e.Action, e.Symbol, e.Reason)
}

func (e *OrderError) Unwrap() error {
	return e.Err
}

// NewOrderError creates a new OrderError.
func NewOrderError(orderID, symbol, action, reason string, err error) *OrderError {
	return &OrderError{
		OrderID: orderID,
		Symbol:  symbol,
		Action:  action,
		Reason:  reason,
		Err:     err,
	}
}

// PlanValidationError represents a watch-plan validation failure. Plans that
// fail validation are rejected at registration time with no side effects.
type PlanValidationError struct {
	Symbol  string
	UserID  string
	Message string
	Err     error
}

func (e *PlanValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid plan %s for %s: %s: %v", e.Symbol, e.UserID, e.Message, e.Err)
	}
	return fmt.Sprintf("invalid plan %s for %s: %s", e.Symbol, e.UserID, e.Message)
}

func (e *PlanValidationError) Unwrap() error {
	return e.Err
}

// NewPlanValidationError creates a new PlanValidationError.
func NewPlanValidationError(symbol, userID, message string, err error) *PlanValidationError {
	return &PlanValidationError{
		Symbol:  symbol,
		UserID:  userID,
		Message: message,
		Err:     err,
	}
}

// ParseError represents a plan input syntax failure.
type ParseError struct {
	Input   string
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cannot parse plan %q: %s", e.Input, e.Message)
}

// NewParseError creates a new ParseError.
func NewParseError(input, message string) *ParseError {
	return &ParseError{Input: input, Message: message}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
