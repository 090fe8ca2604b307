package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies core errors so the API layer can map them to precise
// client-facing responses without parsing message strings.
type ErrorKind string

const (
	// KindInsufficientHistory: a computation needs more trailing bars than exist.
	KindInsufficientHistory ErrorKind = "insufficient_history"
	// KindInvalidConfiguration: parameters rejected before any computation starts.
	KindInvalidConfiguration ErrorKind = "invalid_configuration"
	// KindInfeasibleTarget: a frontier target return outside the feasible range.
	KindInfeasibleTarget ErrorKind = "infeasible_target"
	// KindNumericalInstability: an ill-conditioned input that could not be recovered.
	KindNumericalInstability ErrorKind = "numerical_instability"
	// KindUnknownStrategy: a strategy identifier the backtester does not support.
	KindUnknownStrategy ErrorKind = "unknown_strategy"
)

// Error is the structured error type for the analytics core.
// Fields carries the offending parameters (window sizes, weight sums, ...).
type Error struct {
	Kind    ErrorKind
	Message string
	Fields  map[string]any
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is supports errors.Is matching on kind via sentinel values.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// KindOf extracts the kind of a core error, or "" for foreign errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// NewInsufficientHistory reports that available history is shorter than the
// minimum required window.
func NewInsufficientHistory(message string, required, available int) *Error {
	return &Error{
		Kind:    KindInsufficientHistory,
		Message: fmt.Sprintf("%s (need %d bars, have %d)", message, required, available),
		Fields:  map[string]any{"required": required, "available": available},
	}
}

// NewInvalidConfiguration reports a configuration rejected before computation.
func NewInvalidConfiguration(message string) *Error {
	return &Error{Kind: KindInvalidConfiguration, Message: message}
}

// NewInfeasibleTarget reports a single infeasible frontier point.
func NewInfeasibleTarget(target float64) *Error {
	return &Error{
		Kind:    KindInfeasibleTarget,
		Message: fmt.Sprintf("target return %.4f outside feasible range", target),
		Fields:  map[string]any{"target_return": target},
	}
}

// NewNumericalInstability reports an ill-conditioned numerical input.
func NewNumericalInstability(message string) *Error {
	return &Error{Kind: KindNumericalInstability, Message: message}
}

// NewUnknownStrategy reports an unsupported strategy identifier.
func NewUnknownStrategy(name string) *Error {
	return &Error{
		Kind:    KindUnknownStrategy,
		Message: fmt.Sprintf("unknown strategy: %s", name),
		Fields:  map[string]any{"strategy": name},
	}
}
