// Package errors holds the sentinel and typed errors shared by the backtester.
package errors

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownStrategy   = errors.New("unknown strategy")
	ErrModeNotSupported  = errors.New("run mode not supported")
	ErrConfigInvalid     = errors.New("invalid configuration")
	ErrDataNotFound      = errors.New("data not found")
	ErrInsufficientData  = errors.New("insufficient data")
	ErrMalformedBar      = errors.New("malformed bar")
	ErrDatabaseError     = errors.New("database error")
	ErrRefreshInProgress = errors.New("refresh already running")
)

// ValidationError reports a rejected configuration value or flag.
// It matches ErrConfigInvalid under errors.Is.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func NewValidationError(field string, value any, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s=%v: %s", e.Field, e.Value, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrConfigInvalid
}

// DataError ties a bar loading or parsing failure to one symbol, so batch
// runs can report it without aborting the others.
type DataError struct {
	Source  string // csv, cache, yahoo, store, universe
	Symbol  string
	Message string
	Err     error
}

func NewDataError(source, symbol, message string, err error) *DataError {
	return &DataError{Source: source, Symbol: symbol, Message: message, Err: err}
}

func (e *DataError) Error() string {
	msg := e.Source + " " + e.Message
	if e.Symbol != "" {
		msg = e.Symbol + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// RiskError describes why the governor refused an entry. Refusals are
// logged, never returned.
type RiskError struct {
	Rule    string
	Current float64
	Limit   float64
	Message string
}

func NewRiskError(rule string, current, limit float64, message string) *RiskError {
	return &RiskError{Rule: rule, Current: current, Limit: limit, Message: message}
}

func (e *RiskError) Error() string {
	return fmt.Sprintf("entry refused by %s: %s (%.2f vs limit %.2f)", e.Rule, e.Message, e.Current, e.Limit)
}

// Wrap prefixes err with message; nil stays nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf is Wrap with a formatted prefix.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
