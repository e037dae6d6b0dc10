package core

import (
	"errors"
	"fmt"
)

// Sentinel errors matched by the typed errors below via errors.Is.
var (
	ErrInputFormat    = errors.New("ciu: malformed input")
	ErrAxisMismatch   = errors.New("ciu: axis mismatch")
	ErrConfiguration  = errors.New("ciu: invalid configuration")
	ErrFitConvergence = errors.New("ciu: fit did not converge")
)

// InputFormatError reports a malformed or inconsistent raw matrix. Fatal to that file only.
type InputFormatError struct {
	File    string
	Line    int // 1-based; 0 when not tied to a line
	Message string
}

func (e *InputFormatError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("input format error in %s line %d: %s", e.File, e.Line, e.Message)
	}
	return fmt.Sprintf("input format error in %s: %s", e.File, e.Message)
}

func (e *InputFormatError) Is(target error) bool { return target == ErrInputFormat }

// AxisMismatchError reports crop bounds that select nothing or operands whose axes differ.
type AxisMismatchError struct {
	Axis    string // "DT", "CV" or "" when both
	Message string
}

func (e *AxisMismatchError) Error() string {
	if e.Axis == "" {
		return fmt.Sprintf("axis mismatch: %s", e.Message)
	}
	return fmt.Sprintf("axis mismatch on %s axis: %s", e.Axis, e.Message)
}

func (e *AxisMismatchError) Is(target error) bool { return target == ErrAxisMismatch }

// ConfigurationError reports an invalid numeric parameter.
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error in %s: %s", e.Field, e.Message)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// FitConvergenceError marks a single column whose fit failed. Never fatal to the object.
type FitConvergenceError struct {
	Column int
	CV     float64
	Reason string
}

func (e *FitConvergenceError) Error() string {
	return fmt.Sprintf("fit failed for column %d (CV %g): %s", e.Column, e.CV, e.Reason)
}

func (e *FitConvergenceError) Is(target error) bool { return target == ErrFitConvergence }
