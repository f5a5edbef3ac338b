package aco

import (
	"errors"
	"fmt"
)

// Sentinel errors. Use errors.Is(err, ErrInput) to check the error class.
var (
	ErrInput         = errors.New("invalid input")
	ErrConfiguration = errors.New("invalid configuration")
)

// InputError reports a city list that cannot be solved.
// Index is the offending city, or -1 when the list as a whole is invalid.
type InputError struct {
	Index  int
	Reason string
}

func (e *InputError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("input error: city %d %s", e.Index, e.Reason)
	}
	return "input error: " + e.Reason
}

func (e *InputError) Is(target error) bool {
	if target == ErrInput {
		return true
	}
	_, ok := target.(*InputError)
	return ok
}

// ConfigurationError reports a solver parameter outside its valid range.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Field + " " + e.Reason
}

func (e *ConfigurationError) Is(target error) bool {
	if target == ErrConfiguration {
		return true
	}
	_, ok := target.(*ConfigurationError)
	return ok
}
