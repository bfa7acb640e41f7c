package allocation

import (
	"errors"
	"fmt"
)

// InputError reports input the engine cannot allocate against: an empty group
// list, missing or malformed weights, or a negative target. It is non-fatal:
// the accompanying result holds an all-zero matrix of the correct shape and
// callers are expected to log and skip.
type InputError struct {
	Reason string
}

func (e *InputError) Error() string {
	return "invalid allocation input: " + e.Reason
}

func inputErrorf(format string, args ...any) *InputError {
	return &InputError{Reason: fmt.Sprintf(format, args...)}
}

// ConfigurationError reports a proportional split that cannot proceed because
// its ratios are missing, negative or do not sum to one. It is fatal: no
// partial matrix is returned.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "invalid split configuration: " + e.Reason
}

// IsInputError reports whether err is (or wraps) an *InputError.
func IsInputError(err error) bool {
	var ie *InputError
	return errors.As(err, &ie)
}

// IsConfigurationError reports whether err is (or wraps) a *ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
