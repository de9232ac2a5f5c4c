package types

import "errors"

// Sentinel errors for medaudit operations.
var (
	// ErrNoRules indicates scoring was asked to run against an empty rule set.
	ErrNoRules = errors.New("no rules configured")

	// ErrRuleSourceUnavailable indicates the rule source could not be read and
	// no cached entry could stand in for it.
	ErrRuleSourceUnavailable = errors.New("rule source unavailable")

	// ErrVersionNotRecorded indicates a rule mutation was stored but the new
	// rule-set version could not be persisted.
	ErrVersionNotRecorded = errors.New("rule version not recorded")

	// ErrRuleNotFound indicates no rule exists with the given ID.
	ErrRuleNotFound = errors.New("rule not found")

	// ErrVersionNotFound indicates no rule version exists with the given ID.
	ErrVersionNotFound = errors.New("rule version not found")

	// ErrInvalidRule indicates a rule failed validation.
	ErrInvalidRule = errors.New("invalid rule")

	// ErrInvalidPath indicates a field path could not be parsed.
	ErrInvalidPath = errors.New("invalid field path")

	// ErrPathTooDeep indicates a field path exceeds MaxPathDepth.
	ErrPathTooDeep = errors.New("field path exceeds maximum depth")

	// ErrTooManyInValues indicates an in operator exceeds MaxInOperatorValues.
	ErrTooManyInValues = errors.New("in operator has too many values")

	// ErrInvalidOperator indicates an unknown operator or one that cannot take
	// the given comparison value.
	ErrInvalidOperator = errors.New("invalid operator")

	// ErrCoercionFailed indicates type coercion failed.
	ErrCoercionFailed = errors.New("type coercion failed")

	// ErrUnknownValidator indicates a validator key is not registered.
	ErrUnknownValidator = errors.New("unknown validator key")
)

// IsConfigurationError reports whether err makes a scoring call impossible
// regardless of the document.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrNoRules) || errors.Is(err, ErrRuleSourceUnavailable)
}

// IsRetryable reports whether the caller may retry the same request later.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRuleSourceUnavailable)
}

// IsInvalidInput reports whether err stems from a rejected request payload.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidRule) ||
		errors.Is(err, ErrInvalidPath) ||
		errors.Is(err, ErrPathTooDeep) ||
		errors.Is(err, ErrTooManyInValues) ||
		errors.Is(err, ErrInvalidOperator) ||
		errors.Is(err, ErrUnknownValidator)
}

// IsNotFound reports whether err is a missing rule or version.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRuleNotFound) || errors.Is(err, ErrVersionNotFound)
}
