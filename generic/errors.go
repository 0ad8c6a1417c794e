/*
errors.go - Centralized error types for the computation engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Calculators return these (or wrap them) and the API maps them to HTTP
  status codes. Every error is terminal for the calculation in which it
  occurs: nothing is retried and no partial breakdown is ever returned.

ERROR CATEGORIES:
  1. Configuration errors - malformed or missing rate data (fatal at startup)
  2. Input errors - facts that violate domain constraints
  3. Lookup misses - unknown table, department or effective version

USAGE:
  Match the category with errors.Is, the details with errors.As:

    if errors.Is(err, generic.ErrUnknownJurisdiction) {
        var uj *generic.UnknownJurisdictionError
        errors.As(err, &uj)
        log.Printf("no duty rate for department %s", uj.Department)
    }

SEE ALSO:
  - registry.go: ConfigError, UnknownTableError, NoEffectiveVersionError
  - facts.go: InvalidInputError, MissingFactError
  - api/handlers.go: HTTP status mapping
*/
package generic

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrConfig is returned when rate data is malformed. The registry keeps
	// its previous snapshot when a load fails with this error.
	ErrConfig = errors.New("invalid rate configuration")

	// ErrInvalidInput is returned when caller-supplied facts violate a
	// domain constraint (non-positive price, dates out of order).
	ErrInvalidInput = errors.New("invalid input")

	// ErrMissingFact is returned when a calculator needs a fact that was not supplied.
	ErrMissingFact = errors.New("missing fact")

	// ErrUnknownJurisdiction is returned when a department has no duty rate.
	ErrUnknownJurisdiction = errors.New("unknown jurisdiction")

	// ErrUnknownTable is returned when no table is registered under a name.
	ErrUnknownTable = errors.New("unknown rate table")

	// ErrNoEffectiveVersion is returned when a table exists but no version
	// is in force on the requested date.
	ErrNoEffectiveVersion = errors.New("no effective rate table version")

	// ErrRegistryNotLoaded is returned when a lookup runs before the first load.
	ErrRegistryNotLoaded = errors.New("rate registry not loaded")

	// ErrInvalidPeriod is returned when a period ends before it starts.
	ErrInvalidPeriod = errors.New("invalid period: end before start")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ConfigError lists every problem found while validating rate data.
type ConfigError struct {
	Table    string
	Version  string
	Problems []string
}

func (e *ConfigError) Error() string {
	where := e.Table
	if e.Version != "" {
		where += "@" + e.Version
	}
	if where == "" {
		return fmt.Sprintf("invalid rate configuration: %s", strings.Join(e.Problems, "; "))
	}
	return fmt.Sprintf("invalid rate configuration %s: %s", where, strings.Join(e.Problems, "; "))
}

func (e *ConfigError) Unwrap() error { return ErrConfig }

// InvalidInputError reports a fact whose value is out of range.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid input %s: %s", e.Field, e.Reason)
}

func (e *InvalidInputError) Unwrap() error { return ErrInvalidInput }

// MissingFactError reports a fact the calculator path requires.
type MissingFactError struct {
	Fact       string
	Calculator string
}

func (e *MissingFactError) Error() string {
	return fmt.Sprintf("%s requires %s", e.Calculator, e.Fact)
}

func (e *MissingFactError) Unwrap() error { return ErrMissingFact }

// UnknownJurisdictionError reports a department code missing from the duty table.
type UnknownJurisdictionError struct {
	Department string
	Table      string
}

func (e *UnknownJurisdictionError) Error() string {
	return fmt.Sprintf("unknown department %q in %s", e.Department, e.Table)
}

func (e *UnknownJurisdictionError) Unwrap() error { return ErrUnknownJurisdiction }

// UnknownTableError reports a table name that is not registered.
type UnknownTableError struct {
	Name string
}

func (e *UnknownTableError) Error() string {
	return fmt.Sprintf("unknown rate table %q", e.Name)
}

func (e *UnknownTableError) Unwrap() error { return ErrUnknownTable }

// NoEffectiveVersionError reports a date outside every version of a table.
type NoEffectiveVersionError struct {
	Name string
	AsOf Date
}

func (e *NoEffectiveVersionError) Error() string {
	return fmt.Sprintf("no version of %q in force on %s", e.Name, e.AsOf)
}

func (e *NoEffectiveVersionError) Unwrap() error { return ErrNoEffectiveVersion }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller facts.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrMissingFact) ||
		errors.Is(err, ErrInvalidPeriod)
}

// IsNotFound returns true if the error is a lookup miss.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUnknownJurisdiction) ||
		errors.Is(err, ErrUnknownTable) ||
		errors.Is(err, ErrNoEffectiveVersion)
}

// IsConfigError returns true if the error comes from malformed rate data.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrConfig)
}
