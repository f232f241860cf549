package models

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks a structural failure; the record is dropped.
	ErrValidation = errors.New("validation error")

	ErrInvalidSymbol    = errors.New("invalid symbol")
	ErrUnknownFormat    = errors.New("unknown format")
	ErrUnparseableValue = errors.New("unparseable value")
	ErrMissingField     = errors.New("missing mandatory field")
)

// InvalidSymbolError is returned when the residual token is not a well-formed code.
type InvalidSymbolError struct {
	Raw      string
	Residual string
}

func (e *InvalidSymbolError) Error() string {
	return fmt.Sprintf("invalid symbol %q (residual %q)", e.Raw, e.Residual)
}

func (e *InvalidSymbolError) Unwrap() error { return ErrInvalidSymbol }

// UnknownFormatError is returned for a format tag the normalizer does not know,
// or one the schema does not allow for the field.
type UnknownFormatError struct {
	Field  string
	Format FormatTag
}

func (e *UnknownFormatError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("unknown format %q", e.Format)
	}
	return fmt.Sprintf("unknown format %q for field %s", e.Format, e.Field)
}

func (e *UnknownFormatError) Unwrap() error { return ErrUnknownFormat }

// ValidationError is the only failure Normalize returns to callers.
type ValidationError struct {
	Symbol string
	Field  string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error: %s.%s: %v", e.Symbol, e.Field, e.Err)
	}
	return fmt.Sprintf("validation error: %s: %v", e.Symbol, e.Err)
}

func (e *ValidationError) Unwrap() []error { return []error{ErrValidation, e.Err} }

// IsStructural reports whether err drops a record.
func IsStructural(err error) bool { return errors.Is(err, ErrValidation) }
