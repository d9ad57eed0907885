package model

import "fmt"

// ValidationError names the offending field and wraps the sentinel that
// describes the failure, so errors.Is keeps working through it.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	switch {
	case e.Message != "" && e.Field != "":
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
	case e.Message != "":
		return e.Message
	case e.Err != nil && e.Field != "":
		return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
	case e.Err != nil:
		return e.Err.Error()
	default:
		return "invalid " + e.Field
	}
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Invalid wraps err as a ValidationError on field. A nil err stays nil.
func Invalid(field string, err error) error {
	if err == nil {
		return nil
	}
	return &ValidationError{Field: field, Err: err}
}
