package common

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// ValidationError represents a single field failure
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

// Validator collects field failures so a caller can report all of them at once
type Validator struct {
	errors []ValidationError
}

func NewValidator() *Validator {
	return &Validator{errors: make([]ValidationError, 0)}
}

// ValidationRule checks one string value
type ValidationRule func(value string) *ValidationError

// Field runs rules against value and records failures under fieldName
func (v *Validator) Field(fieldName, value string, rules ...ValidationRule) *Validator {
	for _, rule := range rules {
		if err := rule(value); err != nil {
			err.Field = fieldName
			v.errors = append(v.errors, *err)
			break
		}
	}
	return v
}

func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

// Fields returns the names of every failed field in order
func (v *Validator) Fields() []string {
	out := make([]string, 0, len(v.errors))
	for _, e := range v.errors {
		out = append(out, e.Field)
	}
	return out
}

func (v *Validator) ErrorMessage() string {
	messages := make([]string, 0, len(v.errors))
	for _, err := range v.errors {
		messages = append(messages, err.Error())
	}
	return strings.Join(messages, "; ")
}

// Err returns nil when valid, otherwise an AppError with code wrapping sentinel
func (v *Validator) Err(code string, sentinel error) error {
	if !v.HasErrors() {
		return nil
	}
	return NewAppError(code, v.ErrorMessage(), sentinel)
}

func Required(value string) *ValidationError {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{Message: "is required"}
	}
	return nil
}

func MaxLength(max int) ValidationRule {
	return func(value string) *ValidationError {
		if utf8.RuneCountInString(value) > max {
			return &ValidationError{Message: fmt.Sprintf("must be at most %d characters", max)}
		}
		return nil
	}
}
