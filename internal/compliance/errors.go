package compliance

import (
	"errors"
	"fmt"
)

// Category is the normalized failure taxonomy of the compliance service.
type Category string

const (
	CategoryTimeout        Category = "timeout"
	CategoryBadData        Category = "bad_data"
	CategoryAuthentication Category = "authentication"
	CategoryOutage         Category = "outage"
	CategoryRateLimited    Category = "rate_limited"
	CategoryInternal       Category = "internal"
)

// CheckError is a failed call to the compliance service.
type CheckError struct {
	Category   Category
	Message    string
	Underlying error
}

func (e *CheckError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("compliance [%s]: %s: %v", e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("compliance [%s]: %s", e.Category, e.Message)
}

func (e *CheckError) Unwrap() error {
	return e.Underlying
}

func newCheckError(category Category, message string, underlying error) *CheckError {
	return &CheckError{Category: category, Message: message, Underlying: underlying}
}

// CategoryOf extracts the category, defaulting to internal.
func CategoryOf(err error) Category {
	var ce *CheckError
	if errors.As(err, &ce) {
		return ce.Category
	}
	return CategoryInternal
}

// Retryable reports whether the caller may usefully try again later.
func Retryable(err error) bool {
	switch CategoryOf(err) {
	case CategoryTimeout, CategoryOutage, CategoryRateLimited:
		return true
	}
	return false
}
