package utils

import (
	"fmt"
	"strconv"
)

// ValidationError signals malformed input rejected before any I/O.
type ValidationError struct {
	Field string
	Value string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Msg)
}

// ValidateDate accepts dates in YYYYMMDD form: exactly 8 ASCII digits.
func ValidateDate(date string) error {
	if len(date) != 8 {
		return &ValidationError{Field: "date", Value: date, Msg: "expected YYYYMMDD"}
	}
	for _, c := range date {
		if c < '0' || c > '9' {
			return &ValidationError{Field: "date", Value: date, Msg: "expected YYYYMMDD"}
		}
	}
	return nil
}

// ValidateVenue accepts two-digit venue codes "01" through "24".
func ValidateVenue(code string) error {
	if len(code) != 2 {
		return &ValidationError{Field: "venue code", Value: code, Msg: "expected two digits, 01-24"}
	}
	n, err := strconv.Atoi(code)
	if err != nil || n < 1 || n > 24 {
		return &ValidationError{Field: "venue code", Value: code, Msg: "expected two digits, 01-24"}
	}
	return nil
}
