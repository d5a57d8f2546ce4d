package models

import (
	"strings"
)

// ValidateRequired checks if a required string field is not empty
func ValidateRequired(value, fieldName string) *ValidationError {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{
			Field:   fieldName,
			Message: fieldName + " is required",
			Value:   value,
		}
	}
	return nil
}
