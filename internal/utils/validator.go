// Package utils provides utility functions used throughout the application.
package utils

import (
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Validate returns the shared validator instance.
func Validate() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// ValidateStruct validates a struct using the shared validator instance.
func ValidateStruct(s any) error {
	return Validate().Struct(s)
}
