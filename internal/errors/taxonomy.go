package errors

import "fmt"

// The four error kinds surfaced by the collection layer and its collaborators.
// Each is an EnhancedError distinguished by category, so callers test them
// with IsValidation, IsNotFound, IsPersistence and IsRemoteService.

// ValidationError reports a missing or malformed input field.
func ValidationError(message string) *EnhancedError {
	return New(NewStd(message)).
		Category(CategoryValidation).
		Build()
}

// Validationf is ValidationError with formatting.
func Validationf(format string, args ...any) *EnhancedError {
	return ValidationError(fmt.Sprintf(format, args...))
}

// NotFound reports that a mutation referenced an id that does not exist.
func NotFound(what, id string) *EnhancedError {
	return Newf("%s %q not found", what, id).
		Category(CategoryNotFound).
		Context("resource", what).
		Build()
}

// Persistence wraps a failed durable read or write. op names the storage step.
func Persistence(err error, op string) *EnhancedError {
	return New(fmt.Errorf("%s: %w", op, err)).
		Category(CategoryPersistence).
		Context("operation", op).
		Build()
}

// RemoteService wraps a failed or malformed call to an external service.
func RemoteService(err error, service string) *EnhancedError {
	return New(fmt.Errorf("%s: %w", service, err)).
		Category(CategoryRemoteService).
		Context("service", service).
		Build()
}

// IsNotFound checks if an error is an EnhancedError with CategoryNotFound.
func IsNotFound(err error) bool {
	return IsCategory(err, CategoryNotFound)
}

func IsValidation(err error) bool {
	return IsCategory(err, CategoryValidation)
}

func IsPersistence(err error) bool {
	return IsCategory(err, CategoryPersistence)
}

func IsRemoteService(err error) bool {
	return IsCategory(err, CategoryRemoteService)
}
