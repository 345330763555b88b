package interview

import "fmt"

// TooManyModulesError is returned when a caller requests more than three
// explicit modules in one call. It signals a programming error in the caller,
// not user input.
type TooManyModulesError struct {
	Requested int
}

func (e *TooManyModulesError) Error() string {
	return fmt.Sprintf("at most 3 modules may be requested per call, got %d", e.Requested)
}

// ActivityValidationError is a user-correctable, field-scoped failure, e.g.
// writing to a locked module. The boundary layer turns it into a structured
// response.
type ActivityValidationError struct {
	Field          string
	ValidationType string
}

func (e *ActivityValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.ValidationType)
}

// ModuleNotRequestableError is returned when a caller asks for a module type
// the engine only injects itself, such as intro or lethal_means.
type ModuleNotRequestableError struct {
	Type ModuleType
}

func (e *ModuleNotRequestableError) Error() string {
	return fmt.Sprintf("module type %s cannot be requested directly", e.Type)
}

// ModuleNotFoundError is returned when an operation references a module type
// not present on the encounter.
type ModuleNotFoundError struct {
	Type ModuleType
}

func (e *ModuleNotFoundError) Error() string {
	return fmt.Sprintf("no %s module on this encounter", e.Type)
}
