package kernel

// Error describes a driver error. Errors are declared as package-level
// pointers to the Error structure so callers can match them with errors.Is;
// context that is only known at runtime is attached by wrapping the value
// with fmt.Errorf and the %w verb.
type Error struct {
	// The module where the error occurred.
	Module string

	// The error message
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Module == "" {
		return e.Message
	}

	return e.Module + ": " + e.Message
}
