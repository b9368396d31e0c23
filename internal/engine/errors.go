package engine

// Error kinds carried on every ServiceError. The HTTP layer maps them to
// status codes: BAD_INPUT, UNKNOWN_SCENARIO and MISSING_ANCHOR to 400,
// NOT_FOUND to 404, INTERNAL to 500. CONFLICT is reserved and never emitted.
const (
	KindBadInput        = "BAD_INPUT"
	KindUnknownScenario = "UNKNOWN_SCENARIO"
	KindMissingAnchor   = "MISSING_ANCHOR"
	KindNotFound        = "NOT_FOUND"
	KindConflict        = "CONFLICT"
	KindInternal        = "INTERNAL"
)

// ServiceError wraps an error with a kind for API response mapping.
// RequiredAnchor is populated only on MISSING_ANCHOR.
type ServiceError struct {
	Kind           string
	Message        string
	RequiredAnchor string
	Err            error
}

func (e *ServiceError) Error() string { return e.Message }
func (e *ServiceError) Unwrap() error { return e.Err }

func badInput(msg string) *ServiceError {
	return &ServiceError{Kind: KindBadInput, Message: msg}
}

func unknownScenario(msg string) *ServiceError {
	return &ServiceError{Kind: KindUnknownScenario, Message: msg}
}

func missingAnchor(required string) *ServiceError {
	return &ServiceError{
		Kind:           KindMissingAnchor,
		Message:        "scenario requires an anchor of type " + required,
		RequiredAnchor: required,
	}
}

func notFound(msg string) *ServiceError {
	return &ServiceError{Kind: KindNotFound, Message: msg}
}

func internal(msg string, err error) *ServiceError {
	return &ServiceError{Kind: KindInternal, Message: msg, Err: err}
}
