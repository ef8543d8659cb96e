package model

// ErrorKind enumerates the error taxonomy of SPEC_FULL.md §7, directly
// grounded on pkg/hashing/core.HashError's {Type, Message, Context}
// shape from the teacher codebase.
type ErrorKind int

const (
	// InvalidInput covers an empty scene, mismatched resolutions, or a
	// bounding box outside its source image.
	InvalidInput ErrorKind = iota
	// InsufficientFeatures is raised when a template has fewer than N
	// eligible edge or stable pixels.
	InsufficientFeatures
	// EmptyTrainingSet is raised when Train is called with no templates.
	EmptyTrainingSet
	// Cancelled is raised when a caller-provided context is done.
	Cancelled
	// NumericDegenerate marks a region where every depth pixel is zero.
	NumericDegenerate
)

func (k ErrorKind) String() string {
	switch k {
	case InvalidInput:
		return "InvalidInput"
	case InsufficientFeatures:
		return "InsufficientFeatures"
	case EmptyTrainingSet:
		return "EmptyTrainingSet"
	case Cancelled:
		return "Cancelled"
	case NumericDegenerate:
		return "NumericDegenerate"
	default:
		return "Unknown"
	}
}

// Error is the core's single error type. Context carries structured
// detail (template id, window rect, ...) for callers that want more
// than the message string.
type Error struct {
	Kind    ErrorKind
	Message string
	Context map[string]any
}

func (e *Error) Error() string { return e.Message }

// NewError builds an *Error with the given kind and message.
func NewError(kind ErrorKind, message string, context map[string]any) *Error {
	return &Error{Kind: kind, Message: message, Context: context}
}

// IsKind reports whether err is a *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == kind
}
