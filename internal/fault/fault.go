package fault

import (
	"errors"
	"fmt"
)

// Kind classifies why a pipeline step could not produce a value.
type Kind int

const (
	// Unreadable: the source file could not be opened or decoded. The file is skipped.
	Unreadable Kind = iota + 1
	// Miss: no pattern matched. Never fatal on its own.
	Miss
	// TemplateMismatch: the template does not have the shape its schema declares.
	TemplateMismatch
	// External: OCR binary, Graph or LLM call failed.
	External
)

func (k Kind) String() string {
	switch k {
	case Unreadable:
		return "unreadable"
	case Miss:
		return "miss"
	case TemplateMismatch:
		return "template_mismatch"
	case External:
		return "external"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind   Kind
	Source string
	Err    error
}

func (e *Error) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s (%s): %v", e.Kind, e.Source, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, source string, err error) *Error {
	return &Error{Kind: kind, Source: source, Err: err}
}

func Newf(kind Kind, source, format string, args ...any) *Error {
	return &Error{Kind: kind, Source: source, Err: fmt.Errorf(format, args...)}
}

// Is reports whether any error in err's chain is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind == kind
	}
	return false
}

// Warning is a non-fatal problem recorded during a run.
type Warning struct {
	Kind    string `json:"kind"`
	Source  string `json:"source"`
	Message string `json:"message"`
}

func AsWarning(err error) Warning {
	var fe *Error
	if errors.As(err, &fe) {
		return Warning{Kind: fe.Kind.String(), Source: fe.Source, Message: fe.Err.Error()}
	}
	return Warning{Kind: "unknown", Message: err.Error()}
}
