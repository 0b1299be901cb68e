package errors

import stderrors "errors"

// Error is a coded failure from the mission lifecycle. Message and Cause are
// for logs only; clients see the localized text for Code.
type Error struct {
	Code     Code
	Message  string
	Metadata map[string]string // template values such as Email
	Cause    error
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Cause == nil:
		return e.Message
	case e.Message == "":
		return e.Cause.Error()
	default:
		return e.Message + ": " + e.Cause.Error()
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is matches any *Error with the same code, so callers can test
// errors.Is(err, New(CodeNotFound, "")).
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	return ok && e != nil && other != nil && e.Code == other.Code
}

// New returns an error carrying only a code and log message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithMetadata returns an error whose client message is rendered from metadata.
func WithMetadata(code Code, message string, metadata map[string]string) *Error {
	return &Error{Code: code, Message: message, Metadata: metadata}
}

// Wrap attaches code to an underlying failure.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// As returns the outermost *Error in err's chain.
func As(err error) (*Error, bool) {
	var coded *Error
	if !stderrors.As(err, &coded) || coded == nil {
		return nil, false
	}
	return coded, true
}

// CodeOf reports the code carried by err. Errors without one are CodeUnknown;
// a nil error has no code.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	if coded, ok := As(err); ok {
		return coded.Code
	}
	return CodeUnknown
}
