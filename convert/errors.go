package convert

import "fmt"

// Code identifies a converter failure mode (§4.3).
type Code string

const (
	CodeMalformedPath    Code = "MalformedPath"
	CodeStackImbalance   Code = "StackImbalance"
	CodeInvalidCardinality Code = "InvalidCardinality"
	CodeUnresolvedChoice Code = "UnresolvedChoice"
)

// ConvertError is a converter-level hard failure. It is never retried and
// always propagates to the caller (§7): a partial converted schema would be
// unsound.
type ConvertError struct {
	Code Code
	Path string
	Err  error
}

func (e *ConvertError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("convert: %s at %q: %v", e.Code, e.Path, e.Err)
	}
	return fmt.Sprintf("convert: %s at %q", e.Code, e.Path)
}

func (e *ConvertError) Unwrap() error { return e.Err }

func wrapAt(code Code, path string, err error) error {
	return &ConvertError{Code: code, Path: path, Err: err}
}

// As reports whether err is (or wraps) a ConvertError of the given code.
func As(err error, code Code) bool {
	ce, ok := err.(*ConvertError)
	if ok {
		return ce.Code == code
	}
	type unwrapper interface{ Unwrap() error }
	if u, ok := err.(unwrapper); ok {
		return As(u.Unwrap(), code)
	}
	return false
}
