// Package apperr carries the failure kind of a request stage up to the HTTP
// boundary, where it is mapped to a status code exactly once.
package apperr

import (
	"errors"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindInvalidInput
	KindUnsupportedFormat
	KindPayloadTooLarge
	KindUnsupportedLanguage
	KindStorage
	KindDecode
	KindTranscription
	KindEmptyTranscription
	KindUpstream
	KindSynthesis
)

var kindNames = map[Kind]string{
	KindInternal:            "internal",
	KindInvalidInput:        "invalid_input",
	KindUnsupportedFormat:   "unsupported_format",
	KindPayloadTooLarge:     "payload_too_large",
	KindUnsupportedLanguage: "unsupported_language",
	KindStorage:             "storage",
	KindDecode:              "decode",
	KindTranscription:       "transcription",
	KindEmptyTranscription:  "empty_transcription",
	KindUpstream:            "upstream",
	KindSynthesis:           "synthesis",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Status is the HTTP status for the kind: client-input kinds are 400,
// everything else is a processing failure.
func (k Kind) Status() int {
	switch k {
	case KindInvalidInput, KindUnsupportedFormat, KindPayloadTooLarge, KindUnsupportedLanguage:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf reports the kind of the first *Error in err's chain, or
// KindInternal when there is none.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}
