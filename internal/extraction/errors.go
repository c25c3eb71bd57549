package extraction

import (
	"errors"
	"fmt"
)

// Kind classifies an extraction failure.
type Kind string

const (
	KindConfiguration       Kind = "Configuration"
	KindUpstream            Kind = "Upstream"
	KindInsufficientContent Kind = "InsufficientContent"
	KindUnsupportedSource   Kind = "UnsupportedSource"
)

// Error is returned by every extractor. Detail is the human readable
// reason stored on the job.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err is an *Error of kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}

// Detail returns the stored reason for err: the Detail of an *Error, or
// err.Error() otherwise.
func Detail(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Detail
	}
	return err.Error()
}

func configurationError(format string, args ...any) error {
	return &Error{Kind: KindConfiguration, Detail: fmt.Sprintf(format, args...)}
}

func upstreamError(detail string, err error) error {
	return &Error{Kind: KindUpstream, Detail: detail, Err: err}
}

func insufficientError(detail string) error {
	return &Error{Kind: KindInsufficientContent, Detail: detail}
}

func unsupportedError(detail string, err error) error {
	return &Error{Kind: KindUnsupportedSource, Detail: detail, Err: err}
}

// UnsupportedFileType is the Configuration error for a declared media type
// no extractor handles.
func UnsupportedFileType(fileType string) error {
	return configurationError("Unsupported file type: %s", fileType)
}
