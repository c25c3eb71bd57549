// Package objectstore resolves uploaded media in S3-compatible storage and
// issues presigned upload URLs for it.
package objectstore

import (
	"errors"
	"fmt"
	"strings"
)

const scheme = "s3://"

var (
	// ErrInvalidReference is returned for references not of the form
	// s3://bucket/object.
	ErrInvalidReference = errors.New("invalid object reference")

	// ErrUnsupportedType is returned for content types with no bucket.
	ErrUnsupportedType = errors.New("unsupported file format")

	// ErrNotFound is returned when the object does not exist.
	ErrNotFound = errors.New("object not found")
)

// Content types accepted for upload.
const (
	TypeMP4  = "video/mp4"
	TypePDF  = "application/pdf"
	TypeDOC  = "application/msword"
	TypeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

var buckets = map[string]string{
	TypeMP4:  "videos",
	TypePDF:  "pdfs",
	TypeDOC:  "docs",
	TypeDOCX: "docs",
}

// BucketFor returns the bucket holding uploads of contentType.
func BucketFor(contentType string) (string, bool) {
	b, ok := buckets[contentType]
	return b, ok
}

// Buckets lists every bucket uploads can land in.
func Buckets() []string {
	return []string{"videos", "pdfs", "docs"}
}

// Reference names one stored object.
type Reference struct {
	Bucket string
	Object string
}

func (r Reference) String() string {
	return scheme + r.Bucket + "/" + r.Object
}

// ParseReference splits s3://bucket/object. The object name may contain
// further slashes.
func ParseReference(raw string) (Reference, error) {
	if !strings.HasPrefix(raw, scheme) {
		return Reference{}, fmt.Errorf("%w: %q lacks %s prefix", ErrInvalidReference, raw, scheme)
	}
	bucket, object, ok := strings.Cut(strings.TrimPrefix(raw, scheme), "/")
	if !ok || bucket == "" || object == "" {
		return Reference{}, fmt.Errorf("%w: %q", ErrInvalidReference, raw)
	}
	return Reference{Bucket: bucket, Object: object}, nil
}
