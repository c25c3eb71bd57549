// Package ingest defines the submission payload accepted by the ingestion
// pipeline and its canonical fingerprint.
package ingest

import (
	"errors"
	"fmt"
	"path"
)

// ErrInvalidPayload is returned when a payload fails validation.
var ErrInvalidPayload = errors.New("invalid payload")

// Kind is the declared source kind of a submission.
type Kind string

const (
	KindFile Kind = "FILE"
	KindLink Kind = "LINK"
)

// LinkType distinguishes the supported link sources.
type LinkType string

const (
	LinkWebsite LinkType = "website"
	LinkYouTube LinkType = "youtube"
)

// QuizType is one requested question style.
type QuizType string

const (
	QuizShortAnswer QuizType = "short_answer"
	QuizMCQ         QuizType = "mcq"
	QuizTrueFalse   QuizType = "true_false"
)

// Valid reports whether q is a known quiz type.
func (q QuizType) Valid() bool {
	switch q {
	case QuizShortAnswer, QuizMCQ, QuizTrueFalse:
		return true
	}
	return false
}

// FileSource is an uploaded object in object storage.
type FileSource struct {
	FileType string // declared media type
	FileURL  string // s3://bucket/object
}

// FileName returns the last path segment of the storage reference.
func (f FileSource) FileName() string {
	return path.Base(f.FileURL)
}

// LinkSource is a remote page or video.
type LinkSource struct {
	LinkType LinkType
	URL      string
}

// QuizRequest asks for one quiz per type at a given difficulty.
type QuizRequest struct {
	Difficulty string
	Types      []QuizType
}

// Services lists the generation services requested for a job.
type Services struct {
	Summary    []string // length variants, e.g. "short", "detailed"
	Quiz       *QuizRequest
	Concept    []string // explanation modes
	Flashcards bool
}

// Requested reports whether any generation service was asked for.
func (s Services) Requested() bool {
	return len(s.Summary) > 0 ||
		(s.Quiz != nil && len(s.Quiz.Types) > 0) ||
		len(s.Concept) > 0 ||
		s.Flashcards
}

// Payload is a validated submission. Exactly one of File or Link is set,
// matching Kind.
type Payload struct {
	Kind     Kind
	File     *FileSource
	Link     *LinkSource
	Query    string
	UserID   string
	Services Services
}

// Validate checks that the variant carries the fields it needs.
func (p Payload) Validate() error {
	switch p.Kind {
	case KindFile:
		if p.File == nil || p.Link != nil {
			return fmt.Errorf("%w: FILE payload must carry a file source only", ErrInvalidPayload)
		}
		if p.File.FileType == "" {
			return fmt.Errorf("%w: fileType is required", ErrInvalidPayload)
		}
		if p.File.FileURL == "" {
			return fmt.Errorf("%w: fileUrl is required", ErrInvalidPayload)
		}
	case KindLink:
		if p.Link == nil || p.File != nil {
			return fmt.Errorf("%w: LINK payload must carry a link source only", ErrInvalidPayload)
		}
		if p.Link.URL == "" {
			return fmt.Errorf("%w: url is required", ErrInvalidPayload)
		}
		switch p.Link.LinkType {
		case LinkWebsite, LinkYouTube:
		default:
			return fmt.Errorf("%w: unknown linkType %q", ErrInvalidPayload, p.Link.LinkType)
		}
	default:
		return fmt.Errorf("%w: unknown sourceType %q", ErrInvalidPayload, p.Kind)
	}

	if q := p.Services.Quiz; q != nil && len(q.Types) > 0 {
		if q.Difficulty == "" {
			return fmt.Errorf("%w: quiz difficulty is required", ErrInvalidPayload)
		}
		for _, t := range q.Types {
			if !t.Valid() {
				return fmt.Errorf("%w: unknown quiz type %q", ErrInvalidPayload, t)
			}
		}
	}
	return nil
}

// Origin returns the identifier recorded in chunk metadata: the file name
// for uploads and the URL for links.
func (p Payload) Origin() string {
	switch {
	case p.File != nil:
		return p.File.FileName()
	case p.Link != nil:
		return p.Link.URL
	}
	return ""
}
