package extraction

import (
	"context"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/insightverse/internal/chunker"
	"github.com/fyrsmithlabs/insightverse/internal/ingest"
	"github.com/fyrsmithlabs/insightverse/internal/objectstore"
)

// Result is the normalized text of one source plus the metadata copied
// onto each of its chunks.
type Result struct {
	Text     string
	Modality chunker.Modality
	Meta     map[string]any
}

// Extractor converts one kind of source to text.
type Extractor interface {
	Extract(ctx context.Context, p ingest.Payload) (Result, error)
}

// Normalize collapses every run of whitespace to a single space and trims
// the ends.
func Normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Source reads uploaded files referenced as s3://bucket/object.
type Source struct {
	Fetcher objectstore.Fetcher
}

// Fetch resolves ref and downloads it. A malformed reference is
// UnsupportedSource; any storage failure is Upstream.
func (s Source) Fetch(ctx context.Context, ref string) ([]byte, error) {
	r, err := objectstore.ParseReference(ref)
	if err != nil {
		return nil, unsupportedError("Invalid storage URL", err)
	}
	if s.Fetcher == nil {
		return nil, configurationError("object storage is not configured")
	}
	data, err := s.Fetcher.FetchBytes(ctx, r)
	if objectstore.IsNotFound(err) {
		return nil, upstreamError(fmt.Sprintf("%s does not exist", r), err)
	}
	if err != nil {
		return nil, upstreamError(fmt.Sprintf("failed to fetch %s", r), err)
	}
	return data, nil
}

// fileMeta is the chunk metadata shared by uploaded sources.
func fileMeta(source string, p ingest.Payload) map[string]any {
	md := map[string]any{
		"source":     source,
		"fileName":   p.Origin(),
		"sourceType": string(ingest.KindFile),
	}
	if p.UserID != "" {
		md["userId"] = p.UserID
	}
	return md
}

// linkMeta is the chunk metadata shared by link sources.
func linkMeta(p ingest.Payload) map[string]any {
	md := map[string]any{
		"source":     "link",
		"url":        p.Link.URL,
		"linkType":   string(p.Link.LinkType),
		"sourceType": string(ingest.KindLink),
	}
	if p.UserID != "" {
		md["userId"] = p.UserID
	}
	return md
}

func requireFile(p ingest.Payload) error {
	if p.Kind != ingest.KindFile || p.File == nil {
		return configurationError("expected a FILE payload")
	}
	return nil
}

func requireLink(p ingest.Payload, lt ingest.LinkType) error {
	if p.Kind != ingest.KindLink || p.Link == nil || p.Link.LinkType != lt {
		return configurationError("expected a %s link payload", lt)
	}
	return nil
}
