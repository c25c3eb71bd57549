package ingest

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// wirePayload is the flat JSON form accepted over HTTP.
type wirePayload struct {
	SourceType string       `json:"sourceType"`
	Services   wireServices `json:"services"`
	Query      string       `json:"query,omitempty"`
	FileType   string       `json:"fileType,omitempty"`
	FileURL    string       `json:"fileUrl,omitempty"`
	LinkType   string       `json:"linkType,omitempty"`
	URL        string       `json:"url,omitempty"`
	UserID     string       `json:"userId,omitempty"`
}

type wireServices struct {
	Summary    []string  `json:"summary,omitempty"`
	Quiz       *wireQuiz `json:"quiz,omitempty"`
	Concept    []string  `json:"concept,omitempty"`
	Flashcards bool      `json:"flashcards,omitempty"`
}

type wireQuiz struct {
	Difficulty string   `json:"difficulty"`
	Types      []string `json:"types"`
}

// Decode parses and validates the wire form.
func Decode(data []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := p.Validate(); err != nil {
		return Payload{}, err
	}
	return p, nil
}

// MarshalJSON encodes p in the flat wire form.
func (p Payload) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.wire())
}

// UnmarshalJSON decodes the flat wire form without validating it.
func (p *Payload) UnmarshalJSON(data []byte) error {
	var w wirePayload
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	out := Payload{
		Kind:   Kind(w.SourceType),
		Query:  w.Query,
		UserID: w.UserID,
		Services: Services{
			Summary:    w.Services.Summary,
			Concept:    w.Services.Concept,
			Flashcards: w.Services.Flashcards,
		},
	}
	if q := w.Services.Quiz; q != nil {
		types := make([]QuizType, len(q.Types))
		for i, t := range q.Types {
			types[i] = QuizType(t)
		}
		out.Services.Quiz = &QuizRequest{Difficulty: q.Difficulty, Types: types}
	}

	switch out.Kind {
	case KindFile:
		out.File = &FileSource{FileType: w.FileType, FileURL: w.FileURL}
	case KindLink:
		out.Link = &LinkSource{LinkType: LinkType(w.LinkType), URL: w.URL}
	}

	*p = out
	return nil
}

func (p Payload) wire() wirePayload {
	w := wirePayload{
		SourceType: string(p.Kind),
		Query:      p.Query,
		UserID:     p.UserID,
		Services: wireServices{
			Summary:    p.Services.Summary,
			Concept:    p.Services.Concept,
			Flashcards: p.Services.Flashcards,
		},
	}
	if q := p.Services.Quiz; q != nil {
		types := make([]string, len(q.Types))
		for i, t := range q.Types {
			types[i] = string(t)
		}
		w.Services.Quiz = &wireQuiz{Difficulty: q.Difficulty, Types: types}
	}
	if p.File != nil {
		w.FileType = p.File.FileType
		w.FileURL = p.File.FileURL
	}
	if p.Link != nil {
		w.LinkType = string(p.Link.LinkType)
		w.URL = p.Link.URL
	}
	return w
}

// Fingerprint returns the SHA-256 hex digest of the canonical JSON form of
// p. Object keys are sorted at every level, so two payloads that differ only
// in field order hash identically.
func Fingerprint(p Payload) (string, error) {
	raw, err := json.Marshal(p.wire())
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	canonical, err := canonicalJSON(raw)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// canonicalJSON re-encodes raw through a generic value; encoding/json
// writes map keys in sorted order.
func canonicalJSON(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("canonicalize payload: %w", err)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("canonicalize payload: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
