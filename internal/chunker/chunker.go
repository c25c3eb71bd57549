// Package chunker splits normalized source text into retrieval passages.
package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Modality selects the split boundary and minimum passage length.
type Modality string

const (
	PDF   Modality = "pdf"
	DOCX  Modality = "docx"
	Video Modality = "video"
	Link  Modality = "link"
)

type rule struct {
	sep    string
	minLen int // pieces must be strictly longer
}

var rules = map[Modality]rule{
	PDF:   {sep: "\n\n", minLen: 80},
	DOCX:  {sep: "\n\n", minLen: 80},
	Video: {sep: ". ", minLen: 100},
	Link:  {sep: ". ", minLen: 120},
}

// MinLength returns the exclusive minimum passage length for m.
func MinLength(m Modality) int {
	return rules[m].minLen
}

// Chunk is one retrievable passage.
type Chunk struct {
	ID       string
	Text     string
	Metadata map[string]any
}

// Split breaks text on the modality boundary and drops trimmed pieces that
// are not longer than the modality minimum, counted in characters. Order is
// preserved.
func Split(text string, m Modality) ([]string, error) {
	r, ok := rules[m]
	if !ok {
		return nil, fmt.Errorf("unknown modality %q", m)
	}

	var out []string
	for _, piece := range strings.Split(text, r.sep) {
		piece = strings.TrimSpace(piece)
		if utf8.RuneCountInString(piece) > r.minLen {
			out = append(out, piece)
		}
	}
	return out, nil
}

// ID returns the stable chunk id for position i of a job.
func ID(jobID string, i int) string {
	return fmt.Sprintf("%s_chunk_%d", jobID, i)
}

// Build assigns ids and chunk_index 0..n-1 to pieces. meta is copied into
// every chunk.
func Build(jobID string, pieces []string, meta map[string]any) []Chunk {
	chunks := make([]Chunk, 0, len(pieces))
	for i, text := range pieces {
		md := make(map[string]any, len(meta)+1)
		for k, v := range meta {
			md[k] = v
		}
		md["chunk_index"] = i
		chunks = append(chunks, Chunk{ID: ID(jobID, i), Text: text, Metadata: md})
	}
	return chunks
}
