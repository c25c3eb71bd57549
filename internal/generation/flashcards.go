package generation

import (
	"regexp"
	"strings"
)

const (
	minNoteWords = 5
	maxNoteWords = 20
	bulletCutset = "•- "
)

var (
	codeBlockRe  = regexp.MustCompile("(?s)```.*?```")
	noteFieldRe  = regexp.MustCompile(`"note"\s*:\s*"([^"]+)"`)
	quotedLineRe = regexp.MustCompile(`(?m)^\s*"([^"]+)"\s*,?\s*$`)
	// Brackets alone, whole objects, key/value pairs and lone string
	// elements. Prose that merely starts with a quote or bracket is kept.
	jsonLineRe = regexp.MustCompile(`^(?:[\[\]{}]+,?|\[?\s*\{.*\}\s*\]?,?|"[^"]*"\s*:.*|"[^"]*"\s*,?)$`)
)

// Flashcard is one revision note.
type Flashcard struct {
	Note string `json:"note"`
}

// ParseFlashcards reads revision notes from model output. Output that
// decodes as JSON, fenced or not, is read structurally; anything else
// falls back to MineNotes.
func ParseFlashcards(raw string) []string {
	if v, err := ParseModelJSON(raw); err == nil {
		var notes []string
		for _, item := range ensureList(v) {
			switch t := item.(type) {
			case string:
				notes = append(notes, t)
			case map[string]any:
				if s, ok := t["note"].(string); ok {
					notes = append(notes, s)
				}
			}
		}
		if out := uniqueNotes(notes); len(out) > 0 {
			return out
		}
	}
	return MineNotes(raw)
}

// MineNotes pulls revision notes out of free-form model output without
// assuming it is valid JSON. Sources, in order: "note" fields, lines that
// are a lone quoted string, and bullet-like lines of 5 to 20 words.
// Duplicates keep their first position.
func MineNotes(raw string) []string {
	raw = codeBlockRe.ReplaceAllString(raw, "")

	var notes []string
	for _, m := range noteFieldRe.FindAllStringSubmatch(raw, -1) {
		notes = append(notes, m[1])
	}
	for _, m := range quotedLineRe.FindAllStringSubmatch(raw, -1) {
		notes = append(notes, m[1])
	}
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(strings.Trim(line, bulletCutset))
		// JSON lines were already mined above.
		if line == "" || jsonLineRe.MatchString(line) {
			continue
		}
		if n := len(strings.Fields(line)); n >= minNoteWords && n <= maxNoteWords {
			notes = append(notes, line)
		}
	}
	return uniqueNotes(notes)
}

func uniqueNotes(notes []string) []string {
	seen := make(map[string]bool, len(notes))
	out := make([]string, 0, len(notes))
	for _, n := range notes {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
