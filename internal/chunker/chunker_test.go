package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sentence(n int) string {
	return strings.Repeat("x", n)
}

func TestSplit_ShortSentencesDropForSentenceModalities(t *testing.T) {
	text := "AA. BB. CC."

	for _, m := range []Modality{Video, Link} {
		pieces, err := Split(text, m)
		require.NoError(t, err)
		assert.Empty(t, pieces, m)
	}
}

func TestSplit_ParagraphModalityKeepsWholeText(t *testing.T) {
	text := strings.Repeat("Photosynthesis converts light into chemical energy. ", 3)

	pieces, err := Split(text, PDF)
	require.NoError(t, err)
	require.Len(t, pieces, 1)
	assert.Equal(t, strings.TrimSpace(text), pieces[0])

	pieces, err = Split(text, Video)
	require.NoError(t, err)
	assert.Empty(t, pieces)
}

func TestSplit_Thresholds(t *testing.T) {
	tests := []struct {
		modality Modality
		sep      string
		min      int
	}{
		{PDF, "\n\n", 80},
		{DOCX, "\n\n", 80},
		{Video, ". ", 100},
		{Link, ". ", 120},
	}

	for _, tt := range tests {
		t.Run(string(tt.modality), func(t *testing.T) {
			atMin := sentence(tt.min)
			above := sentence(tt.min + 1)
			text := strings.Join([]string{atMin, above, "  " + above + "  "}, tt.sep)

			pieces, err := Split(text, tt.modality)
			require.NoError(t, err)
			assert.Equal(t, []string{above, above}, pieces)
			assert.Equal(t, tt.min, MinLength(tt.modality))
		})
	}
}

func TestSplit_CountsCharactersNotBytes(t *testing.T) {
	// Cyrillic letters are two bytes each in UTF-8.
	short := strings.Repeat("ж", 45)
	atMin := strings.Repeat("ж", 80)
	above := strings.Repeat("ж", 81)
	text := strings.Join([]string{short, atMin, above}, "\n\n")

	pieces, err := Split(text, PDF)
	require.NoError(t, err)
	assert.Equal(t, []string{above}, pieces)
}

func TestSplit_UnknownModality(t *testing.T) {
	_, err := Split("text", Modality("audio"))
	assert.Error(t, err)
}

func TestBuild_AssignsIndicesAndIDs(t *testing.T) {
	meta := map[string]any{"source": "pdf", "fileName": "notes.pdf"}
	chunks := Build("job-7", []string{"first", "second", "third"}, meta)

	require.Len(t, chunks, 3)
	for i, c := range chunks {
		assert.Equal(t, ID("job-7", i), c.ID)
		assert.Equal(t, i, c.Metadata["chunk_index"])
		assert.Equal(t, "pdf", c.Metadata["source"])
	}
	assert.Equal(t, "job-7_chunk_0", chunks[0].ID)
	assert.Equal(t, "second", chunks[1].Text)

	// Metadata maps are independent copies.
	chunks[0].Metadata["source"] = "changed"
	assert.Equal(t, "pdf", chunks[1].Metadata["source"])
	assert.Equal(t, "pdf", meta["source"])
	assert.NotContains(t, meta, "chunk_index")
}

func TestBuild_Empty(t *testing.T) {
	assert.Empty(t, Build("job", nil, nil))
}
