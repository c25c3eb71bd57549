package generation

import (
	"fmt"

	"github.com/fyrsmithlabs/insightverse/internal/ingest"
)

// QuizCount is the number of items requested per quiz type.
const QuizCount = 10

// FlashcardCount is the number of notes requested.
const FlashcardCount = 10

// SummaryPrompt asks for a plain-text summary of the given length.
func SummaryPrompt(content, length string) string {
	return fmt.Sprintf(`Generate a %s summary of the content below.

CONTENT:
%s

OUTPUT RULES:
- Plain text only
- No markdown
- No headings
- Student-friendly
`, length, content)
}

// QuizPrompt asks for count items of quizType as a strict JSON array.
func QuizPrompt(content, difficulty string, quizType ingest.QuizType, count int) string {
	switch quizType {
	case ingest.QuizShortAnswer:
		return fmt.Sprintf(`Generate %d short-answer questions.

Difficulty: %s

CONTENT:
%s

OUTPUT FORMAT (STRICT JSON):
[
  {
    "question": "",
    "answer": ""
  }
]

RULES:
- Academic tone
- No markdown
- No extra text
`, count, difficulty, content)
	case ingest.QuizMCQ:
		return fmt.Sprintf(`Generate %d multiple choice questions.

Difficulty: %s

CONTENT:
%s

OUTPUT FORMAT (STRICT JSON):
[
  {
    "question": "",
    "options": ["", "", "", ""],
    "answer": ""
  }
]

RULES:
- One correct answer
- No markdown
- No extra text
`, count, difficulty, content)
	case ingest.QuizTrueFalse:
		return fmt.Sprintf(`Generate %d true/false statements.

CONTENT:
%s

OUTPUT FORMAT (STRICT JSON):
[
  {
    "statement": "",
    "answer": true
  }
]

RULES:
- Each item must be a clear declarative statement
- Do NOT use questions or question marks
- No words like what, why, how, when, which
- Factual and verifiable from the content
- No markdown
- No extra text
`, count, content)
	}
	return ""
}

// ConceptPrompt asks for a free-text explanation in the given mode, such
// as "simple" or "detailed".
func ConceptPrompt(content, mode string) string {
	return fmt.Sprintf(`Explain the key concepts in the content below.

Mode: %s

CONTENT:
%s

OUTPUT RULES:
- Plain text only
- No markdown
- Define each concept before building on it
- Student-friendly
`, mode, content)
}

// FlashcardPrompt asks for short revision notes.
func FlashcardPrompt(content string, count int) string {
	return fmt.Sprintf(`Create %d short revision notes from the content below.

CONTENT:
%s

OUTPUT FORMAT (STRICT JSON):
[
  {
    "note": ""
  }
]

RULES:
- Each note states one fact in 5 to 20 words
- No markdown
- No extra text
`, count, content)
}

// ChatPrompt restricts an answer to the retrieved context.
func ChatPrompt(content, question string) string {
	return fmt.Sprintf(`You are an AI assistant that answers questions ONLY using the given context.

CONTEXT:
%s

QUESTION:
%s

RULES:
- Answer strictly from the context
- If the answer is not present, say:
  "%s"
- Be concise and factual
`, content, question, Refusal)
}

// Refusal is the answer given when nothing relevant was retrieved.
const Refusal = "This question is not related to the content you uploaded."
