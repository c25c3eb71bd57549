package media

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/fyrsmithlabs/insightverse/internal/config"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// DefaultSpeechModel is the Whisper model requested by default.
const DefaultSpeechModel = "whisper-1"

// Transcript is speech rendered as English text. Language is the
// detected source language when the server reports one.
type Transcript struct {
	Text     string
	Language string
}

// Transcriber converts audio to English text, translating when the
// speech is in another language.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, name string) (Transcript, error)
}

// WhisperTranscriber calls the audio translations endpoint of an
// OpenAI-compatible server.
type WhisperTranscriber struct {
	client openai.Client
	model  string
}

// NewWhisperTranscriber builds a transcriber. A BaseURL pointing at a
// local Whisper server works without an API key.
func NewWhisperTranscriber(cfg config.SpeechConfig, httpClient *http.Client) *WhisperTranscriber {
	// Extraction fails the job on the first error.
	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	key := cfg.APIKey.Value()
	if key == "" {
		key = "unused"
	}
	opts = append(opts, option.WithAPIKey(key))
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}

	model := cfg.Model
	if model == "" {
		model = DefaultSpeechModel
	}
	return &WhisperTranscriber{client: openai.NewClient(opts...), model: model}
}

// namedAudio lets the multipart encoder send a filename and content type.
type namedAudio struct {
	*bytes.Reader
	name string
}

func (a namedAudio) Filename() string { return a.name }

func (a namedAudio) ContentType() string {
	switch strings.ToLower(path.Ext(a.name)) {
	case ".wav":
		return "audio/wav"
	case ".mp3":
		return "audio/mpeg"
	case ".m4a":
		return "audio/mp4"
	default:
		return "application/octet-stream"
	}
}

// Transcribe implements Transcriber.
func (w *WhisperTranscriber) Transcribe(ctx context.Context, audio []byte, name string) (Transcript, error) {
	if len(audio) == 0 {
		return Transcript{}, fmt.Errorf("empty audio")
	}
	if name == "" {
		name = "audio.wav"
	}

	var body verboseTranslation
	_, err := w.client.Audio.Translations.New(ctx, openai.AudioTranslationNewParams{
		File:           namedAudio{Reader: bytes.NewReader(audio), name: name},
		Model:          openai.AudioModel(w.model),
		ResponseFormat: openai.AudioTranslationNewParamsResponseFormatVerboseJSON,
	}, option.WithResponseBodyInto(&body))
	if err != nil {
		return Transcript{}, fmt.Errorf("translating audio: %w", err)
	}
	return Transcript{Text: strings.TrimSpace(body.Text), Language: body.Language}, nil
}

// verboseTranslation is the verbose_json body; servers that ignore the
// format still send text.
type verboseTranslation struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}
