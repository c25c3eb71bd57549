package extraction

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fyrsmithlabs/insightverse/internal/chunker"
	"github.com/fyrsmithlabs/insightverse/internal/ingest"
	"github.com/fyrsmithlabs/insightverse/internal/logging"
	"github.com/fyrsmithlabs/insightverse/internal/media"
	"go.uber.org/zap"
)

const (
	// DefaultFrameInterval is the spacing of frames sampled for OCR.
	DefaultFrameInterval = 5 * time.Second

	// minFrameText drops OCR output at or below this length as noise.
	minFrameText = 40
)

// VideoExtractor transcribes the audio track and OCRs sampled frames.
type VideoExtractor struct {
	Source        Source
	Speech        media.Transcriber
	OCR           media.Recognizer
	Tools         media.Toolbox
	FrameInterval time.Duration
	WorkDir       string
	Logger        *logging.Logger
}

// Extract implements Extractor. Audio text comes first, then frame text.
func (x *VideoExtractor) Extract(ctx context.Context, p ingest.Payload) (Result, error) {
	if err := requireFile(p); err != nil {
		return Result{}, err
	}
	if x.Speech == nil || x.Tools == nil {
		return Result{}, configurationError("video extraction requires speech and media tools")
	}
	logger := x.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	data, err := x.Source.Fetch(ctx, p.File.FileURL)
	if err != nil {
		return Result{}, err
	}

	dir, err := os.MkdirTemp(x.WorkDir, "insightverse-video-*")
	if err != nil {
		return Result{}, upstreamError("failed to create work directory", err)
	}
	defer os.RemoveAll(dir)

	videoPath := filepath.Join(dir, "video.mp4")
	if err := os.WriteFile(videoPath, data, 0o600); err != nil {
		return Result{}, upstreamError("failed to stage video", err)
	}

	speech, err := x.transcribe(ctx, videoPath, filepath.Join(dir, "audio.wav"))
	if err != nil {
		return Result{}, err
	}
	audio := speech.Text

	framesDir := filepath.Join(dir, "frames")
	if err := os.Mkdir(framesDir, 0o700); err != nil {
		return Result{}, upstreamError("failed to create frame directory", err)
	}
	visual, err := x.frameText(ctx, logger, videoPath, framesDir)
	if err != nil {
		return Result{}, err
	}

	logger.Info(ctx, "video extracted",
		zap.Int("audio_chars", textLen(audio)),
		zap.Int("visual_blocks", len(visual)),
	)

	text := Normalize(audio + " " + strings.Join(visual, " "))
	if text == "" {
		return Result{}, insufficientError("Video contains no recognizable speech or on-screen text")
	}

	meta := fileMeta("video", p)
	meta["content_type"] = "audio+visual"
	if speech.Language != "" {
		meta["language"] = speech.Language
	}
	return Result{Text: text, Modality: chunker.Video, Meta: meta}, nil
}

func (x *VideoExtractor) transcribe(ctx context.Context, videoPath, wavPath string) (media.Transcript, error) {
	if err := x.Tools.ExtractAudio(ctx, videoPath, wavPath); err != nil {
		return media.Transcript{}, upstreamError("failed to extract audio track", err)
	}
	wav, err := os.ReadFile(wavPath)
	if err != nil {
		return media.Transcript{}, upstreamError("failed to read extracted audio", err)
	}
	tr, err := x.Speech.Transcribe(ctx, wav, filepath.Base(wavPath))
	if err != nil {
		return media.Transcript{}, upstreamError("speech transcription failed", err)
	}
	return tr, nil
}

// frameText OCRs sampled frames, keeping text longer than minFrameText.
// Individual frame failures are skipped.
func (x *VideoExtractor) frameText(ctx context.Context, logger *logging.Logger, videoPath, dir string) ([]string, error) {
	if x.OCR == nil {
		return nil, nil
	}
	interval := x.FrameInterval
	if interval <= 0 {
		interval = DefaultFrameInterval
	}

	frames, err := x.Tools.SampleFrames(ctx, videoPath, dir, interval)
	if err != nil {
		return nil, upstreamError("failed to sample video frames", err)
	}

	var out []string
	for _, f := range frames {
		img, err := os.ReadFile(f)
		if err != nil {
			logger.Debug(ctx, "skipping unreadable frame", zap.String("frame", f), zap.Error(err))
			continue
		}
		text, err := x.OCR.Recognize(ctx, img)
		if err != nil {
			logger.Debug(ctx, "skipping frame OCR failure", zap.String("frame", f), zap.Error(err))
			continue
		}
		if text = strings.TrimSpace(text); textLen(text) > minFrameText {
			out = append(out, text)
		}
	}
	return out, nil
}
