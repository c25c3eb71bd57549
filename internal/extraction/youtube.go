package extraction

import (
	"context"
	"encoding/xml"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/fyrsmithlabs/insightverse/internal/chunker"
	"github.com/fyrsmithlabs/insightverse/internal/ingest"
	"github.com/fyrsmithlabs/insightverse/internal/logging"
	"github.com/fyrsmithlabs/insightverse/internal/media"
	"go.uber.org/zap"
)

const (
	// DefaultTranscriptURL serves caption tracks as timed-text XML.
	DefaultTranscriptURL = "https://www.youtube.com/api/timedtext"

	msgYouTubeInvalid      = "Invalid YouTube URL"
	msgYouTubeInsufficient = "Insufficient YouTube content extracted"
)

var (
	videoIDPatterns = []*regexp.Regexp{
		regexp.MustCompile(`v=([a-zA-Z0-9_-]{11})`),
		regexp.MustCompile(`youtu\.be/([a-zA-Z0-9_-]{11})`),
	}

	// transcriptLanguages are tried in order.
	transcriptLanguages = []string{"en", "en-US"}
)

// VideoID extracts the 11 character video id from a YouTube URL.
func VideoID(raw string) (string, bool) {
	for _, re := range videoIDPatterns {
		if m := re.FindStringSubmatch(raw); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// TierStatus reports whether a YouTube text tier produced text.
type TierStatus int

const (
	TierUnavailable TierStatus = iota
	TierOk
)

// Tier is the outcome of one YouTube text source. Reason explains an
// unavailable tier.
type Tier struct {
	Status TierStatus
	Text   string
	Reason string
}

func tierOk(text string) Tier { return Tier{Status: TierOk, Text: text} }

func tierUnavailable(format string, args ...any) Tier {
	return Tier{Status: TierUnavailable, Reason: fmt.Sprintf(format, args...)}
}

// YouTubeExtractor combines the caption transcript (or, failing that, a
// transcription of the audio track) with the page title and description.
type YouTubeExtractor struct {
	Client        *http.Client
	TranscriptURL string
	Speech        media.Transcriber
	Tools         media.Toolbox
	WorkDir       string
	Logger        *logging.Logger
}

// Extract implements Extractor. Transcript and audio failures only
// degrade the result; the length check decides the outcome.
func (x *YouTubeExtractor) Extract(ctx context.Context, p ingest.Payload) (Result, error) {
	if err := requireLink(p, ingest.LinkYouTube); err != nil {
		return Result{}, err
	}
	id, ok := VideoID(p.Link.URL)
	if !ok {
		return Result{}, unsupportedError(msgYouTubeInvalid, nil)
	}
	logger := x.logger().With(zap.String("video_id", id))

	var texts []string

	spoken := x.Transcript(ctx, id)
	if spoken.Status != TierOk {
		logger.Info(ctx, "transcript unavailable, falling back to audio", zap.String("reason", spoken.Reason))
		spoken = x.Audio(ctx, p.Link.URL)
	}
	if spoken.Status == TierOk {
		texts = append(texts, spoken.Text)
	} else {
		logger.Warn(ctx, "audio transcription unavailable", zap.String("reason", spoken.Reason))
	}

	meta := x.Metadata(ctx, p.Link.URL)
	if meta.Status == TierOk {
		texts = append(texts, meta.Text)
	} else {
		logger.Warn(ctx, "page metadata unavailable", zap.String("reason", meta.Reason))
	}

	text := Normalize(strings.Join(texts, " "))
	if textLen(text) < MinLinkText {
		return Result{}, insufficientError(msgYouTubeInsufficient)
	}
	return Result{Text: text, Modality: chunker.Link, Meta: linkMeta(p)}, nil
}

type timedText struct {
	Lines []struct {
		Text string `xml:",chardata"`
	} `xml:"text"`
}

// Transcript fetches the first available caption track in the preferred
// languages.
func (x *YouTubeExtractor) Transcript(ctx context.Context, videoID string) Tier {
	base := x.TranscriptURL
	if base == "" {
		base = DefaultTranscriptURL
	}

	reasons := make([]string, 0, len(transcriptLanguages))
	for _, lang := range transcriptLanguages {
		text, err := x.fetchTranscript(ctx, base, videoID, lang)
		if err != nil {
			reasons = append(reasons, fmt.Sprintf("%s: %v", lang, err))
			continue
		}
		if text == "" {
			reasons = append(reasons, lang+": empty")
			continue
		}
		return tierOk(text)
	}
	return tierUnavailable("no transcript (%s)", strings.Join(reasons, "; "))
}

func (x *YouTubeExtractor) fetchTranscript(ctx context.Context, base, videoID, lang string) (string, error) {
	q := url.Values{}
	q.Set("v", videoID)
	q.Set("lang", lang)

	resp, err := browserGet(ctx, x.client(), base+"?"+q.Encode())
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	var tt timedText
	if err := xml.NewDecoder(resp.Body).Decode(&tt); err != nil {
		return "", fmt.Errorf("decoding transcript: %w", err)
	}
	lines := make([]string, 0, len(tt.Lines))
	for _, l := range tt.Lines {
		if s := strings.TrimSpace(html.UnescapeString(l.Text)); s != "" {
			lines = append(lines, s)
		}
	}
	return strings.Join(lines, "\n"), nil
}

// Audio downloads the audio track and transcribes it.
func (x *YouTubeExtractor) Audio(ctx context.Context, videoURL string) Tier {
	if x.Speech == nil || x.Tools == nil {
		return tierUnavailable("audio transcription not configured")
	}
	dir, err := os.MkdirTemp(x.WorkDir, "insightverse-yt-*")
	if err != nil {
		return tierUnavailable("work directory: %v", err)
	}
	defer os.RemoveAll(dir)

	wavPath := filepath.Join(dir, "audio.wav")
	if err := x.Tools.DownloadAudio(ctx, videoURL, wavPath); err != nil {
		return tierUnavailable("download: %v", err)
	}
	wav, err := os.ReadFile(wavPath)
	if err != nil {
		return tierUnavailable("read audio: %v", err)
	}
	tr, err := x.Speech.Transcribe(ctx, wav, "audio.wav")
	if err != nil {
		return tierUnavailable("transcribe: %v", err)
	}
	if strings.TrimSpace(tr.Text) == "" {
		return tierUnavailable("transcription empty")
	}
	return tierOk(tr.Text)
}

// Metadata reads the page title and meta description.
func (x *YouTubeExtractor) Metadata(ctx context.Context, videoURL string) Tier {
	resp, err := browserGet(ctx, x.client(), videoURL)
	if err != nil {
		return tierUnavailable("fetch: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return tierUnavailable("HTTP %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return tierUnavailable("parse: %v", err)
	}
	title := strings.TrimSpace(doc.Find("title").First().Text())
	desc := strings.TrimSpace(doc.Find(`meta[name="description"]`).First().AttrOr("content", ""))
	if title == "" && desc == "" {
		return tierUnavailable("no title or description")
	}
	return tierOk(title + "\n" + desc)
}

func (x *YouTubeExtractor) client() *http.Client {
	if x.Client == nil {
		return NewHTTPClient(0)
	}
	return x.Client
}

func (x *YouTubeExtractor) logger() *logging.Logger {
	if x.Logger == nil {
		return logging.Nop()
	}
	return x.Logger
}
