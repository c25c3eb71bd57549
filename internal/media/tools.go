package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fyrsmithlabs/insightverse/internal/config"
)

// FallbackFPS is used when a container reports no usable frame rate.
const FallbackFPS = 25.0

// Toolbox is the set of media operations extractors need.
type Toolbox interface {
	// ExtractAudio writes the audio track of video as 16 kHz mono PCM WAV.
	ExtractAudio(ctx context.Context, video, wav string) error
	// SampleFrames writes one PNG every interval of video into dir and
	// returns their paths in playback order.
	SampleFrames(ctx context.Context, video, dir string, interval time.Duration) ([]string, error)
	// RasterizePage renders 1-based page of pdf to PNG bytes.
	RasterizePage(ctx context.Context, pdf string, page, dpi int) ([]byte, error)
	// DownloadAudio fetches the best audio of a web video as WAV.
	DownloadAudio(ctx context.Context, url, wav string) error
}

// Tools shells out to ffmpeg, ffprobe, pdftoppm and yt-dlp.
type Tools struct {
	FFmpeg   string
	FFprobe  string
	Pdftoppm string
	YtDlp    string
}

// NewTools builds Tools from media config.
func NewTools(cfg config.MediaConfig) *Tools {
	return &Tools{
		FFmpeg:   orDefault(cfg.FFmpegPath, "ffmpeg"),
		FFprobe:  orDefault(cfg.FFprobePath, "ffprobe"),
		Pdftoppm: orDefault(cfg.PdftoppmPath, "pdftoppm"),
		YtDlp:    orDefault(cfg.YtDlpPath, "yt-dlp"),
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// ExtractAudio implements Toolbox.
func (t *Tools) ExtractAudio(ctx context.Context, video, wav string) error {
	_, err := run(ctx, t.FFmpeg, nil,
		"-y", "-loglevel", "error",
		"-i", video,
		"-vn", "-ac", "1", "-ar", "16000", "-acodec", "pcm_s16le",
		wav,
	)
	return err
}

// ProbeFPS returns the average frame rate of the first video stream, or
// FallbackFPS when ffprobe reports none.
func (t *Tools) ProbeFPS(ctx context.Context, video string) (float64, error) {
	out, err := run(ctx, t.FFprobe, nil,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=avg_frame_rate",
		"-of", "default=noprint_wrappers=1:nokey=1",
		video,
	)
	if err != nil {
		return 0, err
	}
	return ParseFrameRate(string(out)), nil
}

// ParseFrameRate parses ffprobe rates such as "30000/1001" or "25".
// Unparseable or non-positive rates yield FallbackFPS.
func ParseFrameRate(raw string) float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return FallbackFPS
	}
	if num, den, ok := strings.Cut(raw, "/"); ok {
		n, err1 := strconv.ParseFloat(num, 64)
		d, err2 := strconv.ParseFloat(den, 64)
		if err1 != nil || err2 != nil || d == 0 || n <= 0 {
			return FallbackFPS
		}
		return n / d
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f <= 0 {
		return FallbackFPS
	}
	return f
}

// FrameStep is the number of frames between samples. It is at least 1.
func FrameStep(fps float64, interval time.Duration) int {
	step := int(fps * interval.Seconds())
	if step < 1 {
		return 1
	}
	return step
}

// SampleFrames implements Toolbox. Frames 0, step, 2*step... are kept.
func (t *Tools) SampleFrames(ctx context.Context, video, dir string, interval time.Duration) ([]string, error) {
	fps, err := t.ProbeFPS(ctx, video)
	if err != nil {
		fps = FallbackFPS
	}
	step := FrameStep(fps, interval)

	pattern := filepath.Join(dir, "frame_%06d.png")
	_, err = run(ctx, t.FFmpeg, nil,
		"-y", "-loglevel", "error",
		"-i", video,
		"-vf", fmt.Sprintf("select=not(mod(n\\,%d))", step),
		"-vsync", "vfr",
		pattern,
	)
	if err != nil {
		return nil, err
	}

	frames, err := filepath.Glob(filepath.Join(dir, "frame_*.png"))
	if err != nil {
		return nil, err
	}
	sort.Strings(frames)
	return frames, nil
}

// RasterizePage implements Toolbox.
func (t *Tools) RasterizePage(ctx context.Context, pdf string, page, dpi int) ([]byte, error) {
	dir, err := os.MkdirTemp("", "insightverse-page-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	prefix := filepath.Join(dir, "page")
	p := strconv.Itoa(page)
	_, err = run(ctx, t.Pdftoppm, nil,
		"-r", strconv.Itoa(dpi),
		"-f", p, "-l", p,
		"-png", "-singlefile",
		pdf, prefix,
	)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(prefix + ".png")
}

// DownloadAudio implements Toolbox.
func (t *Tools) DownloadAudio(ctx context.Context, url, wav string) error {
	_, err := run(ctx, t.YtDlp, nil,
		"-f", "bestaudio",
		"--extract-audio",
		"--audio-format", "wav",
		"-o", wav,
		url,
	)
	return err
}
