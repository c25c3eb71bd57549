// Package media wraps the external engines extraction depends on: OCR
// (tesseract), speech transcription (an OpenAI-compatible Whisper
// endpoint), and the ffmpeg, ffprobe, pdftoppm and yt-dlp command line
// tools.
//
// Each engine sits behind a small interface so extractors can be tested
// with fakes.
package media
