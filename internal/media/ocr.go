package media

import (
	"context"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/insightverse/internal/config"
)

// Recognizer turns an image into text.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte) (string, error)
}

// TesseractCLI runs the tesseract binary, streaming the image on stdin.
type TesseractCLI struct {
	Path     string
	Language string
}

// NewTesseract builds a TesseractCLI from OCR config.
func NewTesseract(cfg config.OCRConfig) *TesseractCLI {
	t := &TesseractCLI{Path: cfg.TesseractPath, Language: cfg.Language}
	if t.Path == "" {
		t.Path = "tesseract"
	}
	if t.Language == "" {
		t.Language = "eng"
	}
	return t
}

// Recognize implements Recognizer. The result is trimmed.
func (t *TesseractCLI) Recognize(ctx context.Context, image []byte) (string, error) {
	if len(image) == 0 {
		return "", fmt.Errorf("empty image")
	}
	out, err := run(ctx, t.Path, image, "stdin", "stdout", "-l", t.Language)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
