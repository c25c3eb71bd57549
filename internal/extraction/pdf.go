package extraction

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fyrsmithlabs/insightverse/internal/chunker"
	"github.com/fyrsmithlabs/insightverse/internal/ingest"
	"github.com/fyrsmithlabs/insightverse/internal/logging"
	"github.com/fyrsmithlabs/insightverse/internal/media"
	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"
)

// DefaultRasterDPI is the resolution scanned pages are rendered at.
const DefaultRasterDPI = 300

// PDFExtractor reads embedded page text and OCRs pages that have none.
type PDFExtractor struct {
	Source  Source
	OCR     media.Recognizer
	Tools   media.Toolbox
	DPI     int
	WorkDir string
	Logger  *logging.Logger
}

// Extract implements Extractor.
func (x *PDFExtractor) Extract(ctx context.Context, p ingest.Payload) (Result, error) {
	if err := requireFile(p); err != nil {
		return Result{}, err
	}
	data, err := x.Source.Fetch(ctx, p.File.FileURL)
	if err != nil {
		return Result{}, err
	}

	pages, err := x.pages(ctx, data)
	if err != nil {
		return Result{}, err
	}

	text := Normalize(strings.Join(pages, "\n\n"))
	if text == "" {
		return Result{}, insufficientError("PDF contains no readable text")
	}
	return Result{Text: text, Modality: chunker.PDF, Meta: fileMeta("pdf", p)}, nil
}

// pages returns the text of each page that yielded any, in page order.
func (x *PDFExtractor) pages(ctx context.Context, data []byte) (out []string, err error) {
	logger := x.logger()

	// The PDF parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			err = upstreamError("failed to decode PDF", fmt.Errorf("%v", r))
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, upstreamError("failed to decode PDF", err)
	}

	var scratch *pdfScratch
	defer func() {
		if scratch != nil {
			scratch.cleanup()
		}
	}()

	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, upstreamError("PDF extraction canceled", err)
		}

		text, perr := pageText(reader, i)
		if perr != nil {
			// An unreadable text layer gets the OCR path too.
			logger.Debug(ctx, "failed to read pdf page text", zap.Int("page", i), zap.Error(perr))
		}
		if text != "" {
			out = append(out, text)
			continue
		}

		if scratch == nil {
			scratch, perr = newPDFScratch(x.WorkDir, data)
			if perr != nil {
				logger.Warn(ctx, "failed to stage pdf for OCR", zap.Error(perr))
				continue
			}
		}
		logger.Debug(ctx, "running OCR on pdf page", zap.Int("page", i))
		ocr, perr := x.ocrPage(ctx, scratch.path, i)
		if perr != nil {
			logger.Warn(ctx, "failed to OCR pdf page", zap.Int("page", i), zap.Error(perr))
			continue
		}
		if ocr != "" {
			out = append(out, ocr)
		}
	}
	return out, nil
}

func pageText(r *pdf.Reader, i int) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			text, err = "", fmt.Errorf("page %d: %v", i, rec)
		}
	}()
	page := r.Page(i)
	if page.V.IsNull() {
		return "", nil
	}
	text, err = page.GetPlainText(nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (x *PDFExtractor) ocrPage(ctx context.Context, path string, page int) (string, error) {
	if x.OCR == nil || x.Tools == nil {
		return "", fmt.Errorf("OCR is not configured")
	}
	dpi := x.DPI
	if dpi <= 0 {
		dpi = DefaultRasterDPI
	}
	img, err := x.Tools.RasterizePage(ctx, path, page, dpi)
	if err != nil {
		return "", err
	}
	text, err := x.OCR.Recognize(ctx, img)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (x *PDFExtractor) logger() *logging.Logger {
	if x.Logger == nil {
		return logging.Nop()
	}
	return x.Logger
}

// pdfScratch holds the document on disk for the rasterizer.
type pdfScratch struct {
	dir  string
	path string
}

func newPDFScratch(workDir string, data []byte) (*pdfScratch, error) {
	dir, err := os.MkdirTemp(workDir, "insightverse-pdf-*")
	if err != nil {
		return nil, err
	}
	path := filepath.Join(dir, "document.pdf")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	return &pdfScratch{dir: dir, path: path}, nil
}

func (s *pdfScratch) cleanup() {
	os.RemoveAll(s.dir)
}
