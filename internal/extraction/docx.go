package extraction

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fyrsmithlabs/insightverse/internal/chunker"
	"github.com/fyrsmithlabs/insightverse/internal/ingest"
	"github.com/fyrsmithlabs/insightverse/internal/logging"
	"github.com/fyrsmithlabs/insightverse/internal/media"
	"go.uber.org/zap"
)

const (
	docxBody     = "word/document.xml"
	docxMediaDir = "word/media/"
)

// DOCXExtractor reads body paragraphs and OCRs embedded images.
type DOCXExtractor struct {
	Source Source
	OCR    media.Recognizer
	Logger *logging.Logger
}

// Extract implements Extractor.
func (x *DOCXExtractor) Extract(ctx context.Context, p ingest.Payload) (Result, error) {
	if err := requireFile(p); err != nil {
		return Result{}, err
	}
	data, err := x.Source.Fetch(ctx, p.File.FileURL)
	if err != nil {
		return Result{}, err
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Result{}, upstreamError("failed to open document archive", err)
	}

	var blocks []string
	for _, f := range zr.File {
		if f.Name != docxBody {
			continue
		}
		raw, err := readZipFile(f)
		if err != nil {
			return Result{}, upstreamError("failed to read document body", err)
		}
		paras, err := docxParagraphs(raw)
		if err != nil {
			return Result{}, upstreamError("failed to parse document body", err)
		}
		blocks = append(blocks, paras...)
	}

	blocks = append(blocks, x.ocrMedia(ctx, zr)...)

	text := Normalize(strings.Join(blocks, "\n\n"))
	if text == "" {
		return Result{}, insufficientError("Document contains no readable text")
	}
	return Result{Text: text, Modality: chunker.DOCX, Meta: fileMeta("docx", p)}, nil
}

// ocrMedia recognizes every embedded image in archive order. Unreadable
// images are skipped.
func (x *DOCXExtractor) ocrMedia(ctx context.Context, zr *zip.Reader) []string {
	if x.OCR == nil {
		return nil
	}
	logger := x.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	var names []*zip.File
	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, docxMediaDir) && !f.FileInfo().IsDir() {
			names = append(names, f)
		}
	}
	sort.SliceStable(names, func(i, j int) bool { return names[i].Name < names[j].Name })

	var out []string
	for _, f := range names {
		img, err := readZipFile(f)
		if err != nil {
			logger.Debug(ctx, "skipping unreadable docx image", zap.String("name", f.Name), zap.Error(err))
			continue
		}
		text, err := x.OCR.Recognize(ctx, img)
		if err != nil {
			logger.Debug(ctx, "skipping docx image OCR failure", zap.String("name", f.Name), zap.Error(err))
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			out = append(out, text)
		}
	}
	return out
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// docxParagraphs returns the non-empty text of each w:p in the body, in
// document order. Text inside tables is included with its row's paragraphs.
func docxParagraphs(raw []byte) ([]string, error) {
	dec := xml.NewDecoder(bytes.NewReader(raw))

	var (
		paras  []string
		cur    strings.Builder
		inPara int
		inText bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decoding document.xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				if inPara == 0 {
					cur.Reset()
				}
				inPara++
			case "t":
				inText = true
			case "tab":
				if inPara > 0 {
					cur.WriteByte('\t')
				}
			case "br", "cr":
				if inPara > 0 {
					cur.WriteByte('\n')
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "p":
				inPara--
				if inPara == 0 {
					if s := strings.TrimSpace(cur.String()); s != "" {
						paras = append(paras, s)
					}
				}
			case "t":
				inText = false
			}
		case xml.CharData:
			if inText && inPara > 0 {
				cur.Write(t)
			}
		}
	}
	return paras, nil
}
