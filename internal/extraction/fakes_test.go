package extraction_test

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fyrsmithlabs/insightverse/internal/ingest"
	"github.com/fyrsmithlabs/insightverse/internal/media"
	"github.com/fyrsmithlabs/insightverse/internal/objectstore"
)

type fakeFetcher struct {
	objects map[string][]byte
	err     error
}

func (f *fakeFetcher) FetchBytes(_ context.Context, ref objectstore.Reference) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	data, ok := f.objects[ref.String()]
	if !ok {
		return nil, objectstore.ErrNotFound
	}
	return data, nil
}

// fakeOCR maps image bytes to text; unknown images fail.
type fakeOCR struct {
	mu    sync.Mutex
	text  map[string]string
	calls int
}

func (f *fakeOCR) Recognize(_ context.Context, img []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	t, ok := f.text[string(img)]
	if !ok {
		return "", fmt.Errorf("unreadable image")
	}
	return t, nil
}

type fakeSpeech struct {
	text string
	err  error
	got  []byte
}

func (f *fakeSpeech) Transcribe(_ context.Context, audio []byte, _ string) (media.Transcript, error) {
	f.got = audio
	if f.err != nil {
		return media.Transcript{}, f.err
	}
	return media.Transcript{Text: f.text, Language: "en"}, nil
}

// fakeTools writes canned files where the real tools would.
type fakeTools struct {
	frames      []string // frame file contents
	page        []byte
	audioErr    error
	downloadErr error
	interval    time.Duration
}

func (f *fakeTools) ExtractAudio(_ context.Context, _, wav string) error {
	if f.audioErr != nil {
		return f.audioErr
	}
	return os.WriteFile(wav, []byte("RIFF-video"), 0o600)
}

func (f *fakeTools) SampleFrames(_ context.Context, _, dir string, interval time.Duration) ([]string, error) {
	f.interval = interval
	paths := make([]string, 0, len(f.frames))
	for i, content := range f.frames {
		p := filepath.Join(dir, fmt.Sprintf("frame_%06d.png", i+1))
		if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

func (f *fakeTools) RasterizePage(_ context.Context, pdf string, _, _ int) ([]byte, error) {
	if _, err := os.Stat(pdf); err != nil {
		return nil, err
	}
	return f.page, nil
}

func (f *fakeTools) DownloadAudio(_ context.Context, _, wav string) error {
	if f.downloadErr != nil {
		return f.downloadErr
	}
	return os.WriteFile(wav, []byte("RIFF-youtube"), 0o600)
}

func filePayload(fileType, url string) ingest.Payload {
	return ingest.Payload{
		Kind:   ingest.KindFile,
		File:   &ingest.FileSource{FileType: fileType, FileURL: url},
		UserID: "student-1",
	}
}

func linkPayload(lt ingest.LinkType, url string) ingest.Payload {
	return ingest.Payload{
		Kind: ingest.KindLink,
		Link: &ingest.LinkSource{LinkType: lt, URL: url},
	}
}

// buildDOCX assembles a minimal DOCX archive.
func buildDOCX(paragraphs []string, images map[string][]byte) []byte {
	var body strings.Builder
	body.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`)
	body.WriteString(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)
	for _, p := range paragraphs {
		body.WriteString(`<w:p><w:r><w:t xml:space="preserve">`)
		body.WriteString(p)
		body.WriteString(`</w:t></w:r></w:p>`)
	}
	body.WriteString(`</w:body></w:document>`)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, _ := zw.Create("word/document.xml")
	_, _ = w.Write([]byte(body.String()))
	for name, data := range images {
		w, _ := zw.Create("word/media/" + name)
		_, _ = w.Write(data)
	}
	_ = zw.Close()
	return buf.Bytes()
}

// buildPDF writes a PDF with one page per entry. Empty entries produce
// pages with an empty content stream.
func buildPDF(pages []string) []byte {
	var objs []string
	n := len(pages)
	// 1: catalog, 2: pages, 3: font, then page/content pairs.
	kids := make([]string, n)
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}
	objs = append(objs,
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), n),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
	)
	for i, text := range pages {
		contentID := 5 + 2*i
		if text == "" {
			objs = append(objs,
				fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", contentID),
				"<< /Length 0 >>\nstream\n\nendstream",
			)
			continue
		}
		stream := fmt.Sprintf("BT /F1 12 Tf 72 712 Td (%s) Tj ET", text)
		objs = append(objs,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", contentID),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream),
		)
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, o := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objs)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return buf.Bytes()
}
