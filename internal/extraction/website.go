package extraction

import (
	"context"
	"fmt"
	"net/http"

	"github.com/PuerkitoBio/goquery"
	"github.com/fyrsmithlabs/insightverse/internal/chunker"
	"github.com/fyrsmithlabs/insightverse/internal/ingest"
	"github.com/fyrsmithlabs/insightverse/internal/logging"
	"go.uber.org/zap"
)

const (
	msgWebsiteBlocked      = "Website blocked automated access (403). Try another URL."
	msgWebsiteInsufficient = "Website contains insufficient readable content"

	// boilerplate elements removed before reading page text
	boilerplate = "script, style, nav, footer, header, aside"
)

// WebsiteExtractor scrapes the readable text of a web page.
type WebsiteExtractor struct {
	Client *http.Client
	Logger *logging.Logger
}

// Extract implements Extractor.
func (x *WebsiteExtractor) Extract(ctx context.Context, p ingest.Payload) (Result, error) {
	if err := requireLink(p, ingest.LinkWebsite); err != nil {
		return Result{}, err
	}
	u, err := parseLinkURL(p.Link.URL)
	if err != nil {
		return Result{}, unsupportedError("Invalid website URL", err)
	}
	client := x.Client
	if client == nil {
		client = NewHTTPClient(0)
	}

	resp, err := browserGet(ctx, client, u.String())
	if err != nil {
		return Result{}, upstreamError("Failed to fetch website", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden {
		return Result{}, upstreamError(msgWebsiteBlocked, nil)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, upstreamError(fmt.Sprintf("Website returned HTTP %d", resp.StatusCode), nil)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return Result{}, upstreamError("Failed to parse website HTML", err)
	}
	doc.Find(boilerplate).Remove()

	text := Normalize(visibleText(doc.Selection))
	if textLen(text) < MinLinkText {
		return Result{}, insufficientError(msgWebsiteInsufficient)
	}

	if x.Logger != nil {
		x.Logger.Debug(ctx, "website extracted", zap.String("url", u.String()), zap.Int("chars", len(text)))
	}
	return Result{Text: text, Modality: chunker.Link, Meta: linkMeta(p)}, nil
}
