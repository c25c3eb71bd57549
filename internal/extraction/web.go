package extraction

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

const (
	// DefaultFetchTimeout bounds every link fetch. Link fetches are not
	// retried.
	DefaultFetchTimeout = 20 * time.Second

	// MinLinkText is the shortest normalized link text accepted.
	MinLinkText = 300

	browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) " +
		"Chrome/120.0 Safari/537.36"
	browserLanguage = "en-US,en;q=0.9"
)

// NewHTTPClient returns the client used for link fetches.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &http.Client{Timeout: timeout}
}

// parseLinkURL accepts absolute http and https URLs only.
func parseLinkURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("unsupported URL %q", raw)
	}
	return u, nil
}

// browserGet issues a GET that looks like a desktop browser. The caller
// closes the body.
func browserGet(ctx context.Context, client *http.Client, target string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Accept-Language", browserLanguage)
	return client.Do(req)
}

// visibleText joins every text node under s with single spaces.
func visibleText(s *goquery.Selection) string {
	var b strings.Builder
	var walk func(*goquery.Selection)
	walk = func(sel *goquery.Selection) {
		sel.Contents().Each(func(_ int, c *goquery.Selection) {
			if goquery.NodeName(c) == "#text" {
				b.WriteString(c.Text())
				b.WriteByte(' ')
				return
			}
			walk(c)
		})
	}
	walk(s)
	return b.String()
}

func textLen(s string) int {
	return utf8.RuneCountInString(s)
}
