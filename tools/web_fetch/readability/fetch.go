package readability

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
	"github.com/mohammad-safakhou/researcher/tools/web_fetch/models"
	"github.com/mohammad-safakhou/researcher/utils"
)

const (
	userAgent = "researcher/1.0 (+https://github.com/mohammad-safakhou/researcher)"
	maxBody   = 5 << 20
)

// ErrNoContent is returned when readability finds nothing worth reading.
var ErrNoContent = errors.New("no extractable content")

type Fetch struct {
	client   *http.Client
	maxChars int
}

func New(timeout time.Duration, maxChars int) *Fetch {
	return &Fetch{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		maxChars: maxChars,
	}
}

// Exec downloads rawURL and extracts the main article text.
func (f *Fetch) Exec(ctx context.Context, rawURL string) (models.Result, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return models.Result{}, fmt.Errorf("invalid url %q", rawURL)
	}
	t0 := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return models.Result{}, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return models.Result{URL: rawURL}, err
	}
	defer resp.Body.Close()
	res := models.Result{URL: rawURL, Status: resp.StatusCode}
	if resp.StatusCode >= 400 {
		return res, fmt.Errorf("fetch %s: status %d", rawURL, resp.StatusCode)
	}

	html, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return res, err
	}
	article, err := readability.FromReader(strings.NewReader(string(html)), u)
	if err != nil {
		return res, fmt.Errorf("%w: %v", ErrNoContent, err)
	}
	text := strings.TrimSpace(article.TextContent)
	if text == "" {
		return res, ErrNoContent
	}

	sum := sha1.Sum(html)
	res.Title = strings.TrimSpace(article.Title)
	res.Byline = strings.TrimSpace(article.Byline)
	res.SiteName = strings.TrimSpace(article.SiteName)
	res.Text = utils.Truncate(text, f.maxChars)
	res.HTMLHash = hex.EncodeToString(sum[:])
	res.FetchMS = int(time.Since(t0) / time.Millisecond)
	return res, nil
}
