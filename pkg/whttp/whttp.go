// Package whttp is a thin wrapper for outbound page fetches: browser-like
// headers, retry/backoff via retryablehttp, and title extraction for
// fallback product names.
package whttp

import (
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/net/html"
)

const userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// RetryPolicy is the explicit retry/backoff configuration applied to every
// fetch. It lives here, not in the reconciliation core.
type RetryPolicy struct {
	MaxRetries int
	MinWait    time.Duration
	MaxWait    time.Duration
	Timeout    time.Duration
}

// NewClient builds a retrying HTTP client from the policy.
func NewClient(p RetryPolicy) *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = p.MaxRetries
	if p.MinWait > 0 {
		c.RetryWaitMin = p.MinWait
	}
	if p.MaxWait > 0 {
		c.RetryWaitMax = p.MaxWait
	}
	if p.Timeout > 0 {
		c.HTTPClient.Timeout = p.Timeout
	}
	c.Logger = nil
	return c
}

type WHTTPHeader struct {
	Name  string
	Value string
}

type WHTTPReq struct {
	URL     string
	Method  string
	Headers []WHTTPHeader
}

type WHTTPRes struct {
	StatusCode     int
	ResponseLength int
	HTTPTitle      string
	BodyString     string
}

// SendHTTPRequest performs the request with common headers set. A non-2xx
// status is not an error here; callers classify it.
func SendHTTPRequest(wReq *WHTTPReq, client *retryablehttp.Client) (*WHTTPRes, error) {
	method := wReq.Method
	if method == "" {
		method = http.MethodGet
	}
	req, err := retryablehttp.NewRequest(method, wReq.URL, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Cache-Control", "no-transform")
	req.Header.Set("Accept-Language", "en")

	for _, h := range wReq.Headers {
		req.Header.Add(h.Name, h.Value)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, err
	}

	wRes := &WHTTPRes{
		StatusCode: resp.StatusCode,
		BodyString: string(bodyBytes),
	}

	if title, ok := getHTMLTitle(wRes.BodyString); ok {
		wRes.HTTPTitle = strings.ToValidUTF8(strings.TrimSpace(strings.ReplaceAll(strings.ReplaceAll(title, "\n", ""), "\r", "")), "")
	}

	wRes.ResponseLength = utf8.RuneCountInString(wRes.BodyString)
	return wRes, nil
}

func isTitleElement(n *html.Node) bool {
	return n.Type == html.ElementNode && n.Data == "title"
}

func traverse(n *html.Node) (string, bool) {
	if isTitleElement(n) {
		if n.FirstChild != nil {
			return n.FirstChild.Data, true
		}
		return "", true
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		result, ok := traverse(c)
		if ok {
			return result, ok
		}
	}

	return "", false
}

func getHTMLTitle(requestBody string) (string, bool) {
	doc, err := html.Parse(strings.NewReader(requestBody))
	if err != nil {
		return "", false
	}

	return traverse(doc)
}
