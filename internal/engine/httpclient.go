package engine

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/h2non/filetype"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/vfaronov/httpheader"
	"golang.org/x/net/proxy"
)

// browser-identity defaults, matched to what the origin servers this
// engine talks to expect from an interactive client rather than a bot.
const (
	userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
)

// ProbeResult is everything the client facade learns about a URL before a
// worker decides which transport to use.
type ProbeResult struct {
	FinalURL    string
	TotalSize   int64 // -1 when unknown
	AcceptRange bool
	ContentType string
	Filename    string
	IsManifest  bool
	IsWebpage   bool
}

// httpFacade centralizes client construction, redirect handling and probe
// logic so fetchers never build their own *http.Client.
type httpFacade struct {
	probeClient  *retryablehttp.Client
	streamClient *http.Client
}

// newHTTPFacade builds a facade. proxyURL, when non-empty, is dialed as a
// SOCKS5 proxy for every outbound connection; proxy.FromURL rejects
// schemes other than socks5/socks5h, so an http:// proxy URL is an error.
func newHTTPFacade(proxyURL string, timeout time.Duration) (*httpFacade, error) {
	transport, err := buildTransport(proxyURL)
	if err != nil {
		return nil, err
	}

	probe := retryablehttp.NewClient()
	probe.Logger = nil
	probe.RetryMax = 3
	probe.RetryWaitMin = 250 * time.Millisecond
	probe.RetryWaitMax = 2 * time.Second
	probe.HTTPClient.Transport = transport
	probe.HTTPClient.Timeout = 20 * time.Second
	probe.CheckRetry = retryablehttp.DefaultRetryPolicy

	stream := &http.Client{
		Transport: transport,
		Timeout:   0, // per-request deadlines are applied via context
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("stopped after 10 redirects")
			}
			// The client has already copied the first request's
			// headers onto req, Range included. This re-copies every
			// header but Range from the first request, which also
			// restores headers the client strips on a cross-host
			// redirect; Range stays as the client copied it.
			if len(via) > 0 {
				for k, v := range via[0].Header {
					if strings.EqualFold(k, "Range") {
						continue
					}
					req.Header[k] = v
				}
			}
			return nil
		},
	}

	return &httpFacade{probeClient: probe, streamClient: stream}, nil
}

func buildTransport(proxyURL string) (*http.Transport, error) {
	t := &http.Transport{
		MaxIdleConns:        128,
		MaxIdleConnsPerHost: 64,
		MaxConnsPerHost:     64,
		IdleConnTimeout:     90 * time.Second,
		DisableCompression:  true,
		ForceAttemptHTTP2:   false,
	}
	if proxyURL == "" {
		return t, nil
	}
	u, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("parse proxy url: %w", err)
	}
	dialer, err := proxy.FromURL(u, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("build proxy dialer: %w", err)
	}
	// proxy.Dialer predates context.Context; http.Transport still
	// accepts the legacy Dial field for exactly this case.
	t.Dial = dialer.Dial
	return t, nil
}

// Probe issues a lightweight request to learn size/range-support/type
// without downloading the body. It first tries HEAD; some origins answer
// HEAD with 405 or lie about Content-Length, so on failure it falls back
// to a ranged GET for byte 0 only, matching the two-step probe the
// original engine this was ported from relies on.
func (f *httpFacade) Probe(ctx context.Context, rawURL string) (*ProbeResult, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.probeClient.Do(req)
	if err == nil {
		defer resp.Body.Close()
		if resp.StatusCode < 400 {
			return resultFromHeaders(resp, rawURL), nil
		}
	}

	// HEAD failed or was rejected: fall back to a 1-byte ranged GET.
	req2, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req2.Header.Set("User-Agent", userAgent)
	req2.Header.Set("Range", "bytes=0-0")

	resp2, err := f.probeClient.Do(req2)
	if err != nil {
		return nil, &TransientError{Op: "probe", Err: err}
	}
	defer resp2.Body.Close()
	if resp2.StatusCode >= 400 {
		return nil, &FatalStatusError{URL: rawURL, Status: resp2.StatusCode}
	}

	result := resultFromHeaders(resp2, rawURL)
	if resp2.StatusCode == http.StatusPartialContent {
		result.AcceptRange = true
		if total, ok := parseContentRangeTotal(resp2.Header.Get("Content-Range")); ok {
			result.TotalSize = total
		}
	} else {
		// Plain 200: the server ignored our Range header, so this
		// origin cannot serve partial content.
		result.AcceptRange = false
	}

	if result.ContentType == "" {
		isWebpage, isManifest := sniffBody(resp2)
		result.IsWebpage = isWebpage
		result.IsManifest = result.IsManifest || isManifest
	}
	return result, nil
}

func resultFromHeaders(resp *http.Response, requestedURL string) *ProbeResult {
	r := &ProbeResult{
		FinalURL:    resp.Request.URL.String(),
		TotalSize:   -1,
		ContentType: resp.Header.Get("Content-Type"),
	}
	if resp.Header.Get("Accept-Ranges") == "bytes" {
		r.AcceptRange = true
	}
	if cl := resp.ContentLength; cl >= 0 {
		r.TotalSize = cl
	}
	ct := strings.ToLower(r.ContentType)
	r.IsWebpage = strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml+xml")
	manifestPath := requestedURL
	if u, err := url.Parse(requestedURL); err == nil {
		manifestPath = u.Path
	}
	r.IsManifest = strings.Contains(ct, "mpegurl") || strings.HasSuffix(strings.ToLower(manifestPath), ".m3u8")
	r.Filename = extractFilename(resp, requestedURL)
	return r
}

func sniffBody(resp *http.Response) (isWebpage bool, isManifest bool) {
	buf := make([]byte, 512)
	n, _ := io.ReadFull(resp.Body, buf)
	buf = buf[:n]
	if strings.HasPrefix(strings.TrimSpace(string(buf)), "#EXTM3U") {
		return false, true
	}
	kind, err := filetype.Match(buf)
	if err == nil && kind != filetype.Unknown && strings.HasPrefix(kind.MIME.Value, "text/html") {
		return true, false
	}
	return false, false
}

func parseContentRangeTotal(headerVal string) (int64, bool) {
	// Expected form: "bytes 0-0/12345" (or "*" when unknown).
	idx := strings.LastIndex(headerVal, "/")
	if idx < 0 || idx+1 >= len(headerVal) {
		return 0, false
	}
	totalStr := headerVal[idx+1:]
	if totalStr == "*" {
		return 0, false
	}
	total, err := strconv.ParseInt(totalStr, 10, 64)
	if err != nil {
		return 0, false
	}
	return total, true
}

func extractFilename(resp *http.Response, requestedURL string) string {
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if parsed, err := httpheader.ContentDisposition(resp.Header); err == nil && parsed.Filename != "" {
			return parsed.Filename
		}
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			if name, ok := params["filename"]; ok && name != "" {
				return name
			}
		}
	}
	if u, err := url.Parse(requestedURL); err == nil {
		base := path.Base(u.Path)
		if base != "" && base != "." && base != "/" {
			return base
		}
	}
	return "download.bin"
}

// GetRange issues a ranged GET for [start, end] inclusive. A negative end
// requests "to EOF". The caller owns closing the returned body.
func (f *httpFacade) GetRange(ctx context.Context, rawURL string, start, end int64) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	if end >= 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))
	} else {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", start))
	}

	resp, err := f.streamClient.Do(req)
	if err != nil {
		return nil, &TransientError{Op: "get-range", Err: err}
	}
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		resp.Body.Close()
		return nil, &TransientError{Op: "get-range", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, &FatalStatusError{URL: rawURL, Status: resp.StatusCode}
	}
	return resp, nil
}

// GetLinear issues a plain, non-ranged GET for the whole resource.
func (f *httpFacade) GetLinear(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := f.streamClient.Do(req)
	if err != nil {
		return nil, &TransientError{Op: "get-linear", Err: err}
	}
	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, &FatalStatusError{URL: rawURL, Status: resp.StatusCode}
	}
	return resp, nil
}
