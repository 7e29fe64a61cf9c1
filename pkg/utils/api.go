package utils

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/andybalholm/brotli"
)

const (
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/130.0.0.0 Safari/537.36"
	SiteOrigin       = "https://manga.bilibili.com"
)

// StatusError is a non-200 transport response.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("bad status: %s", e.Status)
}

// CodeError is a 200 response whose envelope carries a non-zero code.
type CodeError struct {
	Code int
	Msg  string
}

func (e *CodeError) Error() string {
	return fmt.Sprintf("api code %d: %s", e.Code, e.Msg)
}

// Envelope is the common response wrapper of the comic API.
type Envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// Headers are the session headers shared by the API and, for images without
// an embedded token, the CDN.
type Headers struct {
	UserAgent string
	Referer   string
	Cookie    string
}

// SessionHeaders builds the headers for a chapter of a comic. A cookie
// without "=" is treated as a bare SESSDATA value.
func SessionHeaders(userAgent, cookie, comicID, episodeID string) Headers {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	cookie = strings.TrimSpace(cookie)
	if cookie != "" && !strings.Contains(cookie, "=") {
		cookie = "SESSDATA=" + cookie
	}
	return Headers{
		UserAgent: userAgent,
		Referer:   fmt.Sprintf("%s/detail/mc%s/%s?from=manga_homepage", SiteOrigin, comicID, episodeID),
		Cookie:    cookie,
	}
}

// Apply sets the headers on req.
func (h Headers) Apply(req *http.Request) {
	req.Header.Set("User-Agent", h.UserAgent)
	req.Header.Set("Origin", SiteOrigin)
	if h.Referer != "" {
		req.Header.Set("Referer", h.Referer)
	}
	if h.Cookie != "" {
		req.Header.Set("Cookie", h.Cookie)
	}
}

// API posts form-encoded requests to the comic twirp endpoints.
type API struct {
	client  *http.Client
	baseURL string
}

func NewAPI(client *http.Client, baseURL string) *API {
	if client == nil {
		client = http.DefaultClient
	}
	return &API{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

// BaseURL returns the endpoint prefix the client was built with.
func (a *API) BaseURL() string {
	return a.baseURL
}

// PostForm sends form to path and decodes the envelope's data into v.
// Transport failures, non-200 statuses and non-zero codes all return errors;
// callers decide which are retryable.
func (a *API) PostForm(ctx context.Context, path string, form url.Values, h Headers, v any) error {
	endpoint := a.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	h.Apply(req)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "gzip, br")

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	body, err := DecodeBody(resp)
	if err != nil {
		return err
	}
	defer body.Close()

	var env Envelope
	if err := json.NewDecoder(body).Decode(&env); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	if env.Code != 0 {
		return &CodeError{Code: env.Code, Msg: env.Msg}
	}
	if v == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}

// DecodeBody unwraps a compressed response body. Go's transport only
// handles gzip transparently when it set Accept-Encoding itself.
func DecodeBody(resp *http.Response) (io.ReadCloser, error) {
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "br":
		return io.NopCloser(brotli.NewReader(resp.Body)), nil
	case "gzip":
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip body: %w", err)
		}
		return zr, nil
	default:
		return io.NopCloser(resp.Body), nil
	}
}
