package utils

import (
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compress(t *testing.T, encoding, body string) []byte {
	var buf bytes.Buffer
	switch encoding {
	case "br":
		w := brotli.NewWriter(&buf)
		_, err := w.Write([]byte(body))
		require.NoError(t, err)
		require.NoError(t, w.Close())
	case "gzip":
		w := gzip.NewWriter(&buf)
		_, err := w.Write([]byte(body))
		require.NoError(t, err)
		require.NoError(t, w.Close())
	default:
		buf.WriteString(body)
	}
	return buf.Bytes()
}

func TestPostFormDecodesEncodings(t *testing.T) {
	for _, enc := range []string{"", "gzip", "br"} {
		t.Run("encoding "+enc, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
				assert.Equal(t, "7", r.FormValue("ep_id"))
				if enc != "" {
					w.Header().Set("Content-Encoding", enc)
				}
				_, _ = w.Write(compress(t, enc, `{"code":0,"msg":"","data":{"value":"ok"}}`))
			}))
			defer srv.Close()

			// a bare transport so Go does not transparently gunzip
			api := NewAPI(&http.Client{Transport: &http.Transport{DisableCompression: true}}, srv.URL+"/")
			var out struct {
				Value string `json:"value"`
			}
			err := api.PostForm(context.Background(), "/x", url.Values{"ep_id": {"7"}}, Headers{UserAgent: "ua"}, &out)
			require.NoError(t, err)
			assert.Equal(t, "ok", out.Value)
		})
	}
}

func TestPostFormErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/status":
			w.WriteHeader(http.StatusTooManyRequests)
		case "/code":
			_, _ = w.Write([]byte(`{"code":99,"msg":"denied"}`))
		default:
			_, _ = w.Write([]byte(`not json`))
		}
	}))
	defer srv.Close()
	api := NewAPI(srv.Client(), srv.URL)

	err := api.PostForm(context.Background(), "/status", nil, Headers{}, nil)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)

	err = api.PostForm(context.Background(), "/code", nil, Headers{}, nil)
	var codeErr *CodeError
	require.ErrorAs(t, err, &codeErr)
	assert.Equal(t, 99, codeErr.Code)
	assert.Equal(t, "denied", codeErr.Msg)

	err = api.PostForm(context.Background(), "/garbage", nil, Headers{}, nil)
	assert.ErrorContains(t, err, "decode envelope")
}

func TestSessionHeaders(t *testing.T) {
	h := SessionHeaders("", " abc ", "1", "2")
	assert.Equal(t, DefaultUserAgent, h.UserAgent)
	assert.Equal(t, "SESSDATA=abc", h.Cookie)
	assert.Equal(t, "https://manga.bilibili.com/detail/mc1/2?from=manga_homepage", h.Referer)

	h = SessionHeaders("ua", "SESSDATA=x; bili_jct=y", "1", "2")
	assert.Equal(t, "SESSDATA=x; bili_jct=y", h.Cookie)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	h.Apply(req)
	assert.Equal(t, "ua", req.Header.Get("User-Agent"))
	assert.Equal(t, SiteOrigin, req.Header.Get("Origin"))
	assert.Equal(t, h.Cookie, req.Header.Get("Cookie"))
}
