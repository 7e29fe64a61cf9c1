package services

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/kerbaras/comicdl/pkg/data"
	"github.com/kerbaras/comicdl/pkg/sources"
	"github.com/kerbaras/comicdl/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// site fakes the manga API and its CDN on one server.
type site struct {
	pages      map[string][]byte
	withToken  bool
	missing    string
	indexCalls atomic.Int32
	imageCalls atomic.Int32
}

func (s *site) paths() []string {
	out := make([]string, 0, len(s.pages))
	for p := range s.pages {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (s *site) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/GetImageIndex", func(w http.ResponseWriter, r *http.Request) {
		s.indexCalls.Add(1)
		images := []map[string]any{}
		for _, p := range s.paths() {
			images = append(images, map[string]any{"path": p})
		}
		writeEnvelope(w, map[string]any{"images": images})
	})
	mux.HandleFunc("/ImageToken", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		var urls []string
		assert.NoError(t, json.Unmarshal([]byte(r.PostForm.Get("urls")), &urls))
		host := "http://" + r.Host
		out := make([]map[string]any, len(urls))
		for i, u := range urls {
			entry := map[string]any{"url": host + u, "complete_url": host + u}
			if s.withToken {
				entry["token"] = fmt.Sprintf("tk%d", i)
				entry["complete_url"] = fmt.Sprintf("%s%s?token=tk%d", host, u, i)
			}
			out[i] = entry
		}
		writeEnvelope(w, out)
	})
	mux.HandleFunc("/bfs/", func(w http.ResponseWriter, r *http.Request) {
		s.imageCalls.Add(1)
		body, ok := s.pages[r.URL.Path]
		if !ok || r.URL.Path == s.missing {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Etag", etagOf(body))
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(body)
	})
	return mux
}

func writeEnvelope(w http.ResponseWriter, payload any) {
	raw, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(utils.Envelope{Code: 0, Data: raw})
}

func newSite(t *testing.T, n int) *site {
	s := &site{pages: map[string][]byte{}, withToken: true}
	for i := 1; i <= n; i++ {
		s.pages[fmt.Sprintf("/bfs/manga/%d.png", i)] = createTestPNG(t, uint8(i*50))
	}
	return s
}

func buildPipeline(t *testing.T, s *site, root, format string, sink data.EventSink) *Components {
	t.Helper()
	srv := httptest.NewServer(s.handler(t))
	t.Cleanup(srv.Close)
	cfg := parseConfig(t, root, fmt.Sprintf(`
[download]
output_format = %q
workers = 2

[retry]
network_max_elapsed = 0.02
image_max_elapsed = 0.02
initial_interval = 0.001
max_interval = 0.002
local_io_attempts = 2

[endpoints]
api_base = %q
`, format, srv.URL))
	return Build(cfg, "comicdl test", sink, nil)
}

func pipelineChapter(c *Components, root string, idx int, format data.OutputFormat) *data.Chapter {
	return &data.Chapter{
		ID:         fmt.Sprint(1000 + idx),
		ComicID:    "26470",
		Index:      idx,
		Ord:        float64(idx),
		Title:      fmt.Sprintf("第%d话", idx),
		ComicTitle: "comic",
		Author:     "author",
		SaveRoot:   root,
		Format:     format,
	}
}

func TestPipelineEndToEnd(t *testing.T) {
	root := t.TempDir()
	s := newSite(t, 3)
	rec := &recorder{}
	c := buildPipeline(t, s, root, "zip", rec)
	ch := pipelineChapter(c, root, 1, data.FormatZip)

	artifact, err := c.Pipeline.Run(context.Background(), ch)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "第1话.zip"), artifact.Path)
	assert.Equal(t, 3, artifact.Pages)

	zr, err := zip.OpenReader(artifact.Path)
	require.NoError(t, err)
	defer zr.Close()
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	assert.Equal(t, []string{"001.png", "002.png", "003.png"}, names)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	require.Len(t, entries, 1, "staged folder and images are gone")
	assert.Equal(t, "第1话.zip", entries[0].Name())

	assert.Zero(t, rec.count(data.EventWarning))
	assert.Equal(t, 3, rec.count(data.EventProgress)-1)
	assert.Equal(t, int32(3), s.imageCalls.Load())
}

func TestPipelineAlreadySaved(t *testing.T) {
	root := t.TempDir()
	s := newSite(t, 1)
	c := buildPipeline(t, s, root, "zip", nil)
	ch := pipelineChapter(c, root, 1, data.FormatZip)
	require.NoError(t, os.WriteFile(ch.ArtifactPath(), []byte("done"), 0o644))

	_, err := c.Pipeline.Run(context.Background(), ch)
	assert.ErrorIs(t, err, ErrAlreadySaved)
	assert.Zero(t, s.indexCalls.Load())
}

func TestPipelineResumesHalfStagedChapter(t *testing.T) {
	root := t.TempDir()
	s := newSite(t, 2)
	c := buildPipeline(t, s, root, "zip", nil)
	ch := pipelineChapter(c, root, 1, data.FormatZip)

	// a folder left by a failed archive write and a sibling whose title
	// starts with this one
	require.NoError(t, os.MkdirAll(ch.Dir(), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(ch.Dir(), "001.png"), []byte("stale"), 0o644))
	require.NoError(t, os.WriteFile(ch.Dir()+" 番外.zip", []byte("other"), 0o644))

	artifact, err := c.Pipeline.Run(context.Background(), ch)
	require.NoError(t, err)
	assert.Equal(t, ch.ArtifactPath(), artifact.Path)
	assert.Equal(t, 1, int(s.indexCalls.Load()))
	assert.NoDirExists(t, ch.Dir())
}

func TestPipelineUnavailableChapter(t *testing.T) {
	root := t.TempDir()
	s := newSite(t, 1)
	rec := &recorder{}
	c := buildPipeline(t, s, root, "folder", rec)
	ch := pipelineChapter(c, root, 1, data.FormatFolder)
	ch.Locked = true

	_, err := c.Pipeline.Run(context.Background(), ch)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Zero(t, s.indexCalls.Load())
	assert.Equal(t, 1, rec.count(data.EventWarning))
}

func TestPipelineLockout(t *testing.T) {
	root := t.TempDir()
	s := newSite(t, 3)
	s.withToken = false
	rec := &recorder{}
	c := buildPipeline(t, s, root, "zip", rec)

	_, err := c.Pipeline.Run(context.Background(), pipelineChapter(c, root, 1, data.FormatZip))
	assert.ErrorIs(t, err, sources.ErrLocked)
	assert.Equal(t, sources.Locked, sources.StateOf(err))
	assert.True(t, c.Session.Locked())
	assert.Zero(t, s.imageCalls.Load(), "no image is fetched once locked")
	assert.Equal(t, 1, rec.count(data.EventVerify))

	// an unrelated chapter in the same session stays locked
	s.withToken = true
	_, err = c.Pipeline.Run(context.Background(), pipelineChapter(c, root, 2, data.FormatZip))
	assert.ErrorIs(t, err, sources.ErrLocked)
	assert.Equal(t, int32(1), s.indexCalls.Load())
	assert.True(t, c.Session.Locked())
	assert.Equal(t, 1, rec.count(data.EventVerify))
}

func TestPipelinePartialFailureDiscardsStaged(t *testing.T) {
	root := t.TempDir()
	s := newSite(t, 3)
	s.missing = "/bfs/manga/2.png"
	rec := &recorder{}
	c := buildPipeline(t, s, root, "cbz", rec)
	ch := pipelineChapter(c, root, 4, data.FormatCBZ)

	_, err := c.Pipeline.Run(context.Background(), ch)
	assert.ErrorIs(t, err, ErrIncomplete)
	assert.ErrorIs(t, err, ErrDownloadFailed)
	assert.True(t, strings.Contains(err.Error(), "1 of 3 pages failed"))

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries, "pages of an incomplete chapter are discarded")
	assert.Equal(t, 1, rec.count(data.EventWarning))
}

func TestPipelineCancelled(t *testing.T) {
	root := t.TempDir()
	s := newSite(t, 2)
	c := buildPipeline(t, s, root, "folder", nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Pipeline.Run(ctx, pipelineChapter(c, root, 1, data.FormatFolder))
	assert.Error(t, err)
	assert.Zero(t, s.imageCalls.Load())
}
