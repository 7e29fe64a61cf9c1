package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kerbaras/comicdl/pkg/retry"
	"github.com/kerbaras/comicdl/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDetailResolver(t *testing.T, h http.HandlerFunc) *Bilibili {
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewBilibili(Options{
		API:    utils.NewAPI(srv.Client(), srv.URL),
		Policy: retry.Network(time.Millisecond, 5*time.Millisecond, 50*time.Millisecond),
	})
}

func TestComicDetail(t *testing.T) {
	b := newDetailResolver(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ComicDetail", r.URL.Path)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "26470", r.PostForm.Get("comic_id"))
		writeEnvelope(w, 0, map[string]any{
			"id":          26470,
			"title":       "漫画",
			"author_name": []string{"甲", "乙"},
			"ep_list": []map[string]any{
				{"id": 103, "ord": 2, "title": "再会", "short_title": "2", "is_locked": true, "size": 10},
				{"id": 101, "ord": 1, "title": "开始", "short_title": "1", "is_locked": false, "size": 9},
				{"id": 102, "ord": 1.5, "title": "番外", "short_title": "1.5"},
			},
		})
	})

	comic, episodes, err := b.ComicDetail(context.Background(), "26470")
	require.NoError(t, err)
	assert.Equal(t, "26470", comic.ID)
	assert.Equal(t, "漫画", comic.Title)
	assert.Equal(t, "甲, 乙", comic.Author)

	require.Len(t, episodes, 3)
	assert.Equal(t, "101", episodes[0].ID)
	assert.Equal(t, "102", episodes[1].ID)
	assert.Equal(t, "103", episodes[2].ID)
	assert.True(t, episodes[2].Locked)

	ep, idx, err := FindEpisode(episodes, "102")
	require.NoError(t, err)
	assert.Equal(t, 2, idx)
	assert.Equal(t, 1.5, ep.Ord)

	_, _, err = FindEpisode(episodes, "999")
	assert.ErrorIs(t, err, ErrEpisodeNotFound)
}

func TestComicDetailCodeErrorNotRetried(t *testing.T) {
	calls := 0
	b := newDetailResolver(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		writeEnvelope(w, 1, nil)
	})

	_, _, err := b.ComicDetail(context.Background(), "1")
	var codeErr *utils.CodeError
	assert.ErrorAs(t, err, &codeErr)
	assert.Equal(t, 1, calls)
}
