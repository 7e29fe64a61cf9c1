package sources

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kerbaras/comicdl/pkg/data"
	"github.com/kerbaras/comicdl/pkg/retry"
	"github.com/kerbaras/comicdl/pkg/utils"
)

const comicDetailPath = "/ComicDetail?device=pc&platform=web"

var ErrEpisodeNotFound = errors.New("episode not found")

type comicDetail struct {
	ID         int      `json:"id"`
	Title      string   `json:"title"`
	AuthorName []string `json:"author_name"`
	EpList     []struct {
		ID         int     `json:"id"`
		Ord        float64 `json:"ord"`
		Title      string  `json:"title"`
		ShortTitle string  `json:"short_title"`
		IsLocked   bool    `json:"is_locked"`
		Size       int     `json:"size"`
	} `json:"ep_list"`
}

// ComicDetail fetches a comic and its episodes, ordered by ordinal.
func (b *Bilibili) ComicDetail(ctx context.Context, comicID string) (data.Comic, []data.Episode, error) {
	logger := b.logger.With().Str("comic_id", comicID).Logger()

	var detail comicDetail
	form := url.Values{"comic_id": {comicID}}
	h := b.session.Headers(comicID, "")
	err := b.policy.Do(ctx, func() error {
		err := b.api.PostForm(ctx, comicDetailPath, form, h, &detail)
		var codeErr *utils.CodeError
		if errors.As(err, &codeErr) {
			return retry.Permanent(err)
		}
		return err
	}, func(err error, attempt int, wait time.Duration) {
		logger.Warn().Err(err).Int("attempt", attempt).Dur("wait", wait).Msg("comic detail request failed, retrying")
	})
	if err != nil {
		return data.Comic{}, nil, fmt.Errorf("comic %s: %w", comicID, err)
	}

	comic := data.Comic{
		ID:     strconv.Itoa(detail.ID),
		Title:  detail.Title,
		Author: strings.Join(detail.AuthorName, ", "),
	}
	episodes := make([]data.Episode, len(detail.EpList))
	for i, ep := range detail.EpList {
		episodes[i] = data.Episode{
			ID:         strconv.Itoa(ep.ID),
			ShortTitle: ep.ShortTitle,
			Title:      ep.Title,
			Ord:        ep.Ord,
			Locked:     ep.IsLocked,
			Size:       ep.Size,
		}
	}
	sort.SliceStable(episodes, func(i, j int) bool { return episodes[i].Ord < episodes[j].Ord })
	return comic, episodes, nil
}

// FindEpisode returns the episode with the given id and its 1-based index.
func FindEpisode(episodes []data.Episode, id string) (data.Episode, int, error) {
	for i, ep := range episodes {
		if ep.ID == id {
			return ep, i + 1, nil
		}
	}
	return data.Episode{}, 0, fmt.Errorf("%w: %s", ErrEpisodeNotFound, id)
}
