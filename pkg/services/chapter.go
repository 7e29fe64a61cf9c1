package services

import (
	"fmt"
	"path/filepath"

	"github.com/kerbaras/comicdl/pkg/config"
	"github.com/kerbaras/comicdl/pkg/data"
	"github.com/kerbaras/comicdl/pkg/title"
	"github.com/rs/zerolog/log"
)

// NewChapter builds the chapter value for the idx-th (1-based) episode of a
// comic. The title is final once this returns: a rename rule that fails
// leaves the default title and emits a warning.
func NewChapter(idx int, ep data.Episode, comic data.Comic, cfg *config.Config, sink data.EventSink) *data.Chapter {
	if sink == nil {
		sink = data.Discard
	}

	short := title.Sanitize(ep.ShortTitle)
	long := title.Sanitize(ep.Title)

	saveRoot := comic.SaveRoot
	if saveRoot == "" {
		saveRoot = filepath.Join(cfg.Paths.SaveRoot, title.Sanitize(comic.Title))
	}

	ch := &data.Chapter{
		ID:            ep.ID,
		ComicID:       comic.ID,
		Index:         idx,
		Ord:           ep.Ord,
		ShortTitle:    short,
		LongTitle:     long,
		Locked:        ep.Locked,
		ComicTitle:    comic.Title,
		Author:        comic.Author,
		SaveRoot:      saveRoot,
		Format:        cfg.OutputFormat(),
		EmbedMetadata: cfg.Download.EmbedMetadata,
	}

	canonical := title.Normalize(short, long)
	if canonical == "" {
		canonical = fmt.Sprintf("第%s话", ch.OrdString())
	}
	ch.Title = canonical

	rule := cfg.RenameRule()
	renamed, err := rule.Apply(canonical, title.Fields{Short: short, Long: long, Index: idx, Ord: ep.Ord})
	if err != nil {
		log.Warn().Err(err).Str("comic", comic.Title).Str("chapter", canonical).Str("rule", rule.String()).
			Msg("rename rule failed, keeping default title")
		sink.Emit(data.WarningFor(ch, "rename rule could not be applied, default title kept", err))
		return ch
	}
	ch.Title = title.Sanitize(renamed)
	return ch
}
