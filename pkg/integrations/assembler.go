package integrations

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/kerbaras/comicdl/pkg/data"
	"github.com/kerbaras/comicdl/pkg/retry"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrAssembly = errors.New("assembly failed")
	ErrBusy     = errors.New("chapter is being assembled by another process")
)

const partSuffix = ".part"

type Options struct {
	LocalIO  retry.Policy
	Cleanup  retry.Policy
	Producer string // "<app> <version>", written as creator/software metadata
	SevenZip string
	Sidecar  Sidecar
	Writers  map[data.OutputFormat]Writer
	Sink     data.EventSink
	Logger   *zerolog.Logger
}

// Assembler turns a chapter's staged images into its single artifact.
type Assembler struct {
	localIO  retry.Policy
	cleanup  retry.Policy
	producer string
	writers  map[data.OutputFormat]Writer
	sink     data.EventSink
	logger   zerolog.Logger
}

func NewAssembler(opts Options) *Assembler {
	a := &Assembler{
		localIO:  opts.LocalIO,
		cleanup:  opts.Cleanup,
		producer: opts.Producer,
		sink:     opts.Sink,
		logger:   log.Logger,
	}
	if a.localIO.Name == "" {
		a.localIO = retry.LocalIO(5, 200*time.Millisecond)
	}
	if a.cleanup.Name == "" {
		a.cleanup = retry.LocalIO(3, 200*time.Millisecond)
	}
	if a.sink == nil {
		a.sink = data.Discard
	}
	if opts.Logger != nil {
		a.logger = *opts.Logger
	}
	sidecar := opts.Sidecar
	if sidecar == nil {
		sidecar = ComicInfo{}
	}
	a.writers = map[data.OutputFormat]Writer{
		data.FormatPDF:      PDFWriter{},
		data.FormatZip:      ZipWriter{},
		data.FormatSevenZip: SevenZipWriter{Binary: opts.SevenZip},
		data.FormatCBZ:      ZipWriter{Sidecar: sidecar},
	}
	for format, w := range opts.Writers {
		a.writers[format] = w
	}
	return a
}

// Assemble produces the chapter's artifact from its complete set of staged
// images. On success the staged files are gone; on failure nothing is left
// at the artifact path that was not there before.
func (a *Assembler) Assemble(ctx context.Context, ch *data.Chapter, staged []data.StagedImage) (data.Artifact, error) {
	logger := a.logger.With().Str("comic", ch.ComicTitle).Str("chapter", ch.Title).Str("format", string(ch.Format)).Logger()

	if len(staged) == 0 {
		return data.Artifact{}, a.fail(ch, logger, errors.New("no staged pages"))
	}
	if err := os.MkdirAll(ch.SaveRoot, 0o755); err != nil {
		return data.Artifact{}, a.fail(ch, logger, err)
	}

	lock := flock.New(LockPath(ch))
	locked, err := lock.TryLock()
	if err != nil {
		return data.Artifact{}, a.fail(ch, logger, fmt.Errorf("lock: %w", err))
	}
	if !locked {
		err := fmt.Errorf("%w: %s", ErrBusy, ch.ArtifactPath())
		a.sink.Emit(data.WarningFor(ch, "chapter is already being saved elsewhere", err))
		return data.Artifact{}, err
	}
	defer func() {
		// removed while still held so no other process can be holding it
		_ = os.Remove(lock.Path())
		_ = lock.Unlock()
	}()

	var meta *PageMeta
	if ch.EmbedMetadata {
		meta = &PageMeta{
			Description: fmt.Sprintf("《%s》 - %s", ch.ComicTitle, ch.Title),
			Artist:      ch.Author,
			Software:    a.producer,
			Copyright:   ch.Author,
		}
	}

	artifact := data.Artifact{Path: ch.ArtifactPath(), Format: ch.Format, Pages: len(staged)}

	switch ch.Format {
	case data.FormatFolder:
		_, statErr := os.Stat(ch.Dir())
		existed := statErr == nil
		_, warnings, err := StageToFolder(ctx, ch, staged, meta, a.localIO)
		a.report(ch, logger, warnings)
		if err != nil {
			// the folder is the artifact, a partial one must not look saved
			if !existed {
				_ = os.RemoveAll(ch.Dir())
			}
			return data.Artifact{}, a.fail(ch, logger, err)
		}

	case data.FormatPDF:
		sorted := SortStaged(staged)
		pages := make([]string, len(sorted))
		for i, img := range sorted {
			pages[i] = img.Path
		}
		job := Job{Chapter: ch, Pages: pages, Producer: a.producer, Metadata: ch.EmbedMetadata}
		if err := a.write(ctx, logger, job); err != nil {
			return data.Artifact{}, a.fail(ch, logger, err)
		}
		a.removeStaged(ctx, ch, logger, pages)

	case data.FormatZip, data.FormatSevenZip, data.FormatCBZ:
		pages, warnings, err := StageToFolder(ctx, ch, staged, meta, a.localIO)
		a.report(ch, logger, warnings)
		if err != nil {
			return data.Artifact{}, a.fail(ch, logger, err)
		}
		job := Job{Chapter: ch, Pages: pages, Producer: a.producer, Metadata: ch.EmbedMetadata}
		if err := a.write(ctx, logger, job); err != nil {
			return data.Artifact{}, a.fail(ch, logger, err)
		}
		a.removeStagedDir(ctx, ch, logger, ch.Dir())

	default:
		return data.Artifact{}, a.fail(ch, logger, fmt.Errorf("unknown output format %q", ch.Format))
	}

	logger.Info().Str("path", artifact.Path).Int("pages", artifact.Pages).Msg("chapter saved")
	a.sink.Emit(data.Event{
		Kind:    data.EventProgress,
		Comic:   ch.ComicTitle,
		Chapter: ch.Title,
		Current: artifact.Pages,
		Total:   artifact.Pages,
		Message: "saved to " + artifact.Path,
	})
	return artifact, nil
}

// write runs the format's writer into <artifact>.part and renames it into
// place once verified. A failed attempt only ever removes its own .part.
func (a *Assembler) write(ctx context.Context, logger zerolog.Logger, job Job) error {
	ch := job.Chapter
	w, ok := a.writers[ch.Format]
	if !ok {
		return fmt.Errorf("no writer for %q", ch.Format)
	}
	final := ch.ArtifactPath()
	part := final + partSuffix

	err := a.localIO.Do(ctx, func() error {
		if err := os.Remove(part); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		if err := w.Write(ctx, job, part); err != nil {
			if errors.Is(err, ErrSevenZipUnavailable) || ctx.Err() != nil {
				return retry.Permanent(err)
			}
			return err
		}
		if v, ok := w.(Verifier); ok {
			return v.Verify(job, part)
		}
		return nil
	}, func(err error, attempt int, wait time.Duration) {
		logger.Warn().Err(err).Int("attempt", attempt).Msg("writing artifact failed, retrying")
	})
	if err == nil {
		err = a.localIO.Do(ctx, func() error { return os.Rename(part, final) }, nil)
	}
	if err != nil {
		_ = os.Remove(part)
		return err
	}
	return nil
}

func (a *Assembler) removeStaged(ctx context.Context, ch *data.Chapter, logger zerolog.Logger, paths []string) {
	var failed []string
	for _, p := range paths {
		err := a.cleanup.Do(ctx, func() error {
			if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			return nil
		}, nil)
		if err != nil {
			failed = append(failed, p)
		}
	}
	if len(failed) > 0 {
		err := fmt.Errorf("could not remove %s", strings.Join(failed, ", "))
		logger.Error().Err(err).Msg("staged pages left behind")
		a.sink.Emit(data.WarningFor(ch, "chapter saved but staged pages could not be removed, delete them manually", err))
	}
}

func (a *Assembler) removeStagedDir(ctx context.Context, ch *data.Chapter, logger zerolog.Logger, dir string) {
	err := a.cleanup.Do(ctx, func() error { return os.RemoveAll(dir) }, nil)
	if err != nil {
		logger.Error().Err(err).Str("dir", dir).Msg("staged folder left behind")
		a.sink.Emit(data.WarningFor(ch, "chapter saved but the staged folder could not be removed, delete it manually", err))
	}
}

func (a *Assembler) report(ch *data.Chapter, logger zerolog.Logger, warnings []error) {
	skipped := 0
	for _, w := range warnings {
		if errors.Is(w, ErrNoPageMeta) {
			skipped++
			continue
		}
		logger.Warn().Err(w).Msg("page metadata not written")
		a.sink.Emit(data.WarningFor(ch, "page metadata not written", w))
	}
	if skipped > 0 {
		logger.Warn().Int("pages", skipped).Msg("page format has no metadata block, metadata skipped")
	}
}

func (a *Assembler) fail(ch *data.Chapter, logger zerolog.Logger, err error) error {
	logger.Error().Err(err).Msg("assembly failed")
	a.sink.Emit(data.WarningFor(ch, "failed to save the chapter, check the save folder and try again", err))
	return fmt.Errorf("%w: %w", ErrAssembly, err)
}

// LockPath is the lock file guarding a chapter's artifact.
func LockPath(ch *data.Chapter) string {
	return filepath.Join(ch.SaveRoot, "."+ch.Title+".lock")
}

// archiveFormats are the single-file outputs; a chapter saved in any of
// them counts as saved whatever format is requested now.
var archiveFormats = []data.OutputFormat{data.FormatPDF, data.FormatZip, data.FormatSevenZip, data.FormatCBZ}

// IsAssembled reports whether the chapter already has a finished artifact:
// <title>.<ext> for one of the archive formats, or the <title> folder when
// the folder format is requested. For archive formats the folder alone is a
// half-staged chapter and does not count.
func IsAssembled(ch *data.Chapter) bool {
	for _, format := range archiveFormats {
		info, err := os.Stat(ch.Dir() + "." + format.Ext())
		if err == nil && info.Mode().IsRegular() {
			return true
		}
	}
	if ch.Format != data.FormatFolder {
		return false
	}
	info, err := os.Stat(ch.Dir())
	return err == nil && info.IsDir()
}
