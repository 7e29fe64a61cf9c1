package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/kerbaras/comicdl/pkg/data"
	"github.com/kerbaras/comicdl/pkg/integrations"
	"github.com/kerbaras/comicdl/pkg/sources"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrUnavailable  = errors.New("chapter is locked for this account")
	ErrAlreadySaved = errors.New("chapter already saved")
	ErrIncomplete   = errors.New("chapter incomplete")
)

// Pipeline runs one chapter end to end: resolve, fetch every page with a
// bounded number of workers, then assemble. It does not schedule chapters.
type Pipeline struct {
	source     sources.Source
	downloader *Downloader
	assembler  *integrations.Assembler
	workers    int
	sink       data.EventSink
	logger     zerolog.Logger
}

type PipelineOptions struct {
	Source     sources.Source
	Downloader *Downloader
	Assembler  *integrations.Assembler
	Workers    int
	Sink       data.EventSink
	Logger     *zerolog.Logger
}

func NewPipeline(opts PipelineOptions) *Pipeline {
	p := &Pipeline{
		source:     opts.Source,
		downloader: opts.Downloader,
		assembler:  opts.Assembler,
		workers:    max(opts.Workers, 1),
		sink:       opts.Sink,
		logger:     log.Logger,
	}
	if p.sink == nil {
		p.sink = data.Discard
	}
	if opts.Logger != nil {
		p.logger = *opts.Logger
	}
	return p
}

// Run downloads and saves ch. The error wraps ErrUnavailable,
// ErrAlreadySaved, sources.ErrSkipped, sources.ErrLocked, ErrIncomplete or
// integrations.ErrAssembly; staged pages are discarded unless assembly was
// reached.
func (p *Pipeline) Run(ctx context.Context, ch *data.Chapter) (data.Artifact, error) {
	logger := p.logger.With().Str("comic", ch.ComicTitle).Str("chapter", ch.Title).Logger()

	if !ch.Available() {
		p.sink.Emit(data.WarningFor(ch, "chapter is locked, unlock it on the site first", ErrUnavailable))
		return data.Artifact{}, ErrUnavailable
	}
	if integrations.IsAssembled(ch) {
		logger.Info().Msg("chapter already saved, skipping")
		return data.Artifact{Path: ch.ArtifactPath(), Format: ch.Format}, ErrAlreadySaved
	}

	locators, err := p.source.Resolve(ctx, ch)
	if err != nil {
		return data.Artifact{}, err
	}

	total := len(locators)
	staged := make([]data.StagedImage, total)
	errs := make([]error, total)
	var done atomic.Int32

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, p.workers)
	for i, loc := range locators {
		wg.Add(1)
		go func(i int, loc data.Locator) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			if err := ctx.Err(); err != nil {
				errs[i] = err
				return
			}
			img, err := p.downloader.FetchAndStage(ctx, ch, i+1, loc)
			if err != nil {
				errs[i] = err
				return
			}
			staged[i] = img
			p.sink.Emit(data.Event{
				Kind:     data.EventProgress,
				Comic:    ch.ComicTitle,
				Chapter:  ch.Title,
				Position: i + 1,
				Current:  int(done.Add(1)),
				Total:    total,
				Message:  "downloaded",
			})
		}(i, loc)
	}
	wg.Wait()

	var ok []data.StagedImage
	var failed []error
	for i := range locators {
		if errs[i] != nil {
			failed = append(failed, fmt.Errorf("page %d: %w", i+1, errs[i]))
			continue
		}
		ok = append(ok, staged[i])
	}
	if len(failed) > 0 {
		p.downloader.Discard(ok)
		err := fmt.Errorf("%w: %d of %d pages failed: %w", ErrIncomplete, len(failed), total, errors.Join(failed...))
		logger.Error().Err(err).Msg("chapter not saved")
		return data.Artifact{}, err
	}

	return p.assembler.Assemble(ctx, ch, ok)
}
