package services

import (
	"net/http"

	"github.com/kerbaras/comicdl/pkg/config"
	"github.com/kerbaras/comicdl/pkg/data"
	"github.com/kerbaras/comicdl/pkg/integrations"
	"github.com/kerbaras/comicdl/pkg/sources"
	"github.com/kerbaras/comicdl/pkg/utils"
	"github.com/rs/zerolog"
)

// Components are the pipeline parts built from one configuration. They share
// a single session, so a lockout seen by any of them stops all of them.
type Components struct {
	Session    *sources.Session
	Source     *sources.Bilibili
	Downloader *Downloader
	Assembler  *integrations.Assembler
	Pipeline   *Pipeline
}

// Build wires the resolver, downloader and assembler from cfg. producer is
// the "<app> <version>" string stamped into page and document metadata.
func Build(cfg *config.Config, producer string, sink data.EventSink, logger *zerolog.Logger) *Components {
	if sink == nil {
		sink = data.Discard
	}
	session := sources.NewSession(cfg.Session.Cookie, cfg.Session.UserAgent)

	apiClient := &http.Client{Timeout: cfg.RequestTimeout()}
	source := sources.NewBilibili(sources.Options{
		API:     utils.NewAPI(apiClient, cfg.Endpoints.APIBase),
		Session: session,
		Tier:    cfg.ImageTier(),
		Policy:  cfg.NetworkPolicy(),
		Sink:    sink,
		Logger:  logger,
	})

	downloader := NewDownloader(DownloaderOptions{
		Client:           &http.Client{},
		Session:          session,
		Policy:           cfg.ImagePolicy(),
		LocalIO:          cfg.LocalIOPolicy(),
		IntegrityCheck:   cfg.Download.IntegrityCheck,
		IntegrityRetries: cfg.Retry.IntegrityRetries,
		Timeout:          cfg.ImageTimeout(),
		Limiter:          NewLimiter(cfg.Download.RequestsPerSecond),
		Sink:             sink,
		Logger:           logger,
	})

	assembler := integrations.NewAssembler(integrations.Options{
		LocalIO:  cfg.LocalIOPolicy(),
		Cleanup:  cfg.CleanupPolicy(),
		Producer: producer,
		SevenZip: cfg.Archive.SevenZipBinary,
		Sink:     sink,
		Logger:   logger,
	})

	return &Components{
		Session:    session,
		Source:     source,
		Downloader: downloader,
		Assembler:  assembler,
		Pipeline: NewPipeline(PipelineOptions{
			Source:     source,
			Downloader: downloader,
			Assembler:  assembler,
			Workers:    cfg.Download.Workers,
			Sink:       sink,
			Logger:     logger,
		}),
	}
}
