package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kerbaras/comicdl/pkg/data"
	"github.com/kerbaras/comicdl/pkg/obfuscation"
	"github.com/kerbaras/comicdl/pkg/retry"
	"github.com/kerbaras/comicdl/pkg/sources"
	"github.com/kerbaras/comicdl/pkg/utils"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

var (
	ErrDownloadFailed = errors.New("image download failed")
	ErrIntegrity      = errors.New("image checksum mismatch")
	ErrPersist        = errors.New("could not stage image")
	ErrLocked         = sources.ErrLocked

	errMissingEtag = errors.New("response has no Etag header")
)

type DownloaderOptions struct {
	Client  *http.Client
	Session *sources.Session
	// Policy bounds one download cycle; each integrity retry gets a fresh one.
	Policy           retry.Policy
	LocalIO          retry.Policy
	IntegrityCheck   bool
	IntegrityRetries int
	Timeout          time.Duration // per request, 0 for none
	Limiter          *rate.Limiter
	Sink             data.EventSink
	Logger           *zerolog.Logger
}

// Downloader fetches single page images, reverses the transport
// obfuscation and stages the result on disk. It is safe for concurrent use.
type Downloader struct {
	client           *http.Client
	session          *sources.Session
	policy           retry.Policy
	localIO          retry.Policy
	integrityCheck   bool
	integrityRetries int
	timeout          time.Duration
	limiter          *rate.Limiter
	sink             data.EventSink
	logger           zerolog.Logger
}

func NewDownloader(opts DownloaderOptions) *Downloader {
	d := &Downloader{
		client:           opts.Client,
		session:          opts.Session,
		policy:           opts.Policy,
		localIO:          opts.LocalIO,
		integrityCheck:   opts.IntegrityCheck,
		integrityRetries: max(opts.IntegrityRetries, 0),
		timeout:          opts.Timeout,
		limiter:          opts.Limiter,
		sink:             opts.Sink,
		logger:           log.Logger,
	}
	if d.client == nil {
		d.client = http.DefaultClient
	}
	if d.session == nil {
		d.session = sources.NewSession("", "")
	}
	if d.policy.Name == "" {
		d.policy = retry.Network(time.Second, 10*time.Second, 30*time.Second)
	}
	if d.localIO.Name == "" {
		d.localIO = retry.LocalIO(5, 200*time.Millisecond)
	}
	if d.limiter == nil {
		d.limiter = rate.NewLimiter(rate.Inf, 1)
	}
	if d.sink == nil {
		d.sink = data.Discard
	}
	if opts.Logger != nil {
		d.logger = *opts.Logger
	}
	return d
}

// NewLimiter paces image requests; zero or less disables pacing.
func NewLimiter(requestsPerSecond float64) *rate.Limiter {
	if requestsPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
}

type response struct {
	body        []byte
	etag        string
	contentType string
}

// FetchAndStage downloads the image at loc, reverses its obfuscation when
// the response is not an image, optionally checks it against the Etag and
// writes it to the chapter's staging path for position. Every failure has
// already been reported to the sink when it returns.
func (d *Downloader) FetchAndStage(ctx context.Context, ch *data.Chapter, position int, loc data.Locator) (data.StagedImage, error) {
	logger := d.logger.With().Str("comic", ch.ComicTitle).Str("chapter", ch.Title).Int("position", position).Logger()

	if d.session.Locked() {
		return data.StagedImage{}, ErrLocked
	}

	target := loc.Fetchable()
	cycles := 1
	if d.integrityCheck {
		cycles += d.integrityRetries
	}

	var image []byte
	for cycle := 1; ; cycle++ {
		got, err := d.download(ctx, ch, target, logger)
		if err != nil {
			return data.StagedImage{}, d.warn(ch, position, target, logger, "failed to download image", fmt.Errorf("%w: %w", ErrDownloadFailed, err))
		}

		image = got.body
		if !strings.HasPrefix(strings.ToLower(got.contentType), "image/") && loc.CPX != "" {
			if image, err = obfuscation.Reverse(got.body, loc.CPX); err != nil {
				return data.StagedImage{}, d.warn(ch, position, target, logger, "failed to decode image", fmt.Errorf("%w: %w", ErrDownloadFailed, err))
			}
		}

		if !d.integrityCheck || obfuscation.ChecksumMatches(got.etag, image) {
			break
		}
		err = fmt.Errorf("%w: etag %s, got %s", ErrIntegrity, got.etag, obfuscation.Checksum(image))
		if cycle >= cycles {
			return data.StagedImage{}, d.warn(ch, position, target, logger, "image failed the integrity check", err)
		}
		logger.Warn().Err(err).Int("attempt", cycle).Msg("image failed the integrity check, downloading again")
	}

	path := StagePath(ch, position, loc.Ext())
	err := d.localIO.Do(ctx, func() error {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		return os.WriteFile(path, image, 0o644)
	}, func(err error, attempt int, wait time.Duration) {
		logger.Warn().Err(err).Int("attempt", attempt).Str("path", path).Msg("staging image failed, retrying")
	})
	if err != nil {
		_ = os.Remove(path)
		return data.StagedImage{}, d.warn(ch, position, target, logger, "failed to save image, check the save folder", fmt.Errorf("%w: %w", ErrPersist, err))
	}

	logger.Debug().Str("path", path).Int("bytes", len(image)).Msg("image staged")
	return data.StagedImage{Position: position, Path: path}, nil
}

// download runs one retry envelope around a GET. A missing Etag counts as a
// failed attempt.
func (d *Downloader) download(ctx context.Context, ch *data.Chapter, target string, logger zerolog.Logger) (response, error) {
	var got response
	err := d.policy.Do(ctx, func() error {
		if err := d.limiter.Wait(ctx); err != nil {
			return retry.Permanent(err)
		}
		var err error
		got, err = d.get(ctx, ch, target)
		return err
	}, func(err error, attempt int, wait time.Duration) {
		logger.Warn().Err(err).Int("attempt", attempt).Dur("wait", wait).Str("url", target).Msg("image request failed, retrying")
	})
	return got, err
}

func (d *Downloader) get(ctx context.Context, ch *data.Chapter, target string) (response, error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return response{}, retry.Permanent(err)
	}
	// a token in the URL authorizes the request on its own
	if !strings.Contains(target, "token=") {
		d.session.Headers(ch.ComicID, ch.ID).Apply(req)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return response{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return response{}, &utils.StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}
	etag := resp.Header.Get("Etag")
	if etag == "" {
		_, _ = io.Copy(io.Discard, resp.Body)
		return response{}, errMissingEtag
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return response{}, err
	}
	return response{body: body, etag: etag, contentType: resp.Header.Get("Content-Type")}, nil
}

func (d *Downloader) warn(ch *data.Chapter, position int, target string, logger zerolog.Logger, msg string, err error) error {
	logger.Error().Err(err).Str("url", target).Msg(msg)
	ev := data.WarningFor(ch, msg, err)
	ev.Position = position
	ev.URL = target
	d.sink.Emit(ev)
	return err
}

// Discard deletes staged images without retrying. Errors are ignored; it is
// meant for teardown after an abort.
func (d *Downloader) Discard(staged []data.StagedImage) {
	for _, img := range staged {
		if err := os.Remove(img.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			d.logger.Debug().Err(err).Str("path", img.Path).Msg("discard failed")
		}
	}
}

// StagePath is where the image at position of ch is staged. Chapters of the
// same comic never share a path because the chapter index is part of it.
func StagePath(ch *data.Chapter, position int, ext string) string {
	return filepath.Join(ch.SaveRoot, fmt.Sprintf("%d_%d.%s", ch.Index, position, ext))
}
