package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/kerbaras/comicdl/pkg/data"
	"github.com/kerbaras/comicdl/pkg/retry"
	"github.com/kerbaras/comicdl/pkg/utils"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultAPIBase = "https://manga.bilibili.com/twirp/comic.v1.Comic"

	imageIndexPath = "/GetImageIndex?device=pc&platform=web"
	imageTokenPath = "/ImageToken?device=pc&platform=web"
)

var (
	ErrSkipped       = errors.New("chapter skipped")
	ErrLocked        = errors.New("session locked by risk control")
	ErrTokenMismatch = errors.New("token list does not match image list")
)

// State is the terminal state of a resolution.
type State int

const (
	Success State = iota
	Skipped
	Locked
)

func (s State) String() string {
	switch s {
	case Success:
		return "success"
	case Skipped:
		return "skipped"
	case Locked:
		return "locked"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// StateOf maps an error returned by Resolve to its terminal state.
func StateOf(err error) State {
	switch {
	case err == nil:
		return Success
	case errors.Is(err, ErrLocked):
		return Locked
	default:
		return Skipped
	}
}

type imageIndex struct {
	Host   string `json:"host"`
	Images []struct {
		Path string `json:"path"`
		X    int    `json:"x"`
		Y    int    `json:"y"`
	} `json:"images"`
}

type imageToken struct {
	URL         string `json:"url"`
	Token       string `json:"token"`
	CompleteURL string `json:"complete_url"`
	HitEncrypt  bool   `json:"hit_encrypt"`
	CPX         string `json:"cpx"`
}

func (t imageToken) toLocator(path string) data.Locator {
	return data.Locator{
		Path:        path,
		URL:         t.URL,
		CompleteURL: t.CompleteURL,
		Token:       t.Token,
		CPX:         t.CPX,
		Encrypted:   t.HitEncrypt,
	}
}

type Options struct {
	API     *utils.API
	Session *Session
	Tier    data.ImageTier
	Policy  retry.Policy
	Sink    data.EventSink
	Logger  *zerolog.Logger
}

// Bilibili resolves chapters against the manga twirp API.
type Bilibili struct {
	api     *utils.API
	session *Session
	tier    data.ImageTier
	policy  retry.Policy
	sink    data.EventSink
	logger  zerolog.Logger
}

func NewBilibili(opts Options) *Bilibili {
	b := &Bilibili{
		api:     opts.API,
		session: opts.Session,
		tier:    opts.Tier,
		policy:  opts.Policy,
		sink:    opts.Sink,
		logger:  log.Logger,
	}
	if b.api == nil {
		b.api = utils.NewAPI(nil, DefaultAPIBase)
	}
	if b.session == nil {
		b.session = NewSession("", "")
	}
	if b.tier == "" {
		b.tier = "default"
	}
	if b.policy.Name == "" {
		b.policy = retry.Network(time.Second, 10*time.Second, 10*time.Second)
	}
	if b.sink == nil {
		b.sink = data.Discard
	}
	if opts.Logger != nil {
		b.logger = *opts.Logger
	}
	b.logger = b.logger.With().Str("session", b.session.ID()).Logger()
	return b
}

func (b *Bilibili) Session() *Session {
	return b.session
}

// Resolve fetches the chapter's image list, applies the configured tier
// suffix and exchanges the list for access tokens. The returned error is nil,
// wraps ErrSkipped, or wraps ErrLocked.
func (b *Bilibili) Resolve(ctx context.Context, ch *data.Chapter) ([]data.Locator, error) {
	logger := b.logger.With().Str("comic", ch.ComicTitle).Str("chapter", ch.Title).Logger()

	if b.session.Locked() {
		logger.Debug().Msg("session locked, not resolving")
		return nil, ErrLocked
	}

	headers := b.session.Headers(ch.ComicID, ch.ID)

	paths, err := b.fetchList(ctx, ch, headers, logger)
	if err != nil {
		b.skip(ch, "failed to fetch the image list, chapter skipped for now", err, logger)
		return nil, fmt.Errorf("%w: %w", ErrSkipped, err)
	}
	if len(paths) == 0 {
		err := errors.New("empty image list")
		b.skip(ch, "chapter has no images, chapter skipped for now", err, logger)
		return nil, fmt.Errorf("%w: %w", ErrSkipped, err)
	}

	suffix := b.tier.Suffix()
	for i := range paths {
		paths[i] += suffix
	}

	tokens, err := b.fetchTokens(ctx, ch, paths, headers, logger)
	if err != nil {
		b.skip(ch, "failed to fetch image tokens, chapter skipped for now", err, logger)
		return nil, fmt.Errorf("%w: %w", ErrSkipped, err)
	}
	if len(tokens) != len(paths) {
		err := fmt.Errorf("%w: %d images, %d tokens", ErrTokenMismatch, len(paths), len(tokens))
		b.skip(ch, "image tokens do not match the image list", err, logger)
		return nil, fmt.Errorf("%w: %w", ErrSkipped, err)
	}

	locators := make([]data.Locator, len(tokens))
	for i, t := range tokens {
		locators[i] = t.toLocator(paths[i])
	}

	if !locators[0].HasToken() {
		if b.session.Lock() {
			logger.Error().Str("verify_url", VerifyURL).Msg("account hit risk control, verification required")
			b.sink.Emit(data.Event{
				Kind:    data.EventVerify,
				Comic:   ch.ComicTitle,
				Chapter: ch.Title,
				Message: "account flagged by risk control; complete the verification and resolve the chapter again",
				URL:     VerifyURL,
			})
		}
		return nil, ErrLocked
	}

	logger.Debug().Int("images", len(locators)).Msg("chapter resolved")
	return locators, nil
}

func (b *Bilibili) fetchList(ctx context.Context, ch *data.Chapter, h utils.Headers, logger zerolog.Logger) ([]string, error) {
	var index imageIndex
	form := url.Values{"ep_id": {ch.ID}}
	err := b.policy.Do(ctx, func() error {
		err := b.api.PostForm(ctx, imageIndexPath, form, h, &index)
		var codeErr *utils.CodeError
		if errors.As(err, &codeErr) {
			return retry.Permanent(err)
		}
		return err
	}, func(err error, attempt int, wait time.Duration) {
		logger.Warn().Err(err).Int("attempt", attempt).Dur("wait", wait).Msg("image list request failed, retrying")
	})
	if err != nil {
		return nil, err
	}
	paths := make([]string, len(index.Images))
	for i, img := range index.Images {
		paths[i] = img.Path
	}
	return paths, nil
}

func (b *Bilibili) fetchTokens(ctx context.Context, ch *data.Chapter, paths []string, h utils.Headers, logger zerolog.Logger) ([]imageToken, error) {
	urls, err := json.Marshal(paths)
	if err != nil {
		return nil, err
	}
	form := url.Values{"urls": {string(urls)}}
	var tokens []imageToken
	err = b.policy.Do(ctx, func() error {
		tokens = nil
		return b.api.PostForm(ctx, imageTokenPath, form, h, &tokens)
	}, func(err error, attempt int, wait time.Duration) {
		logger.Warn().Err(err).Int("attempt", attempt).Dur("wait", wait).Msg("image token request failed, retrying")
	})
	return tokens, err
}

func (b *Bilibili) skip(ch *data.Chapter, msg string, err error, logger zerolog.Logger) {
	logger.Error().Err(err).Msg(msg)
	b.sink.Emit(data.WarningFor(ch, msg, err))
}
