package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"github.com/kerbaras/comicdl/pkg/config"
	"github.com/kerbaras/comicdl/pkg/data"
	"github.com/kerbaras/comicdl/pkg/integrations"
	"github.com/kerbaras/comicdl/pkg/services"
	"github.com/kerbaras/comicdl/pkg/sources"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

type downloadFlags struct {
	format string
	tier   string
	rule   string
	all    bool
}

func newDownloadCommand(opts *options) *cobra.Command {
	flags := &downloadFlags{}
	cmd := &cobra.Command{
		Use:   "download [comic-id] [episode-id...]",
		Short: "Download chapters of a comic",
		Long: `Download chapters of a comic one after another.

Examples:
  comicdl download 26470 1001 1002
  comicdl download 26470 --all --format cbz`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 && !flags.all {
				return errors.New("name at least one episode id or pass --all")
			}
			cfg, logger, err := opts.load(cmd)
			if err != nil {
				return err
			}
			if err := flags.apply(cfg); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sink := services.NewChannelSink(256)
			c := services.Build(cfg, producer(), sink, &logger)

			comic, episodes, err := c.Source.ComicDetail(ctx, args[0])
			if err != nil {
				return err
			}
			chapters, err := selectChapters(comic, episodes, args[1:], cfg, sink)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("%s: %d chapter(s) as %s", comic.Title, len(chapters), cfg.OutputFormat())))

			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				printEvents(out, sink.Events(), isTTY(out))
			}()

			rows := runChapters(ctx, c, chapters)
			sink.Close()
			wg.Wait()

			fmt.Fprintln(out, renderTable([]string{"#", "Chapter", "Status", "Pages", "Output"}, rows, []columnAlignment{alignRight, alignLeft, alignLeft, alignRight}))
			if c.Session.Locked() {
				return fmt.Errorf("%w: verify at %s, then run again", sources.ErrLocked, sources.VerifyURL)
			}
			return ctx.Err()
		},
	}
	cmd.Flags().StringVarP(&flags.format, "format", "f", "", "Override download.output_format (folder, pdf, zip, 7z, cbz)")
	cmd.Flags().StringVar(&flags.tier, "tier", "", "Override download.image_tier")
	cmd.Flags().StringVar(&flags.rule, "rule", "", "Override download.rename_rule, e.g. 3idx&short")
	cmd.Flags().BoolVar(&flags.all, "all", false, "Download every available chapter")
	return cmd
}

func (f *downloadFlags) apply(cfg *config.Config) error {
	if f.format != "" {
		cfg.Download.OutputFormat = f.format
	}
	if f.tier != "" {
		cfg.Download.ImageTier = f.tier
	}
	if f.rule != "" {
		cfg.Download.RenameRule = f.rule
	}
	return cfg.Validate()
}

// selectChapters builds the requested chapters, or every chapter when ids
// is empty.
func selectChapters(comic data.Comic, episodes []data.Episode, ids []string, cfg *config.Config, sink data.EventSink) ([]*data.Chapter, error) {
	var chapters []*data.Chapter
	if len(ids) == 0 {
		for i, ep := range episodes {
			chapters = append(chapters, services.NewChapter(i+1, ep, comic, cfg, sink))
		}
		return chapters, nil
	}
	for _, id := range ids {
		ep, idx, err := sources.FindEpisode(episodes, id)
		if err != nil {
			return nil, err
		}
		chapters = append(chapters, services.NewChapter(idx, ep, comic, cfg, sink))
	}
	return chapters, nil
}

// runChapters runs the chapters in order and stops early on a lockout or
// cancellation. It returns one summary row per chapter.
func runChapters(ctx context.Context, c *services.Components, chapters []*data.Chapter) [][]string {
	rows := make([][]string, 0, len(chapters))
	halted := ""
	for _, ch := range chapters {
		row := []string{strconv.Itoa(ch.Index), truncateString(ch.Title, 40), "", "", ""}
		if halted != "" {
			row[2] = halted
			rows = append(rows, row)
			continue
		}

		artifact, err := c.Pipeline.Run(ctx, ch)
		row[2] = status(err)
		if err == nil || errors.Is(err, services.ErrAlreadySaved) {
			row[4] = artifact.Path
		}
		if artifact.Pages > 0 {
			row[3] = strconv.Itoa(artifact.Pages)
		}
		rows = append(rows, row)

		switch {
		case errors.Is(err, sources.ErrLocked):
			halted = "not attempted"
		case ctx.Err() != nil:
			halted = "cancelled"
		}
	}
	return rows
}

func status(err error) string {
	switch {
	case err == nil:
		return okStyle.Render("saved")
	case errors.Is(err, services.ErrAlreadySaved):
		return mutedStyle.Render("already saved")
	case errors.Is(err, services.ErrUnavailable):
		return mutedStyle.Render("locked chapter")
	case errors.Is(err, sources.ErrLocked):
		return errStyle.Render("risk control")
	case errors.Is(err, sources.ErrSkipped):
		return warnStyle.Render("skipped")
	case errors.Is(err, services.ErrIncomplete):
		return warnStyle.Render("incomplete")
	case errors.Is(err, integrations.ErrBusy):
		return warnStyle.Render("busy")
	case errors.Is(err, context.Canceled):
		return mutedStyle.Render("cancelled")
	default:
		return errStyle.Render("failed")
	}
}

func printEvents(out io.Writer, events <-chan data.Event, tty bool) {
	line := newProgressLine(30)
	inline := false
	for e := range events {
		if e.Kind == data.EventProgress && e.Position > 0 {
			if tty {
				fmt.Fprint(out, "\r"+line.View(e))
				inline = true
			}
			continue
		}
		if inline {
			fmt.Fprintln(out)
			inline = false
		}
		if e.Kind == data.EventProgress {
			fmt.Fprintln(out, okStyle.Render("✓ ")+e.String())
			continue
		}
		fmt.Fprintln(out, renderEvent(e))
	}
	if inline {
		fmt.Fprintln(out)
	}
}

func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}
