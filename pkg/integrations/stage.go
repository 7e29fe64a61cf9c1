package integrations

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kerbaras/comicdl/pkg/data"
	"github.com/kerbaras/comicdl/pkg/retry"
)

// ErrNoPageMeta marks pages whose format has no metadata block to write to.
var ErrNoPageMeta = errors.New("page format carries no metadata")

// SortStaged orders staged images by page position.
func SortStaged(staged []data.StagedImage) []data.StagedImage {
	out := make([]data.StagedImage, len(staged))
	copy(out, staged)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

// PageName is the file name of the n-th (1-based) page inside a chapter folder.
func PageName(n int, ext string) string {
	return fmt.Sprintf("%03d.%s", n, ext)
}

func pageExt(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}

// StageToFolder moves the staged images into the chapter folder as
// 001.<ext>, 002.<ext>, ... in position order. When embed is set, JPEG pages
// get meta written into their EXIF block. Metadata failures never fail the
// stage; they come back as warnings next to the page paths.
func StageToFolder(ctx context.Context, ch *data.Chapter, staged []data.StagedImage, meta *PageMeta, policy retry.Policy) (pages []string, warnings []error, err error) {
	dir := ch.Dir()
	if err := policy.Do(ctx, func() error { return os.MkdirAll(dir, 0o755) }, nil); err != nil {
		return nil, nil, fmt.Errorf("create %s: %w", dir, err)
	}

	for i, img := range SortStaged(staged) {
		ext := pageExt(img.Path)
		dst := filepath.Join(dir, PageName(i+1, ext))

		var body []byte
		if meta != nil && SupportsPageMeta(ext) {
			var embedErr error
			if body, embedErr = embedFile(img.Path, *meta); embedErr != nil {
				warnings = append(warnings, fmt.Errorf("page %d metadata: %w", i+1, embedErr))
				body = nil
			}
		} else if meta != nil {
			warnings = append(warnings, fmt.Errorf("page %d: %w: %q", i+1, ErrNoPageMeta, ext))
		}

		moveErr := policy.Do(ctx, func() error {
			if body != nil {
				if err := os.WriteFile(dst, body, 0o644); err != nil {
					return err
				}
				return os.Remove(img.Path)
			}
			return moveFile(img.Path, dst)
		}, nil)
		if moveErr != nil {
			return pages, warnings, fmt.Errorf("move page %d to %s: %w", i+1, dst, moveErr)
		}
		pages = append(pages, dst)
	}
	return pages, warnings, nil
}

func embedFile(path string, meta PageMeta) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return EmbedEXIF(raw, meta)
}

// moveFile renames src to dst, copying when they are on different devices.
func moveFile(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) {
		return err
	}
	if _, statErr := os.Stat(src); statErr != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		in.Close()
		return err
	}
	_, copyErr := io.Copy(out, in)
	in.Close()
	if closeErr := out.Close(); copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		os.Remove(dst)
		return copyErr
	}
	return os.Remove(src)
}
