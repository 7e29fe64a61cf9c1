package integrations

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

var ErrSevenZipUnavailable = errors.New("7z binary not found")

// SevenZipCandidates are searched on PATH when no binary is configured.
var SevenZipCandidates = []string{"7zz", "7z", "7za"}

// Runner executes an external command in dir.
type Runner func(ctx context.Context, dir, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.Bytes(), err
}

// SevenZipWriter shells out to a 7-Zip binary; there is no maintained pure
// Go 7z encoder.
type SevenZipWriter struct {
	Binary string
	Run    Runner
}

// FindSevenZip resolves the configured binary or the first candidate on PATH.
func FindSevenZip(configured string) (string, error) {
	if configured = strings.TrimSpace(configured); configured != "" {
		path, err := exec.LookPath(configured)
		if err != nil {
			return "", fmt.Errorf("%w: %q: %w", ErrSevenZipUnavailable, configured, err)
		}
		return path, nil
	}
	for _, name := range SevenZipCandidates {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: tried %s", ErrSevenZipUnavailable, strings.Join(SevenZipCandidates, ", "))
}

func (w SevenZipWriter) Write(ctx context.Context, job Job, dst string) error {
	if len(job.Pages) == 0 {
		return errors.New("no pages to pack")
	}
	bin := w.Binary
	run := w.Run
	if run == nil {
		run = execRunner
		var err error
		if bin, err = FindSevenZip(bin); err != nil {
			return err
		}
	}

	abs, err := filepath.Abs(dst)
	if err != nil {
		return err
	}
	// entries are added by base name from the page folder so they land at
	// the archive root
	dir := filepath.Dir(job.Pages[0])
	args := []string{"a", "-t7z", "-y", "-bd", abs}
	for _, page := range job.Pages {
		if filepath.Dir(page) != dir {
			return fmt.Errorf("page %s is outside %s", page, dir)
		}
		args = append(args, filepath.Base(page))
	}

	out, err := run(ctx, dir, bin, args...)
	if err != nil {
		return fmt.Errorf("%s: %w: %s", filepath.Base(bin), err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (w SevenZipWriter) Verify(_ Job, dst string) error {
	info, err := os.Stat(dst)
	if err != nil {
		return fmt.Errorf("verify %s: %w", dst, err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("verify %s: empty archive", dst)
	}
	return nil
}
