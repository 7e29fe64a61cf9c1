package integrations

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/flate"
)

// ZipWriter packs pages flat at the archive root. With a Sidecar set it
// produces a CBZ.
type ZipWriter struct {
	Sidecar Sidecar
}

func (w ZipWriter) Write(ctx context.Context, job Job, dst string) (err error) {
	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	zw := zip.NewWriter(f)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.DefaultCompression)
	})

	for _, page := range job.Pages {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := addZipFile(zw, page); err != nil {
			return err
		}
	}

	if w.Sidecar != nil {
		body, err := w.Sidecar.Render(job)
		if err != nil {
			return err
		}
		entry, err := zw.Create(w.Sidecar.Name())
		if err != nil {
			return err
		}
		if _, err := entry.Write(body); err != nil {
			return err
		}
	}
	return zw.Close()
}

func addZipFile(zw *zip.Writer, path string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return err
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = filepath.Base(path)
	header.Method = zip.Deflate

	entry, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	_, err = io.Copy(entry, src)
	return err
}

// Verify checks that the archive opens and holds exactly the expected entries.
func (w ZipWriter) Verify(job Job, dst string) error {
	zr, err := zip.OpenReader(dst)
	if err != nil {
		return fmt.Errorf("verify %s: %w", dst, err)
	}
	defer zr.Close()

	want := len(job.Pages)
	if w.Sidecar != nil {
		want++
	}
	if len(zr.File) != want {
		return fmt.Errorf("verify %s: %d entries, want %d", dst, len(zr.File), want)
	}
	return nil
}
