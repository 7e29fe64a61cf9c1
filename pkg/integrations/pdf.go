package integrations

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"os"
	"strconv"

	"github.com/disintegration/imaging"
	"github.com/go-pdf/fpdf"
	"github.com/kerbaras/comicdl/pkg/retry"
	_ "golang.org/x/image/webp"
)

// pointsPerPixel maps one image pixel to one PDF point at 72 dpi.
const pointsPerPixel = 1.0

// PDFWriter merges the pages into one document, one page per image sized
// to the image.
type PDFWriter struct {
	JPEGQuality int
}

// flatten forces a common RGB colour model, compositing transparency over
// white.
func flatten(img image.Image) *image.NRGBA {
	b := img.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
}

func (w PDFWriter) Write(ctx context.Context, job Job, dst string) error {
	quality := w.JPEGQuality
	if quality <= 0 {
		quality = 92
	}

	doc := fpdf.NewCustom(&fpdf.InitType{UnitStr: "pt", Size: fpdf.SizeType{Wd: 595, Ht: 842}})
	doc.SetMargins(0, 0, 0)
	doc.SetAutoPageBreak(false, 0)

	if job.Metadata {
		ch := job.Chapter
		doc.SetTitle(fmt.Sprintf("《%s》 - %s", ch.ComicTitle, ch.Title), true)
		if ch.Author != "" {
			doc.SetAuthor(ch.Author, true)
		}
		if job.Producer != "" {
			doc.SetCreator(job.Producer, true)
			doc.SetProducer(job.Producer, true)
		}
	}

	for i, page := range job.Pages {
		if err := ctx.Err(); err != nil {
			return err
		}
		img, err := imaging.Open(page)
		if err != nil {
			// an undecodable page fails every attempt the same way
			return retry.Permanent(fmt.Errorf("decode %s: %w", page, err))
		}
		rgb := flatten(img)

		var buf bytes.Buffer
		if err := imaging.Encode(&buf, rgb, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
			return fmt.Errorf("encode %s: %w", page, err)
		}

		wd := float64(rgb.Bounds().Dx()) * pointsPerPixel
		ht := float64(rgb.Bounds().Dy()) * pointsPerPixel
		name := "page" + strconv.Itoa(i+1)
		opts := fpdf.ImageOptions{ImageType: "JPG"}
		doc.RegisterImageOptionsReader(name, opts, &buf)
		doc.AddPageFormat("P", fpdf.SizeType{Wd: wd, Ht: ht})
		doc.ImageOptions(name, 0, 0, wd, ht, false, opts, 0, "")
		if doc.Err() {
			return fmt.Errorf("add %s: %w", page, doc.Error())
		}
	}

	var out bytes.Buffer
	if err := doc.Output(&out); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	return os.WriteFile(dst, out.Bytes(), 0o644)
}

func (PDFWriter) Verify(_ Job, dst string) error {
	raw, err := os.ReadFile(dst)
	if err != nil {
		return fmt.Errorf("verify %s: %w", dst, err)
	}
	if !bytes.HasPrefix(raw, []byte("%PDF-")) {
		return fmt.Errorf("verify %s: not a pdf", dst)
	}
	if !bytes.Contains(raw[max(0, len(raw)-32):], []byte("%%EOF")) {
		return fmt.Errorf("verify %s: truncated pdf", dst)
	}
	return nil
}
