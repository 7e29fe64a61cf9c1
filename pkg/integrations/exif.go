package integrations

import (
	"bytes"
	"fmt"
	"strings"

	exif "github.com/dsoprea/go-exif/v3"
	exifcommon "github.com/dsoprea/go-exif/v3/common"
	jpegstructure "github.com/dsoprea/go-jpeg-image-structure/v2"
)

// PageMeta is the descriptive metadata written into page files.
type PageMeta struct {
	Description string
	Artist      string
	Software    string
	Copyright   string
}

// SupportsPageMeta reports whether pages with ext carry per-file metadata.
func SupportsPageMeta(ext string) bool {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	return ext == "jpg" || ext == "jpeg"
}

// EmbedEXIF returns a copy of a JPEG with meta written into IFD0, keeping
// any EXIF the file already has.
func EmbedEXIF(jpeg []byte, meta PageMeta) ([]byte, error) {
	parsed, err := jpegstructure.NewJpegMediaParser().ParseBytes(jpeg)
	if err != nil {
		return nil, fmt.Errorf("parse jpeg: %w", err)
	}
	sl, ok := parsed.(*jpegstructure.SegmentList)
	if !ok {
		return nil, fmt.Errorf("parse jpeg: unexpected media context %T", parsed)
	}

	rootIb, err := sl.ConstructExifBuilder()
	if err != nil {
		im, err := exifcommon.NewIfdMappingWithStandard()
		if err != nil {
			return nil, fmt.Errorf("ifd mapping: %w", err)
		}
		rootIb = exif.NewIfdBuilder(im, exif.NewTagIndex(), exifcommon.IfdStandardIfdIdentity, exifcommon.EncodeDefaultByteOrder)
	}

	tags := []struct{ name, value string }{
		{"ImageDescription", meta.Description},
		{"Artist", meta.Artist},
		{"Software", meta.Software},
		{"Copyright", meta.Copyright},
	}
	for _, tag := range tags {
		if tag.value == "" {
			continue
		}
		if err := rootIb.SetStandardWithName(tag.name, tag.value); err != nil {
			return nil, fmt.Errorf("set %s: %w", tag.name, err)
		}
	}

	if err := sl.SetExif(rootIb); err != nil {
		return nil, fmt.Errorf("set exif: %w", err)
	}
	var buf bytes.Buffer
	if err := sl.Write(&buf); err != nil {
		return nil, fmt.Errorf("write jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
