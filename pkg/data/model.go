package data

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// Comic is the owning series of a chapter. Only the fields the chapter
// pipeline needs are carried here.
type Comic struct {
	ID       string
	Title    string
	Author   string
	SaveRoot string
}

// Episode is the remote chapter metadata as returned by the comic detail API.
type Episode struct {
	ID         string
	ShortTitle string
	Title      string
	Ord        float64
	Locked     bool
	Size       int
}

// Chapter is a value object built once from an Episode and the caller's
// configuration. Its title is final after construction.
type Chapter struct {
	ID         string
	ComicID    string
	Index      int
	Ord        float64
	ShortTitle string
	LongTitle  string
	Title      string
	Locked     bool

	ComicTitle string
	Author     string
	SaveRoot   string

	Format        OutputFormat
	EmbedMetadata bool
}

// Available reports whether the chapter is unlocked for this account.
func (c *Chapter) Available() bool {
	return !c.Locked
}

// Dir is the staging folder of the chapter, also the loose-file artifact.
func (c *Chapter) Dir() string {
	return filepath.Join(c.SaveRoot, c.Title)
}

// ArtifactPath is the deterministic location of the chapter's final output.
func (c *Chapter) ArtifactPath() string {
	ext := c.Format.Ext()
	if ext == "" {
		return c.Dir()
	}
	return c.Dir() + "." + ext
}

// OrdString renders the ordinal without a trailing ".0" for whole numbers.
func (c *Chapter) OrdString() string {
	return strconv.FormatFloat(c.Ord, 'f', -1, 64)
}

// Locator addresses one remote page image.
type Locator struct {
	Path        string // path fragment from the image index, tier suffix applied
	URL         string
	CompleteURL string
	Token       string
	CPX         string // key-exchange parameter for obfuscated payloads
	Encrypted   bool
}

// Fetchable returns the URL that should be requested for the image.
func (l Locator) Fetchable() string {
	if l.CompleteURL != "" {
		return l.CompleteURL
	}
	if l.Token != "" && !strings.Contains(l.URL, "token=") {
		sep := "?"
		if strings.Contains(l.URL, "?") {
			sep = "&"
		}
		return l.URL + sep + "token=" + l.Token
	}
	return l.URL
}

// HasToken reports whether either URL carries the access-token marker.
func (l Locator) HasToken() bool {
	return strings.Contains(l.URL, "token=") || strings.Contains(l.CompleteURL, "token=")
}

// Ext derives the staged file extension from the trailing path segment.
func (l Locator) Ext() string {
	u := l.Fetchable()
	if i := strings.Index(u, "?"); i >= 0 {
		u = u[:i]
	}
	if i := strings.LastIndex(u, "."); i >= 0 {
		u = u[i+1:]
	}
	return strings.ReplaceAll(strings.ToLower(u), "&append=", "")
}

// StagedImage is a decoded page waiting for assembly.
type StagedImage struct {
	Position int
	Path     string
}

// Artifact is the single final output of a chapter.
type Artifact struct {
	Path   string
	Format OutputFormat
	Pages  int
}

// OutputFormat selects the container produced by assembly.
type OutputFormat string

const (
	FormatFolder   OutputFormat = "folder"
	FormatPDF      OutputFormat = "pdf"
	FormatZip      OutputFormat = "zip"
	FormatSevenZip OutputFormat = "7z"
	FormatCBZ      OutputFormat = "cbz"
)

// OutputFormats lists every supported container in display order.
var OutputFormats = []OutputFormat{FormatFolder, FormatPDF, FormatZip, FormatSevenZip, FormatCBZ}

// ParseOutputFormat validates a configured format name.
func ParseOutputFormat(s string) (OutputFormat, error) {
	f := OutputFormat(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range OutputFormats {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown output format %q", s)
}

// Ext is the artifact file extension, empty for loose files.
func (f OutputFormat) Ext() string {
	if f == FormatFolder {
		return ""
	}
	return string(f)
}

// ImageTier is the resolution/encoding requested from the CDN.
type ImageTier string

var imageTierSuffixes = map[ImageTier]string{
	"default":  "",
	"jpg":      "@10000w.jpg",
	"webp":     "@10000w.webp",
	"avif":     "@10000w.avif",
	"1700jpg":  "@1700w.jpg",
	"1400jpg":  "@1400w.jpg",
	"1100jpg":  "@1100w.jpg",
	"1700webp": "@1700w.webp",
	"1400webp": "@1400w.webp",
	"1100webp": "@1100w.webp",
	"1700avif": "@1700w.avif",
	"1400avif": "@1400w.avif",
	"1100avif": "@1100w.avif",
}

// ParseImageTier validates a configured tier name.
func ParseImageTier(s string) (ImageTier, error) {
	t := ImageTier(strings.ToLower(strings.TrimSpace(s)))
	if t == "" {
		t = "default"
	}
	if _, ok := imageTierSuffixes[t]; !ok {
		return "", fmt.Errorf("unknown image tier %q", s)
	}
	return t, nil
}

// Suffix is appended to every image path before the token exchange.
func (t ImageTier) Suffix() string {
	return imageTierSuffixes[t]
}
