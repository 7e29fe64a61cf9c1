package integrations

import (
	"bytes"
	"encoding/xml"
	"fmt"
)

// ComicInfo renders the ComicRack ComicInfo.xml sidecar used by CBZ readers.
type ComicInfo struct {
	Language string // ISO code, "zh" when empty
}

type comicInfoXML struct {
	XMLName     xml.Name `xml:"ComicInfo"`
	XSI         string   `xml:"xmlns:xsi,attr"`
	XSD         string   `xml:"xmlns:xsd,attr"`
	Title       string   `xml:"Title"`
	Series      string   `xml:"Series"`
	Number      string   `xml:"Number"`
	Writer      string   `xml:"Writer,omitempty"`
	Notes       string   `xml:"Notes,omitempty"`
	Web         string   `xml:"Web,omitempty"`
	PageCount   int      `xml:"PageCount"`
	LanguageISO string   `xml:"LanguageISO"`
	Manga       string   `xml:"Manga"`
}

func (ComicInfo) Name() string { return "ComicInfo.xml" }

func (c ComicInfo) Render(job Job) ([]byte, error) {
	ch := job.Chapter
	lang := c.Language
	if lang == "" {
		lang = "zh"
	}
	doc := comicInfoXML{
		XSI:         "http://www.w3.org/2001/XMLSchema-instance",
		XSD:         "http://www.w3.org/2001/XMLSchema",
		Title:       ch.Title,
		Series:      ch.ComicTitle,
		Number:      ch.OrdString(),
		Writer:      ch.Author,
		PageCount:   len(job.Pages),
		LanguageISO: lang,
		Manga:       "YesAndRightToLeft",
	}
	if ch.ComicID != "" {
		doc.Web = fmt.Sprintf("https://manga.bilibili.com/detail/mc%s", ch.ComicID)
	}
	if job.Producer != "" {
		doc.Notes = "Created by " + job.Producer
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode ComicInfo.xml: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}
