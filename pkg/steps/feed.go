package steps

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/SuryanshuBanerjee/bonesaw/pkg/pipeline"
	"github.com/SuryanshuBanerjee/bonesaw/pkg/registry"
	"golang.org/x/net/html/charset"
)

const (
	summaryLimit     = 200
	defaultFeedTitle = "Unknown Feed"
	defaultTitle     = "Untitled"
)

// rssDoc covers RSS 2.0 (items inside channel) and RSS 1.0/RDF (items
// beside the channel).
type rssDoc struct {
	Channel struct {
		Title string    `xml:"title"`
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
	Items []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	PubDate     string `xml:"pubDate"`
	Date        string `xml:"http://purl.org/dc/elements/1.1/ date"`
	Description string `xml:"description"`
}

type atomDoc struct {
	Title   string      `xml:"title"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	Title     string     `xml:"title"`
	Links     []atomLink `xml:"link"`
	Published string     `xml:"published"`
	Updated   string     `xml:"updated"`
	Summary   string     `xml:"summary"`
	Content   string     `xml:"content"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
}

func (e atomEntry) link() string {
	for _, l := range e.Links {
		if l.Rel == "" || l.Rel == "alternate" {
			return l.Href
		}
	}
	if len(e.Links) > 0 {
		return e.Links[0].Href
	}
	return ""
}

type feed struct {
	title   string
	entries []map[string]any
}

func entry(title, link, published, summary string) map[string]any {
	title = strings.TrimSpace(title)
	if title == "" {
		title = defaultTitle
	}
	summary = strings.TrimSpace(summary)
	if r := []rune(summary); len(r) > summaryLimit {
		summary = string(r[:summaryLimit])
	}
	return map[string]any{
		"title":     title,
		"link":      strings.TrimSpace(link),
		"published": strings.TrimSpace(published),
		"summary":   summary,
	}
}

// parseFeed decodes an RSS 2.0, RSS 1.0 or Atom document.
func parseFeed(raw []byte) (*feed, error) {
	root, err := rootElement(raw)
	if err != nil {
		return nil, err
	}

	var f feed
	switch root {
	case "rss", "RDF":
		var doc rssDoc
		if err := decodeXML(raw, &doc); err != nil {
			return nil, err
		}
		f.title = doc.Channel.Title
		for _, it := range append(doc.Channel.Items, doc.Items...) {
			published := it.PubDate
			if published == "" {
				published = it.Date
			}
			f.entries = append(f.entries, entry(it.Title, it.Link, published, it.Description))
		}
	case "feed":
		var doc atomDoc
		if err := decodeXML(raw, &doc); err != nil {
			return nil, err
		}
		f.title = doc.Title
		for _, e := range doc.Entries {
			published := e.Published
			if published == "" {
				published = e.Updated
			}
			summary := e.Summary
			if summary == "" {
				summary = e.Content
			}
			f.entries = append(f.entries, entry(e.Title, e.link(), published, summary))
		}
	default:
		return nil, fmt.Errorf("unsupported feed format: root element <%s>", root)
	}

	f.title = strings.TrimSpace(f.title)
	if f.title == "" {
		f.title = defaultFeedTitle
	}
	return &f, nil
}

func newDecoder(raw []byte) *xml.Decoder {
	dec := xml.NewDecoder(bytes.NewReader(raw))
	dec.CharsetReader = charset.NewReaderLabel
	dec.Strict = false
	dec.Entity = xml.HTMLEntity
	return dec
}

func decodeXML(raw []byte, v any) error {
	if err := newDecoder(raw).Decode(v); err != nil {
		return fmt.Errorf("parsing feed: %w", err)
	}
	return nil
}

func rootElement(raw []byte) (string, error) {
	dec := newDecoder(raw)
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", fmt.Errorf("parsing feed: %w", err)
		}
		if start, ok := tok.(xml.StartElement); ok {
			return start.Name.Local, nil
		}
	}
}

type parseRSSConfig struct {
	Limit int `yaml:"limit"`
}

type parseRSSStep struct{ limit int }

func newParseRSS(params map[string]any) (pipeline.Step, error) {
	var cfg parseRSSConfig
	if err := registry.Decode(params, &cfg); err != nil {
		return nil, err
	}
	if cfg.Limit < 0 {
		return nil, fmt.Errorf("limit must not be negative, got %d", cfg.Limit)
	}
	return &parseRSSStep{limit: cfg.Limit}, nil
}

func (s *parseRSSStep) Run(_ context.Context, data any, pc pipeline.Context) (any, error) {
	text := toText(data)
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("parsing feed: empty input")
	}

	f, err := parseFeed([]byte(text))
	if err != nil {
		return nil, err
	}

	entries := f.entries
	if s.limit > 0 && len(entries) > s.limit {
		entries = entries[:s.limit]
	}
	if entries == nil {
		entries = []map[string]any{}
	}

	pc["feed_title"] = f.title
	pc["entry_count"] = len(entries)

	slog.Info("parsed feed", "title", f.title, "entries", len(entries))
	return entries, nil
}

type markdownConfig struct {
	IncludeSummary bool `yaml:"include_summary"`
	Numbered       bool `yaml:"numbered"`
}

type markdownStep struct{ cfg markdownConfig }

func newMarkdown(params map[string]any) (pipeline.Step, error) {
	var cfg markdownConfig
	if err := registry.Decode(params, &cfg); err != nil {
		return nil, err
	}
	return &markdownStep{cfg: cfg}, nil
}

func (s *markdownStep) Run(_ context.Context, data any, _ pipeline.Context) (any, error) {
	entries, err := toRecords(data)
	if err != nil {
		return nil, err
	}

	field := func(e map[string]any, key, fallback string) string {
		if v, ok := e[key]; ok && v != nil {
			return toText(v)
		}
		return fallback
	}

	var lines []string
	for i, e := range entries {
		title := field(e, "title", defaultTitle)
		link := field(e, "link", "")
		published := field(e, "published", "")
		summary := field(e, "summary", "")

		prefix := "- "
		if s.cfg.Numbered {
			prefix = fmt.Sprintf("%d. ", i+1)
		}

		if link != "" {
			lines = append(lines, fmt.Sprintf("%s[%s](%s)", prefix, title, link))
		} else {
			lines = append(lines, prefix+title)
		}

		if published != "" && !s.cfg.IncludeSummary {
			lines = append(lines, "  _"+published+"_")
		}
		if s.cfg.IncludeSummary && summary != "" {
			lines = append(lines, "  "+summary)
			if published != "" {
				lines = append(lines, "  _"+published+"_")
			}
		}
		lines = append(lines, "")
	}

	out := strings.Join(lines, "\n")
	slog.Info("formatted entries as markdown", "entries", len(entries), "chars", len(out))
	return out, nil
}
