package alert

import (
	"fmt"
	"slices"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"

	"github.com/kozaktomas/touch-guard/internal/config"
)

const (
	keyTitle = "alert.touch.title"
	keyBody  = "alert.touch.body"
)

// Text is the content of one touch notification.
type Text struct {
	Title string
	Body  string
}

// Catalog resolves alert texts for a requested language.
type Catalog struct {
	builder *catalog.Builder
	tags    []language.Tag
	matcher language.Matcher
}

// NewCatalog builds a catalog from per-language texts. English, when present,
// is the fallback for unmatched languages.
func NewCatalog(texts map[string]config.AlertText) (*Catalog, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("no alert texts configured")
	}

	langs := make([]string, 0, len(texts))
	for lang := range texts {
		langs = append(langs, lang)
	}
	slices.SortFunc(langs, func(a, b string) int {
		// The matcher treats the first tag as the default.
		switch {
		case a == b:
			return 0
		case a == "en":
			return -1
		case b == "en":
			return 1
		case a < b:
			return -1
		default:
			return 1
		}
	})

	b := catalog.NewBuilder(catalog.Fallback(language.English))
	tags := make([]language.Tag, 0, len(langs))
	for _, lang := range langs {
		tag, err := language.Parse(lang)
		if err != nil {
			return nil, fmt.Errorf("invalid alert language %q: %w", lang, err)
		}
		text := texts[lang]
		if err := b.SetString(tag, keyTitle, text.Title); err != nil {
			return nil, fmt.Errorf("adding %s title: %w", lang, err)
		}
		if err := b.SetString(tag, keyBody, text.Body); err != nil {
			return nil, fmt.Errorf("adding %s body: %w", lang, err)
		}
		tags = append(tags, tag)
	}

	return &Catalog{builder: b, tags: tags, matcher: language.NewMatcher(tags)}, nil
}

// Text returns the alert text best matching lang, e.g. "vi-VN" resolves to "vi".
func (c *Catalog) Text(lang string) Text {
	_, idx, _ := c.matcher.Match(language.Make(lang))
	p := message.NewPrinter(c.tags[idx], message.Catalog(c.builder))
	return Text{Title: p.Sprintf(keyTitle), Body: p.Sprintf(keyBody)}
}
