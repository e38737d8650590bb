// Package i18n holds the operator-facing message catalogs. Kiosk terminals
// show these strings verbatim, so pt-BR is the default.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"time"

	goi18n "github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/pelletier/go-toml/v2"
	"golang.org/x/text/language"
)

//go:embed locales/*.toml
var locales embed.FS

// Catalog is a loaded message bundle. It is safe for concurrent use.
type Catalog struct {
	bundle   *goi18n.Bundle
	fallback string
}

// New loads the embedded catalogs with defaultLocale as the fallback language.
func New(defaultLocale string) (*Catalog, error) {
	tag, err := language.Parse(defaultLocale)
	if err != nil {
		return nil, fmt.Errorf("i18n: default locale %q: %w", defaultLocale, err)
	}

	bundle := goi18n.NewBundle(tag)
	bundle.RegisterUnmarshalFunc("toml", toml.Unmarshal)

	files, err := fs.Glob(locales, "locales/*.toml")
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		if _, err := bundle.LoadMessageFileFS(locales, f); err != nil {
			return nil, fmt.Errorf("i18n: load %s: %w", f, err)
		}
	}
	return &Catalog{bundle: bundle, fallback: tag.String()}, nil
}

// Localizer picks the best catalog for the given Accept-Language values.
func (c *Catalog) Localizer(langs ...string) *Localizer {
	langs = append(langs, c.fallback)
	return &Localizer{l: goi18n.NewLocalizer(c.bundle, langs...)}
}

// Tags lists the languages with a catalog.
func (c *Catalog) Tags() []language.Tag {
	return c.bundle.LanguageTags()
}

type Localizer struct {
	l *goi18n.Localizer
}

// Message renders id with data. Unknown ids render as the id itself so a
// missing translation never blanks a kiosk screen.
func (z *Localizer) Message(id string, data map[string]any) string {
	if z == nil {
		return id
	}
	// A miss in the requested language still renders the fallback catalog
	// and reports MessageNotFoundErr alongside it.
	out, _ := z.l.Localize(&goi18n.LocalizeConfig{MessageID: id, TemplateData: data})
	if out == "" {
		return id
	}
	return out
}

// TimeSince renders how long ago d was, truncated to whole minutes.
func (z *Localizer) TimeSince(d time.Duration) string {
	mins := int(d / time.Minute)
	hours := mins / 60
	days := hours / 24
	switch {
	case days > 0:
		if z == nil {
			return fmt.Sprintf("%dd", days)
		}
		out, _ := z.l.Localize(&goi18n.LocalizeConfig{
			MessageID:    "time.days_ago",
			TemplateData: map[string]any{"Count": days},
			PluralCount:  days,
		})
		if out == "" {
			return fmt.Sprintf("%dd", days)
		}
		return out
	case hours > 0:
		return z.Message("time.hours_ago", map[string]any{"Hours": hours, "Minutes": mins % 60})
	case mins > 0:
		return z.Message("time.minutes_ago", map[string]any{"Minutes": mins})
	default:
		return z.Message("time.now", nil)
	}
}
