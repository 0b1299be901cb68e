// Package i18n renders user-facing error messages for coded domain errors.
package i18n

import (
	"strings"
	"text/template"

	"golang.org/x/text/language"
)

// Code mirrors errors.Code as a plain string; importing that package here
// would create a cycle.
type Code = string

// BaseLocale is served when no requested locale matches.
const BaseLocale = "en-US"

// Catalog holds one locale's message templates, parsed when the catalog is
// built.
type Catalog struct {
	messages map[Code]message
}

type message struct {
	raw  string
	tmpl *template.Template // nil when raw does not parse
}

var (
	supported = []language.Tag{language.AmericanEnglish, language.BrazilianPortuguese}
	matcher   = language.NewMatcher(supported)
	catalogs  = map[string]*Catalog{
		BaseLocale: newCatalog(enUSMessages),
		"pt-BR":    newCatalog(ptBRMessages),
	}
)

// GetCatalog returns the catalog for locale, or the en-US catalog when locale
// is blank or unsupported.
func GetCatalog(locale string) *Catalog {
	if cat, ok := catalogs[strings.TrimSpace(locale)]; ok {
		return cat
	}
	return catalogs[BaseLocale]
}

// MatchAcceptLanguage picks the best supported locale for an Accept-Language
// header value.
func MatchAcceptLanguage(header string) string {
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil || len(tags) == 0 {
		return BaseLocale
	}
	if _, index, confidence := matcher.Match(tags...); confidence != language.No {
		return supported[index].String()
	}
	return BaseLocale
}

// Format renders the message for code with metadata. Unknown codes render as
// the code itself; templates that fail to parse or execute render raw.
func (c *Catalog) Format(code Code, metadata map[string]string) string {
	msg, ok := c.messages[code]
	switch {
	case !ok:
		return code
	case msg.tmpl == nil:
		return msg.raw
	}
	if metadata == nil {
		metadata = map[string]string{}
	}
	var out strings.Builder
	if err := msg.tmpl.Execute(&out, metadata); err != nil {
		return msg.raw
	}
	return out.String()
}

func newCatalog(templates map[Code]string) *Catalog {
	cat := &Catalog{messages: make(map[Code]message, len(templates))}
	for code, raw := range templates {
		msg := message{raw: raw}
		if tmpl, err := template.New(code).Parse(raw); err == nil {
			msg.tmpl = tmpl
		}
		cat.messages[code] = msg
	}
	return cat
}
