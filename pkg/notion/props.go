package notion

import (
	"strings"

	"github.com/jomei/notionapi"
)

// Text returns the trimmed plain text of a title, rich-text, email, URL,
// phone, select, or status property. Missing properties yield "".
func Text(props notionapi.Properties, name string) string {
	var b strings.Builder
	switch p := props[name].(type) {
	case *notionapi.TitleProperty:
		for _, rt := range p.Title {
			b.WriteString(rt.PlainText)
		}
	case *notionapi.RichTextProperty:
		for _, rt := range p.RichText {
			b.WriteString(rt.PlainText)
		}
	case *notionapi.EmailProperty:
		b.WriteString(p.Email)
	case *notionapi.URLProperty:
		b.WriteString(p.URL)
	case *notionapi.PhoneNumberProperty:
		b.WriteString(p.PhoneNumber)
	case *notionapi.SelectProperty:
		b.WriteString(p.Select.Name)
	case *notionapi.StatusProperty:
		b.WriteString(p.Status.Name)
	}
	return strings.TrimSpace(b.String())
}

// Number returns a number property, or 0 when absent.
func Number(props notionapi.Properties, name string) float64 {
	if p, ok := props[name].(*notionapi.NumberProperty); ok {
		return p.Number
	}
	return 0
}
