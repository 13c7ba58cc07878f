package blocks

import (
	"bytes"
	"fmt"
	"html"
	"net/url"
	"strings"

	"github.com/yuin/goldmark"
)

// Default returns the built-in component set: layout containers, headings,
// text, buttons, images, and a markdown block. It is the registry wired into
// the compiler unless a caller supplies its own.
func Default() *Registry {
	return NewRegistry(map[string]Definition{
		"Container": containerDefinition(),
		"Section":   sectionDefinition(),
		"Heading":   headingDefinition(),
		"Text":      textDefinition(),
		"Button":    buttonDefinition(),
		"Image":     imageDefinition(),
		"Markdown":  markdownDefinition(),
	})
}

func containerDefinition() Definition {
	return Definition{
		Label: "Container",
		Defaults: Props{
			"padding":    float64(24),
			"maxWidth":   float64(600),
			"background": "#ffffff",
		},
		Fields: Fields{
			"padding":    {Label: "Padding", Type: FieldNumber, Min: 0, Max: 64, Step: 4},
			"maxWidth":   {Label: "Max width", Type: FieldNumber, Min: 320, Max: 800, Step: 10},
			"background": {Label: "Background", Type: FieldText},
			"content":    {Label: "Content", Type: FieldSlot},
		},
		Render: func(mode Mode, props Props, _ []string) string {
			inner := strings.Join(props.Fragments("content"), "")
			if mode == ModeText {
				return inner
			}
			return fmt.Sprintf(
				`<div style="padding:%spx;width:100%%;max-width:%spx;background-color:%s;margin:0 auto;">%s</div>`,
				FormatNumber(props.Number("padding", 24)),
				FormatNumber(props.Number("maxWidth", 600)),
				safeColor(props.String("background", "#ffffff")),
				inner,
			)
		},
	}
}

func sectionDefinition() Definition {
	return Definition{
		Label: "Section",
		Defaults: Props{
			"paddingY":   float64(16),
			"paddingX":   float64(16),
			"background": "#ffffff",
		},
		Fields: Fields{
			"paddingY":   {Label: "Padding Y", Type: FieldNumber, Min: 0, Max: 64, Step: 4},
			"paddingX":   {Label: "Padding X", Type: FieldNumber, Min: 0, Max: 64, Step: 4},
			"background": {Label: "Background", Type: FieldText},
			"content":    {Label: "Content", Type: FieldSlot},
		},
		Render: func(mode Mode, props Props, _ []string) string {
			inner := strings.Join(props.Fragments("content"), "")
			if mode == ModeText {
				return inner
			}
			return fmt.Sprintf(
				`<div style="background-color:%s;padding:%spx %spx;">%s</div>`,
				safeColor(props.String("background", "#ffffff")),
				FormatNumber(props.Number("paddingY", 16)),
				FormatNumber(props.Number("paddingX", 16)),
				inner,
			)
		},
	}
}

func headingDefinition() Definition {
	return Definition{
		Label: "Heading",
		Defaults: Props{
			"content": "Welcome!",
			"level":   "h2",
			"align":   "left",
			"color":   "#111111",
		},
		Fields: Fields{
			"content": {Label: "Text", Type: FieldText},
			"level": {Label: "Level", Type: FieldSelect, Options: []SelectOption{
				{Label: "H1", Value: "h1"},
				{Label: "H2", Value: "h2"},
				{Label: "H3", Value: "h3"},
			}},
			"align": {Label: "Align", Type: FieldSelect, Options: alignOptions()},
			"color": {Label: "Color", Type: FieldText},
		},
		Render: func(mode Mode, props Props, _ []string) string {
			text := props.String("content", "")
			if mode == ModeText {
				return text + "\n\n"
			}
			size := 22
			switch props.String("level", "h2") {
			case "h1":
				size = 28
			case "h3":
				size = 18
			}
			return fmt.Sprintf(
				`<p style="font-size:%dpx;font-weight:700;text-align:%s;color:%s;margin:0 0 8px 0;">%s</p>`,
				size,
				props.String("align", "left"),
				safeColor(props.String("color", "#111111")),
				html.EscapeString(text),
			)
		},
	}
}

func textDefinition() Definition {
	return Definition{
		Label: "Text",
		Defaults: Props{
			"content": "",
			"align":   "left",
			"color":   "#333333",
		},
		Fields: Fields{
			"content": {Label: "Text", Type: FieldTextarea},
			"align":   {Label: "Align", Type: FieldSelect, Options: alignOptions()},
			"color":   {Label: "Color", Type: FieldText},
		},
		Render: func(mode Mode, props Props, _ []string) string {
			text := props.String("content", "")
			if mode == ModeText {
				return text + "\n\n"
			}
			return fmt.Sprintf(
				`<p style="text-align:%s;color:%s;line-height:1.5;margin:0 0 12px 0;">%s</p>`,
				props.String("align", "left"),
				safeColor(props.String("color", "#333333")),
				html.EscapeString(text),
			)
		},
	}
}

func buttonDefinition() Definition {
	return Definition{
		Label: "Button",
		Defaults: Props{
			"label":    "Call to Action",
			"href":     "https://example.com",
			"bg":       "#111111",
			"color":    "#ffffff",
			"radius":   float64(6),
			"paddingX": float64(16),
			"paddingY": float64(10),
		},
		Fields: Fields{
			"label":    {Label: "Label", Type: FieldText},
			"href":     {Label: "Link (href)", Type: FieldText},
			"bg":       {Label: "Background", Type: FieldText},
			"color":    {Label: "Text Color", Type: FieldText},
			"radius":   {Label: "Border Radius", Type: FieldNumber, Min: 0, Max: 24, Step: 1},
			"paddingX": {Label: "Padding X", Type: FieldNumber, Min: 8, Max: 32, Step: 1},
			"paddingY": {Label: "Padding Y", Type: FieldNumber, Min: 6, Max: 20, Step: 1},
		},
		Render: func(mode Mode, props Props, _ []string) string {
			label := props.String("label", "")
			href := SafeURL(props.String("href", ""))
			if mode == ModeText {
				return fmt.Sprintf("%s (%s)\n\n", label, href)
			}
			return fmt.Sprintf(
				`<a href="%s" style="background-color:%s;color:%s;border-radius:%spx;padding:%spx %spx;display:inline-block;text-decoration:none;">%s</a>`,
				html.EscapeString(href),
				safeColor(props.String("bg", "#111111")),
				safeColor(props.String("color", "#ffffff")),
				FormatNumber(props.Number("radius", 6)),
				FormatNumber(props.Number("paddingY", 10)),
				FormatNumber(props.Number("paddingX", 16)),
				html.EscapeString(label),
			)
		},
	}
}

func imageDefinition() Definition {
	return Definition{
		Label: "Image",
		Defaults: Props{
			"src":   "",
			"alt":   "Image",
			"width": float64(600),
		},
		Fields: Fields{
			"src":   {Label: "Src", Type: FieldText},
			"alt":   {Label: "Alt", Type: FieldText},
			"width": {Label: "Width", Type: FieldNumber, Min: 40, Max: 800, Step: 10},
		},
		Render: func(mode Mode, props Props, _ []string) string {
			alt := props.String("alt", "")
			if mode == ModeText {
				if alt == "" {
					return ""
				}
				return "[" + alt + "]\n\n"
			}
			src := SafeURL(props.String("src", ""))
			if src == "" {
				return ""
			}
			return fmt.Sprintf(
				`<img src="%s" alt="%s" width="%s" style="max-width:100%%;display:block;" />`,
				html.EscapeString(src),
				html.EscapeString(alt),
				FormatNumber(props.Number("width", 600)),
			)
		},
	}
}

func markdownDefinition() Definition {
	md := goldmark.New()
	return Definition{
		Label: "Markdown",
		Defaults: Props{
			"content": "",
		},
		Fields: Fields{
			"content": {Label: "Markdown", Type: FieldTextarea},
		},
		Render: func(mode Mode, props Props, _ []string) string {
			source := props.String("content", "")
			// Plain text keeps the raw markdown; it reads well enough
			// as the text/plain alternative.
			if mode == ModeText {
				return source + "\n"
			}
			var buf bytes.Buffer
			if err := md.Convert([]byte(source), &buf); err != nil {
				return ""
			}
			return buf.String()
		},
	}
}

func alignOptions() []SelectOption {
	return []SelectOption{
		{Label: "Left", Value: "left"},
		{Label: "Center", Value: "center"},
		{Label: "Right", Value: "right"},
	}
}

// SafeURL keeps http, https, and mailto targets and rejects everything else
// (javascript:, data:, and friends). Relative URLs are allowed.
func SafeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "", "http", "https", "mailto":
		return raw
	default:
		return ""
	}
}

// safeColor restricts style color values to characters that cannot break out
// of the inline style attribute.
func safeColor(v string) string {
	for _, r := range v {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '#' || r == '(' || r == ')' || r == ',' || r == '.' || r == ' ' || r == '%':
		default:
			return "#000000"
		}
	}
	return v
}
