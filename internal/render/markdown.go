package render

import (
	"bytes"
	"html"
	"log/slog"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

// Markdown converts assistant text to HTML.
type Markdown interface {
	Render(source string) string
}

type goldmarkRenderer struct {
	md goldmark.Markdown
}

// NewMarkdown returns a GitHub-flavoured markdown renderer. Raw HTML in the
// source is escaped.
func NewMarkdown() Markdown {
	return &goldmarkRenderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(gmhtml.WithHardWraps()),
		),
	}
}

func (r *goldmarkRenderer) Render(source string) string {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(source), &buf); err != nil {
		slog.Warn("Markdown conversion failed, falling back to escaped text", "error", err)
		return "<p>" + html.EscapeString(source) + "</p>"
	}
	return buf.String()
}
