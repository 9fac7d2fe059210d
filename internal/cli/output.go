package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Underline(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	currentStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	successStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
)

// column pads text to a fixed width, truncating with an ellipsis.
func column(text string, width int) string {
	r := []rune(text)
	if len(r) > width {
		text = string(r[:width-1]) + "…"
	}
	return lipgloss.NewStyle().Width(width).Render(text)
}

func printSuccess(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintln(w, successStyle.Render("✓ "+fmt.Sprintf(format, args...)))
}

// renderMarkdown renders markdown for the terminal. Output that is not a
// terminal gets the plain style.
func renderMarkdown(md string) (string, error) {
	style := glamour.WithStandardStyle(styles.NoTTYStyle)
	if isatty.IsTerminal(os.Stdout.Fd()) {
		style = glamour.WithAutoStyle()
	}
	r, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(80))
	if err != nil {
		return "", fmt.Errorf("could not create markdown renderer: %w", err)
	}
	return r.Render(md)
}
