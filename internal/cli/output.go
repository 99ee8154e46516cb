package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/dshills/csep/pkg/types"
)

// Theme is the label palette for human output.
type Theme struct {
	Label      lipgloss.Color
	Path       lipgloss.Color
	Similarity lipgloss.Color
	Muted      lipgloss.Color
}

// DefaultTheme returns the default colour theme.
func DefaultTheme() Theme {
	return Theme{
		Label:      lipgloss.Color("#7C3AED"), // Purple
		Path:       lipgloss.Color("#06B6D4"), // Cyan
		Similarity: lipgloss.Color("#A6E3A1"), // Green
		Muted:      lipgloss.Color("#6C7086"), // Medium gray
	}
}

// styles are bound to one writer so colour is dropped when it is not a
// terminal.
type styles struct {
	label      lipgloss.Style
	path       lipgloss.Style
	similarity lipgloss.Style
	muted      lipgloss.Style
}

func newStyles(w io.Writer, theme Theme) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		label:      r.NewStyle().Bold(true).Foreground(theme.Label),
		path:       r.NewStyle().Foreground(theme.Path),
		similarity: r.NewStyle().Foreground(theme.Similarity),
		muted:      r.NewStyle().Foreground(theme.Muted),
	}
}

// printer renders results in human or vimgrep form.
type printer struct {
	w       io.Writer
	styles  styles
	vimgrep bool
	noQuery bool
}

func newPrinter(w io.Writer, vimgrep, noQuery bool) *printer {
	return &printer{
		w:       w,
		styles:  newStyles(w, DefaultTheme()),
		vimgrep: vimgrep,
		noQuery: noQuery,
	}
}

func (p *printer) results(query string, results []types.RankedResult) {
	if p.vimgrep {
		for i := range results {
			r := &results[i]
			fmt.Fprintf(p.w, "%s:%d:1:%s\n", r.FilePath, r.Line(), formatScore(r.Similarity))
		}
		return
	}

	if !p.noQuery {
		fmt.Fprintf(p.w, "%s %s\n\n", p.styles.label.Render("Results for search phrase:"), query)
	}
	for i := range results {
		r := &results[i]
		p.field("file:", p.styles.path.Render(r.FilePath))
		p.field("chunk:", strings.TrimRight(r.Chunk.Text, "\r\n"))
		p.field("similarity:", p.styles.similarity.Render(formatScore(r.Similarity)))
		fmt.Fprintln(p.w)
	}
}

func (p *printer) comparison(first, second string, similarity float32) {
	p.field("first:", first)
	p.field("second:", second)
	p.field("similarity:", p.styles.similarity.Render(formatScore(similarity)))
}

func (p *printer) models(provider string, models []string, current string) {
	fmt.Fprintf(p.w, "%s %s\n", p.styles.label.Render("Available models for"), provider)
	for _, m := range models {
		if m == current {
			fmt.Fprintf(p.w, "  - %s %s\n", m, p.styles.muted.Render("(selected)"))
			continue
		}
		fmt.Fprintf(p.w, "  - %s\n", m)
	}
}

func (p *printer) field(label, value string) {
	fmt.Fprintf(p.w, "%s %s\n", p.styles.label.Render(label), value)
}

// formatScore prints the shortest decimal that round-trips the float32.
func formatScore(score float32) string {
	return strconv.FormatFloat(float64(score), 'f', -1, 32)
}
