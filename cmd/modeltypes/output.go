package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/jumppad-labs/modeltypes/dependency"
)

// printer renders command output, styles are only applied to headings so
// the listed values stay easy to pipe
type printer struct {
	w     io.Writer
	width int
}

func newPrinter(w io.Writer) *printer {
	return &printer{w: w, width: 100}
}

func (p *printer) Heading(s string) {
	style := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#7D56F4")).
		PaddingTop(1).
		Width(p.width)

	p.log(s, style)
}

func (p *printer) Item(s string) {
	style := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#B9E3CE")).
		PaddingLeft(2).
		Width(p.width)

	p.log(s, style)
}

func (p *printer) Detail(s string) {
	style := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#3F48CC")).
		PaddingLeft(4).
		Width(p.width)

	p.log(s, style)
}

func (p *printer) Error(s string) {
	style := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#EC1C24")).
		PaddingTop(1).
		Width(p.width)

	p.log(s, style)
}

func (p *printer) log(s string, style lipgloss.Style) {
	fmt.Fprintf(p.w, "%s\n", style.Render(s))
}

func printDependencies(p *printer, recs []dependency.Record) {
	if len(recs) == 0 {
		return
	}

	p.Heading("Dependencies")
	for _, r := range recs {
		p.Item(r.SourceReference)

		if r.Missing {
			p.Detail(r.Target + " (missing)")
			continue
		}

		p.Detail(r.Target)
	}
}
