package ui

import (
	"fmt"
	"io"
	"os"
)

// Printer writes styled command output.
type Printer struct {
	out   io.Writer
	width int
}

// NewPrinter creates a new Printer that writes to the given writer.
// If w is nil, os.Stdout is used.
func NewPrinter(w io.Writer) *Printer {
	if w == nil {
		w = os.Stdout
	}
	return &Printer{
		out:   w,
		width: GetTerminalWidth(),
	}
}

// Width returns the current terminal width used by this printer
func (p *Printer) Width() int {
	return p.width
}

// Println writes content with a newline
func (p *Printer) Println(content string) {
	_, _ = fmt.Fprintln(p.out, content)
}

// PrintTitle prints a bold title with an optional muted subtitle.
func (p *Printer) PrintTitle(title, subtitle string) {
	p.Println(TitleStyle.Render(title))
	if subtitle != "" {
		p.Println(SubtitleStyle.Render(subtitle))
	}
}

// PrintSuccess prints a success result box
func (p *Printer) PrintSuccess(title string, details map[string]string) {
	p.Println(NewSuccessResult(title, details).SetWidth(p.width).Render())
}

// PrintError prints an error result box with a troubleshooting hint
func (p *Printer) PrintError(title string, err error, hint string) {
	p.Println(NewFailureResult(title, err, hint).SetWidth(p.width).Render())
}
