package ui

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
)

var (
	cyan    = lipgloss.Color("#00D7FF")
	yellow  = lipgloss.Color("#FFD75F")
	red     = lipgloss.Color("#FF5F5F")
	green   = lipgloss.Color("#5FFF87")
	magenta = lipgloss.Color("#FF5FD7")

	labelStyle   = lipgloss.NewStyle().Foreground(cyan).Bold(true)
	valueStyle   = lipgloss.NewStyle().Foreground(yellow)
	errorStyle   = lipgloss.NewStyle().Foreground(red).Bold(true)
	successStyle = lipgloss.NewStyle().Foreground(green).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(yellow)
	accentStyle  = lipgloss.NewStyle().Foreground(magenta).Bold(true)
	dimStyle     = lipgloss.NewStyle().Faint(true)
)

// Banner is printed at the top of interactive commands
const Banner = "citystories · city timelines to disk"

// Printer writes styled lines to a stream
type Printer struct {
	w io.Writer
}

// NewPrinter creates a Printer; a nil writer means stdout
func NewPrinter(w io.Writer) *Printer {
	if w == nil {
		w = os.Stdout
	}
	return &Printer{w: w}
}

// Banner prints the application banner
func (p *Printer) Banner() {
	fmt.Fprintln(p.w, accentStyle.Render(Banner))
}

// Error prints an error message, with optional detail
func (p *Printer) Error(msg string, detail ...interface{}) {
	if len(detail) > 0 && detail[0] != nil && fmt.Sprint(detail[0]) != "" {
		msg = fmt.Sprintf("%s: %v", msg, detail[0])
	}
	fmt.Fprintln(p.w, errorStyle.Render("✗ "+msg))
}

// Success prints a success message
func (p *Printer) Success(msg string) {
	fmt.Fprintln(p.w, successStyle.Render("✓ "+msg))
}

// Warning prints a warning message
func (p *Printer) Warning(msg string) {
	fmt.Fprintln(p.w, warningStyle.Render("! "+msg))
}

// Info prints a label/value pair
func (p *Printer) Info(label, value string) {
	fmt.Fprintf(p.w, "%s %s\n", labelStyle.Render(label+":"), valueStyle.Render(value))
}

// Dim prints a secondary line
func (p *Printer) Dim(msg string) {
	fmt.Fprintln(p.w, dimStyle.Render(msg))
}

// Writer returns the underlying stream
func (p *Printer) Writer() io.Writer {
	return p.w
}
