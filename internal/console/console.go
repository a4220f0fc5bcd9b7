// Package console formats command output for the terminal.
package console

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// Printer writes styled lines to an output stream.
type Printer struct {
	w io.Writer
}

// New creates a Printer writing to w.
func New(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Title prints a bold heading.
func (p *Printer) Title(format string, args ...any) {
	fmt.Fprintln(p.w, titleStyle.Render(fmt.Sprintf(format, args...)))
}

// OK prints a success line.
func (p *Printer) OK(format string, args ...any) {
	fmt.Fprintln(p.w, successStyle.Render("[OK] ")+fmt.Sprintf(format, args...))
}

// Warn prints a warning line.
func (p *Printer) Warn(format string, args ...any) {
	fmt.Fprintln(p.w, warnStyle.Render("[!!] ")+fmt.Sprintf(format, args...))
}

// Fail prints a failure line.
func (p *Printer) Fail(format string, args ...any) {
	fmt.Fprintln(p.w, errStyle.Render("[FAIL] ")+fmt.Sprintf(format, args...))
}

// Info prints a plain line.
func (p *Printer) Info(format string, args ...any) {
	fmt.Fprintf(p.w, format+"\n", args...)
}

// Detail prints an indented, dimmed line.
func (p *Printer) Detail(format string, args ...any) {
	fmt.Fprintln(p.w, dimStyle.Render("    "+fmt.Sprintf(format, args...)))
}

// Block prints multi-line text as is, ensuring a trailing newline.
func (p *Printer) Block(text string) {
	if text == "" {
		return
	}
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	fmt.Fprint(p.w, text)
}
