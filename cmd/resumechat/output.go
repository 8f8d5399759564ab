package main

import (
	"fmt"
	"io"
)

// ANSI styles. Disabled by --no-color or NO_COLOR.
type style string

const (
	red    style = "\033[31m"
	green  style = "\033[32m"
	yellow style = "\033[33m"
	cyan   style = "\033[36m"
	bold   style = "\033[1m"
	reset  style = "\033[0m"
)

func paint(s style, text string) string {
	if noColor {
		return text
	}
	return string(s) + text + string(reset)
}

// console writes human-facing CLI output: one-line notices with a leading
// mark, and indented "label: value" fields.
type console struct {
	w io.Writer
}

func (c console) notice(s style, mark, format string, args ...any) {
	fmt.Fprintln(c.w, paint(s, mark+" "+fmt.Sprintf(format, args...)))
}

func (c console) success(format string, args ...any) { c.notice(green, "✓", format, args...) }
func (c console) fail(format string, args ...any)    { c.notice(red, "✗", format, args...) }
func (c console) warn(format string, args ...any)    { c.notice(yellow, "⚠", format, args...) }
func (c console) step(format string, args ...any)    { c.notice(cyan, "→", format, args...) }

func (c console) field(label, format string, args ...any) {
	fmt.Fprintf(c.w, "  %s %s\n", paint(bold, label+":"), fmt.Sprintf(format, args...))
}
