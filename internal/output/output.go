// Package output provides the human-readable report printed by fuzzysearch.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Aman-CERP/fuzzysearch/internal/document"
)

// Writer provides formatted output for CLI.
type Writer struct {
	out    io.Writer
	styles Styles
}

// Option configures a Writer.
type Option func(*Writer)

// WithColor forces colors on or off.
func WithColor(enabled bool) Option {
	return func(w *Writer) {
		w.styles = GetStyles(!enabled)
	}
}

// New creates a new output Writer. Colors are used only when out is a
// terminal and NO_COLOR is unset.
func New(out io.Writer, opts ...Option) *Writer {
	w := &Writer{
		out:    out,
		styles: GetStyles(!IsTTY(out) || DetectNoColor()),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Status prints a status message with an icon.
// Errors from writing are intentionally ignored for console output.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf prints a formatted status message with an icon.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a success message with checkmark.
func (w *Writer) Success(msg string) {
	w.Status(w.styles.Success.Render("✅"), msg)
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	w.Status("⚠️ ", w.styles.Warning.Render(msg))
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (w *Writer) Error(msg string) {
	w.Status("❌", w.styles.Error.Render(msg))
}

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// BeginPhase prints "=== BEGIN NAME ===".
func (w *Writer) BeginPhase(name string) {
	w.marker("BEGIN", name)
}

// EndPhase prints "=== END NAME ===".
func (w *Writer) EndPhase(name string) {
	w.marker("END", name)
}

func (w *Writer) marker(edge, name string) {
	line := fmt.Sprintf("=== %s %s ===", edge, strings.ToUpper(name))
	_, _ = fmt.Fprintln(w.out, w.styles.Header.Render(line))
}

// Ping prints the store round-trip time.
func (w *Writer) Ping(latency time.Duration) {
	w.Successf("Connected, ping %s", formatDuration(latency))
}

// Duration prints "label: 1.234s".
func (w *Writer) Duration(label string, d time.Duration) {
	w.KeyValue(label, formatDuration(d))
}

// KeyValue prints an indented "key: value" line.
func (w *Writer) KeyValue(key string, value any) {
	_, _ = fmt.Fprintf(w.out, "   %s %v\n", w.styles.Label.Render(key+":"), value)
}

// Document prints doc as indented JSON.
func (w *Writer) Document(doc document.Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to render document: %w", err)
	}
	_, err = fmt.Fprintln(w.out, string(data))
	return err
}

// formatDuration rounds to a readable precision.
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return d.Round(time.Microsecond).String()
	case d < time.Second:
		return d.Round(10 * time.Microsecond).String()
	default:
		return d.Round(time.Millisecond).String()
	}
}
