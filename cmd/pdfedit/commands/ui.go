package commands

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
)

var (
	successMark = color.New(color.FgGreen, color.Bold).SprintFunc()
	warnMark    = color.New(color.FgYellow).SprintFunc()
	infoMark    = color.New(color.FgCyan).SprintFunc()
	heading     = color.New(color.Bold).SprintFunc()
)

func success(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", successMark("✓"), fmt.Sprintf(format, args...))
}

func warning(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", warnMark("⚠"), fmt.Sprintf(format, args...))
}

func info(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", infoMark("ℹ"), fmt.Sprintf(format, args...))
}

func section(w io.Writer, title string) {
	fmt.Fprintf(w, "\n%s\n%s\n", heading(title), strings.Repeat("=", len(title)))
}

func keyValue(w io.Writer, key string, value any) {
	fmt.Fprintf(w, "  %s: %v\n", key, value)
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.Round(10 * time.Millisecond).String()
}
