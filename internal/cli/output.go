package semsearch

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/mwiater/semsearch/internal/logging"
)

var (
	okMark   = color.New(color.FgGreen).SprintFunc()
	warnMark = color.New(color.FgYellow).SprintFunc()
	failMark = color.New(color.FgRed).SprintFunc()
	heading  = color.New(color.FgCyan, color.Bold).SprintFunc()
)

func success(out io.Writer, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(out, "%s %s\n", okMark("✓"), msg)
	logging.LogEvent("%s", msg)
}

func warn(out io.Writer, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(out, "%s %s\n", warnMark("⚠"), msg)
	logging.LogEvent("WARN %s", msg)
}

func failure(out io.Writer, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(out, "%s %s\n", failMark("❌"), msg)
	logging.LogEvent("ERROR %s", msg)
}

func section(out io.Writer, title string) {
	fmt.Fprintf(out, "\n%s\n%s\n", heading(title), strings.Repeat("=", 60))
}
