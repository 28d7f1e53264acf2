// Package logging configures the process-wide logger used by semsearch.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

var (
	mu      sync.Mutex
	logFile *os.File
	quiet   bool
)

// Init routes the standard logger to stdout and, when logPath is set, to an
// append-only log file. Calling Init again closes the previous file.
func Init(logPath string) error {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}

	var writers []io.Writer
	if !quiet {
		writers = append(writers, os.Stdout)
	}

	if logPath != "" {
		if dir := filepath.Dir(logPath); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
		}
		file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		logFile = file
		writers = append(writers, logFile)
	}

	if len(writers) == 0 {
		log.SetOutput(io.Discard)
		return nil
	}
	log.SetOutput(io.MultiWriter(writers...))
	return nil
}

// SetQuiet drops stdout from the writer set on the next Init. The CLI uses it
// when it prints its own colored status lines.
func SetQuiet(v bool) {
	mu.Lock()
	defer mu.Unlock()
	quiet = v
}

// Close flushes and detaches the log file.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if logFile == nil {
		return nil
	}
	log.SetOutput(os.Stderr)
	err := logFile.Close()
	logFile = nil
	return err
}

// LogEvent writes a formatted lifecycle event.
func LogEvent(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	log.Println(msg)
}

// Direction marks whether a provider line describes an outbound call or
// its outcome.
type Direction string

const (
	Send Direction = "->"
	Recv Direction = "<-"
)

// maxDetailLen caps logged details; error bodies can echo whole batches.
const maxDetailLen = 512

// LogRequest writes one provider line, for example
//
//	[pinecone] semantic-search upsert -> 100 vectors
func LogRequest(dir Direction, provider, target, op, detail string) {
	log.Println(requestLine(dir, provider, target, op, detail))
}

// LogResult writes the outcome of a provider call together with its latency.
func LogResult(provider, target, op string, elapsed time.Duration, err error) {
	detail := "ok " + elapsed.Round(time.Millisecond).String()
	if err != nil {
		detail = fmt.Sprintf("failed after %s: %v", elapsed.Round(time.Millisecond), err)
	}
	log.Println(requestLine(Recv, provider, target, op, detail))
}

func requestLine(dir Direction, provider, target, op, detail string) string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(orUnknown(provider))
	b.WriteString("] ")
	b.WriteString(orUnknown(target))
	if op = strings.TrimSpace(op); op != "" {
		b.WriteString(" ")
		b.WriteString(op)
	}
	if dir == "" {
		dir = Send
	}
	b.WriteString(" ")
	b.WriteString(string(dir))
	if detail = strings.Join(strings.Fields(detail), " "); detail != "" {
		b.WriteString(" ")
		b.WriteString(clip(detail, maxDetailLen))
	}
	return b.String()
}

func orUnknown(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return "unknown"
	}
	return s
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return fmt.Sprintf("%s...(%d bytes)", s[:n], len(s))
}
