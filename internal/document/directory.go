package document

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/mwiater/semsearch/internal/logging"
)

// Options controls directory loading.
type Options struct {
	// Glob selects files relative to the root. "**" spans directories and
	// "{a,b}" matches either alternative.
	Glob string
	// Exclude lists glob patterns for files and directories to skip.
	Exclude []string
	// Progress, when set, is called after each file is loaded.
	Progress func(done, total int, path string)
}

// DefaultGlob loads PDFs in any subdirectory.
const DefaultGlob = "**/*.pdf"

// LoadDirectory loads every file under root that matches the glob.
func LoadDirectory(root string, opts Options) ([]Document, error) {
	files, err := discoverFiles(root, opts.Glob, opts.Exclude)
	if err != nil {
		return nil, err
	}
	logging.LogEvent("[LOAD] Discovered %d files under %s", len(files), root)

	var docs []Document
	for i, p := range files {
		loaded, err := LoadFile(p)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", p, err)
		}
		docs = append(docs, loaded...)
		if opts.Progress != nil {
			opts.Progress(i+1, len(files), p)
		}
	}
	return docs, nil
}

func discoverFiles(root, glob string, exclude []string) ([]string, error) {
	if strings.TrimSpace(glob) == "" {
		glob = DefaultGlob
	}
	if !doublestar.ValidatePattern(glob) {
		return nil, fmt.Errorf("invalid glob pattern %q", glob)
	}
	patterns := make([]string, 0, len(exclude))
	for _, pattern := range exclude {
		pattern = strings.Trim(filepath.ToSlash(strings.TrimSpace(pattern)), "/")
		if pattern == "" {
			continue
		}
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid exclude pattern %q", pattern)
		}
		patterns = append(patterns, pattern)
	}

	var files []string
	err := doublestar.GlobWalk(os.DirFS(root), glob, func(rel string, d fs.DirEntry) error {
		if excluded(rel, patterns) {
			return nil
		}
		files = append(files, filepath.Join(root, filepath.FromSlash(rel)))
		return nil
	}, doublestar.WithFilesOnly(), doublestar.WithFailOnIOErrors())
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	return files, nil
}

// excluded reports whether rel, or a directory above it, matches one of the
// exclude patterns.
func excluded(rel string, patterns []string) bool {
	for _, pattern := range patterns {
		if doublestar.MatchUnvalidated(pattern, rel) || doublestar.MatchUnvalidated(pattern+"/**", rel) {
			return true
		}
	}
	return false
}
