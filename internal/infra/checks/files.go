package checks

import (
	"bytes"
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// DefaultMaxFileBytes bounds the size of files read by source checks.
const DefaultMaxFileBytes = 1 << 20

var skippedDirs = map[string]struct{}{
	".git":         {},
	"node_modules": {},
	"vendor":       {},
	"dist":         {},
	"build":        {},
	"__pycache__":  {},
	".venv":        {},
	"venv":         {},
	".idea":        {},
}

// sourceFile is a text file read from the work dir.
type sourceFile struct {
	// Rel is the slash separated path relative to the work dir.
	Rel     string
	Content []byte
}

// walkSources calls fn for every text file under root no larger than
// maxBytes. Unreadable entries are skipped.
func walkSources(ctx context.Context, root string, maxBytes int64, fn func(sourceFile) error) error {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFileBytes
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if _, skip := skippedDirs[d.Name()]; skip && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil || info.Size() > maxBytes {
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil || isBinary(content) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = path
		}
		return fn(sourceFile{Rel: filepath.ToSlash(rel), Content: content})
	})
}

func isBinary(content []byte) bool {
	head := content[:min(len(content), 8000)]
	return bytes.IndexByte(head, 0) >= 0
}

var codeExts = map[string]struct{}{
	".go": {}, ".py": {}, ".js": {}, ".ts": {}, ".java": {}, ".rb": {},
	".php": {}, ".cs": {}, ".kt": {}, ".scala": {}, ".jsx": {}, ".tsx": {},
}

func isCode(rel string) bool {
	_, ok := codeExts[strings.ToLower(filepath.Ext(rel))]
	return ok
}

// lines splits content keeping 1-based line numbers aligned with the file.
func lines(content []byte) []string {
	return strings.Split(strings.ReplaceAll(string(content), "\r\n", "\n"), "\n")
}

func snippet(line string) string {
	line = strings.TrimSpace(line)
	if len(line) > 160 {
		line = line[:160] + "..."
	}
	return line
}
