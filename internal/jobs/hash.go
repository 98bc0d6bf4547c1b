package jobs

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// UniqueFiles drops repeated names, keeping first occurrences in order.
func UniqueFiles(files []string) []string {
	seen := make(map[string]struct{}, len(files))
	out := make([]string, 0, len(files))
	for _, f := range files {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

// FilesHash is the SHA-256 hex digest of the sorted, de-duplicated file names
// joined by "|". Order and repetition in files do not change it.
func FilesHash(files []string) string {
	names := UniqueFiles(files)
	slices.Sort(names)
	sum := sha256.Sum256([]byte(strings.Join(names, "|")))
	return hex.EncodeToString(sum[:])
}

// checkName accepts a single path element that stays inside its parent:
// not absolute, no separators, not "." or "..".
func checkName(kind, name string) error {
	if !filepath.IsLocal(name) || strings.ContainsAny(name, `/\`) || name == "." {
		return fmt.Errorf("%w: %s %q", ErrInvalidName, kind, name)
	}
	return nil
}

func newJobID() string {
	return "job_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
