// Package pathutil provides path and name validation utilities for autosync.
package pathutil

import (
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/autosync-project/autosync/pkg/errclass"
)

// NormalizeName validates a project name and returns its NFC form.
// Names appear in log scopes and metric labels, so separators and control
// characters are rejected.
func NormalizeName(name string) (string, error) {
	name = norm.NFC.String(strings.TrimSpace(name))
	if name == "" {
		return "", errclass.ErrNameInvalid.WithMessage("name must not be empty")
	}

	if strings.ContainsAny(name, "/\\") {
		return "", errclass.ErrNameInvalid.WithMessagef("name must not contain separators: %s", name)
	}

	for _, r := range name {
		if unicode.IsControl(r) {
			return "", errclass.ErrNameInvalid.WithMessagef("name must not contain control characters: %q", name)
		}
	}

	return name, nil
}

// ExpandPath expands a leading ~ to the user's home directory and makes the
// result absolute. A trailing separator is preserved because rsync treats
// "src/" and "src" differently.
func ExpandPath(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	trailing := strings.HasSuffix(p, string(filepath.Separator)) && len(p) > 1

	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		p = filepath.Join(home, strings.TrimPrefix(p, "~"))
	}

	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	if trailing && abs != string(filepath.Separator) {
		abs += string(filepath.Separator)
	}
	return abs, nil
}

// ExistingAncestor walks up from path and returns the closest directory that
// exists, or "" if none does.
func ExistingAncestor(path string) string {
	path = filepath.Clean(path)
	for {
		info, err := os.Stat(path)
		if err == nil && info.IsDir() {
			return path
		}
		parent := filepath.Dir(path)
		if parent == path {
			return ""
		}
		path = parent
	}
}
