// Package storage provides object storage adapters for location exports.
package storage

import (
	"io"
	"os"
	"path/filepath"
	"strings"
)

// writeFile streams r into dest, creating parent directories as needed.
func writeFile(dest string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0750); err != nil {
		return err
	}

	f, err := os.Create(dest) //#nosec G304 -- dest is a controlled local path
	if err != nil {
		return err
	}

	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// relativeKey strips the configured prefix from an object key.
func relativeKey(prefix, key string) string {
	rel := strings.TrimPrefix(key, prefix)
	return strings.TrimPrefix(rel, "/")
}

// prefixedKey joins the configured prefix and a relative key.
func prefixedKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return strings.TrimSuffix(prefix, "/") + "/" + key
}
