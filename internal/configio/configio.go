// Package configio reads and writes configuration files as raw text.
package configio

import (
	"os"
)

// FileMode is applied to files created by Write.
const FileMode = 0o644

// Read returns the full contents of path.
func Read(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Write replaces the contents of path with content, creating the file if
// needed. The contents are written as-is.
func Write(path, content string) error {
	return os.WriteFile(path, []byte(content), FileMode)
}
